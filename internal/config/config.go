// Package config は環境変数から起動時設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定。起動時に1回読み込み、以後は変更しない。
type Config struct {
	DatabaseURL string

	// ログイン用のOAuthクライアント
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// カレンダー連携はクライアントを共用し、コールバック先のみ分ける
	GoogleCalendarRedirectURL string

	SessionMaxAge int // 秒

	RateLimitGeneral int // 認証済みユーザーあたり req/min
	RateLimitPublic  int // 公開エンドポイントのIPあたり req/min
	RedisURL         string
	// Redisに到達できないとき公開エンドポイントを通すか（falseなら503）
	RateLimitFailOpen bool

	DefaultSlotDuration int // 分
	DefaultTimezone     string

	CalendarTimeout time.Duration
	ICSMaxSize      int64

	TokenRefreshInterval    time.Duration
	TokenRefreshLeeway      time.Duration
	TokenRefreshConcurrency int
	CleanupSchedule         string
	EventTypeRetentionDays  int
	// 空でなければワーカーは/metricsと/healthをこのポートで公開する
	WorkerMetricsPort string

	LogLevel string

	ServerPort string
	BaseURL    string

	CookieSecure bool
	CookieDomain string

	CORSAllowedOrigin string
}

// maxSlotDurationMinutes はevent_types.duration_minutesのCHECK制約と揃える。
const maxSlotDurationMinutes = 720

var requiredVars = []string{
	"DATABASE_URL",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_REDIRECT_URL",
	"GOOGLE_CALENDAR_REDIRECT_URL",
	"BASE_URL",
}

// Load は環境変数からConfigを読み込む。
// 必須変数の欠落と範囲外の値はエラー。数値として解釈できない値は既定値に戻す。
func Load() (*Config, error) {
	var missing []string
	for _, key := range requiredVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		GoogleClientID:            os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:        os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:         os.Getenv("GOOGLE_REDIRECT_URL"),
		GoogleCalendarRedirectURL: os.Getenv("GOOGLE_CALENDAR_REDIRECT_URL"),
		BaseURL:                   os.Getenv("BASE_URL"),

		SessionMaxAge:           envOr("SESSION_MAX_AGE", 86400, strconv.Atoi),
		RateLimitGeneral:        envOr("RATE_LIMIT_GENERAL", 120, strconv.Atoi),
		RateLimitPublic:         envOr("RATE_LIMIT_PUBLIC", 30, strconv.Atoi),
		RedisURL:                envOr("REDIS_URL", "", parseString),
		RateLimitFailOpen:       envOr("RATE_LIMIT_FAIL_OPEN", true, strconv.ParseBool),
		DefaultSlotDuration:     envOr("DEFAULT_SLOT_DURATION", 30, strconv.Atoi),
		DefaultTimezone:         envOr("DEFAULT_TIMEZONE", "UTC", parseString),
		CalendarTimeout:         envOr("CALENDAR_TIMEOUT", 10*time.Second, time.ParseDuration),
		ICSMaxSize:              envOr("ICS_MAX_SIZE", int64(2<<20), parseInt64),
		TokenRefreshInterval:    envOr("TOKEN_REFRESH_INTERVAL", 5*time.Minute, time.ParseDuration),
		TokenRefreshLeeway:      envOr("TOKEN_REFRESH_LEEWAY", 10*time.Minute, time.ParseDuration),
		TokenRefreshConcurrency: envOr("TOKEN_REFRESH_CONCURRENCY", 5, strconv.Atoi),
		CleanupSchedule:         envOr("CLEANUP_SCHEDULE", "@daily", parseString),
		EventTypeRetentionDays:  envOr("EVENT_TYPE_RETENTION_DAYS", 180, strconv.Atoi),
		WorkerMetricsPort:       envOr("WORKER_METRICS_PORT", "", parseString),
		LogLevel:                strings.ToLower(envOr("LOG_LEVEL", "info", parseString)),
		ServerPort:              envOr("SERVER_PORT", "8080", parseString),
		CookieDomain:            envOr("COOKIE_DOMAIN", "", parseString),
		CORSAllowedOrigin:       envOr("CORS_ALLOWED_ORIGIN", "http://localhost:5173", parseString),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DefaultSlotDuration < 1 || c.DefaultSlotDuration > maxSlotDurationMinutes {
		errs = append(errs, fmt.Errorf("DEFAULT_SLOT_DURATION must be between 1 and %d, got %d", maxSlotDurationMinutes, c.DefaultSlotDuration))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err))
	}
	if c.TokenRefreshConcurrency < 1 {
		errs = append(errs, fmt.Errorf("TOKEN_REFRESH_CONCURRENCY must be positive, got %d", c.TokenRefreshConcurrency))
	}
	if c.ICSMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("ICS_MAX_SIZE must be positive, got %d", c.ICSMaxSize))
	}
	if c.SessionMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAge))
	}
	return errors.Join(errs...)
}

// envOr はkeyの値をparseで解釈する。未設定か解釈できない場合はdef。
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		return def
	}
	return parsed
}

func parseString(s string) (string, error) { return s, nil }

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
