package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/hitoshi/slotbook/internal/auth"
	"github.com/hitoshi/slotbook/internal/availability"
	"github.com/hitoshi/slotbook/internal/calendar"
	"github.com/hitoshi/slotbook/internal/config"
	"github.com/hitoshi/slotbook/internal/database"
	"github.com/hitoshi/slotbook/internal/eventtype"
	"github.com/hitoshi/slotbook/internal/handler"
	"github.com/hitoshi/slotbook/internal/logger"
	"github.com/hitoshi/slotbook/internal/metrics"
	"github.com/hitoshi/slotbook/internal/middleware"
	"github.com/hitoshi/slotbook/internal/repository"
	"github.com/hitoshi/slotbook/internal/schedule"
	"github.com/hitoshi/slotbook/internal/security"
	"github.com/hitoshi/slotbook/internal/user"
	"github.com/hitoshi/slotbook/internal/worker"
	"github.com/hitoshi/slotbook/internal/worker/cleanup"
	"github.com/hitoshi/slotbook/internal/worker/refresh"
)

const (
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 5 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 30 * time.Second
	// publicRateLimitPrefix はRedisレート制限のキープレフィックス。
	publicRateLimitPrefix = "slotbook:rl:public"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映してロガーを再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort(commandArgs(args)))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)
	eventTypeRepo := repository.NewPostgresEventTypeRepo(db)
	calendarRepo := repository.NewPostgresCalendarRepo(db)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 5. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{
			SessionMaxAge:   cfg.SessionMaxAge,
			DefaultTimezone: cfg.DefaultTimezone,
		},
	)
	userService := user.NewService(userRepo, sessionRepo, calendarRepo)
	scheduleService := schedule.NewService(scheduleRepo)
	eventTypeService := eventtype.NewService(eventTypeRepo, sanitizer)

	calendarOAuth := calendarOAuthConfig(cfg)
	googleSource := calendar.NewGoogleBusySource(calendarOAuth, calendarRepo, cfg.CalendarTimeout)
	icsSource := calendar.NewICSBusySource(ssrfGuard.NewSafeClient(cfg.CalendarTimeout), cfg.ICSMaxSize)
	calendarService := calendar.NewService(calendarRepo, calendarOAuth, googleSource, icsSource, ssrfGuard, mc)

	availabilityService := availability.NewService(
		userRepo, scheduleRepo, calendarService, eventTypeService,
		mc, cfg.DefaultSlotDuration,
	)

	// 6. レート制限
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute: cfg.RateLimitGeneral,
		PublicPerMinute:  cfg.RateLimitPublic,
		CleanupInterval:  middleware.DefaultRateLimiterConfig().CleanupInterval,
	})
	defer rateLimiter.Stop()

	publicLimiter, closeRedis, err := newPublicLimiter(cfg, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	// 7. ルーターの構築
	cookie := handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		Logger:            log,
		Metrics:           mc,
		RateLimiter:       rateLimiter,
		PublicLimiter:     publicLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			Cookie:        cookie,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:      userService,
		ScheduleService:  scheduleService,
		EventTypeService: eventTypeService,

		CalendarService: calendarService,
		CalendarConfig: handler.CalendarHandlerConfig{
			BaseURL: cfg.BaseURL,
			Cookie:  cookie,
		},

		AvailabilityService: availabilityService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	log.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、トークン更新とクリーンアップをcronランナーに登録して実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established (worker)")

	// 3. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	eventTypeRepo := repository.NewPostgresEventTypeRepo(db)
	calendarRepo := repository.NewPostgresCalendarRepo(db)

	// 2. メトリクス（WORKER_METRICS_PORTが設定されている場合のみ公開）
	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)

	// 4. ジョブの初期化
	refresher := refresh.NewRefresher(
		&refresh.OAuthTokenSource{Config: calendarOAuthConfig(cfg)},
		calendarRepo, log, mc,
	)
	refreshJob := refresh.NewScheduler(
		calendarRepo, refresher, log,
		cfg.TokenRefreshLeeway, cfg.TokenRefreshConcurrency,
	)

	cleanupJob := cleanup.NewCleanupJob(sessionRepo, eventTypeRepo, log, mc)
	if cfg.EventTypeRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.EventTypeRetentionDays
	}

	// 5. ランナーへの登録
	runner := worker.NewRunner(log)
	if err := runner.Every(cfg.TokenRefreshInterval, refreshJob); err != nil {
		return fmt.Errorf("failed to schedule token refresh: %w", err)
	}
	if err := runner.Schedule(cfg.CleanupSchedule, cleanupJob); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("shutting down worker...")
		cancel()
	}()

	log.Info("worker starting",
		slog.Duration("token_refresh_interval", cfg.TokenRefreshInterval),
		slog.Int("max_concurrent", cfg.TokenRefreshConcurrency),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
	)

	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("worker metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	// 起動直後に1回実行
	runner.RunNow(ctx, refreshJob)
	runner.RunNow(ctx, cleanupJob)

	// cronランナーをメインgoroutineで実行（ブロッキング）
	runner.Start(ctx)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしの場合はすべての未適用マイグレーションを適用する。
func runMigrate(cfg *config.Config, args []string) error {
	plan, err := database.ParseMigrationPlan(args)
	if err != nil {
		return fmt.Errorf("invalid migrate arguments: %w", err)
	}

	slog.Info("running database migrations",
		slog.String("op", string(plan.Op)),
		slog.Int("steps", plan.Steps),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	state, err := database.ApplyMigrationPlan(cfg.DatabaseURL, plan)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed",
		slog.String("op", string(plan.Op)),
		slog.Uint64("version", uint64(state.Version)),
		slog.Bool("dirty", state.Dirty),
		slog.Bool("empty", state.Empty),
	)
	return nil
}

// healthcheckPort は `healthcheck [port]` の対象ポートを決める。
// 省略時はSERVER_PORT、それもなければ8080。ワーカーはメトリクスポートを明示する。
func healthcheckPort(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// calendarOAuthConfig はカレンダー連携用のOAuth設定を組み立てる。
// APIサーバーとワーカーで同じ設定を使う。
func calendarOAuthConfig(cfg *config.Config) *oauth2.Config {
	return calendar.NewOAuthConfig(calendar.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleCalendarRedirectURL,
	})
}

// newPublicLimiter は公開エンドポイントのレート制限ミドルウェアを返す。
// REDIS_URLが未設定の場合はnilを返し、ルーターはインメモリのIP単位制限を使う。
// 戻り値のcloseは常に呼び出してよい。
func newPublicLimiter(cfg *config.Config, log *slog.Logger) (func(http.Handler) http.Handler, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, func() {}, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("redis connection established",
		slog.String("addr", opts.Addr),
	)

	rl := middleware.NewRedisRateLimiter(rdb, cfg.RateLimitPublic, time.Minute, publicRateLimitPrefix, log, cfg.RateLimitFailOpen)
	return rl.Middleware(), func() { rdb.Close() }, nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
