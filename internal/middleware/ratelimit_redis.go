package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter はRedisを使った固定ウィンドウ方式のレート制限。
// 複数インスタンスで公開エンドポイントの制限を共有する場合に使う。
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	logger *slog.Logger
	// failOpen がtrueの場合、Redis障害時はリクエストを通す。
	failOpen bool
}

// ウィンドウ内のカウントと残り時間（ミリ秒）を返す。
var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// NewRedisRateLimiter はRedisRateLimiterを生成する。
// limitが0以下なら60、windowが0以下なら1分、prefixが空なら"rl"を使う。
func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, logger *slog.Logger, failOpen bool) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimiter{
		rdb:      rdb,
		limit:    limit,
		window:   window,
		prefix:   prefix,
		logger:   logger,
		failOpen: failOpen,
	}
}

// Middleware はクライアントIP単位でレート制限するミドルウェアを返す。
func (rl *RedisRateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			count, ttl, err := rl.incr(r.Context(), rl.prefix+":"+ip)
			if err != nil {
				rl.logger.Warn("redis rate limiter error", slog.String("error", err.Error()))
				if rl.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteInternalServerError(w)
				return
			}
			if count > int64(rl.limit) {
				rl.logger.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "public"),
				)
				writeRateLimitResponse(w, int(math.Ceil(ttl.Seconds())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	return parseWindowResult(res, rl.window)
}

// parseWindowResult はスクリプトの戻り値 {count, pttl} を解釈する。
// PTTLが負（期限なし）の場合はウィンドウ幅を残り時間とみなす。
func parseWindowResult(res any, window time.Duration) (int64, time.Duration, error) {
	values, ok := res.([]any)
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis script result %T", res)
	}
	count, err := toInt64(values[0])
	if err != nil {
		return 0, 0, err
	}
	ms, err := toInt64(values[1])
	if err != nil {
		return 0, 0, err
	}
	ttl := time.Duration(ms) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return count, ttl, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script value type %T", v)
	}
}
