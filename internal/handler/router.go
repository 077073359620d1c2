package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/slotbook/internal/metrics"
	"github.com/hitoshi/slotbook/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	HSTS              bool
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	RateLimiter       *middleware.RateLimiter
	// PublicLimiter は公開エンドポイントのレート制限。nilの場合はRateLimiterのIP単位制限を使う。
	PublicLimiter func(next http.Handler) http.Handler
	CSRFConfig    middleware.CSRFConfig

	// 運用
	HealthChecker  Pinger
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// スケジュール
	ScheduleService ScheduleServiceInterface

	// イベント種別
	EventTypeService EventTypeServiceInterface

	// カレンダー連携
	CalendarService CalendarServiceInterface
	CalendarConfig  CalendarHandlerConfig

	// 予約可能枠
	AvailabilityService AvailabilityServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (Session → RateLimit → CSRF)
//
// 認証ルート（/auth/*）と公開ルート（/public/*）はセッション必須チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}
	publicLimiter := deps.PublicLimiter
	if publicLimiter == nil {
		publicLimiter = deps.RateLimiter.PublicMiddleware()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger, mc))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.Cookie)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	eventTypeHandler := NewEventTypeHandler(deps.EventTypeService)
	calendarHandler := NewCalendarHandler(deps.CalendarService, deps.CalendarConfig)
	availabilityHandler := NewAvailabilityHandler(deps.AvailabilityService)

	// --- 認証不要のルート ---

	r.Get("/health", HealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// スケジュール
		r.Get("/api/schedule", scheduleHandler.Get)
		r.Put("/api/schedule", scheduleHandler.Put)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Patch("/me", userHandler.UpdateMe)
			r.Delete("/me", userHandler.Withdraw)
		})

		// イベント種別
		r.Route("/api/event-types", func(r chi.Router) {
			r.Get("/", eventTypeHandler.List)
			r.Post("/", eventTypeHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", eventTypeHandler.Get)
				r.Patch("/", eventTypeHandler.Update)
				r.Delete("/", eventTypeHandler.Deactivate)
			})
		})

		// カレンダー連携
		r.Route("/api/calendar", func(r chi.Router) {
			r.Get("/", calendarHandler.Status)
			r.Delete("/", calendarHandler.Disconnect)
			r.Get("/connect", calendarHandler.Connect)
			r.Put("/ics", calendarHandler.SetICSURL)
		})
		r.Get("/calendar/google/callback", calendarHandler.Callback)

		// 自分の予約可能枠
		r.Get("/api/availability/slots", availabilityHandler.MySlots)
	})

	// --- 公開ルート ---
	// ミドルウェアスタック: RateLimit(Public)
	r.Group(func(r chi.Router) {
		r.Use(publicLimiter)

		// owner_uid省略時はログイン中ユーザーの枠を返すため、セッションは任意で解決する。
		r.With(middleware.NewOptionalSessionMiddleware(deps.SessionFinder)).
			Post("/public/slots", availabilityHandler.PublicSlots)

		r.Route("/public/users/{ownerID}/event-types/{slug}", func(r chi.Router) {
			r.Get("/", eventTypeHandler.PublicGet)
			r.Get("/slots", availabilityHandler.EventTypeSlots)
		})
	})

	return r
}
