package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/oauthrelay/internal/metrics"
	"github.com/hitoshi/oauthrelay/internal/middleware"
)

// EventService はハンドラーとミドルウェアが使うイベント記録のインターフェース。
type EventService interface {
	middleware.ErrorLogger
	LogReader
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	AdminToken         string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ローカルアプリ向けAPI
	APIService APIServiceInterface

	// 管理者向けAPI
	UserService UserLister
	Events      EventService

	// システム
	System         SystemHandlerConfig
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS
//
// /api/* と /auth/logout はクライアントIP単位のレート制限を通る。
// /api/users と /api/logs はさらに管理者トークンを要求する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware(deps.Events))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	apiHandler := NewAPIHandler(deps.APIService, deps.Events)
	adminHandler := NewAdminHandler(deps.UserService, deps.Events, deps.Events)
	systemHandler := NewSystemHandler(deps.System, deps.Events)

	r.NotFound(systemHandler.NotFound)
	r.MethodNotAllowed(systemHandler.MethodNotAllowed)

	rateLimit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		rateLimit = deps.RateLimiter.Middleware()
	}

	// --- システム ---
	r.Get("/", systemHandler.Index)
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証ルート（OAuthフロー） ---
	r.Route("/auth", func(r chi.Router) {
		r.Get("/discord/login", authHandler.Login)
		r.Get("/discord/callback", authHandler.Callback)
		r.With(rateLimit).Post("/logout", authHandler.Logout)
	})

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit)

		r.Post("/validate-token", apiHandler.ValidateToken)
		r.Post("/log-action", apiHandler.LogAction)

		// 管理者向け
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminGateMiddleware(deps.AdminToken, deps.Events))

			r.Get("/users", adminHandler.ListUsers)
			r.Get("/logs", adminHandler.ListLogs)
		})
	})

	return r
}
