package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/middleware"
	"github.com/hitoshi/furuhon/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	Session     repository.SessionProvider
	Auth        SessionManager
	Controllers ControllerFinder
	Toggler     SaveToggler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → Session → Logging → SecurityHeaders → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.Session))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.Auth, deps.Logger)
	viewHandler := NewViewHandler(deps.Controllers, deps.Logger)
	insertionHandler := NewInsertionHandler(deps.Toggler, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSecurityHeadersMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.WriteMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/api/views/{view}", func(r chi.Router) {
			r.Post("/initial", viewHandler.Initial)
			r.Post("/older", viewHandler.Older)
			r.Post("/newer", viewHandler.Newer)
			r.Get("/items", viewHandler.Items)
			r.Get("/search", viewHandler.Search)
			r.Get("/search/items", viewHandler.SearchItems)
		})

		// 保存状態の切り替えはログイン必須
		r.With(middleware.RequireSession, deps.RateLimiter.WriteMiddleware()).
			Put("/api/insertions/{id}/saved", insertionHandler.ToggleSaved)
	})

	return r
}
