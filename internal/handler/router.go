package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/shelterlink/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	Registrar  Registrar
	Sessions   SessionService
	AuthConfig AuthHandlerConfig

	// 保護施設
	ShelterFinder ShelterFinder

	// 運用
	Pinger         Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Recovery → Logging → SecurityHeaders → Session → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）と運用ルートはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.Registrar, deps.Sessions, deps.AuthConfig)
	profileHandler := NewProfileHandler(authHandler)
	itemHandler := NewItemHandler()
	matchHandler := NewMatchHandler()
	shelterHandler := NewShelterHandler(deps.ShelterFinder)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.Pinger))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/session", authHandler.CreateSession)
		r.Post("/logout", authHandler.Logout)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/me", profileHandler.Me)
		r.Route("/api/profile", func(r chi.Router) {
			r.Put("/", profileHandler.UpdateProfile)
			r.Delete("/", profileHandler.DeleteAccount)
		})

		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", itemHandler.ListItems)
			// POST /api/items - アイテム投稿（投稿専用レート制限を追加）
			r.With(deps.RateLimiter.SubmissionMiddleware()).Post("/", itemHandler.CreateItem)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", itemHandler.UpdateItem)
				r.Delete("/", itemHandler.DeleteItem)
				r.Get("/best-match", itemHandler.BestMatch)
			})
		})

		r.Route("/api/matches", func(r chi.Router) {
			r.Get("/", matchHandler.ListMatches)
			r.Post("/{id}/resolve", matchHandler.ResolveMatch)
		})
		r.Post("/api/reconcile", matchHandler.Reconcile)

		r.Get("/api/shelters", shelterHandler.ListShelters)
	})

	return r
}
