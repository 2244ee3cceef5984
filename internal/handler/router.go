package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/authgate/internal/middleware"
)

const healthCheckTimeout = 3 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// CORS
	AllowedOrigins []string

	// 認証
	AuthService   AuthService
	Cookies       CookieCodec
	Authenticator middleware.Authenticator
	AuthConfig    AuthHandlerConfig
	Unauthorized  middleware.UnauthorizedRecorder

	// 運用
	HealthChecks   map[string]HealthCheck
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS
//
// /profile のみ認証ガード配下に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies, deps.AuthConfig)

	// --- 認証不要のルート ---
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/google", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/google/callback", authHandler.Callback)
	})
	r.Get("/logout", authHandler.Logout)

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecks, healthCheckTimeout))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(
			deps.AuthConfig.Cookie.Name, deps.Cookies, deps.Authenticator, deps.Unauthorized,
		))
		r.Get("/profile", authHandler.Profile)
	})

	return r
}
