package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/consoleguard/internal/auth"
	"github.com/BradenHooton/consoleguard/internal/handlers"
	"github.com/BradenHooton/consoleguard/internal/metrics"
	"github.com/BradenHooton/consoleguard/internal/middleware"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Dependencies are the handlers and guard settings the console API is built from
type Dependencies struct {
	Auth      *handlers.AuthHandler
	Security  *handlers.SecurityHandler
	Health    *handlers.HealthHandler
	Guard     auth.GuardConfig
	LoginRate middleware.RateLimitConfig
	Metrics   http.Handler // nil leaves /metrics unmounted
}

// RouterOptions configure the global middleware stack
type RouterOptions struct {
	Env            string
	AllowedOrigins []string
	IPConfig       *pkghttp.IPConfig
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the chi router with the global middleware stack and all routes.
// chi's RealIP is not used: client addresses come from pkghttp.ExtractClientIP,
// which only trusts forwarding headers from configured proxies.
func NewRouter(opts RouterOptions, deps Dependencies) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: opts.AllowedOrigins}))
	router.Use(middleware.SecureLogger(opts.Logger, opts.IPConfig))
	router.Use(metrics.Middleware)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(opts.RequestTimeout))

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.Health.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Public routes
	router.With(middleware.RateLimitByIP(deps.LoginRate)).Post("/auth/login", deps.Auth.Login)
	router.Post("/auth/logout", deps.Auth.Logout)

	// Session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(deps.Guard))

		r.Get("/auth/session", deps.Auth.Session)
		r.Get("/security/status", deps.Security.Status)
		r.Get("/security/events", deps.Security.Events)
	})
}
