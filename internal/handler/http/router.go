package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/internal/service"
	"github.com/utafrali/accounts/pkg/health"
	"github.com/utafrali/accounts/pkg/middleware"
)

// ServiceName labels metrics, traces and logs.
const ServiceName = "account-service"

// RouterDeps holds everything NewRouter wires together. RateLimiter, Metrics,
// Gatherer and PprofCIDRs are optional.
type RouterDeps struct {
	Accounts    *service.AccountService
	Sessions    *service.SessionService
	Guard       *Guard
	Health      *health.Handler
	Cookies     CookieConfig
	CORS        middleware.CORSConfig
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	PprofCIDRs  []string
	Tracing     bool
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all account service routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(deps.CORS))
	r.Use(middleware.Recovery(deps.Logger))
	if deps.Tracing {
		r.Use(middleware.Tracing(ServiceName))
	}
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if len(deps.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, deps.PprofCIDRs, deps.Logger)
	}

	authHandler := NewAuthHandler(deps.Accounts, deps.Sessions, deps.Cookies, deps.Logger)
	userHandler := NewUserHandler(deps.Accounts, deps.Cookies, deps.Logger)
	adminHandler := NewAdminHandler(deps.Accounts, deps.Logger)
	guard := deps.Guard

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware)
			}

			r.Post("/signup", authHandler.Signup)
			r.Post("/signin", authHandler.Signin)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.With(guard.RequireSession).Get("/session", authHandler.Session)
			r.With(guard.RequireBearer).Put("/password", authHandler.ChangePassword)
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(guard.RequireBearer)

			r.Get("/", userHandler.GetProfile)
			r.Put("/", userHandler.UpdateProfile)
			r.Delete("/", userHandler.DeleteAccount)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(guard.RequireBearer)
			r.Use(RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin))

			r.Get("/", adminHandler.List)
			r.Get("/lookup", adminHandler.Lookup)
			r.Get("/{id}", adminHandler.Get)
			r.Put("/{id}", adminHandler.Update)
			r.Delete("/{id}", adminHandler.Delete)
		})
	})

	return r
}
