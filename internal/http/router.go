package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-saas-admin/internal/config"
	"github.com/tendant/simple-saas-admin/internal/http/features/me"
	"github.com/tendant/simple-saas-admin/internal/http/features/modules"
	"github.com/tendant/simple-saas-admin/internal/http/features/permissions"
	"github.com/tendant/simple-saas-admin/internal/http/features/session"
	"github.com/tendant/simple-saas-admin/internal/http/features/tenants"
	"github.com/tendant/simple-saas-admin/internal/http/features/users"
	"github.com/tendant/simple-saas-admin/internal/http/middleware"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/internal/observability"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	modulesvc "github.com/tendant/simple-saas-admin/pkg/modules"
	"github.com/tendant/simple-saas-admin/pkg/overrides"
	tenantsvc "github.com/tendant/simple-saas-admin/pkg/tenants"
	usersvc "github.com/tendant/simple-saas-admin/pkg/users"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	SessionService  *auth.SessionService
	TenantService   *tenantsvc.Service
	UserService     *usersvc.Service
	ModuleService   *modulesvc.Service
	OverrideService *overrides.Service
	Resolver        *authz.Resolver
	Metrics         *observability.Metrics       // optional
	Health          *observability.HealthChecker // optional
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health checks
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Readiness)
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			httputil.JSON(w, http.StatusOK, map[string]string{"status": observability.StatusHealthy})
		})
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// Credential routes
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	sessionHandler := session.NewHandler(cfg.Logger, cfg.SessionService)
	r.With(rateLimiters[middleware.LimiterLogin]).Post("/v1/auth/login", sessionHandler.Login)
	r.With(rateLimiters[middleware.LimiterRefresh]).Post("/v1/auth/refresh", sessionHandler.Refresh)
	r.Post("/v1/auth/logout", sessionHandler.Logout)

	tenantsHandler := tenants.NewHandler(cfg.Logger, cfg.TenantService)
	usersHandler := users.NewHandler(cfg.Logger, cfg.UserService)
	permissionsHandler := permissions.NewHandler(cfg.Logger, cfg.OverrideService)
	modulesHandler := modules.NewHandler(cfg.Logger, cfg.ModuleService)
	meHandler := me.NewHandler(cfg.Logger, cfg.UserService, cfg.Resolver)

	// Authenticated administration routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.SessionService, cfg.Logger))

		r.Route("/v1/tenants", tenantsHandler.RegisterRoutes)
		r.Route("/v1/users", func(r chi.Router) {
			usersHandler.RegisterRoutes(r)
			r.Route("/{id}/permissions", permissionsHandler.RegisterRoutes)
		})
		r.Route("/v1/modules", modulesHandler.RegisterRoutes)
		r.Route("/v1/me", meHandler.RegisterRoutes)
	})

	return r
}
