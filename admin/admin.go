// Package admin embeds the tenant administration API in another service.
//
// Setup:
//
//  1. Run migrations from migrations/ folder using your preferred tool
//  2. Create an Admin instance and mount its router
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	a, err := admin.New(admin.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", a.Router())
//	http.ListenAndServe(":8080", r)
//
// Protecting your own routes by module permission:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(a.AuthMiddleware())
//	    r.Use(a.RequirePermission(domain.ModuleSales, domain.LevelWrite))
//	    r.Post("/orders", createOrder)
//	})
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tendant/simple-saas-admin/internal/bootstrap"
	"github.com/tendant/simple-saas-admin/internal/config"
	httpserver "github.com/tendant/simple-saas-admin/internal/http"
	"github.com/tendant/simple-saas-admin/internal/http/middleware"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	modulesvc "github.com/tendant/simple-saas-admin/pkg/modules"
	"github.com/tendant/simple-saas-admin/pkg/overrides"
	"github.com/tendant/simple-saas-admin/pkg/repository"
	tenantsvc "github.com/tendant/simple-saas-admin/pkg/tenants"
	usersvc "github.com/tendant/simple-saas-admin/pkg/users"
)

// Config holds the configuration for an embedded Admin.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// JWTSecret is the secret key for signing JWT tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in JWT tokens (default: "simple-saas-admin").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 15 minutes).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (default: 7 days).
	RefreshTokenTTL time.Duration

	// Cache memoizes permission decisions (optional).
	Cache authz.DecisionCache

	// MaxRequestBodySize caps JSON bodies (default: 1 MiB).
	MaxRequestBodySize int64

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// Admin is an embeddable instance of the administration API.
type Admin struct {
	config         Config
	modulesRepo    *repository.ModulesRepository
	usersRepo      *repository.UsersRepository
	sessionService *auth.SessionService
	resolver       *authz.Resolver
	tenants        *tenantsvc.Service
	users          *usersvc.Service
	modules        *modulesvc.Service
	overrides      *overrides.Service
}

// requiredTables must exist before New succeeds.
var requiredTables = []string{
	"tenants",
	"users",
	"modules",
	"module_enablements",
	"permission_overrides",
	"refresh_tokens",
}

// New creates a new Admin with the given configuration.
// Returns an error if required database tables don't exist.
// Run migrations first - see migrations/ folder for SQL files.
func New(cfg Config) (*Admin, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateSchema(cfg.DB); err != nil {
		return nil, err
	}

	usersRepo := repository.NewUsersRepository(cfg.DB)
	tenantsRepo := repository.NewTenantsRepository(cfg.DB)
	modulesRepo := repository.NewModulesRepository(cfg.DB)
	enablementsRepo := repository.NewEnablementsRepository(cfg.DB)
	overridesRepo := repository.NewOverridesRepository(cfg.DB)
	refreshTokensRepo := repository.NewRefreshTokensRepository(cfg.DB)
	uow := repository.NewUnitOfWork(cfg.DB)

	var invalidator authz.Invalidator = authz.NopInvalidator{}
	resolverOpts := []authz.ResolverOption{authz.WithLogger(cfg.Logger)}
	if cfg.Cache != nil {
		invalidator = cfg.Cache
		resolverOpts = append(resolverOpts, authz.WithCache(cfg.Cache))
	}

	return &Admin{
		config:      cfg,
		modulesRepo: modulesRepo,
		usersRepo:   usersRepo,
		sessionService: auth.NewSessionService(auth.SessionConfig{
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
			JWTSecret:       []byte(cfg.JWTSecret),
			Issuer:          cfg.JWTIssuer,
		}, usersRepo, refreshTokensRepo, cfg.Logger),
		resolver: authz.NewResolver(enablementsRepo, resolverOpts...),
		tenants: tenantsvc.NewService(tenantsvc.Deps{
			Tenants:     tenantsRepo,
			Users:       usersRepo,
			Enablements: enablementsRepo,
			Overrides:   overridesRepo,
			UnitOfWork:  uow,
			Invalidator: invalidator,
			Logger:      cfg.Logger,
		}),
		users: usersvc.NewService(usersvc.Deps{
			Users:       usersRepo,
			Tenants:     tenantsRepo,
			Tokens:      refreshTokensRepo,
			Invalidator: invalidator,
			Logger:      cfg.Logger,
		}),
		modules: modulesvc.NewService(modulesvc.Deps{
			Tenants:     tenantsRepo,
			Catalog:     modulesRepo,
			Enablements: enablementsRepo,
			Overrides:   overridesRepo,
			UnitOfWork:  uow,
			Invalidator: invalidator,
			Logger:      cfg.Logger,
		}),
		overrides: overrides.NewService(overrides.Deps{
			Users:       usersRepo,
			Enablements: enablementsRepo,
			Catalog:     modulesRepo,
			Overrides:   overridesRepo,
			Invalidator: invalidator,
			Logger:      cfg.Logger,
		}),
	}, nil
}

// Router returns the full administration API. Credential endpoints are not
// rate limited here; wrap the router if the host service needs that.
//
// Routes:
//
//	POST /v1/auth/login|refresh|logout
//	     /v1/tenants, /v1/users, /v1/users/{id}/permissions
//	     /v1/modules/catalog, /v1/modules/tenants/{tenantID}
//	GET  /v1/me, /v1/me/modules, /v1/me/modules/{moduleType}
//	GET  /health
func (a *Admin) Router() http.Handler {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          a.config.Logger,
		SessionService:  a.sessionService,
		TenantService:   a.tenants,
		UserService:     a.users,
		ModuleService:   a.modules,
		OverrideService: a.overrides,
		Resolver:        a.resolver,
		SecurityHeaders: config.SecurityHeadersConfig{
			Enabled:            true,
			FrameOptions:       "DENY",
			ContentTypeOptions: "nosniff",
			ReferrerPolicy:     "no-referrer",
		},
		Validation: config.ValidationConfig{MaxRequestBodySize: a.config.MaxRequestBodySize},
	})
}

// Seed upserts the module catalog and, when cfg names one, creates the
// initial MASTER account.
func (a *Admin) Seed(ctx context.Context, cfg config.BootstrapConfig) error {
	return bootstrap.NewSeeder(a.modulesRepo, a.usersRepo, nil, a.config.Logger).Run(ctx, cfg)
}

// SessionService returns the session service for advanced usage.
func (a *Admin) SessionService() *auth.SessionService {
	return a.sessionService
}

// Resolver returns the module permission resolver.
func (a *Admin) Resolver() *authz.Resolver {
	return a.resolver
}

// AuthMiddleware returns middleware that validates access tokens.
func (a *Admin) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(a.sessionService, a.config.Logger)
}

// RequirePermission returns middleware admitting only callers holding at
// least level on module. Use after AuthMiddleware.
func (a *Admin) RequirePermission(module domain.ModuleType, level domain.PermissionLevel) func(http.Handler) http.Handler {
	return middleware.RequirePermission(a.resolver, authz.Requirement{Module: module, Level: level}, a.config.Logger)
}

// GetPrincipal extracts the authenticated principal from a request.
// Use after AuthMiddleware:
//
//	p, ok := admin.GetPrincipal(r)
func GetPrincipal(r *http.Request) (*domain.Principal, bool) {
	return middleware.GetPrincipal(r.Context())
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("admin: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("admin: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("admin: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "simple-saas-admin"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = auth.DefaultRefreshTokenTTL
	}
	if cfg.MaxRequestBodySize == 0 {
		cfg.MaxRequestBodySize = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(db *sql.DB) error {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("admin: missing table '%s' - run migrations first (see migrations/ folder)", table)
		}
		if err != nil {
			return fmt.Errorf("admin: failed to check schema: %w", err)
		}
	}

	return nil
}
