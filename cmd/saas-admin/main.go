package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-saas-admin/internal/bootstrap"
	"github.com/tendant/simple-saas-admin/internal/config"
	httpserver "github.com/tendant/simple-saas-admin/internal/http"
	"github.com/tendant/simple-saas-admin/internal/jobs"
	"github.com/tendant/simple-saas-admin/internal/observability"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	modulesvc "github.com/tendant/simple-saas-admin/pkg/modules"
	"github.com/tendant/simple-saas-admin/pkg/overrides"
	"github.com/tendant/simple-saas-admin/pkg/repository"
	tenantsvc "github.com/tendant/simple-saas-admin/pkg/tenants"
	usersvc "github.com/tendant/simple-saas-admin/pkg/users"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// Connect to database
	db, err := repository.NewDB(cfg.Database())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Initialize repositories
	usersRepo := repository.NewUsersRepository(db)
	tenantsRepo := repository.NewTenantsRepository(db)
	modulesRepo := repository.NewModulesRepository(db)
	enablementsRepo := repository.NewEnablementsRepository(db)
	overridesRepo := repository.NewOverridesRepository(db)
	refreshTokensRepo := repository.NewRefreshTokensRepository(db)
	uow := repository.NewUnitOfWork(db)

	// Seed catalog and initial master
	validator := auth.NewValidator(cfg.Validation, cfg.PasswordPolicy)
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = bootstrap.NewSeeder(modulesRepo, usersRepo, validator, logger).Run(seedCtx, cfg.Bootstrap)
	seedCancel()
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// Permission decision cache
	var (
		cache       authz.DecisionCache
		redisClient *redis.Client
	)
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		cache = authz.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
		logger.Info("permission cache enabled", "backend", cfg.Cache.Backend, "size", cfg.Cache.Size, "ttl", cfg.Cache.TTL)
	case config.CacheBackendRedis:
		redisCtx, redisCancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := authz.NewRedisCache(redisCtx, cfg.RedisURL, cfg.Cache.TTL)
		redisCancel()
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		cache, redisClient = rc, rc.Client()
		logger.Info("permission cache enabled", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)
	default:
		logger.Info("permission cache disabled")
	}

	resolverOpts := []authz.ResolverOption{authz.WithRecorder(metrics), authz.WithLogger(logger)}
	var invalidator authz.Invalidator = authz.NopInvalidator{}
	if cache != nil {
		resolverOpts = append(resolverOpts, authz.WithCache(cache))
		invalidator = cache
	}
	resolver := authz.NewResolver(enablementsRepo, resolverOpts...)

	// Initialize services
	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
	}, usersRepo, refreshTokensRepo, logger)

	tenantService := tenantsvc.NewService(tenantsvc.Deps{
		Tenants:     tenantsRepo,
		Users:       usersRepo,
		Enablements: enablementsRepo,
		Overrides:   overridesRepo,
		UnitOfWork:  uow,
		Validator:   validator,
		Invalidator: invalidator,
		Logger:      logger,
	})
	userService := usersvc.NewService(usersvc.Deps{
		Users:       usersRepo,
		Tenants:     tenantsRepo,
		Tokens:      refreshTokensRepo,
		Validator:   validator,
		Invalidator: invalidator,
		Logger:      logger,
	})
	moduleService := modulesvc.NewService(modulesvc.Deps{
		Tenants:     tenantsRepo,
		Catalog:     modulesRepo,
		Enablements: enablementsRepo,
		Overrides:   overridesRepo,
		UnitOfWork:  uow,
		Invalidator: invalidator,
		Logger:      logger,
	})
	overrideService := overrides.NewService(overrides.Deps{
		Users:       usersRepo,
		Enablements: enablementsRepo,
		Catalog:     modulesRepo,
		Overrides:   overridesRepo,
		Invalidator: invalidator,
		Logger:      logger,
	})

	// Scheduled maintenance
	scheduler := jobs.NewScheduler(logger, time.Minute)
	sweeper := jobs.NewRefreshTokenSweeper(refreshTokensRepo, metrics, logger)
	if err := scheduler.Add("refresh-token-sweep", cfg.RefreshTokenSweepSchedule, sweeper.Sweep); err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		SessionService:  sessionService,
		TenantService:   tenantService,
		UserService:     userService,
		ModuleService:   moduleService,
		OverrideService: overrideService,
		Resolver:        resolver,
		Metrics:         metrics,
		Health:          observability.NewHealthChecker(db, redisClient),
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		Validation:      cfg.Validation,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	scheduler.Stop(ctx)

	logger.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
