package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-saas-admin/internal/config"
	"github.com/tendant/simple-saas-admin/internal/httputil"
)

// Rate limiter keys returned by CreateRateLimiters.
const (
	LimiterLogin   = "login"
	LimiterRefresh = "refresh"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters builds the login and refresh limiters from configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return map[string]func(http.Handler) http.Handler{
			LimiterLogin:   NoRateLimit(),
			LimiterRefresh: NoRateLimit(),
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimiterLogin: RateLimit(RateLimitConfig{
			Requests: cfg.LoginRequestsPerMinute,
			Window:   time.Duration(cfg.LoginWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		LimiterRefresh: RateLimit(RateLimitConfig{
			Requests: cfg.RefreshRequestsPerMinute,
			Window:   time.Duration(cfg.RefreshWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
	}
}
