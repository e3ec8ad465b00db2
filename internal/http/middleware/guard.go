package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// PermissionChecker asserts module permission requirements.
type PermissionChecker interface {
	Assert(ctx context.Context, p *domain.Principal, req authz.Requirement) error
}

// RequireRoles admits only principals holding one of roles. It must run
// after Auth.
func RequireRoles(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actx, ok := GetActionContext(r.Context())
			if !ok {
				httputil.WriteError(w, logger, domain.ErrMissingPrincipal)
				return
			}
			if !slices.Contains(roles, actx.Role()) {
				logger.Warn("role not permitted",
					"subsystem", domain.SubsystemUserLifecycle,
					"user_id", actx.Principal.ID,
					"role", actx.Role(),
					"path", r.URL.Path,
				)
				httputil.Error(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits only principals whose effective level on
// req.Module satisfies req.Level.
func RequirePermission(checker PermissionChecker, req authz.Requirement, logger *slog.Logger) func(http.Handler) http.Handler {
	return RequirePermissionFunc(checker, func(*http.Request) (authz.Requirement, error) {
		return req, nil
	}, logger)
}

// RequirePermissionFunc is RequirePermission with the requirement derived
// from the request, e.g. from a URL parameter naming the module.
func RequirePermissionFunc(checker PermissionChecker, requirement func(*http.Request) (authz.Requirement, error), logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				httputil.WriteError(w, logger, domain.ErrMissingPrincipal)
				return
			}
			req, err := requirement(r)
			if err != nil {
				httputil.WriteError(w, logger, err)
				return
			}
			if err := checker.Assert(r.Context(), principal, req); err != nil {
				httputil.WriteError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
