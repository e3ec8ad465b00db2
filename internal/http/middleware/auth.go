package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

type contextKey string

// PrincipalKey is the context key for the authenticated principal.
const PrincipalKey contextKey = "principal"

// TokenValidator turns a bearer access token into a principal.
type TokenValidator interface {
	ValidateAccessToken(token string) (*domain.Principal, error)
}

// Auth creates middleware that validates JWT access tokens from the
// Authorization header and attaches the principal and its action context
// to the request.
func Auth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			principal, err := validator.ValidateAccessToken(token)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			actx, err := authz.NewActionContext(principal)
			if err != nil {
				logger.Warn("rejected principal without tenant",
					"subsystem", domain.SubsystemOf(err),
					"user_id", principal.ID,
				)
				httputil.WriteError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			ctx = authz.WithActionContext(ctx, actx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetPrincipal extracts the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*domain.Principal)
	return p, ok && p != nil
}

// GetActionContext extracts the action context set by Auth.
func GetActionContext(ctx context.Context) (*authz.ActionContext, bool) {
	return authz.FromContext(ctx)
}
