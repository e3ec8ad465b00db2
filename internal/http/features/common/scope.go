// Package common holds request helpers shared by the feature handlers.
package common

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// ActionContext returns the action context the Auth middleware attached to
// r. When it is absent the 401 response has already been written.
func ActionContext(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*authz.ActionContext, bool) {
	actx, ok := authz.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, logger, domain.ErrMissingPrincipal)
		return nil, false
	}
	return actx, true
}

// PathID parses the UUID URL parameter name, writing a 400 on failure.
func PathID(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string) (uuid.UUID, bool) {
	id, err := httputil.URLParamUUID(r, name)
	if err != nil {
		httputil.WriteError(w, logger, err)
		return uuid.Nil, false
	}
	return id, true
}
