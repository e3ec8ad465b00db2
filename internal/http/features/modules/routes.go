package modules

import (
	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-saas-admin/internal/http/middleware"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// RegisterRoutes registers catalog and enablement routes. Mount under
// /v1/modules behind middleware.Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	master := middleware.RequireRoles(h.logger, domain.RoleMaster)

	r.With(master).Get("/catalog", h.ListCatalog)
	r.With(master).Get("/catalog/{id}", h.GetCatalogEntry)

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.With(middleware.RequireRoles(h.logger, domain.RoleMaster, domain.RoleAdmin)).Get("/", h.ListForTenant)
		r.With(master).Post("/enable", h.Enable)
		r.With(master).Patch("/modules/{moduleID}", h.Update)
		r.With(master).Delete("/modules/{moduleID}", h.Disable)
	})
}
