package tenants

import (
	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-saas-admin/internal/http/middleware"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// RegisterRoutes registers tenant administration routes. Mount under
// /v1/tenants behind middleware.Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequireRoles(h.logger, domain.RoleMaster))

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/slug/{slug}", h.GetBySlug)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/restore", h.Restore)
}
