package users

import (
	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-saas-admin/internal/http/middleware"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// RegisterRoutes registers user lifecycle routes. Mount under /v1/users
// behind middleware.Auth. Reads and updates are open to every role; the
// service narrows them to what the caller may see.
func (h *Handler) RegisterRoutes(r chi.Router) {
	administrators := middleware.RequireRoles(h.logger, domain.RoleMaster, domain.RoleAdmin)

	r.With(administrators).Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.With(administrators).Delete("/{id}", h.Delete)
	r.With(administrators).Patch("/{id}/restore", h.Restore)
}
