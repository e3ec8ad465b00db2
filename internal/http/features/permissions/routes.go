package permissions

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers override routes. Mount under
// /v1/users/{id}/permissions behind middleware.Auth; the service decides
// who may see or change a given user's overrides.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Assign)
	r.Get("/", h.List)
	r.Patch("/{permissionID}", h.Update)
	r.Delete("/{permissionID}", h.Remove)
}
