package me

import (
	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-saas-admin/internal/http/middleware"
)

// RegisterRoutes registers the caller's own endpoints. Mount under /v1/me
// behind middleware.Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.GetMe)
	r.Get("/modules", h.ListModules)
	r.With(middleware.RequirePermissionFunc(h.resolver, ModuleRequirement, h.logger)).
		Get("/modules/{moduleType}", h.GetModule)
}
