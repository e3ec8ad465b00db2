package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-saas-admin/internal/http/features/common"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	usersvc "github.com/tendant/simple-saas-admin/pkg/users"
)

// Resolver resolves the caller's module permissions.
type Resolver interface {
	EffectiveLevel(ctx context.Context, p *domain.Principal, module domain.ModuleType) (domain.PermissionLevel, bool, error)
	Assert(ctx context.Context, p *domain.Principal, req authz.Requirement) error
}

// Handler handles the caller's own profile and module access.
type Handler struct {
	logger   *slog.Logger
	users    *usersvc.Service
	resolver Resolver
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, users *usersvc.Service, resolver Resolver) *Handler {
	return &Handler{
		logger:   logger,
		users:    users,
		resolver: resolver,
	}
}

// ModuleAccess is the caller's effective access to one module.
type ModuleAccess struct {
	ModuleType domain.ModuleType      `json:"module_type"`
	Enabled    bool                   `json:"enabled"`
	Level      domain.PermissionLevel `json:"level"`
}

// GetMe returns the current user's profile.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), actx, actx.Principal.ID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// ListModules returns the caller's effective level on every catalog module.
// GET /v1/me/modules
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}

	access := make([]ModuleAccess, 0, len(domain.ModuleTypes))
	for _, module := range domain.ModuleTypes {
		a, err := h.access(r.Context(), actx.Principal, module)
		if err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
		access = append(access, a)
	}

	httputil.JSON(w, http.StatusOK, access)
}

// GetModule returns the caller's access to one module. The route is guarded
// by ModuleRequirement, so only callers with at least READ get here.
// GET /v1/me/modules/{moduleType}
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	module, err := domain.ParseModuleType(chi.URLParam(r, "moduleType"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	a, err := h.access(r.Context(), actx.Principal, module)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, a)
}

func (h *Handler) access(ctx context.Context, p *domain.Principal, module domain.ModuleType) (ModuleAccess, error) {
	level, enabled, err := h.resolver.EffectiveLevel(ctx, p, module)
	if err != nil {
		return ModuleAccess{}, err
	}
	return ModuleAccess{ModuleType: module, Enabled: enabled, Level: level}, nil
}

// ModuleRequirement demands READ on the module named by the moduleType
// URL parameter.
func ModuleRequirement(r *http.Request) (authz.Requirement, error) {
	module, err := domain.ParseModuleType(chi.URLParam(r, "moduleType"))
	return authz.Requirement{Module: module, Level: domain.LevelRead}, err
}
