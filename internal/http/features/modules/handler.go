package modules

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/internal/http/features/common"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	modulesvc "github.com/tendant/simple-saas-admin/pkg/modules"
)

// Handler handles the module catalog and tenant enablement endpoints.
type Handler struct {
	logger  *slog.Logger
	modules *modulesvc.Service
}

// NewHandler creates a new modules handler.
func NewHandler(logger *slog.Logger, service *modulesvc.Service) *Handler {
	return &Handler{logger: logger, modules: service}
}

// EnableRequest represents a request to enable a module for a tenant.
type EnableRequest struct {
	ModuleID     uuid.UUID `json:"module_id"`
	DefaultLevel string    `json:"default_level,omitempty"`
	Enabled      *bool     `json:"enabled,omitempty"`
}

// UpdateRequest represents a partial enablement update.
type UpdateRequest struct {
	Enabled      *bool   `json:"enabled,omitempty"`
	DefaultLevel *string `json:"default_level,omitempty"`
}

// ListCatalog returns the active catalog in display order.
// GET /v1/modules/catalog
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.modules.ListCatalog(r.Context())
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, catalog)
}

// GetCatalogEntry returns one catalog module.
// GET /v1/modules/catalog/{id}
func (h *Handler) GetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	module, err := h.modules.GetCatalogEntry(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, module)
}

// ListForTenant returns a tenant's live enablements with their catalog entries.
// GET /v1/modules/tenants/{tenantID}
func (h *Handler) ListForTenant(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	tenantID, ok := common.PathID(w, r, h.logger, "tenantID")
	if !ok {
		return
	}

	enabled, err := h.modules.ListForTenant(r.Context(), actx, tenantID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, enabled)
}

// Enable turns a catalog module on for a tenant, restoring or overwriting
// any previous enablement.
// POST /v1/modules/tenants/{tenantID}/enable
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	tenantID, ok := common.PathID(w, r, h.logger, "tenantID")
	if !ok {
		return
	}

	var req EnableRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	in := modulesvc.EnableInput{ModuleID: req.ModuleID, Enabled: req.Enabled}
	if req.DefaultLevel != "" {
		level, err := domain.ParsePermissionLevel(req.DefaultLevel)
		if err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
		in.DefaultLevel = level
	}

	enablement, err := h.modules.Enable(r.Context(), actx, tenantID, in)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, enablement)
}

// Update changes a live enablement.
// PATCH /v1/modules/tenants/{tenantID}/modules/{moduleID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	tenantID, ok := common.PathID(w, r, h.logger, "tenantID")
	if !ok {
		return
	}
	moduleID, ok := common.PathID(w, r, h.logger, "moduleID")
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	in := modulesvc.UpdateInput{Enabled: req.Enabled}
	if req.DefaultLevel != nil {
		level, err := domain.ParsePermissionLevel(*req.DefaultLevel)
		if err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
		in.DefaultLevel = &level
	}

	enablement, err := h.modules.UpdateEnablement(r.Context(), actx, tenantID, moduleID, in)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, enablement)
}

// Disable retires a tenant's enablement together with every override on it.
// DELETE /v1/modules/tenants/{tenantID}/modules/{moduleID}
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	tenantID, ok := common.PathID(w, r, h.logger, "tenantID")
	if !ok {
		return
	}
	moduleID, ok := common.PathID(w, r, h.logger, "moduleID")
	if !ok {
		return
	}

	if err := h.modules.Disable(r.Context(), actx, tenantID, moduleID); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
