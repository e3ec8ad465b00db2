package permissions

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/internal/http/features/common"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"github.com/tendant/simple-saas-admin/pkg/overrides"
)

// Handler handles per-user permission override endpoints.
type Handler struct {
	logger    *slog.Logger
	overrides *overrides.Service
}

// NewHandler creates a new permissions handler.
func NewHandler(logger *slog.Logger, service *overrides.Service) *Handler {
	return &Handler{logger: logger, overrides: service}
}

// AssignRequest represents a request to grant a user a level on an
// enabled module.
type AssignRequest struct {
	EnablementID uuid.UUID `json:"enablement_id"`
	Level        string    `json:"level"`
}

// UpdateRequest represents a request to change an override's level.
type UpdateRequest struct {
	Level string `json:"level"`
}

// Assign grants a user an explicit level on one of their tenant's modules.
// POST /v1/users/{id}/permissions
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	var req AssignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	level, err := domain.ParsePermissionLevel(req.Level)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	permission, err := h.overrides.Assign(r.Context(), actx, userID, overrides.AssignInput{
		EnablementID: req.EnablementID,
		Level:        level,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, permission)
}

// List returns a user's live overrides.
// GET /v1/users/{id}/permissions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	permissions, err := h.overrides.ListForUser(r.Context(), actx, userID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, permissions)
}

// Update changes the level of one override.
// PATCH /v1/users/{id}/permissions/{permissionID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}
	permissionID, ok := common.PathID(w, r, h.logger, "permissionID")
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	level, err := domain.ParsePermissionLevel(req.Level)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	permission, err := h.overrides.Update(r.Context(), actx, userID, permissionID, level)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, permission)
}

// Remove retires one override so the user falls back to the tenant default.
// DELETE /v1/users/{id}/permissions/{permissionID}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}
	permissionID, ok := common.PathID(w, r, h.logger, "permissionID")
	if !ok {
		return
	}

	if err := h.overrides.Remove(r.Context(), actx, userID, permissionID); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
