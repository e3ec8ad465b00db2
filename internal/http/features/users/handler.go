package users

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/internal/http/features/common"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	usersvc "github.com/tendant/simple-saas-admin/pkg/users"
)

// Handler handles user lifecycle endpoints.
type Handler struct {
	logger *slog.Logger
	users  *usersvc.Service
}

// NewHandler creates a new users handler.
func NewHandler(logger *slog.Logger, service *usersvc.Service) *Handler {
	return &Handler{logger: logger, users: service}
}

// CreateRequest represents a user creation request.
type CreateRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

// UpdateRequest represents a partial user update.
type UpdateRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// Create adds a user.
// POST /v1/users
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	user, err := h.users.Create(r.Context(), actx, usersvc.CreateInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     role,
		TenantID: req.TenantID,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, user)
}

// List returns the page of users visible to the caller, newest first.
// GET /v1/users?page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}

	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	result, err := h.users.List(r.Context(), actx, page)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Get returns one user.
// GET /v1/users/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), actx, id)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// Update changes a user.
// PATCH /v1/users/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	in := usersvc.UpdateInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}
	if req.Role != nil {
		role, err := domain.ParseRole(*req.Role)
		if err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
		in.Role = &role
	}

	user, err := h.users.Update(r.Context(), actx, id, in)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}

// Delete soft-deletes a user and revokes their refresh tokens.
// DELETE /v1/users/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), actx, id); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Restore brings back a soft-deleted user.
// PATCH /v1/users/{id}/restore
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	user, err := h.users.Restore(r.Context(), actx, id)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, user)
}
