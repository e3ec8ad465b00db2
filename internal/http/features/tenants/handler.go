package tenants

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-saas-admin/internal/http/features/common"
	"github.com/tendant/simple-saas-admin/internal/httputil"
	tenantsvc "github.com/tendant/simple-saas-admin/pkg/tenants"
)

// Handler handles tenant administration endpoints.
type Handler struct {
	logger  *slog.Logger
	tenants *tenantsvc.Service
}

// NewHandler creates a new tenants handler.
func NewHandler(logger *slog.Logger, service *tenantsvc.Service) *Handler {
	return &Handler{logger: logger, tenants: service}
}

// CreateRequest represents a tenant creation request.
type CreateRequest struct {
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// UpdateRequest represents a partial tenant update.
type UpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Slug    *string `json:"slug,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// Create registers a tenant.
// POST /v1/tenants
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	tenant, err := h.tenants.Create(r.Context(), actx, tenantsvc.CreateInput{
		Name:    req.Name,
		Slug:    req.Slug,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, tenant)
}

// List returns a page of live tenants, newest first.
// GET /v1/tenants?page=&limit=
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

	result, err := h.tenants.List(r.Context(), actx, page)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Get returns one live tenant.
// GET /v1/tenants/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	tenant, err := h.tenants.Get(r.Context(), actx, id)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tenant)
}

// GetBySlug returns one live tenant by slug.
// GET /v1/tenants/slug/{slug}
func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}

	tenant, err := h.tenants.GetBySlug(r.Context(), actx, chi.URLParam(r, "slug"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tenant)
}

// Update changes a live tenant.
// PATCH /v1/tenants/{id}
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

	tenant, err := h.tenants.Update(r.Context(), actx, id, tenantsvc.UpdateInput{
		Name:    req.Name,
		Slug:    req.Slug,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tenant)
}

// Delete soft-deletes a tenant with no active users and retires its
// enablements and overrides.
// DELETE /v1/tenants/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	if err := h.tenants.Delete(r.Context(), actx, id); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Restore brings back a soft-deleted tenant.
// PATCH /v1/tenants/{id}/restore
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	actx, ok := common.ActionContext(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, h.logger, "id")
	if !ok {
		return
	}

	tenant, err := h.tenants.Restore(r.Context(), actx, id)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tenant)
}
