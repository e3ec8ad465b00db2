package session

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-saas-admin/internal/httputil"
	"github.com/tendant/simple-saas-admin/pkg/auth"
)

// Handler handles session endpoints.
type Handler struct {
	logger         *slog.Logger
	sessionService *auth.SessionService
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, sessionService *auth.SessionService) *Handler {
	return &Handler{
		logger:         logger,
		sessionService: sessionService,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents a logout request.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials for a token pair.
// POST /v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	tokens, err := h.sessionService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tokens)
}

// Refresh issues a new access token for a refresh token.
// POST /v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.sessionService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, tokens)
}

// Logout revokes a refresh token. It succeeds for unknown tokens.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if req.RefreshToken != "" {
		if err := h.sessionService.Logout(r.Context(), req.RefreshToken); err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
