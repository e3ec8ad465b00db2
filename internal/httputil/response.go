// Package httputil holds the JSON response and request helpers shared by
// every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps a domain error kind to its HTTP status.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteError maps err to a status and writes it. Unclassified errors are
// logged and hidden behind a generic message.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		Error(w, status, "internal server error")
		return
	}

	var de *domain.Error
	if errors.As(err, &de) {
		Error(w, status, de.Message)
		return
	}
	Error(w, status, err.Error())
}

// Decode reads a JSON request body into v. It writes the error response
// itself and reports whether decoding succeeded.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// URLParamUUID parses a chi URL parameter as a UUID.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.BadRequest("", "invalid %s", name)
	}
	return id, nil
}

// ParsePage reads the page and limit query parameters.
func ParsePage(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"))
	if err != nil {
		return domain.PageRequest{}, domain.ErrInvalidPage
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		return domain.PageRequest{}, domain.ErrInvalidLimit
	}
	if q.Has("page") && page == 0 {
		return domain.PageRequest{}, domain.ErrInvalidPage
	}
	if q.Has("limit") && limit == 0 {
		return domain.PageRequest{}, domain.ErrInvalidLimit
	}
	return domain.NewPageRequest(page, limit)
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
