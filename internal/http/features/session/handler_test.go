package session

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/simple-saas-admin/internal/testutil/memstore"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

func newTestHandler(t *testing.T) (*Handler, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	acme := store.SeedTenant("Acme")
	user := store.SeedUser("ana@acme.com", domain.RoleAdmin, acme)
	hash, err := auth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	store.SetPasswordHash(user.ID, hash)

	service := auth.NewSessionService(auth.SessionConfig{JWTSecret: []byte("handler-test-secret")},
		store.Users(), store.RefreshTokens(), nil)
	return NewHandler(slog.Default(), service), store
}

func post(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return response["error"]
}

func TestRequest_Validation(t *testing.T) {
	handler := &Handler{sessionService: nil}

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		body           string
		expectedStatus int
		expectedError  string
	}{
		{"login empty body", handler.Login, `{}`, http.StatusBadRequest, "email and password are required"},
		{"login missing password", handler.Login, `{"email":"a@b.com"}`, http.StatusBadRequest, "email and password are required"},
		{"login invalid json", handler.Login, `{invalid}`, http.StatusBadRequest, "invalid request body"},
		{"refresh empty body", handler.Refresh, `{}`, http.StatusBadRequest, "refresh_token is required"},
		{"refresh empty token", handler.Refresh, `{"refresh_token": ""}`, http.StatusBadRequest, "refresh_token is required"},
		{"refresh invalid json", handler.Refresh, `{invalid}`, http.StatusBadRequest, "invalid request body"},
		{"logout invalid json", handler.Logout, `{invalid}`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Validation should have failed before reaching service")
				}
			}()

			rec := post(tt.handler, "/v1/auth", tt.body)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if got := errorOf(t, rec); got != tt.expectedError {
				t.Errorf("Error = %q, want %q", got, tt.expectedError)
			}
		})
	}
}

func TestLogout_EmptyTokenSucceeds(t *testing.T) {
	handler := &Handler{sessionService: nil}

	rec := post(handler.Logout, "/v1/auth/logout", `{}`)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestLogin(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := post(handler.Login, "/v1/auth/login", `{"email":"ana@acme.com","password":"correct-horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var pair domain.TokenPair
	if err := json.NewDecoder(rec.Body).Decode(&pair); err != nil {
		t.Fatalf("failed to decode token pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected both tokens to be issued")
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}
	if pair.User == nil || pair.User.Email != "ana@acme.com" {
		t.Errorf("User = %+v, want ana@acme.com", pair.User)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, body := range []string{
		`{"email":"ana@acme.com","password":"wrong"}`,
		`{"email":"nobody@acme.com","password":"correct-horse"}`,
	} {
		rec := post(handler.Login, "/v1/auth/login", body)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if got := errorOf(t, rec); got != "invalid credentials" {
			t.Errorf("Error = %q, want %q", got, "invalid credentials")
		}
	}
}

func TestRefreshAndLogout(t *testing.T) {
	handler, store := newTestHandler(t)

	rec := post(handler.Login, "/v1/auth/login", `{"email":"ana@acme.com","password":"correct-horse"}`)
	var pair domain.TokenPair
	if err := json.NewDecoder(rec.Body).Decode(&pair); err != nil {
		t.Fatalf("failed to decode token pair: %v", err)
	}
	body, _ := json.Marshal(RefreshRequest{RefreshToken: pair.RefreshToken})

	rec = post(handler.Refresh, "/v1/auth/refresh", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d", rec.Code, http.StatusOK)
	}
	var refreshed domain.TokenPair
	if err := json.NewDecoder(rec.Body).Decode(&refreshed); err != nil {
		t.Fatalf("failed to decode token pair: %v", err)
	}
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Error("refresh should return the same refresh token")
	}

	rec = post(handler.Logout, "/v1/auth/logout", string(body))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if store.RefreshTokens().Len() != 0 {
		t.Errorf("refresh tokens = %d, want 0", store.RefreshTokens().Len())
	}

	// Logging out twice is fine; refreshing a revoked token is not.
	if rec = post(handler.Logout, "/v1/auth/logout", string(body)); rec.Code != http.StatusNoContent {
		t.Errorf("second logout status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = post(handler.Refresh, "/v1/auth/refresh", string(body))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
