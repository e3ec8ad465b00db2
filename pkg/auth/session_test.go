package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/internal/testutil/memstore"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret-key-for-sessions")

type sessionFixture struct {
	store   *memstore.Store
	service *SessionService
	user    *domain.User
	master  *domain.User
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	store := memstore.New()
	tenant := store.SeedTenant("Acme")
	user := store.SeedUser("ana@acme.com", domain.RoleClient, tenant)
	master := store.SeedUser("root@example.com", domain.RoleMaster, nil)

	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	store.SetPasswordHash(user.ID, hash)
	store.SetPasswordHash(master.ID, hash)

	service := NewSessionService(SessionConfig{JWTSecret: testSecret, Issuer: "test"},
		store.Users(), store.RefreshTokens(), nil)

	return &sessionFixture{store: store, service: service, user: user, master: master}
}

func TestSessionService_Defaults(t *testing.T) {
	s := NewSessionService(SessionConfig{JWTSecret: testSecret}, nil, nil, nil)
	if s.AccessTokenTTL() != DefaultAccessTokenTTL {
		t.Errorf("AccessTokenTTL() = %v, want %v", s.AccessTokenTTL(), DefaultAccessTokenTTL)
	}
	if s.config.RefreshTokenTTL != DefaultRefreshTokenTTL {
		t.Errorf("RefreshTokenTTL = %v, want %v", s.config.RefreshTokenTTL, DefaultRefreshTokenTTL)
	}
}

func TestSessionService_Login(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pair, err := f.service.Login(ctx, "  ANA@acme.com ", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}
	if len(pair.RefreshToken) != 2*refreshTokenLen {
		t.Errorf("refresh token length = %d, want %d", len(pair.RefreshToken), 2*refreshTokenLen)
	}
	if pair.User == nil || pair.User.ID != f.user.ID {
		t.Errorf("pair.User = %+v, want user %s", pair.User, f.user.ID)
	}
	if f.store.RefreshTokens().Len() != 1 {
		t.Errorf("stored tokens = %d, want 1", f.store.RefreshTokens().Len())
	}

	stored, err := f.store.RefreshTokens().GetByTokenHash(ctx, HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("refresh token should be stored by hash: %v", err)
	}
	if got := stored.ExpiresAt.Sub(stored.CreatedAt); got != DefaultRefreshTokenTTL {
		t.Errorf("refresh token lifetime = %v, want %v", got, DefaultRefreshTokenTTL)
	}

	principal, err := f.service.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if principal.ID != f.user.ID || principal.Role != domain.RoleClient || principal.Email != "ana@acme.com" {
		t.Errorf("unexpected principal %+v", principal)
	}
	if principal.TenantID == nil || *principal.TenantID != *f.user.TenantID {
		t.Errorf("principal tenant = %v, want %v", principal.TenantID, *f.user.TenantID)
	}
}

func TestSessionService_Login_MasterWithoutTenant(t *testing.T) {
	f := newSessionFixture(t)

	pair, err := f.service.Login(context.Background(), "root@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	principal, err := f.service.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if principal.TenantID != nil {
		t.Errorf("master principal tenant = %v, want nil", *principal.TenantID)
	}
	if !principal.Role.IsMaster() {
		t.Errorf("Role = %s, want MASTER", principal.Role)
	}
}

func TestSessionService_Login_Failures(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ana@acme.com", "wrong"},
		{"unknown email", "nobody@acme.com", "correct-horse"},
		{"empty password", "ana@acme.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Errorf("Login() error should be Unauthenticated, got %v", err)
			}
		})
	}

	f.store.SoftDeleteUser(f.user.ID)
	if _, err := f.service.Login(ctx, "ana@acme.com", "correct-horse"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Login() for deleted user error = %v, want ErrInvalidCredentials", err)
	}
	if f.store.RefreshTokens().Len() != 0 {
		t.Error("failed logins must not issue refresh tokens")
	}
}

func TestSessionService_Login_UpgradesLegacyHash(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	f.store.SetPasswordHash(f.user.ID, string(legacy))

	if _, err := f.service.Login(ctx, "ana@acme.com", "admin123"); err != nil {
		t.Fatalf("Login with legacy hash failed: %v", err)
	}

	user, _ := f.store.Users().GetByID(ctx, f.user.ID, false)
	if NeedsRehash(user.PasswordHash) {
		t.Error("legacy hash should be upgraded after login")
	}
	if !VerifyPassword("admin123", user.PasswordHash) {
		t.Error("upgraded hash should verify the same password")
	}
}

func TestSessionService_Refresh(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pair, err := f.service.Login(ctx, "ana@acme.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	refreshed, err := f.service.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Error("refresh must return the same refresh token")
	}
	if refreshed.AccessToken == pair.AccessToken {
		t.Error("refresh should mint a new access token")
	}

	// Refreshing again with the same value still works.
	if _, err := f.service.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("second Refresh failed: %v", err)
	}
}

func TestSessionService_Refresh_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.service.Refresh(ctx, "deadbeef")
		if !errors.Is(err, domain.ErrRefreshTokenInvalid) {
			t.Errorf("Refresh() error = %v, want ErrRefreshTokenInvalid", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.service.Refresh(ctx, "")
		if !errors.Is(err, domain.ErrUnauthenticated) {
			t.Errorf("Refresh() error = %v, want Unauthenticated", err)
		}
	})

	t.Run("expired token is purged", func(t *testing.T) {
		f := newSessionFixture(t)
		pair, err := f.service.Login(ctx, "ana@acme.com", "correct-horse")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		f.service.now = func() time.Time { return time.Now().Add(DefaultRefreshTokenTTL + time.Second) }
		_, err = f.service.Refresh(ctx, pair.RefreshToken)
		if !errors.Is(err, domain.ErrRefreshTokenExpired) {
			t.Errorf("Refresh() error = %v, want ErrRefreshTokenExpired", err)
		}
		if f.store.RefreshTokens().Len() != 0 {
			t.Error("expired refresh token should be deleted on use")
		}

		_, err = f.service.Refresh(ctx, pair.RefreshToken)
		if !errors.Is(err, domain.ErrRefreshTokenInvalid) {
			t.Errorf("second Refresh() error = %v, want ErrRefreshTokenInvalid", err)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		f := newSessionFixture(t)
		pair, err := f.service.Login(ctx, "ana@acme.com", "correct-horse")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		f.store.SoftDeleteUser(f.user.ID)

		_, err = f.service.Refresh(ctx, pair.RefreshToken)
		if !errors.Is(err, domain.ErrPrincipalInactive) {
			t.Errorf("Refresh() error = %v, want ErrPrincipalInactive", err)
		}
	})
}

func TestSessionService_Logout(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	pair, err := f.service.Login(ctx, "ana@acme.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.service.Logout(ctx, pair.RefreshToken); err != nil {
			t.Fatalf("Logout #%d failed: %v", i+1, err)
		}
	}
	if err := f.service.Logout(ctx, "never-issued"); err != nil {
		t.Errorf("Logout of unknown token should succeed, got %v", err)
	}

	if _, err := f.service.Refresh(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrRefreshTokenInvalid) {
		t.Errorf("Refresh after logout error = %v, want ErrRefreshTokenInvalid", err)
	}
}

func TestSessionService_ValidateAccessToken_Rejects(t *testing.T) {
	f := newSessionFixture(t)
	now := time.Now()

	sign := func(claims AccessTokenClaims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		return s
	}
	valid := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   f.user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Role: domain.RoleClient,
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	badSubject := valid
	badSubject.Subject = "not-a-uuid"

	badRole := valid
	badRole.Role = "OWNER"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"wrong secret", sign(valid, jwt.SigningMethodHS256, []byte("other-secret"))},
		{"none algorithm", sign(valid, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"expired", sign(expired, jwt.SigningMethodHS256, testSecret)},
		{"bad subject", sign(badSubject, jwt.SigningMethodHS256, testSecret)},
		{"bad role", sign(badRole, jwt.SigningMethodHS256, testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.ValidateAccessToken(tt.token)
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Errorf("ValidateAccessToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	if _, err := f.service.ValidateAccessToken(sign(valid, jwt.SigningMethodHS256, testSecret)); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestAccessTokenClaims_TenantIDSerialization(t *testing.T) {
	f := newSessionFixture(t)
	tenantID := uuid.New()
	user := &domain.User{ID: uuid.New(), Email: "x@acme.com", Role: domain.RoleManager, TenantID: &tenantID}

	pair, err := f.service.issue(user, "refresh", time.Now())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims := &AccessTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(pair.AccessToken, claims); err != nil {
		t.Fatalf("ParseUnverified failed: %v", err)
	}
	if claims.TenantID == nil || *claims.TenantID != tenantID {
		t.Errorf("tenant_id claim = %v, want %v", claims.TenantID, tenantID)
	}
	if claims.Email != "x@acme.com" || claims.Role != domain.RoleManager {
		t.Errorf("unexpected claims %+v", claims)
	}
}
