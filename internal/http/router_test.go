package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-saas-admin/internal/config"
	"github.com/tendant/simple-saas-admin/internal/observability"
	"github.com/tendant/simple-saas-admin/internal/testutil"
	"github.com/tendant/simple-saas-admin/internal/testutil/memstore"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	modulesvc "github.com/tendant/simple-saas-admin/pkg/modules"
	"github.com/tendant/simple-saas-admin/pkg/overrides"
	tenantsvc "github.com/tendant/simple-saas-admin/pkg/tenants"
	usersvc "github.com/tendant/simple-saas-admin/pkg/users"
)

const testPassword = "correct horse battery"

type app struct {
	handler http.Handler
	store   *memstore.Store
	master  *domain.User
	client  *domain.User
}

func newApp(t *testing.T) *app {
	t.Helper()

	store := memstore.New()
	catalog := store.SeedCatalog()
	acme := store.SeedTenant("Acme")
	store.SeedEnablement(acme, catalog[domain.ModuleSales], domain.LevelRead)

	a := &app{store: store}
	a.master = store.SeedUser("root@example.com", domain.RoleMaster, nil)
	a.client = store.SeedUser("client@acme.com", domain.RoleClient, acme)
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	store.SetPasswordHash(a.master.ID, hash)
	store.SetPasswordHash(a.client.ID, hash)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := authz.NewMemoryCache(100, 0)

	a.handler = NewRouter(RouterConfig{
		Logger: logger,
		SessionService: auth.NewSessionService(auth.SessionConfig{
			JWTSecret: []byte("router-test-secret"),
			Issuer:    "test",
		}, store.Users(), store.RefreshTokens(), logger),
		TenantService: tenantsvc.NewService(tenantsvc.Deps{
			Tenants:     store.Tenants(),
			Users:       store.Users(),
			Enablements: store.Enablements(),
			Overrides:   store.Overrides(),
			UnitOfWork:  store,
			Invalidator: cache,
			Logger:      logger,
		}),
		UserService: usersvc.NewService(usersvc.Deps{
			Users:       store.Users(),
			Tenants:     store.Tenants(),
			Tokens:      store.RefreshTokens(),
			Invalidator: cache,
			Logger:      logger,
		}),
		ModuleService: modulesvc.NewService(modulesvc.Deps{
			Tenants:     store.Tenants(),
			Catalog:     store.Modules(),
			Enablements: store.Enablements(),
			Overrides:   store.Overrides(),
			UnitOfWork:  store,
			Invalidator: cache,
			Logger:      logger,
		}),
		OverrideService: overrides.NewService(overrides.Deps{
			Users:       store.Users(),
			Enablements: store.Enablements(),
			Catalog:     store.Modules(),
			Overrides:   store.Overrides(),
			Invalidator: cache,
			Logger:      logger,
		}),
		Resolver: authz.NewResolver(store.Enablements(),
			authz.WithCache(cache),
			authz.WithRecorder(metrics),
			authz.WithLogger(logger),
		),
		Metrics:         metrics,
		RateLimitConfig: config.RateLimitConfig{Enabled: false},
		SecurityHeaders: config.SecurityHeadersConfig{Enabled: true, FrameOptions: "DENY", ContentTypeOptions: "nosniff"},
		Validation:      config.ValidationConfig{MaxRequestBodySize: 1 << 20},
	})
	return a
}

func (a *app) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.Request(t, method, target, body, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.Serve(a.handler, req)
}

func (a *app) login(t *testing.T, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair domain.TokenPair
	testutil.DecodeJSON(t, rec, &pair)
	require.NotEmpty(t, pair.AccessToken)
	return pair.AccessToken
}

func TestRouter_Health(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	a := newApp(t)

	for _, path := range []string{"/v1/tenants", "/v1/users", "/v1/modules/catalog", "/v1/me"} {
		rec := a.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := a.do(t, http.MethodGet, "/v1/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Login(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "root@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", testutil.ErrorMessage(t, rec))

	token := a.login(t, "ROOT@example.com")
	rec = a.do(t, http.MethodGet, "/v1/tenants", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_RoleAndPermissionGuards(t *testing.T) {
	a := newApp(t)
	master := a.login(t, "root@example.com")
	client := a.login(t, "client@acme.com")

	rec := a.do(t, http.MethodGet, "/v1/tenants", client, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/me/modules/sales", client, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/v1/me/modules/inventory", client, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/users/"+a.client.ID.String()+"/permissions", master, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	a := newApp(t)
	client := a.login(t, "client@acme.com")
	a.do(t, http.MethodGet, "/v1/me/modules/sales", client, nil)

	rec := a.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/v1/me/modules/{moduleType}"`), body)
	assert.True(t, strings.Contains(body, "saas_admin_authz_decisions_total"), body)
}
