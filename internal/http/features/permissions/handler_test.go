package permissions

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-saas-admin/internal/testutil"
	"github.com/tendant/simple-saas-admin/internal/testutil/memstore"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"github.com/tendant/simple-saas-admin/pkg/overrides"
)

type fixture struct {
	store   *memstore.Store
	router  chi.Router
	sales   *domain.ModuleEnablement
	hr      *domain.ModuleEnablement
	other   *domain.ModuleEnablement
	master  *domain.User
	admin   *domain.User
	manager *domain.User
	client  *domain.User
	outside *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	catalog := store.SeedCatalog()
	acme := store.SeedTenant("Acme")
	globex := store.SeedTenant("Globex")

	f := &fixture{store: store}
	f.sales = store.SeedEnablement(acme, catalog[domain.ModuleSales], domain.LevelRead)
	f.hr = store.SeedEnablement(acme, catalog[domain.ModuleReports], domain.LevelNone)
	f.other = store.SeedEnablement(globex, catalog[domain.ModuleSales], domain.LevelRead)
	f.master = store.SeedUser("root@example.com", domain.RoleMaster, nil)
	f.admin = store.SeedUser("admin@acme.com", domain.RoleAdmin, acme)
	f.manager = store.SeedUser("manager@acme.com", domain.RoleManager, acme)
	f.client = store.SeedUser("client@acme.com", domain.RoleClient, acme)
	f.outside = store.SeedUser("admin@globex.com", domain.RoleAdmin, globex)

	service := overrides.NewService(overrides.Deps{
		Users:       store.Users(),
		Enablements: store.Enablements(),
		Catalog:     store.Modules(),
		Overrides:   store.Overrides(),
	})

	f.router = chi.NewRouter()
	f.router.Route("/v1/users/{id}/permissions", NewHandler(slog.Default(), service).RegisterRoutes)
	return f
}

func path(user *domain.User) string {
	return "/v1/users/" + user.ID.String() + "/permissions"
}

func (f *fixture) assign(t *testing.T, actor, target *domain.User, en *domain.ModuleEnablement, level string) *domain.UserPermission {
	t.Helper()
	rec := testutil.Serve(f.router, testutil.Request(t, http.MethodPost, path(target),
		AssignRequest{EnablementID: en.ID, Level: level}, actor))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p domain.UserPermission
	testutil.DecodeJSON(t, rec, &p)
	return &p
}

func TestAssign(t *testing.T) {
	f := newFixture(t)

	p := f.assign(t, f.admin, f.client, f.sales, "write")
	assert.Equal(t, domain.LevelWrite, p.Level)
	assert.Equal(t, domain.ModuleSales, p.ModuleType)
	assert.Equal(t, f.client.ID, p.UserID)

	again := f.assign(t, f.master, f.client, f.sales, "ADMIN")
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, domain.LevelAdmin, again.Level)
}

func TestAssign_Rejected(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		actor  *domain.User
		target *domain.User
		body   any
		want   int
		msg    string
	}{
		{"bad level", f.admin, f.client, AssignRequest{EnablementID: f.sales.ID, Level: "OWNER"}, http.StatusBadRequest, ""},
		{"malformed body", f.admin, f.client, `{"level":`, http.StatusBadRequest, ""},
		{"other tenant's module", f.admin, f.client, AssignRequest{EnablementID: f.other.ID, Level: "READ"}, http.StatusBadRequest, "module is not enabled for the user's tenant"},
		{"unknown enablement", f.admin, f.client, AssignRequest{EnablementID: uuid.New(), Level: "READ"}, http.StatusBadRequest, "module is not enabled for the user's tenant"},
		{"master target", f.master, f.master, AssignRequest{EnablementID: f.sales.ID, Level: "READ"}, http.StatusBadRequest, "user does not belong to a tenant"},
		{"manager", f.manager, f.client, AssignRequest{EnablementID: f.sales.ID, Level: "READ"}, http.StatusForbidden, ""},
		{"admin of another tenant", f.outside, f.client, AssignRequest{EnablementID: f.sales.ID, Level: "READ"}, http.StatusForbidden, ""},
		{"unknown user", f.master, &domain.User{ID: uuid.New()}, AssignRequest{EnablementID: f.sales.ID, Level: "READ"}, http.StatusNotFound, "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Serve(f.router, testutil.Request(t, http.MethodPost, path(tt.target), tt.body, tt.actor))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.msg != "" {
				assert.Equal(t, tt.msg, testutil.ErrorMessage(t, rec))
			}
		})
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.store.SeedOverride(f.client, f.sales, domain.LevelWrite)
	f.store.SeedOverride(f.client, f.hr, domain.LevelRead)

	for _, actor := range []*domain.User{f.master, f.admin, f.manager, f.client} {
		rec := testutil.Serve(f.router, testutil.Request(t, http.MethodGet, path(f.client), nil, actor))
		require.Equal(t, http.StatusOK, rec.Code, "role %s", actor.Role)
		var rows []*domain.UserPermission
		testutil.DecodeJSON(t, rec, &rows)
		assert.Len(t, rows, 2)
	}

	rec := testutil.Serve(f.router, testutil.Request(t, http.MethodGet, path(f.admin), nil, f.client))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodGet, path(f.client), nil, f.outside))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodGet, path(f.manager), nil, f.admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestUpdateAndRemove(t *testing.T) {
	f := newFixture(t)
	p := f.assign(t, f.admin, f.client, f.sales, "READ")
	target := path(f.client) + "/" + p.ID.String()

	rec := testutil.Serve(f.router, testutil.Request(t, http.MethodPatch, target, UpdateRequest{Level: "write"}, f.admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.UserPermission
	testutil.DecodeJSON(t, rec, &updated)
	assert.Equal(t, domain.LevelWrite, updated.Level)

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodPatch, target, UpdateRequest{Level: "nope"}, f.admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodPatch,
		path(f.manager)+"/"+p.ID.String(), UpdateRequest{Level: "READ"}, f.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code, "override belongs to a different user")

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodDelete, target, nil, f.manager))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodDelete, target, nil, f.admin))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rows, err := f.store.Overrides().ListByUser(t.Context(), f.client.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rec = testutil.Serve(f.router, testutil.Request(t, http.MethodDelete, target, nil, f.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "permission not found", testutil.ErrorMessage(t, rec))
}

func TestBadPathID(t *testing.T) {
	f := newFixture(t)

	rec := testutil.Serve(f.router, testutil.Request(t, http.MethodGet, "/v1/users/not-a-uuid/permissions", nil, f.master))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
