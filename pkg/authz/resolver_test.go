package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

type grantKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
	module   domain.ModuleType
}

type fakeGrants struct {
	grants  map[grantKey]*domain.Grant
	err     error
	lookups int
}

func (f *fakeGrants) LookupGrant(_ context.Context, tenantID, userID uuid.UUID, module domain.ModuleType) (*domain.Grant, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.grants[grantKey{tenantID, userID, module}]
	if !ok {
		return nil, domain.ErrEnablementNotFound
	}
	return g, nil
}

type recordedDecision struct {
	module  domain.ModuleType
	allowed bool
	source  string
}

type fakeRecorder struct {
	decisions []recordedDecision
}

func (f *fakeRecorder) RecordDecision(module domain.ModuleType, _ domain.PermissionLevel, allowed bool, source string) {
	f.decisions = append(f.decisions, recordedDecision{module, allowed, source})
}

func levelPtr(l domain.PermissionLevel) *domain.PermissionLevel { return &l }

func TestResolver_HasPermission(t *testing.T) {
	acme := uuid.New()
	client := &domain.Principal{ID: uuid.New(), Role: domain.RoleClient, TenantID: &acme}
	admin := &domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin, TenantID: &acme}

	grants := &fakeGrants{grants: map[grantKey]*domain.Grant{
		{acme, client.ID, domain.ModuleFinancial}: {EnablementID: uuid.New(), DefaultLevel: domain.LevelRead},
		{acme, client.ID, domain.ModuleInventory}: {EnablementID: uuid.New(), DefaultLevel: domain.LevelRead, OverrideLevel: levelPtr(domain.LevelWrite)},
		{acme, client.ID, domain.ModuleSales}:     {EnablementID: uuid.New(), DefaultLevel: domain.LevelAdmin, OverrideLevel: levelPtr(domain.LevelNone)},
		{acme, admin.ID, domain.ModuleFinancial}:  {EnablementID: uuid.New(), DefaultLevel: domain.LevelRead},
	}}
	r := NewResolver(grants)
	ctx := context.Background()

	tests := []struct {
		name      string
		principal *domain.Principal
		module    domain.ModuleType
		required  domain.PermissionLevel
		want      bool
	}{
		{"default satisfies read", client, domain.ModuleFinancial, domain.LevelRead, true},
		{"default does not satisfy write", client, domain.ModuleFinancial, domain.LevelWrite, false},
		{"none is always satisfied when enabled", client, domain.ModuleFinancial, domain.LevelNone, true},
		{"override raises above default", client, domain.ModuleInventory, domain.LevelWrite, true},
		{"override below required", client, domain.ModuleInventory, domain.LevelAdmin, false},
		{"override lowers below default", client, domain.ModuleSales, domain.LevelRead, false},
		{"not enabled denies even none", client, domain.ModuleReports, domain.LevelNone, false},
		{"admin gets no implicit boost", admin, domain.ModuleFinancial, domain.LevelWrite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.HasPermission(ctx, tt.principal, tt.module, tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_MasterShortCircuits(t *testing.T) {
	grants := &fakeGrants{err: errors.New("store must not be called")}
	rec := &fakeRecorder{}
	r := NewResolver(grants, WithRecorder(rec))
	master := &domain.Principal{ID: uuid.New(), Role: domain.RoleMaster}

	for _, level := range domain.Levels {
		ok, err := r.HasPermission(context.Background(), master, domain.ModuleSettings, level)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	level, enabled, err := r.EffectiveLevel(context.Background(), master, domain.ModuleImages)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, domain.LevelAdmin, level)

	assert.Zero(t, grants.lookups)
	require.Len(t, rec.decisions, len(domain.Levels))
	assert.Equal(t, SourceMaster, rec.decisions[0].source)
}

func TestResolver_AssertPermission(t *testing.T) {
	acme := uuid.New()
	user := &domain.Principal{ID: uuid.New(), Role: domain.RoleManager, TenantID: &acme}
	r := NewResolver(&fakeGrants{grants: map[grantKey]*domain.Grant{
		{acme, user.ID, domain.ModuleSchedules}: {DefaultLevel: domain.LevelRead},
	}})

	require.NoError(t, r.AssertPermission(context.Background(), user, domain.ModuleSchedules, domain.LevelRead))

	err := r.Assert(context.Background(), user, Requirement{Module: domain.ModuleSchedules, Level: domain.LevelWrite})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.SubsystemModulePermission, domain.SubsystemOf(err))
	assert.Contains(t, err.Error(), "SCHEDULES")
	assert.Contains(t, err.Error(), "WRITE")
}

func TestResolver_Errors(t *testing.T) {
	acme := uuid.New()
	user := &domain.Principal{ID: uuid.New(), Role: domain.RoleClient, TenantID: &acme}
	storeErr := errors.New("connection reset")
	r := NewResolver(&fakeGrants{err: storeErr})
	ctx := context.Background()

	_, err := r.HasPermission(ctx, nil, domain.ModuleSales, domain.LevelRead)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = r.HasPermission(ctx, user, domain.ModuleSales, domain.PermissionLevel("OWNER"))
	assert.ErrorIs(t, err, domain.ErrInvalidLevel)

	_, err = r.HasPermission(ctx, user, domain.ModuleType("CRM"), domain.LevelRead)
	assert.ErrorIs(t, err, domain.ErrInvalidModule)

	_, err = r.HasPermission(ctx, user, domain.ModuleSales, domain.LevelRead)
	assert.ErrorIs(t, err, storeErr)
}

func TestResolver_CachesAndInvalidates(t *testing.T) {
	acme := uuid.New()
	user := &domain.Principal{ID: uuid.New(), Role: domain.RoleClient, TenantID: &acme}
	grant := &domain.Grant{DefaultLevel: domain.LevelRead}
	grants := &fakeGrants{grants: map[grantKey]*domain.Grant{
		{acme, user.ID, domain.ModuleReports}: grant,
	}}
	cache := NewMemoryCache(100, 0)
	rec := &fakeRecorder{}
	r := NewResolver(grants, WithCache(cache), WithRecorder(rec))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := r.HasPermission(ctx, user, domain.ModuleReports, domain.LevelRead)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, grants.lookups)
	assert.Equal(t, SourceStore, rec.decisions[0].source)
	assert.Equal(t, SourceCache, rec.decisions[2].source)

	grant.OverrideLevel = levelPtr(domain.LevelNone)
	require.NoError(t, cache.InvalidateTenant(ctx, acme))

	ok, err := r.HasPermission(ctx, user, domain.ModuleReports, domain.LevelRead)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, grants.lookups)
}

func TestResolver_CachesNotEnabled(t *testing.T) {
	acme := uuid.New()
	user := &domain.Principal{ID: uuid.New(), Role: domain.RoleClient, TenantID: &acme}
	grants := &fakeGrants{grants: map[grantKey]*domain.Grant{}}
	r := NewResolver(grants, WithCache(NewMemoryCache(10, 0)))

	for i := 0; i < 2; i++ {
		level, enabled, err := r.EffectiveLevel(context.Background(), user, domain.ModuleImages)
		require.NoError(t, err)
		assert.False(t, enabled)
		assert.Equal(t, domain.LevelNone, level)
	}
	assert.Equal(t, 1, grants.lookups)
}
