package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

func TestNewActionContext(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name       string
		principal  *domain.Principal
		wantFilter *uuid.UUID
		wantErr    error
	}{
		{
			name:    "missing principal",
			wantErr: domain.ErrUnauthenticated,
		},
		{
			name:      "master has no filter",
			principal: &domain.Principal{ID: uuid.New(), Role: domain.RoleMaster, TenantID: &tenantID},
		},
		{
			name:       "admin scoped to own tenant",
			principal:  &domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin, TenantID: &tenantID},
			wantFilter: &tenantID,
		},
		{
			name:       "client scoped to own tenant",
			principal:  &domain.Principal{ID: uuid.New(), Role: domain.RoleClient, TenantID: &tenantID},
			wantFilter: &tenantID,
		},
		{
			name:      "non-master without tenant",
			principal: &domain.Principal{ID: uuid.New(), Role: domain.RoleManager},
			wantErr:   domain.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actx, err := NewActionContext(tt.principal)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewActionContext() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewActionContext() unexpected error: %v", err)
			}
			switch {
			case tt.wantFilter == nil && actx.TenantFilter != nil:
				t.Errorf("TenantFilter = %v, want nil", *actx.TenantFilter)
			case tt.wantFilter != nil && (actx.TenantFilter == nil || *actx.TenantFilter != *tt.wantFilter):
				t.Errorf("TenantFilter = %v, want %v", actx.TenantFilter, *tt.wantFilter)
			}
		})
	}
}

func TestNewActionContext_ForbiddenSubsystem(t *testing.T) {
	_, err := NewActionContext(&domain.Principal{ID: uuid.New(), Role: domain.RoleClient})
	if got := domain.SubsystemOf(err); got != domain.SubsystemTenancy {
		t.Errorf("SubsystemOf() = %q, want %q", got, domain.SubsystemTenancy)
	}
}

func TestActionContext_Visibility(t *testing.T) {
	own, other := uuid.New(), uuid.New()

	master, _ := NewActionContext(&domain.Principal{ID: uuid.New(), Role: domain.RoleMaster})
	admin, _ := NewActionContext(&domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin, TenantID: &own})

	if !master.IsMaster() || admin.IsMaster() {
		t.Error("IsMaster should follow the tenant filter")
	}
	if !master.CanSeeTenant(other) {
		t.Error("master should see every tenant")
	}
	if !admin.CanSeeTenant(own) || admin.CanSeeTenant(other) {
		t.Error("admin should only see its own tenant")
	}
	if !master.CanSeeUser(nil) {
		t.Error("master should see users without a tenant")
	}
	if admin.CanSeeUser(nil) || admin.CanSeeUser(&other) || !admin.CanSeeUser(&own) {
		t.Error("admin should only see users of its own tenant")
	}
}

func TestActionContext_RoundTripsThroughContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should not carry an action context")
	}

	actx, _ := NewActionContext(&domain.Principal{ID: uuid.New(), Role: domain.RoleMaster})
	got, ok := FromContext(WithActionContext(context.Background(), actx))
	if !ok || got != actx {
		t.Error("FromContext should return the stored action context")
	}
}
