// Package authz decides what an authenticated principal may see and do.
package authz

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// ActionContext is built once per inbound action and passed explicitly to
// every service call. It carries the principal and the tenant filter that
// must be applied to every downstream read.
type ActionContext struct {
	Principal *domain.Principal

	// TenantFilter is nil for MASTER (no filter) and the principal's own
	// tenant for everyone else.
	TenantFilter *uuid.UUID
}

// NewActionContext derives the tenant filter for p.
func NewActionContext(p *domain.Principal) (*ActionContext, error) {
	if p == nil {
		return nil, domain.ErrMissingPrincipal
	}
	if p.Role.IsMaster() {
		return &ActionContext{Principal: p}, nil
	}
	if p.TenantID == nil {
		return nil, domain.Forbidden(domain.SubsystemTenancy, "principal %s is not bound to a tenant", p.ID)
	}
	tenantID := *p.TenantID
	return &ActionContext{Principal: p, TenantFilter: &tenantID}, nil
}

// IsMaster reports whether the action runs unscoped.
func (a *ActionContext) IsMaster() bool {
	return a.TenantFilter == nil
}

// Role returns the acting principal's role.
func (a *ActionContext) Role() domain.Role {
	return a.Principal.Role
}

// CanSeeTenant reports whether the filter admits tenantID.
func (a *ActionContext) CanSeeTenant(tenantID uuid.UUID) bool {
	return a.TenantFilter == nil || *a.TenantFilter == tenantID
}

// CanSeeUser reports whether the filter admits a user in tenantID. Users
// without a tenant are only visible unscoped.
func (a *ActionContext) CanSeeUser(tenantID *uuid.UUID) bool {
	if a.TenantFilter == nil {
		return true
	}
	return tenantID != nil && *tenantID == *a.TenantFilter
}

type actionContextKey struct{}

// WithActionContext returns a copy of ctx carrying actx.
func WithActionContext(ctx context.Context, actx *ActionContext) context.Context {
	return context.WithValue(ctx, actionContextKey{}, actx)
}

// FromContext returns the ActionContext stored in ctx, if any.
func FromContext(ctx context.Context) (*ActionContext, bool) {
	actx, ok := ctx.Value(actionContextKey{}).(*ActionContext)
	return actx, ok && actx != nil
}
