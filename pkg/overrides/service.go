// Package overrides manages per-user permission overrides on a tenant's
// enabled modules.
package overrides

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// UserStore looks up target users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.User, error)
}

// EnablementStore looks up enablements.
type EnablementStore interface {
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.ModuleEnablement, error)
}

// CatalogStore looks up catalog entries.
type CatalogStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Module, error)
}

// OverrideStore persists overrides.
type OverrideStore interface {
	Create(ctx context.Context, o *domain.PermissionOverride) error
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.PermissionOverride, error)
	GetByUserAndEnablement(ctx context.Context, userID, enablementID uuid.UUID, includeDeleted bool) (*domain.PermissionOverride, error)
	Save(ctx context.Context, o *domain.PermissionOverride) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserPermission, error)
	Retire(ctx context.Context, id uuid.UUID) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Users       UserStore
	Enablements EnablementStore
	Catalog     CatalogStore
	Overrides   OverrideStore
	Invalidator authz.Invalidator
	Logger      *slog.Logger
}

// Service assigns, lists, updates and removes overrides.
type Service struct {
	users       UserStore
	enablements EnablementStore
	catalog     CatalogStore
	overrides   OverrideStore
	invalidator authz.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new override service.
func NewService(deps Deps) *Service {
	if deps.Invalidator == nil {
		deps.Invalidator = authz.NopInvalidator{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		users:       deps.Users,
		enablements: deps.Enablements,
		catalog:     deps.Catalog,
		overrides:   deps.Overrides,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// AssignInput grants level on an enablement.
type AssignInput struct {
	EnablementID uuid.UUID
	Level        domain.PermissionLevel
}

var errModuleUnavailable = domain.BadRequest(domain.SubsystemModulePermission,
	"module is not enabled for the user's tenant")

// Assign grants a user an explicit level on one of their tenant's enabled
// modules. An existing override, live or removed, is updated in place.
func (s *Service) Assign(ctx context.Context, actx *authz.ActionContext, userID uuid.UUID, in AssignInput) (*domain.UserPermission, error) {
	if !in.Level.Valid() {
		return nil, domain.ErrInvalidLevel
	}

	user, err := s.authorizeMutation(ctx, actx, userID)
	if err != nil {
		return nil, err
	}
	en, err := s.usableEnablement(ctx, in.EnablementID, *user.TenantID)
	if err != nil {
		return nil, err
	}

	ov, err := s.overrides.GetByUserAndEnablement(ctx, user.ID, en.ID, true)
	switch {
	case errors.Is(err, domain.ErrOverrideNotFound):
		now := s.now()
		ov = &domain.PermissionOverride{
			ID:           uuid.New(),
			UserID:       user.ID,
			EnablementID: en.ID,
			Level:        in.Level,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.overrides.Create(ctx, ov)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrOverrideExists) {
			return nil, err
		}
		if ov, err = s.overrides.GetByUserAndEnablement(ctx, user.ID, en.ID, true); err != nil {
			return nil, err
		}
		if err := s.restore(ctx, ov, in.Level); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := s.restore(ctx, ov, in.Level); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx, *user.TenantID)
	s.logger.Info("permission assigned",
		"user_id", user.ID,
		"enablement_id", en.ID,
		"level", in.Level,
		"by", actx.Principal.ID,
	)
	return s.view(ctx, ov, en)
}

func (s *Service) restore(ctx context.Context, ov *domain.PermissionOverride, level domain.PermissionLevel) error {
	ov.Level = level
	ov.DeletedAt = nil
	ov.UpdatedAt = s.now()
	return s.overrides.Save(ctx, ov)
}

// ListForUser returns a user's live overrides. MASTER sees everyone, ADMIN
// and MANAGER their own tenant, CLIENT only themselves. MASTER users are
// only visible to MASTER whatever tenant id they carry.
func (s *Service) ListForUser(ctx context.Context, actx *authz.ActionContext, userID uuid.UUID) ([]*domain.UserPermission, error) {
	if actx == nil {
		return nil, domain.ErrMissingPrincipal
	}

	user, err := s.users.GetByID(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	var allowed bool
	switch {
	case actx.IsMaster():
		allowed = true
	case user.Role.IsMaster():
		allowed = false
	case actx.Role() == domain.RoleAdmin, actx.Role() == domain.RoleManager:
		allowed = actx.CanSeeUser(user.TenantID)
	case actx.Role() == domain.RoleClient:
		allowed = actx.Principal.ID == user.ID
	}
	if !allowed {
		return nil, s.forbid(actx, user, "you may not view this user's permissions")
	}

	rows, err := s.overrides.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*domain.UserPermission{}
	}
	return rows, nil
}

// Update changes the level of a live override.
func (s *Service) Update(ctx context.Context, actx *authz.ActionContext, userID, permissionID uuid.UUID, level domain.PermissionLevel) (*domain.UserPermission, error) {
	if !level.Valid() {
		return nil, domain.ErrInvalidLevel
	}

	user, ov, en, err := s.loadForMutation(ctx, actx, userID, permissionID)
	if err != nil {
		return nil, err
	}

	ov.Level = level
	ov.UpdatedAt = s.now()
	if err := s.overrides.Save(ctx, ov); err != nil {
		return nil, err
	}

	s.invalidate(ctx, *user.TenantID)
	s.logger.Info("permission updated", "user_id", user.ID, "permission_id", ov.ID, "level", level)
	return s.view(ctx, ov, en)
}

// Remove soft-deletes an override and resets its level to NONE. Removing
// an already removed override fails with NotFound.
func (s *Service) Remove(ctx context.Context, actx *authz.ActionContext, userID, permissionID uuid.UUID) error {
	user, ov, _, err := s.loadForMutation(ctx, actx, userID, permissionID)
	if err != nil {
		return err
	}

	if err := s.overrides.Retire(ctx, ov.ID); err != nil {
		return err
	}

	s.invalidate(ctx, *user.TenantID)
	s.logger.Info("permission removed", "user_id", user.ID, "permission_id", ov.ID)
	return nil
}

func (s *Service) loadForMutation(ctx context.Context, actx *authz.ActionContext, userID, permissionID uuid.UUID) (*domain.User, *domain.PermissionOverride, *domain.ModuleEnablement, error) {
	user, err := s.authorizeMutation(ctx, actx, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	ov, err := s.overrides.GetByID(ctx, permissionID, false)
	if err != nil {
		return nil, nil, nil, err
	}
	if ov.UserID != user.ID {
		return nil, nil, nil, domain.ErrOverrideNotFound
	}

	en, err := s.usableEnablement(ctx, ov.EnablementID, *user.TenantID)
	if err != nil {
		return nil, nil, nil, err
	}
	return user, ov, en, nil
}

// authorizeMutation checks that the target is a live user in a tenant and
// that the caller is MASTER or an ADMIN of that tenant.
func (s *Service) authorizeMutation(ctx context.Context, actx *authz.ActionContext, userID uuid.UUID) (*domain.User, error) {
	if actx == nil {
		return nil, domain.ErrMissingPrincipal
	}

	user, err := s.users.GetByID(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if user.TenantID == nil {
		return nil, domain.BadRequest(domain.SubsystemModulePermission, "user does not belong to a tenant")
	}

	if actx.IsMaster() {
		return user, nil
	}
	if actx.Role() == domain.RoleAdmin && !user.Role.IsMaster() && actx.CanSeeTenant(*user.TenantID) {
		return user, nil
	}
	return nil, s.forbid(actx, user, "only MASTER or an ADMIN of the user's tenant may manage permissions")
}

func (s *Service) usableEnablement(ctx context.Context, enablementID, tenantID uuid.UUID) (*domain.ModuleEnablement, error) {
	en, err := s.enablements.GetByID(ctx, enablementID, false)
	if errors.Is(err, domain.ErrEnablementNotFound) {
		return nil, errModuleUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !en.Enabled || en.TenantID != tenantID {
		return nil, errModuleUnavailable
	}
	return en, nil
}

func (s *Service) view(ctx context.Context, ov *domain.PermissionOverride, en *domain.ModuleEnablement) (*domain.UserPermission, error) {
	module, err := s.catalog.GetByID(ctx, en.ModuleID)
	if err != nil {
		return nil, err
	}
	return &domain.UserPermission{
		PermissionOverride: *ov,
		TenantID:           en.TenantID,
		ModuleID:           module.ID,
		ModuleType:         module.Type,
		ModuleName:         module.Name,
	}, nil
}

func (s *Service) forbid(actx *authz.ActionContext, target *domain.User, msg string) error {
	s.logger.Warn("permission administration denied",
		"subsystem", domain.SubsystemModulePermission,
		"user_id", actx.Principal.ID,
		"role", actx.Role(),
		"target_user_id", target.ID,
	)
	return domain.Forbidden(domain.SubsystemModulePermission, "%s", msg)
}

func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.invalidator.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.Warn("failed to invalidate permission cache", "tenant_id", tenantID, "error", err)
	}
}
