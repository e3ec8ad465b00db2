// Package modules manages the global module catalog and which modules each
// tenant has enabled.
package modules

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"github.com/tendant/simple-saas-admin/pkg/repository"
)

// TenantStore looks up tenants.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.Tenant, error)
}

// CatalogStore reads the global module catalog.
type CatalogStore interface {
	ListActive(ctx context.Context) ([]*domain.Module, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Module, error)
}

// EnablementStore persists module enablements.
type EnablementStore interface {
	Create(ctx context.Context, e *domain.ModuleEnablement) error
	GetByTenantAndModule(ctx context.Context, tenantID, moduleID uuid.UUID, includeDeleted bool) (*domain.ModuleEnablement, error)
	GetLiveByType(ctx context.Context, tenantID uuid.UUID, moduleType domain.ModuleType) (*domain.ModuleEnablement, error)
	Save(ctx context.Context, e *domain.ModuleEnablement) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantModule, error)
	RetireTx(ctx context.Context, q repository.Querier, id uuid.UUID) error
}

// OverrideRetirer resets the overrides rooted at an enablement.
type OverrideRetirer interface {
	RetireByEnablementTx(ctx context.Context, q repository.Querier, enablementID uuid.UUID) (int64, error)
}

// UnitOfWork runs named steps atomically.
type UnitOfWork interface {
	Execute(ctx context.Context, steps ...repository.Step) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Tenants     TenantStore
	Catalog     CatalogStore
	Enablements EnablementStore
	Overrides   OverrideRetirer
	UnitOfWork  UnitOfWork
	Invalidator authz.Invalidator
	Logger      *slog.Logger
}

// Service enables and disables catalog modules per tenant.
type Service struct {
	tenants     TenantStore
	catalog     CatalogStore
	enablements EnablementStore
	overrides   OverrideRetirer
	uow         UnitOfWork
	invalidator authz.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new module service.
func NewService(deps Deps) *Service {
	if deps.Invalidator == nil {
		deps.Invalidator = authz.NopInvalidator{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		tenants:     deps.Tenants,
		catalog:     deps.Catalog,
		enablements: deps.Enablements,
		overrides:   deps.Overrides,
		uow:         deps.UnitOfWork,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// EnableInput describes an enablement to create or overwrite.
type EnableInput struct {
	ModuleID     uuid.UUID
	DefaultLevel domain.PermissionLevel
	// Enabled defaults to true.
	Enabled *bool
}

// UpdateInput changes a live enablement. Nil fields are left alone.
type UpdateInput struct {
	Enabled      *bool
	DefaultLevel *domain.PermissionLevel
}

// ListCatalog returns the active catalog in display order.
func (s *Service) ListCatalog(ctx context.Context) ([]*domain.Module, error) {
	return s.catalog.ListActive(ctx)
}

// GetCatalogEntry returns one catalog entry.
func (s *Service) GetCatalogEntry(ctx context.Context, id uuid.UUID) (*domain.Module, error) {
	return s.catalog.GetByID(ctx, id)
}

// Enable turns a module on for a tenant. A soft-deleted enablement is
// restored and overwritten, a live one is overwritten.
func (s *Service) Enable(ctx context.Context, actx *authz.ActionContext, tenantID uuid.UUID, in EnableInput) (*domain.ModuleEnablement, error) {
	if err := s.requireMaster(actx, "enable modules"); err != nil {
		return nil, err
	}

	level := in.DefaultLevel
	if level == "" {
		level = domain.LevelNone
	}
	if !level.Valid() {
		return nil, domain.ErrInvalidLevel
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	if _, err := s.tenants.GetByID(ctx, tenantID, false); err != nil {
		return nil, err
	}
	module, err := s.catalog.GetByID(ctx, in.ModuleID)
	if err != nil {
		return nil, err
	}
	if !module.IsActive {
		return nil, domain.ErrModuleNotFound
	}

	en, err := s.enablements.GetByTenantAndModule(ctx, tenantID, module.ID, true)
	switch {
	case errors.Is(err, domain.ErrEnablementNotFound):
		now := s.now()
		en = &domain.ModuleEnablement{
			ID:           uuid.New(),
			TenantID:     tenantID,
			ModuleID:     module.ID,
			Enabled:      enabled,
			DefaultLevel: level,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.enablements.Create(ctx, en)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrEnablementExists) {
			return nil, err
		}
		// Lost an insert race; the row now exists so overwrite it.
		if en, err = s.enablements.GetByTenantAndModule(ctx, tenantID, module.ID, true); err != nil {
			return nil, err
		}
		if err := s.overwrite(ctx, en, enabled, level); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := s.overwrite(ctx, en, enabled, level); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx, tenantID)
	s.logger.Info("module enabled",
		"tenant_id", tenantID,
		"module", module.Type,
		"default_level", level,
		"enabled", enabled,
	)
	return en, nil
}

func (s *Service) overwrite(ctx context.Context, en *domain.ModuleEnablement, enabled bool, level domain.PermissionLevel) error {
	en.Enabled = enabled
	en.DefaultLevel = level
	en.DeletedAt = nil
	en.UpdatedAt = s.now()
	return s.enablements.Save(ctx, en)
}

// Disable retires a tenant's enablement together with every override
// rooted at it.
func (s *Service) Disable(ctx context.Context, actx *authz.ActionContext, tenantID, moduleID uuid.UUID) error {
	if err := s.requireMaster(actx, "disable modules"); err != nil {
		return err
	}

	en, err := s.enablements.GetByTenantAndModule(ctx, tenantID, moduleID, false)
	if err != nil {
		return err
	}
	if !en.Enabled {
		return domain.BadRequest(domain.SubsystemModules, "module is already disabled for this tenant")
	}

	var reset int64
	err = s.uow.Execute(ctx,
		repository.Step{Name: "reset-overrides", Run: func(ctx context.Context, q repository.Querier) error {
			n, err := s.overrides.RetireByEnablementTx(ctx, q, en.ID)
			reset = n
			return err
		}},
		repository.Step{Name: "retire-enablement", Run: func(ctx context.Context, q repository.Querier) error {
			return s.enablements.RetireTx(ctx, q, en.ID)
		}},
	)
	if err != nil {
		return err
	}

	s.invalidate(ctx, tenantID)
	s.logger.Info("module disabled", "tenant_id", tenantID, "module_id", moduleID, "overrides_reset", reset)
	return nil
}

// UpdateEnablement changes the flag or default level of a live enablement.
func (s *Service) UpdateEnablement(ctx context.Context, actx *authz.ActionContext, tenantID, moduleID uuid.UUID, in UpdateInput) (*domain.ModuleEnablement, error) {
	if err := s.requireMaster(actx, "update module enablements"); err != nil {
		return nil, err
	}
	if in.DefaultLevel != nil && !in.DefaultLevel.Valid() {
		return nil, domain.ErrInvalidLevel
	}

	en, err := s.enablements.GetByTenantAndModule(ctx, tenantID, moduleID, false)
	if err != nil {
		return nil, err
	}
	if in.Enabled != nil {
		en.Enabled = *in.Enabled
	}
	if in.DefaultLevel != nil {
		en.DefaultLevel = *in.DefaultLevel
	}
	en.UpdatedAt = s.now()
	if err := s.enablements.Save(ctx, en); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID)
	return en, nil
}

// ListForTenant returns a tenant's live enablements in catalog order.
// MASTER may list any tenant, ADMIN only their own.
func (s *Service) ListForTenant(ctx context.Context, actx *authz.ActionContext, tenantID uuid.UUID) ([]*domain.TenantModule, error) {
	if actx == nil {
		return nil, domain.ErrMissingPrincipal
	}
	switch {
	case actx.IsMaster():
		if _, err := s.tenants.GetByID(ctx, tenantID, false); err != nil {
			return nil, err
		}
	case actx.Role() == domain.RoleAdmin && actx.CanSeeTenant(tenantID):
	default:
		return nil, s.forbid(actx, "only MASTER or the tenant's ADMIN may list its modules")
	}

	rows, err := s.enablements.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*domain.TenantModule{}
	}
	return rows, nil
}

// ResolveDefault returns the tenant's default level on moduleType. enabled
// is false when the module has no live, enabled enablement.
func (s *Service) ResolveDefault(ctx context.Context, tenantID uuid.UUID, moduleType domain.ModuleType) (level domain.PermissionLevel, enabled bool, err error) {
	if !moduleType.Valid() {
		return "", false, domain.ErrInvalidModule
	}
	en, err := s.enablements.GetLiveByType(ctx, tenantID, moduleType)
	if errors.Is(err, domain.ErrEnablementNotFound) {
		return domain.LevelNone, false, nil
	}
	if err != nil {
		return "", false, err
	}
	return en.DefaultLevel, true, nil
}

func (s *Service) requireMaster(actx *authz.ActionContext, action string) error {
	if actx == nil {
		return domain.ErrMissingPrincipal
	}
	if !actx.IsMaster() {
		return s.forbid(actx, "only MASTER may %s", action)
	}
	return nil
}

func (s *Service) forbid(actx *authz.ActionContext, format string, args ...any) error {
	s.logger.Warn("module administration denied",
		"subsystem", domain.SubsystemModules,
		"user_id", actx.Principal.ID,
		"role", actx.Role(),
	)
	return domain.Forbidden(domain.SubsystemModules, format, args...)
}

func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.invalidator.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.Warn("failed to invalidate permission cache", "tenant_id", tenantID, "error", err)
	}
}
