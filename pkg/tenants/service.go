// Package tenants administers customer companies.
package tenants

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"github.com/tendant/simple-saas-admin/pkg/repository"
	"golang.org/x/sync/errgroup"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Field bounds.
const (
	nameMinLength  = 3
	nameMaxLength  = 100
	slugMinLength  = 3
	slugMaxLength  = 50
	phoneMinLength = 10
	phoneMaxLength = 20
)

// TenantStore persists tenants.
type TenantStore interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.Tenant, error)
	GetBySlug(ctx context.Context, slug string, includeDeleted bool) (*domain.Tenant, error)
	List(ctx context.Context, page domain.PageRequest) ([]*domain.Tenant, error)
	Count(ctx context.Context) (int, error)
	SlugTaken(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID uuid.UUID) (bool, error)
	Update(ctx context.Context, tenant *domain.Tenant) error
	LockTx(ctx context.Context, q repository.Querier, id uuid.UUID) error
	SoftDeleteTx(ctx context.Context, q repository.Querier, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
}

// UserCounter counts a tenant's active users.
type UserCounter interface {
	CountActiveByTenantTx(ctx context.Context, q repository.Querier, tenantID uuid.UUID) (int, error)
}

// EnablementRetirer retires every enablement of a tenant.
type EnablementRetirer interface {
	RetireByTenantTx(ctx context.Context, q repository.Querier, tenantID uuid.UUID) (int64, error)
}

// OverrideRetirer resets every override rooted at a tenant's enablements.
type OverrideRetirer interface {
	RetireByTenantTx(ctx context.Context, q repository.Querier, tenantID uuid.UUID) (int64, error)
}

// UnitOfWork runs named steps atomically.
type UnitOfWork interface {
	Execute(ctx context.Context, steps ...repository.Step) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Tenants     TenantStore
	Users       UserCounter
	Enablements EnablementRetirer
	Overrides   OverrideRetirer
	UnitOfWork  UnitOfWork
	Validator   *auth.Validator
	Invalidator authz.Invalidator
	Logger      *slog.Logger
}

// Service administers tenants. Every operation is MASTER only.
type Service struct {
	tenants     TenantStore
	users       UserCounter
	enablements EnablementRetirer
	overrides   OverrideRetirer
	uow         UnitOfWork
	validator   *auth.Validator
	invalidator authz.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new tenant service.
func NewService(deps Deps) *Service {
	if deps.Invalidator == nil {
		deps.Invalidator = authz.NopInvalidator{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		tenants:     deps.Tenants,
		users:       deps.Users,
		enablements: deps.Enablements,
		overrides:   deps.Overrides,
		uow:         deps.UnitOfWork,
		validator:   deps.Validator,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// CreateInput describes a new tenant.
type CreateInput struct {
	Name    string
	Slug    string
	Email   *string
	Phone   *string
	Address *string
}

// UpdateInput changes a tenant. Nil fields are left alone.
type UpdateInput struct {
	Name    *string
	Slug    *string
	Email   *string
	Phone   *string
	Address *string
}

// Create registers a tenant.
func (s *Service) Create(ctx context.Context, actx *authz.ActionContext, in CreateInput) (*domain.Tenant, error) {
	if err := s.requireMaster(actx, "create"); err != nil {
		return nil, err
	}

	now := s.now()
	tenant := &domain.Tenant{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	var err error
	if tenant.Name, err = validateName(in.Name); err != nil {
		return nil, err
	}
	if tenant.Slug, err = validateSlug(in.Slug); err != nil {
		return nil, err
	}
	if tenant.Email, err = s.validateEmail(in.Email); err != nil {
		return nil, err
	}
	if tenant.Phone, err = validatePhone(in.Phone); err != nil {
		return nil, err
	}
	tenant.Address = trimmed(in.Address)

	if err := s.checkUnique(ctx, tenant); err != nil {
		return nil, err
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("tenant created", "tenant_id", tenant.ID, "slug", tenant.Slug)
	return tenant, nil
}

// List returns one page of live tenants, newest first.
func (s *Service) List(ctx context.Context, actx *authz.ActionContext, page domain.PageRequest) (domain.Page[*domain.Tenant], error) {
	if err := s.requireMaster(actx, "list"); err != nil {
		return domain.Page[*domain.Tenant]{}, err
	}

	var (
		rows  []*domain.Tenant
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.tenants.List(gctx, page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.tenants.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Page[*domain.Tenant]{}, err
	}
	return domain.NewPage(rows, total, page), nil
}

// Get returns a live tenant.
func (s *Service) Get(ctx context.Context, actx *authz.ActionContext, id uuid.UUID) (*domain.Tenant, error) {
	if err := s.requireMaster(actx, "read"); err != nil {
		return nil, err
	}
	return s.tenants.GetByID(ctx, id, false)
}

// GetBySlug returns a live tenant by slug.
func (s *Service) GetBySlug(ctx context.Context, actx *authz.ActionContext, slug string) (*domain.Tenant, error) {
	if err := s.requireMaster(actx, "read"); err != nil {
		return nil, err
	}
	return s.tenants.GetBySlug(ctx, strings.TrimSpace(slug), false)
}

// Update changes a live tenant.
func (s *Service) Update(ctx context.Context, actx *authz.ActionContext, id uuid.UUID, in UpdateInput) (*domain.Tenant, error) {
	if err := s.requireMaster(actx, "update"); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if tenant.Name, err = validateName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Slug != nil {
		if tenant.Slug, err = validateSlug(*in.Slug); err != nil {
			return nil, err
		}
	}
	if in.Email != nil {
		if tenant.Email, err = s.validateEmail(in.Email); err != nil {
			return nil, err
		}
	}
	if in.Phone != nil {
		if tenant.Phone, err = validatePhone(in.Phone); err != nil {
			return nil, err
		}
	}
	if in.Address != nil {
		tenant.Address = trimmed(in.Address)
	}

	if err := s.checkUnique(ctx, tenant); err != nil {
		return nil, err
	}
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("tenant updated", "tenant_id", tenant.ID)
	return tenant, nil
}

// Delete soft-deletes a tenant that has no active users, retiring its
// enablements and resetting every override rooted at them.
func (s *Service) Delete(ctx context.Context, actx *authz.ActionContext, id uuid.UUID) error {
	if err := s.requireMaster(actx, "delete"); err != nil {
		return err
	}

	if _, err := s.tenants.GetByID(ctx, id, false); err != nil {
		return err
	}

	var (
		overrides, enablements int64
		blocked                error
	)
	err := s.uow.Execute(ctx,
		repository.Step{Name: "lock-tenant", Run: func(ctx context.Context, q repository.Querier) error {
			return s.tenants.LockTx(ctx, q, id)
		}},
		repository.Step{Name: "check-active-users", Run: func(ctx context.Context, q repository.Querier) error {
			active, err := s.users.CountActiveByTenantTx(ctx, q, id)
			if err != nil {
				return err
			}
			if active > 0 {
				blocked = domain.BadRequest(domain.SubsystemTenants,
					"cannot delete a tenant with %d active user(s); delete the users first", active)
				return blocked
			}
			return nil
		}},
		repository.Step{Name: "reset-overrides", Run: func(ctx context.Context, q repository.Querier) error {
			n, err := s.overrides.RetireByTenantTx(ctx, q, id)
			overrides = n
			return err
		}},
		repository.Step{Name: "retire-enablements", Run: func(ctx context.Context, q repository.Querier) error {
			n, err := s.enablements.RetireByTenantTx(ctx, q, id)
			enablements = n
			return err
		}},
		repository.Step{Name: "retire-tenant", Run: func(ctx context.Context, q repository.Querier) error {
			return s.tenants.SoftDeleteTx(ctx, q, id)
		}},
	)
	if blocked != nil {
		return blocked
	}
	if err != nil {
		return err
	}

	if err := s.invalidator.InvalidateTenant(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate permission cache", "tenant_id", id, "error", err)
	}
	s.logger.Info("tenant deleted",
		"tenant_id", id,
		"enablements_retired", enablements,
		"overrides_reset", overrides,
	)
	return nil
}

// Restore brings back a soft-deleted tenant. Its enablements stay retired.
func (s *Service) Restore(ctx context.Context, actx *authz.ActionContext, id uuid.UUID) (*domain.Tenant, error) {
	if err := s.requireMaster(actx, "restore"); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !tenant.IsDeleted() {
		return nil, domain.BadRequest(domain.SubsystemTenants, "tenant is not deleted")
	}

	if tenant.Email != nil {
		taken, err := s.tenants.EmailTaken(ctx, *tenant.Email, tenant.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domain.ErrTenantEmailInUse
		}
	}

	if err := s.tenants.Restore(ctx, id); err != nil {
		return nil, err
	}
	tenant.DeletedAt = nil

	s.logger.Info("tenant restored", "tenant_id", id)
	return tenant, nil
}

func (s *Service) checkUnique(ctx context.Context, tenant *domain.Tenant) error {
	taken, err := s.tenants.SlugTaken(ctx, tenant.Slug, tenant.ID)
	if err != nil {
		return err
	}
	if taken {
		return domain.Conflict(domain.SubsystemTenants, "tenant with slug %q already exists", tenant.Slug)
	}

	if tenant.Email != nil {
		taken, err := s.tenants.EmailTaken(ctx, *tenant.Email, tenant.ID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrTenantEmailInUse
		}
	}
	return nil
}

func (s *Service) requireMaster(actx *authz.ActionContext, action string) error {
	if actx == nil {
		return domain.ErrMissingPrincipal
	}
	if actx.IsMaster() {
		return nil
	}
	s.logger.Warn("tenant administration denied",
		"subsystem", domain.SubsystemTenants,
		"action", action,
		"user_id", actx.Principal.ID,
		"role", actx.Role(),
	)
	return domain.Forbidden(domain.SubsystemTenants, "only MASTER may %s tenants", action)
}

func (s *Service) validateEmail(email *string) (*string, error) {
	if email == nil || strings.TrimSpace(*email) == "" {
		return nil, nil
	}
	normalized, err := s.validator.Email(*email)
	if err != nil {
		return nil, err
	}
	return &normalized, nil
}

func validateName(name string) (string, error) {
	name = auth.SanitizeName(name)
	n := utf8.RuneCountInString(name)
	if n < nameMinLength || n > nameMaxLength {
		return "", domain.BadRequest(domain.SubsystemTenants,
			"name must be between %d and %d characters", nameMinLength, nameMaxLength)
	}
	return name, nil
}

func validateSlug(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if len(slug) < slugMinLength || len(slug) > slugMaxLength {
		return "", domain.BadRequest(domain.SubsystemTenants,
			"slug must be between %d and %d characters", slugMinLength, slugMaxLength)
	}
	if !slugPattern.MatchString(slug) {
		return "", domain.ErrInvalidSlug
	}
	return slug, nil
}

func validatePhone(phone *string) (*string, error) {
	p := trimmed(phone)
	if p == nil {
		return nil, nil
	}
	if len(*p) < phoneMinLength || len(*p) > phoneMaxLength {
		return nil, domain.BadRequest(domain.SubsystemTenants,
			"phone must be between %d and %d characters", phoneMinLength, phoneMaxLength)
	}
	return p, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
