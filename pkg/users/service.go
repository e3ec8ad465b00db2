// Package users enforces which principals may create, read, update, delete
// and restore which other principals.
package users

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/auth"
	"github.com/tendant/simple-saas-admin/pkg/authz"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// UserStore persists principals.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.User, error)
	EmailInUse(ctx context.Context, email string, excludeID uuid.UUID) (bool, error)
	List(ctx context.Context, filter domain.UserFilter, page domain.PageRequest) ([]*domain.User, error)
	Count(ctx context.Context, filter domain.UserFilter) (int, error)
	Update(ctx context.Context, user *domain.User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
}

// TenantStore looks up tenants for assignment.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.Tenant, error)
	FirstLive(ctx context.Context) (*domain.Tenant, error)
}

// TokenRevoker drops a user's refresh tokens.
type TokenRevoker interface {
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Users       UserStore
	Tenants     TenantStore
	Tokens      TokenRevoker
	Validator   *auth.Validator
	Invalidator authz.Invalidator
	Logger      *slog.Logger
}

// Service is the user lifecycle authority.
type Service struct {
	users       UserStore
	tenants     TenantStore
	tokens      TokenRevoker
	validator   *auth.Validator
	invalidator authz.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new user service.
func NewService(deps Deps) *Service {
	if deps.Invalidator == nil {
		deps.Invalidator = authz.NopInvalidator{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		users:       deps.Users,
		tenants:     deps.Tenants,
		tokens:      deps.Tokens,
		validator:   deps.Validator,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// CreateInput describes a new principal.
type CreateInput struct {
	Email    string
	Password string
	Name     string
	Role     domain.Role
	TenantID *uuid.UUID
}

// UpdateInput changes a principal. Nil fields are left alone.
type UpdateInput struct {
	Email    *string
	Password *string
	Name     *string
	Role     *domain.Role
}

// Create adds a principal on behalf of actx.
func (s *Service) Create(ctx context.Context, actx *authz.ActionContext, in CreateInput) (*domain.User, error) {
	if actx == nil {
		return nil, domain.ErrMissingPrincipal
	}
	if !in.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if !domain.CanCreate(actx.Role(), in.Role) {
		return nil, s.forbid(actx, "create", uuid.Nil, "%s may not create %s users", actx.Role(), in.Role)
	}

	email, err := s.validator.Email(in.Email)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Password(in.Password); err != nil {
		return nil, err
	}
	name, err := s.validator.Name("name", in.Name)
	if err != nil {
		return nil, err
	}

	tenantID, err := s.assignTenant(ctx, actx, in)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.EmailInUse(ctx, email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrEmailInUse
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         in.Role,
		TenantID:     tenantID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.Role, "tenant_id", user.TenantID, "by", actx.Principal.ID)
	return user, nil
}

// assignTenant picks the tenant a new principal is bound to.
func (s *Service) assignTenant(ctx context.Context, actx *authz.ActionContext, in CreateInput) (*uuid.UUID, error) {
	if !actx.IsMaster() {
		own := *actx.TenantFilter
		if in.TenantID != nil && *in.TenantID != own {
			return nil, s.forbid(actx, "create", uuid.Nil, "you may only create users in your own tenant")
		}
		return &own, nil
	}

	if in.Role.IsMaster() {
		first, err := s.tenants.FirstLive(ctx)
		if errors.Is(err, domain.ErrTenantNotFound) {
			return nil, domain.ErrNoTenantAvailable
		}
		if err != nil {
			return nil, err
		}
		return &first.ID, nil
	}

	if in.TenantID == nil {
		return nil, domain.ErrTenantRequired
	}
	tenant, err := s.tenants.GetByID(ctx, *in.TenantID, false)
	if err != nil {
		return nil, err
	}
	return &tenant.ID, nil
}

// List returns the principals visible to actx. The visibility rule is
// applied as a query filter; MASTER rows are only listed for MASTER.
func (s *Service) List(ctx context.Context, actx *authz.ActionContext, page domain.PageRequest) (domain.Page[*domain.User], error) {
	if actx == nil {
		return domain.Page[*domain.User]{}, domain.ErrMissingPrincipal
	}

	filter := domain.UserFilter{TenantID: actx.TenantFilter, ExcludeMasters: !actx.IsMaster()}
	if actx.Role() == domain.RoleClient {
		id := actx.Principal.ID
		filter.UserID = &id
	}

	var (
		rows  []*domain.User
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.users.List(gctx, filter, page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.users.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Page[*domain.User]{}, err
	}

	return domain.NewPage(rows, total, page), nil
}

// Get returns one visible principal.
func (s *Service) Get(ctx context.Context, actx *authz.ActionContext, id uuid.UUID) (*domain.User, error) {
	if actx == nil {
		return nil, domain.ErrMissingPrincipal
	}
	user, err := s.users.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(actx, "read", user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update applies in to a visible principal.
func (s *Service) Update(ctx context.Context, actx *authz.ActionContext, id uuid.UUID, in UpdateInput) (*domain.User, error) {
	user, err := s.Get(ctx, actx, id)
	if err != nil {
		return nil, err
	}

	roleChanged := false
	if in.Role != nil && *in.Role != user.Role {
		if !in.Role.Valid() {
			return nil, domain.ErrInvalidRole
		}
		if !domain.CanChangeRole(actx.Role(), user.Role, *in.Role) {
			return nil, s.forbid(actx, "change-role", user.ID,
				"%s may not change a %s user to %s", actx.Role(), user.Role, *in.Role)
		}
		if user.TenantID == nil && !in.Role.IsMaster() {
			return nil, domain.ErrTenantRequired
		}
		user.Role = *in.Role
		roleChanged = true
	}

	if in.Email != nil {
		email, err := s.validator.Email(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			taken, err := s.users.EmailInUse(ctx, email, user.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, domain.ErrEmailInUse
			}
			user.Email = email
		}
	}

	if in.Name != nil {
		name, err := s.validator.Name("name", *in.Name)
		if err != nil {
			return nil, err
		}
		user.Name = name
	}

	if in.Password != nil {
		if err := s.validator.Password(*in.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if roleChanged && user.TenantID != nil {
		s.invalidate(ctx, *user.TenantID)
	}
	s.logger.Info("user updated", "user_id", user.ID, "by", actx.Principal.ID, "role_changed", roleChanged)
	return user, nil
}

// Delete soft-deletes a principal and revokes its refresh tokens.
func (s *Service) Delete(ctx context.Context, actx *authz.ActionContext, id uuid.UUID) error {
	if actx == nil {
		return domain.ErrMissingPrincipal
	}
	if actx.Principal.ID == id {
		return domain.ErrSelfDeletion
	}

	user, err := s.Get(ctx, actx, id)
	if err != nil {
		return err
	}
	if !domain.CanDelete(actx.Role(), user.Role) {
		return s.forbid(actx, "delete", user.ID, "%s may not delete %s users", actx.Role(), user.Role)
	}

	if err := s.users.SoftDelete(ctx, user.ID); err != nil {
		return err
	}
	if s.tokens != nil {
		if err := s.tokens.DeleteByUserID(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke refresh tokens", "user_id", user.ID, "error", err)
		}
	}
	if user.TenantID != nil {
		s.invalidate(ctx, *user.TenantID)
	}

	s.logger.Info("user deleted", "user_id", user.ID, "by", actx.Principal.ID)
	return nil
}

var errRestoreEmailInUse = domain.BadRequest(domain.SubsystemUserLifecycle,
	"email is already in use by an active user; the user cannot be restored")

// Restore brings a soft-deleted principal back if its email is still free.
func (s *Service) Restore(ctx context.Context, actx *authz.ActionContext, id uuid.UUID) (*domain.User, error) {
	if actx == nil {
		return nil, domain.ErrMissingPrincipal
	}
	if !domain.CanRestore(actx.Role()) {
		return nil, s.forbid(actx, "restore", id, "%s may not restore users", actx.Role())
	}

	user, err := s.users.GetByID(ctx, id, true)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrDeletedUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.IsDeleted() {
		return nil, domain.ErrDeletedUserNotFound
	}
	if user.Role.IsMaster() && !actx.IsMaster() {
		return nil, s.forbid(actx, "restore", user.ID, "only MASTER may restore MASTER users")
	}
	if !actx.CanSeeUser(user.TenantID) {
		return nil, s.forbid(actx, "restore", user.ID, "you may only restore users of your own tenant")
	}

	taken, err := s.users.EmailInUse(ctx, user.Email, user.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errRestoreEmailInUse
	}

	if err := s.users.Restore(ctx, user.ID); err != nil {
		if errors.Is(err, domain.ErrEmailInUse) {
			return nil, errRestoreEmailInUse
		}
		return nil, err
	}
	user.DeletedAt = nil

	if user.TenantID != nil {
		s.invalidate(ctx, *user.TenantID)
	}
	s.logger.Info("user restored", "user_id", user.ID, "by", actx.Principal.ID)
	return user, nil
}

// checkVisible applies the read rule: MASTER sees everyone, ADMIN and
// MANAGER their own tenant, CLIENT only itself. A MASTER's tenant id does
// not scope it, so only MASTER sees MASTER.
func (s *Service) checkVisible(actx *authz.ActionContext, action string, user *domain.User) error {
	if actx.IsMaster() {
		return nil
	}
	if user.Role.IsMaster() {
		return s.forbid(actx, action, user.ID, "only MASTER may access MASTER users")
	}
	switch actx.Role() {
	case domain.RoleAdmin, domain.RoleManager:
		if actx.CanSeeUser(user.TenantID) {
			return nil
		}
		return s.forbid(actx, action, user.ID, "you may only access users of your own tenant")
	default:
		if actx.Principal.ID == user.ID {
			return nil
		}
		return s.forbid(actx, action, user.ID, "you may only access your own profile")
	}
}

func (s *Service) forbid(actx *authz.ActionContext, action string, target uuid.UUID, format string, args ...any) error {
	s.logger.Warn("user administration denied",
		"subsystem", domain.SubsystemUserLifecycle,
		"action", action,
		"user_id", actx.Principal.ID,
		"role", actx.Role(),
		"target_user_id", target,
	)
	return domain.Forbidden(domain.SubsystemUserLifecycle, format, args...)
}

func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.invalidator.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.Warn("failed to invalidate permission cache", "tenant_id", tenantID, "error", err)
	}
}
