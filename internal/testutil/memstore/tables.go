package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"github.com/tendant/simple-saas-admin/pkg/repository"
)

// Tenants mirrors repository.TenantsRepository.
type Tenants struct{ s *Store }

func (t *Tenants) Create(_ context.Context, tenant *domain.Tenant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.tenants {
		if existing.Slug == tenant.Slug {
			return domain.ErrSlugTaken
		}
		if tenant.Email != nil && existing.Email != nil && *existing.Email == *tenant.Email && existing.DeletedAt == nil {
			return domain.ErrTenantEmailInUse
		}
	}
	t.s.tenants[tenant.ID] = *tenant
	return nil
}

func (t *Tenants) GetByID(_ context.Context, id uuid.UUID, includeDeleted bool) (*domain.Tenant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tenant, ok := t.s.tenants[id]
	if !ok || (!includeDeleted && tenant.DeletedAt != nil) {
		return nil, domain.ErrTenantNotFound
	}
	return &tenant, nil
}

func (t *Tenants) GetBySlug(_ context.Context, slug string, includeDeleted bool) (*domain.Tenant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, tenant := range t.s.tenants {
		if tenant.Slug == slug && (includeDeleted || tenant.DeletedAt == nil) {
			return &tenant, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func (t *Tenants) FirstLive(_ context.Context) (*domain.Tenant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var first *domain.Tenant
	for _, tenant := range t.s.tenants {
		if tenant.DeletedAt != nil {
			continue
		}
		if first == nil || createdBefore(tenant.CreatedAt, tenant.ID, first.CreatedAt, first.ID) {
			tenant := tenant
			first = &tenant
		}
	}
	if first == nil {
		return nil, domain.ErrTenantNotFound
	}
	return first, nil
}

func (t *Tenants) live() []*domain.Tenant {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var rows []*domain.Tenant
	for _, tenant := range t.s.tenants {
		if tenant.DeletedAt == nil {
			tenant := tenant
			rows = append(rows, &tenant)
		}
	}
	sortNewestFirst(rows, func(t *domain.Tenant) (time.Time, uuid.UUID) { return t.CreatedAt, t.ID })
	return rows
}

func (t *Tenants) List(_ context.Context, page domain.PageRequest) ([]*domain.Tenant, error) {
	return paginate(t.live(), page), nil
}

func (t *Tenants) Count(_ context.Context) (int, error) {
	return len(t.live()), nil
}

func (t *Tenants) SlugTaken(_ context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, tenant := range t.s.tenants {
		if id != excludeID && tenant.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tenants) EmailTaken(_ context.Context, email string, excludeID uuid.UUID) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, tenant := range t.s.tenants {
		if id != excludeID && tenant.DeletedAt == nil && tenant.Email != nil && *tenant.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tenants) Update(_ context.Context, tenant *domain.Tenant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	existing, ok := t.s.tenants[tenant.ID]
	if !ok || existing.DeletedAt != nil {
		return domain.ErrTenantNotFound
	}
	for id, other := range t.s.tenants {
		if id == tenant.ID {
			continue
		}
		if other.Slug == tenant.Slug {
			return domain.ErrSlugTaken
		}
		if tenant.Email != nil && other.Email != nil && *other.Email == *tenant.Email && other.DeletedAt == nil {
			return domain.ErrTenantEmailInUse
		}
	}
	existing.Name, existing.Slug = tenant.Name, tenant.Slug
	existing.Email, existing.Phone, existing.Address = tenant.Email, tenant.Phone, tenant.Address
	existing.UpdatedAt = t.s.Now()
	t.s.tenants[tenant.ID] = existing
	return nil
}

func (t *Tenants) LockTx(_ context.Context, _ repository.Querier, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tenant, ok := t.s.tenants[id]
	if !ok || tenant.DeletedAt != nil {
		return domain.ErrTenantNotFound
	}
	return nil
}

func (t *Tenants) SoftDeleteTx(_ context.Context, _ repository.Querier, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tenant, ok := t.s.tenants[id]
	if !ok || tenant.DeletedAt != nil {
		return domain.ErrTenantNotFound
	}
	tenant.DeletedAt = t.s.now()
	t.s.tenants[id] = tenant
	return nil
}

func (t *Tenants) Restore(_ context.Context, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tenant, ok := t.s.tenants[id]
	if !ok || tenant.DeletedAt == nil {
		return domain.ErrTenantNotFound
	}
	if tenant.Email != nil {
		for otherID, other := range t.s.tenants {
			if otherID != id && other.DeletedAt == nil && other.Email != nil && *other.Email == *tenant.Email {
				return domain.ErrTenantEmailInUse
			}
		}
	}
	tenant.DeletedAt = nil
	t.s.tenants[id] = tenant
	return nil
}

// Users mirrors repository.UsersRepository.
type Users struct{ s *Store }

func (u *Users) emailTakenLocked(email string, excludeID uuid.UUID) bool {
	for id, user := range u.s.users {
		if id != excludeID && user.DeletedAt == nil && user.Email == email {
			return true
		}
	}
	return false
}

func (u *Users) Create(_ context.Context, user *domain.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.emailTakenLocked(user.Email, user.ID) {
		return domain.ErrEmailInUse
	}
	if user.TenantID != nil {
		tenant, ok := u.s.tenants[*user.TenantID]
		if !ok || tenant.DeletedAt != nil {
			return domain.ErrTenantNotFound
		}
	}
	u.s.users[user.ID] = *user
	return nil
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID, includeDeleted bool) (*domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok || (!includeDeleted && user.DeletedAt != nil) {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.Email == email && user.DeletedAt == nil {
			return &user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (u *Users) EmailInUse(_ context.Context, email string, excludeID uuid.UUID) (bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return u.emailTakenLocked(email, excludeID), nil
}

func (u *Users) matching(filter domain.UserFilter) []*domain.User {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var rows []*domain.User
	for _, user := range u.s.users {
		if !filter.IncludeDeleted && user.DeletedAt != nil {
			continue
		}
		if filter.TenantID != nil && !user.InTenant(*filter.TenantID) {
			continue
		}
		if filter.UserID != nil && user.ID != *filter.UserID {
			continue
		}
		if filter.ExcludeMasters && user.Role.IsMaster() {
			continue
		}
		user := user
		rows = append(rows, &user)
	}
	sortNewestFirst(rows, func(u *domain.User) (time.Time, uuid.UUID) { return u.CreatedAt, u.ID })
	return rows
}

func (u *Users) List(_ context.Context, filter domain.UserFilter, page domain.PageRequest) ([]*domain.User, error) {
	return paginate(u.matching(filter), page), nil
}

func (u *Users) Count(_ context.Context, filter domain.UserFilter) (int, error) {
	return len(u.matching(filter)), nil
}

func (u *Users) CountActiveByTenantTx(_ context.Context, _ repository.Querier, tenantID uuid.UUID) (int, error) {
	return len(u.matching(domain.UserFilter{TenantID: &tenantID})), nil
}

func (u *Users) ExistsByRole(_ context.Context, role domain.Role) (bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.Role == role && user.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (u *Users) Update(_ context.Context, user *domain.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	existing, ok := u.s.users[user.ID]
	if !ok || existing.DeletedAt != nil {
		return domain.ErrUserNotFound
	}
	if u.emailTakenLocked(user.Email, user.ID) {
		return domain.ErrEmailInUse
	}
	existing.Email, existing.PasswordHash, existing.Name, existing.Role = user.Email, user.PasswordHash, user.Name, user.Role
	existing.UpdatedAt = u.s.Now()
	u.s.users[user.ID] = existing
	return nil
}

func (u *Users) SoftDelete(_ context.Context, id uuid.UUID) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok || user.DeletedAt != nil {
		return domain.ErrUserNotFound
	}
	user.DeletedAt = u.s.now()
	u.s.users[id] = user
	return nil
}

func (u *Users) Restore(_ context.Context, id uuid.UUID) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok || user.DeletedAt == nil {
		return domain.ErrDeletedUserNotFound
	}
	if u.emailTakenLocked(user.Email, id) {
		return domain.ErrEmailInUse
	}
	user.DeletedAt = nil
	u.s.users[id] = user
	return nil
}

// Modules mirrors repository.ModulesRepository.
type Modules struct{ s *Store }

func (m *Modules) ListActive(_ context.Context) ([]*domain.Module, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var rows []*domain.Module
	for _, module := range m.s.modules {
		if module.IsActive {
			module := module
			rows = append(rows, &module)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DisplayOrder < rows[j].DisplayOrder })
	return rows, nil
}

func (m *Modules) GetByID(_ context.Context, id uuid.UUID) (*domain.Module, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	module, ok := m.s.modules[id]
	if !ok {
		return nil, domain.ErrModuleNotFound
	}
	return &module, nil
}

func (m *Modules) GetByType(_ context.Context, moduleType domain.ModuleType) (*domain.Module, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, module := range m.s.modules {
		if module.Type == moduleType {
			return &module, nil
		}
	}
	return nil, domain.ErrModuleNotFound
}

func (m *Modules) Upsert(_ context.Context, module *domain.Module) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, existing := range m.s.modules {
		if existing.Type == module.Type {
			updated := *module
			updated.ID, updated.CreatedAt = id, existing.CreatedAt
			m.s.modules[id] = updated
			return nil
		}
	}
	m.s.modules[module.ID] = *module
	return nil
}

// Enablements mirrors repository.EnablementsRepository.
type Enablements struct{ s *Store }

func (e *Enablements) Create(_ context.Context, en *domain.ModuleEnablement) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for _, existing := range e.s.enablements {
		if existing.TenantID == en.TenantID && existing.ModuleID == en.ModuleID {
			return domain.ErrEnablementExists
		}
	}
	e.s.enablements[en.ID] = *en
	return nil
}

func (e *Enablements) GetByID(_ context.Context, id uuid.UUID, includeDeleted bool) (*domain.ModuleEnablement, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	en, ok := e.s.enablements[id]
	if !ok || (!includeDeleted && en.DeletedAt != nil) {
		return nil, domain.ErrEnablementNotFound
	}
	return &en, nil
}

func (e *Enablements) GetByTenantAndModule(_ context.Context, tenantID, moduleID uuid.UUID, includeDeleted bool) (*domain.ModuleEnablement, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for _, en := range e.s.enablements {
		if en.TenantID == tenantID && en.ModuleID == moduleID && (includeDeleted || en.DeletedAt == nil) {
			return &en, nil
		}
	}
	return nil, domain.ErrEnablementNotFound
}

func (e *Enablements) liveByTypeLocked(tenantID uuid.UUID, moduleType domain.ModuleType) (domain.ModuleEnablement, bool) {
	for _, en := range e.s.enablements {
		if en.TenantID != tenantID || en.DeletedAt != nil || !en.Enabled {
			continue
		}
		if module, ok := e.s.modules[en.ModuleID]; ok && module.Type == moduleType {
			return en, true
		}
	}
	return domain.ModuleEnablement{}, false
}

func (e *Enablements) GetLiveByType(_ context.Context, tenantID uuid.UUID, moduleType domain.ModuleType) (*domain.ModuleEnablement, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	en, ok := e.liveByTypeLocked(tenantID, moduleType)
	if !ok {
		return nil, domain.ErrEnablementNotFound
	}
	return &en, nil
}

func (e *Enablements) Save(_ context.Context, en *domain.ModuleEnablement) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	existing, ok := e.s.enablements[en.ID]
	if !ok {
		return domain.ErrEnablementNotFound
	}
	existing.Enabled, existing.DefaultLevel, existing.DeletedAt = en.Enabled, en.DefaultLevel, en.DeletedAt
	existing.UpdatedAt = e.s.Now()
	e.s.enablements[en.ID] = existing
	return nil
}

func (e *Enablements) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.TenantModule, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var rows []*domain.TenantModule
	for _, en := range e.s.enablements {
		if en.TenantID != tenantID || en.DeletedAt != nil {
			continue
		}
		rows = append(rows, &domain.TenantModule{ModuleEnablement: en, Module: e.s.modules[en.ModuleID]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Module.DisplayOrder < rows[j].Module.DisplayOrder })
	return rows, nil
}

func (e *Enablements) LookupGrant(_ context.Context, tenantID, userID uuid.UUID, moduleType domain.ModuleType) (*domain.Grant, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.GrantLookups++
	en, ok := e.liveByTypeLocked(tenantID, moduleType)
	if !ok {
		return nil, domain.ErrEnablementNotFound
	}
	grant := &domain.Grant{EnablementID: en.ID, DefaultLevel: en.DefaultLevel}
	for _, o := range e.s.overrides {
		if o.EnablementID == en.ID && o.UserID == userID && o.DeletedAt == nil {
			level := o.Level
			grant.OverrideLevel = &level
		}
	}
	return grant, nil
}

func (e *Enablements) RetireTx(_ context.Context, _ repository.Querier, id uuid.UUID) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	en, ok := e.s.enablements[id]
	if !ok || en.DeletedAt != nil {
		return domain.ErrEnablementNotFound
	}
	en.Enabled, en.DeletedAt = false, e.s.now()
	e.s.enablements[id] = en
	return nil
}

func (e *Enablements) RetireByTenantTx(_ context.Context, _ repository.Querier, tenantID uuid.UUID) (int64, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var n int64
	for id, en := range e.s.enablements {
		if en.TenantID == tenantID && en.DeletedAt == nil {
			en.Enabled, en.DeletedAt = false, e.s.now()
			e.s.enablements[id] = en
			n++
		}
	}
	return n, nil
}

// Overrides mirrors repository.OverridesRepository.
type Overrides struct{ s *Store }

func (o *Overrides) Create(_ context.Context, ov *domain.PermissionOverride) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for _, existing := range o.s.overrides {
		if existing.UserID == ov.UserID && existing.EnablementID == ov.EnablementID {
			return domain.ErrOverrideExists
		}
	}
	o.s.overrides[ov.ID] = *ov
	return nil
}

func (o *Overrides) GetByID(_ context.Context, id uuid.UUID, includeDeleted bool) (*domain.PermissionOverride, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	ov, ok := o.s.overrides[id]
	if !ok || (!includeDeleted && ov.DeletedAt != nil) {
		return nil, domain.ErrOverrideNotFound
	}
	return &ov, nil
}

func (o *Overrides) GetByUserAndEnablement(_ context.Context, userID, enablementID uuid.UUID, includeDeleted bool) (*domain.PermissionOverride, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for _, ov := range o.s.overrides {
		if ov.UserID == userID && ov.EnablementID == enablementID && (includeDeleted || ov.DeletedAt == nil) {
			return &ov, nil
		}
	}
	return nil, domain.ErrOverrideNotFound
}

func (o *Overrides) Save(_ context.Context, ov *domain.PermissionOverride) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	existing, ok := o.s.overrides[ov.ID]
	if !ok {
		return domain.ErrOverrideNotFound
	}
	existing.Level, existing.DeletedAt = ov.Level, ov.DeletedAt
	existing.UpdatedAt = o.s.Now()
	o.s.overrides[ov.ID] = existing
	return nil
}

func (o *Overrides) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.UserPermission, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var rows []*domain.UserPermission
	for _, ov := range o.s.overrides {
		if ov.UserID != userID || ov.DeletedAt != nil {
			continue
		}
		en, ok := o.s.enablements[ov.EnablementID]
		if !ok || en.DeletedAt != nil {
			continue
		}
		module := o.s.modules[en.ModuleID]
		rows = append(rows, &domain.UserPermission{
			PermissionOverride: ov,
			TenantID:           en.TenantID,
			ModuleID:           module.ID,
			ModuleType:         module.Type,
			ModuleName:         module.Name,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return o.s.modules[rows[i].ModuleID].DisplayOrder < o.s.modules[rows[j].ModuleID].DisplayOrder
	})
	return rows, nil
}

func (o *Overrides) Retire(_ context.Context, id uuid.UUID) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	ov, ok := o.s.overrides[id]
	if !ok || ov.DeletedAt != nil {
		return domain.ErrOverrideNotFound
	}
	ov.Level, ov.DeletedAt = domain.LevelNone, o.s.now()
	o.s.overrides[id] = ov
	return nil
}

func (o *Overrides) retireWhereLocked(match func(domain.PermissionOverride) bool) int64 {
	var n int64
	for id, ov := range o.s.overrides {
		if ov.DeletedAt == nil && match(ov) {
			ov.Level, ov.DeletedAt = domain.LevelNone, o.s.now()
			o.s.overrides[id] = ov
			n++
		}
	}
	return n
}

func (o *Overrides) RetireByEnablementTx(_ context.Context, _ repository.Querier, enablementID uuid.UUID) (int64, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.retireWhereLocked(func(ov domain.PermissionOverride) bool {
		return ov.EnablementID == enablementID
	}), nil
}

func (o *Overrides) RetireByTenantTx(_ context.Context, _ repository.Querier, tenantID uuid.UUID) (int64, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.retireWhereLocked(func(ov domain.PermissionOverride) bool {
		en, ok := o.s.enablements[ov.EnablementID]
		return ok && en.TenantID == tenantID
	}), nil
}

// RefreshTokens mirrors repository.RefreshTokensRepository.
type RefreshTokens struct{ s *Store }

func (r *RefreshTokens) Create(_ context.Context, token *domain.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token.ID] = *token
	return nil
}

func (r *RefreshTokens) GetByTokenHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, token := range r.s.tokens {
		if token.TokenHash == tokenHash {
			return &token, nil
		}
	}
	return nil, domain.ErrRefreshTokenNotFound
}

func (r *RefreshTokens) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, id)
	return nil
}

func (r *RefreshTokens) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, token := range r.s.tokens {
		if token.TokenHash == tokenHash {
			delete(r.s.tokens, id)
		}
	}
	return nil
}

func (r *RefreshTokens) DeleteByUserID(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, token := range r.s.tokens {
		if token.UserID == userID {
			delete(r.s.tokens, id)
		}
	}
	return nil
}

func (r *RefreshTokens) DeleteExpired(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.Now()
	var n int64
	for id, token := range r.s.tokens {
		if token.IsExpired(now) {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (r *RefreshTokens) Len() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.tokens)
}
