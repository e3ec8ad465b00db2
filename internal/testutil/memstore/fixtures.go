package memstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// fixtureEpoch anchors seeded rows so creation order is deterministic.
var fixtureEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (s *Store) nextCreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tenants) + len(s.users) + len(s.modules) + len(s.enablements) + len(s.overrides)
	return fixtureEpoch.Add(time.Duration(n) * time.Minute)
}

// SeedTenant inserts a live tenant.
func (s *Store) SeedTenant(name string) *domain.Tenant {
	at := s.nextCreatedAt()
	tenant := domain.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		CreatedAt: at,
		UpdatedAt: at,
	}
	s.mu.Lock()
	s.tenants[tenant.ID] = tenant
	s.mu.Unlock()
	return &tenant
}

// SeedUser inserts a live user. tenant may be nil for MASTER.
func (s *Store) SeedUser(email string, role domain.Role, tenant *domain.Tenant) *domain.User {
	at := s.nextCreatedAt()
	user := domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "unused",
		Name:         strings.Split(email, "@")[0],
		Role:         role,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if tenant != nil {
		id := tenant.ID
		user.TenantID = &id
	}
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()
	return &user
}

// SetPasswordHash replaces a seeded user's hash.
func (s *Store) SetPasswordHash(userID uuid.UUID, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.PasswordHash = hash
	s.users[userID] = user
}

// SoftDeleteUser marks a seeded user deleted.
func (s *Store) SoftDeleteUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.DeletedAt = s.now()
	s.users[userID] = user
}

// SeedCatalog inserts one active module per type in catalog order.
func (s *Store) SeedCatalog() map[domain.ModuleType]*domain.Module {
	out := make(map[domain.ModuleType]*domain.Module, len(domain.ModuleTypes))
	for i, t := range domain.ModuleTypes {
		at := s.nextCreatedAt()
		module := domain.Module{
			ID:           uuid.New(),
			Type:         t,
			Name:         displayName(t),
			Slug:         strings.ReplaceAll(strings.ToLower(string(t)), "_", "-"),
			DisplayOrder: i + 1,
			IsActive:     true,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		s.mu.Lock()
		s.modules[module.ID] = module
		s.mu.Unlock()
		out[t] = &module
	}
	return out
}

// SeedEnablement inserts a live, enabled enablement.
func (s *Store) SeedEnablement(tenant *domain.Tenant, module *domain.Module, level domain.PermissionLevel) *domain.ModuleEnablement {
	at := s.nextCreatedAt()
	en := domain.ModuleEnablement{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		ModuleID:     module.ID,
		Enabled:      true,
		DefaultLevel: level,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	s.mu.Lock()
	s.enablements[en.ID] = en
	s.mu.Unlock()
	return &en
}

// SeedOverride inserts a live override.
func (s *Store) SeedOverride(user *domain.User, en *domain.ModuleEnablement, level domain.PermissionLevel) *domain.PermissionOverride {
	at := s.nextCreatedAt()
	ov := domain.PermissionOverride{
		ID:           uuid.New(),
		UserID:       user.ID,
		EnablementID: en.ID,
		Level:        level,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	s.mu.Lock()
	s.overrides[ov.ID] = ov
	s.mu.Unlock()
	return &ov
}

func displayName(t domain.ModuleType) string {
	words := strings.Split(strings.ToLower(string(t)), "_")
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
