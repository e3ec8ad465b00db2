// Package memstore is an in-memory implementation of the repository layer
// for service and handler tests. It mirrors the repositories' visibility
// rules, uniqueness constraints and error mapping.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
	"github.com/tendant/simple-saas-admin/pkg/repository"
)

// Store holds every table. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	tenants     map[uuid.UUID]domain.Tenant
	users       map[uuid.UUID]domain.User
	modules     map[uuid.UUID]domain.Module
	enablements map[uuid.UUID]domain.ModuleEnablement
	overrides   map[uuid.UUID]domain.PermissionOverride
	tokens      map[uuid.UUID]domain.RefreshToken

	failAfter map[string]error

	// GrantLookups counts LookupGrant calls.
	GrantLookups int

	// Now supplies timestamps for soft deletes.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tenants:     make(map[uuid.UUID]domain.Tenant),
		users:       make(map[uuid.UUID]domain.User),
		modules:     make(map[uuid.UUID]domain.Module),
		enablements: make(map[uuid.UUID]domain.ModuleEnablement),
		overrides:   make(map[uuid.UUID]domain.PermissionOverride),
		tokens:      make(map[uuid.UUID]domain.RefreshToken),
		failAfter:   make(map[string]error),
		Now:         time.Now,
	}
}

// FailAfterStep makes Execute return err once the named step has run, so
// tests can observe that earlier writes are rolled back.
func (s *Store) FailAfterStep(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter[name] = err
}

// Execute runs steps against the store and restores the prior state if any
// step fails.
func (s *Store) Execute(ctx context.Context, steps ...repository.Step) error {
	snap := s.snapshot()
	for _, step := range steps {
		err := step.Run(ctx, nil)
		if err == nil {
			s.mu.Lock()
			err = s.failAfter[step.Name]
			s.mu.Unlock()
		}
		if err != nil {
			s.restore(snap)
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	return nil
}

type snapshot struct {
	tenants     map[uuid.UUID]domain.Tenant
	users       map[uuid.UUID]domain.User
	enablements map[uuid.UUID]domain.ModuleEnablement
	overrides   map[uuid.UUID]domain.PermissionOverride
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		tenants:     cloneMap(s.tenants),
		users:       cloneMap(s.users),
		enablements: cloneMap(s.enablements),
		overrides:   cloneMap(s.overrides),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = snap.tenants
	s.users = snap.users
	s.enablements = snap.enablements
	s.overrides = snap.overrides
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) now() *time.Time {
	t := s.Now()
	return &t
}

// Tenants returns the tenants table.
func (s *Store) Tenants() *Tenants { return &Tenants{s} }

// Users returns the users table.
func (s *Store) Users() *Users { return &Users{s} }

// Modules returns the module catalog.
func (s *Store) Modules() *Modules { return &Modules{s} }

// Enablements returns the module enablements table.
func (s *Store) Enablements() *Enablements { return &Enablements{s} }

// Overrides returns the permission overrides table.
func (s *Store) Overrides() *Overrides { return &Overrides{s} }

// RefreshTokens returns the refresh tokens table.
func (s *Store) RefreshTokens() *RefreshTokens { return &RefreshTokens{s} }

func paginate[T any](rows []T, page domain.PageRequest) []T {
	start := page.Offset()
	if start >= len(rows) {
		return nil
	}
	end := start + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func sortNewestFirst[T any](rows []T, key func(T) (time.Time, uuid.UUID)) {
	sort.Slice(rows, func(i, j int) bool {
		ci, idi := key(rows[i])
		cj, idj := key(rows[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return bytes.Compare(idi[:], idj[:]) > 0
	})
}

// createdBefore orders rows oldest first with the id as tiebreaker.
func createdBefore(a time.Time, aid uuid.UUID, b time.Time, bid uuid.UUID) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return bytes.Compare(aid[:], bid[:]) < 0
}
