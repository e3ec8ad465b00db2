package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// DecisionKey identifies one cached resolution.
type DecisionKey struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Module   domain.ModuleType
}

// Decision is the cached outcome of resolving a principal's level on a module.
type Decision struct {
	Enabled bool                   `json:"enabled"`
	Level   domain.PermissionLevel `json:"level"`
}

// DecisionCache memoizes decisions per tenant generation. Invalidating a
// tenant bumps its generation so every earlier entry becomes unreachable.
// Get returns the generation it observed; Set must be given that same
// generation so a decision computed before an invalidation is never stored
// under the generation that follows it.
type DecisionCache interface {
	Get(ctx context.Context, key DecisionKey) (d Decision, generation uint64, ok bool, err error)
	Set(ctx context.Context, key DecisionKey, generation uint64, d Decision) error
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// Invalidator drops cached decisions for a tenant after a mutation.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// NopInvalidator is used when no cache is configured.
type NopInvalidator struct{}

// InvalidateTenant does nothing.
func (NopInvalidator) InvalidateTenant(context.Context, uuid.UUID) error { return nil }

// MemoryCache is an in-process DecisionCache backed by an expirable LRU.
type MemoryCache struct {
	mu          sync.Mutex
	generations map[uuid.UUID]uint64
	entries     *expirable.LRU[string, Decision]
}

// NewMemoryCache creates a cache holding up to size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		generations: make(map[uuid.UUID]uint64),
		entries:     expirable.NewLRU[string, Decision](size, nil, ttl),
	}
}

// Get implements DecisionCache.
func (c *MemoryCache) Get(_ context.Context, key DecisionKey) (Decision, uint64, bool, error) {
	c.mu.Lock()
	gen := c.generations[key.TenantID]
	c.mu.Unlock()

	d, ok := c.entries.Get(entryKey(key, gen))
	return d, gen, ok, nil
}

// Set implements DecisionCache.
func (c *MemoryCache) Set(_ context.Context, key DecisionKey, generation uint64, d Decision) error {
	c.entries.Add(entryKey(key, generation), d)
	return nil
}

// InvalidateTenant implements DecisionCache.
func (c *MemoryCache) InvalidateTenant(_ context.Context, tenantID uuid.UUID) error {
	c.mu.Lock()
	c.generations[tenantID]++
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries, including unreachable ones.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

func entryKey(key DecisionKey, generation uint64) string {
	return fmt.Sprintf("%s:%d:%s:%s", key.TenantID, generation, key.UserID, key.Module)
}
