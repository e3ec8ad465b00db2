package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// GrantStore reads a tenant's live enablement for a module together with a
// user's live override in a single atomic lookup.
type GrantStore interface {
	LookupGrant(ctx context.Context, tenantID, userID uuid.UUID, moduleType domain.ModuleType) (*domain.Grant, error)
}

// DecisionRecorder observes resolver outcomes.
type DecisionRecorder interface {
	RecordDecision(module domain.ModuleType, required domain.PermissionLevel, allowed bool, source string)
}

// Decision sources reported to the recorder.
const (
	SourceMaster = "master"
	SourceCache  = "cache"
	SourceStore  = "store"
)

// Requirement names a module and the minimum level needed on it.
type Requirement struct {
	Module domain.ModuleType
	Level  domain.PermissionLevel
}

// Resolver answers whether a principal holds a permission level on a module.
type Resolver struct {
	grants   GrantStore
	cache    DecisionCache
	recorder DecisionRecorder
	logger   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache memoizes decisions in c.
func WithCache(c DecisionCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithRecorder reports every decision to rec.
func WithRecorder(rec DecisionRecorder) ResolverOption {
	return func(r *Resolver) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver reading grants from store.
func NewResolver(store GrantStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{grants: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EffectiveLevel resolves the level p holds on module. enabled is false
// when the module is not enabled for p's tenant. MASTER holds ADMIN
// everywhere and is resolved without touching the store.
func (r *Resolver) EffectiveLevel(ctx context.Context, p *domain.Principal, module domain.ModuleType) (level domain.PermissionLevel, enabled bool, err error) {
	d, _, err := r.decide(ctx, p, module)
	if err != nil {
		return "", false, err
	}
	if !d.Enabled {
		return domain.LevelNone, false, nil
	}
	return d.Level, true, nil
}

// HasPermission reports whether p satisfies required on module.
func (r *Resolver) HasPermission(ctx context.Context, p *domain.Principal, module domain.ModuleType, required domain.PermissionLevel) (bool, error) {
	if !required.Valid() {
		return false, domain.ErrInvalidLevel
	}

	d, source, err := r.decide(ctx, p, module)
	if err != nil {
		return false, err
	}

	allowed := d.Enabled && domain.Satisfies(d.Level, required)
	if r.recorder != nil {
		r.recorder.RecordDecision(module, required, allowed, source)
	}
	return allowed, nil
}

// AssertPermission is HasPermission that fails with Forbidden on deny.
func (r *Resolver) AssertPermission(ctx context.Context, p *domain.Principal, module domain.ModuleType, required domain.PermissionLevel) error {
	ok, err := r.HasPermission(ctx, p, module, required)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("module permission denied",
			"subsystem", domain.SubsystemModulePermission,
			"user_id", p.ID,
			"module", module,
			"required", required,
		)
		return domain.Forbidden(domain.SubsystemModulePermission,
			"%s permission required on module %s", required, module)
	}
	return nil
}

// Assert checks a Requirement.
func (r *Resolver) Assert(ctx context.Context, p *domain.Principal, req Requirement) error {
	return r.AssertPermission(ctx, p, req.Module, req.Level)
}

func (r *Resolver) decide(ctx context.Context, p *domain.Principal, module domain.ModuleType) (Decision, string, error) {
	if p == nil {
		return Decision{}, "", domain.ErrMissingPrincipal
	}
	if p.Role.IsMaster() {
		return Decision{Enabled: true, Level: domain.LevelAdmin}, SourceMaster, nil
	}
	if !module.Valid() {
		return Decision{}, "", domain.ErrInvalidModule
	}
	if p.TenantID == nil {
		return Decision{}, SourceStore, nil
	}

	key := DecisionKey{TenantID: *p.TenantID, UserID: p.ID, Module: module}

	var generation uint64
	cacheable := r.cache != nil
	if cacheable {
		d, gen, ok, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.logger.Warn("decision cache read failed", "error", err)
			cacheable = false
		case ok:
			return d, SourceCache, nil
		default:
			generation = gen
		}
	}

	grant, err := r.grants.LookupGrant(ctx, key.TenantID, key.UserID, module)
	var d Decision
	switch {
	case errors.Is(err, domain.ErrEnablementNotFound):
		d = Decision{}
	case err != nil:
		return Decision{}, "", err
	default:
		d = Decision{Enabled: true, Level: grant.Effective()}
	}

	if cacheable {
		if err := r.cache.Set(ctx, key, generation, d); err != nil {
			r.logger.Warn("decision cache write failed", "error", err)
		}
	}
	return d, SourceStore, nil
}
