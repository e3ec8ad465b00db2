package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

const tenantColumns = `id, name, slug, email, phone, address, created_at, updated_at, deleted_at`

const (
	tenantsSlugKey        = "tenants_slug_key"
	tenantsEmailActiveKey = "tenants_email_active_key"
)

// TenantsRepository handles tenant data persistence.
type TenantsRepository struct {
	db *sql.DB
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db *sql.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

// Create creates a new tenant.
func (r *TenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, slug, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.Email,
		tenant.Phone,
		tenant.Address,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	return mapTenantWriteError(err)
}

// GetByID retrieves a tenant by ID.
func (r *TenantsRepository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves a tenant by slug.
func (r *TenantsRepository) GetBySlug(ctx context.Context, slug string, includeDeleted bool) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanTenant(r.db.QueryRowContext(ctx, query, slug))
}

// FirstLive returns the oldest live tenant.
func (r *TenantsRepository) FirstLive(ctx context.Context) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE deleted_at IS NULL ORDER BY created_at ASC, id ASC LIMIT 1`
	return scanTenant(r.db.QueryRowContext(ctx, query))
}

// List returns one page of live tenants, newest first.
func (r *TenantsRepository) List(ctx context.Context, page domain.PageRequest) ([]*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, page.Limit, page.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// Count returns the number of live tenants.
func (r *TenantsRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants WHERE deleted_at IS NULL`).Scan(&count)
	return count, err
}

// SlugTaken reports whether any tenant other than excludeID, live or
// deleted, uses slug. Slugs are never reused.
func (r *TenantsRepository) SlugTaken(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE slug = $1 AND id <> $2)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, slug, excludeID).Scan(&exists)
	return exists, err
}

// EmailTaken reports whether a live tenant other than excludeID uses email.
func (r *TenantsRepository) EmailTaken(ctx context.Context, email string, excludeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE email = $1 AND id <> $2 AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email, excludeID).Scan(&exists)
	return exists, err
}

// Update updates a live tenant.
func (r *TenantsRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, slug = $3, email = $4, phone = $5, address = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.Email,
		tenant.Phone,
		tenant.Address,
	)
	if err != nil {
		return mapTenantWriteError(err)
	}
	return rowsAffected(result, domain.ErrTenantNotFound)
}

// LockTx locks a live tenant row for the rest of the unit of work.
func (r *TenantsRepository) LockTx(ctx context.Context, q Querier, id uuid.UUID) error {
	var locked uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT id FROM tenants WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrTenantNotFound
	}
	return err
}

// SoftDeleteTx soft deletes a tenant within a unit of work.
func (r *TenantsRepository) SoftDeleteTx(ctx context.Context, q Querier, id uuid.UUID) error {
	query := `
		UPDATE tenants
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrTenantNotFound)
}

// Restore clears a tenant's deletion marker.
func (r *TenantsRepository) Restore(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tenants
		SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return mapTenantWriteError(err)
	}
	return rowsAffected(result, domain.ErrTenantNotFound)
}

func mapTenantWriteError(err error) error {
	switch {
	case isUniqueViolation(err, tenantsSlugKey):
		return domain.ErrSlugTaken
	case isUniqueViolation(err, tenantsEmailActiveKey):
		return domain.ErrTenantEmailInUse
	}
	return err
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.Email,
		&tenant.Phone,
		&tenant.Address,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
		&tenant.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
