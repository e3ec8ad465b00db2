package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

const enablementColumns = `id, tenant_id, module_id, enabled, default_level, created_at, updated_at, deleted_at`

const enablementsTenantModuleKey = "module_enablements_tenant_module_key"

// EnablementsRepository handles per-tenant module enablement records.
type EnablementsRepository struct {
	db *sql.DB
}

// NewEnablementsRepository creates a new enablements repository.
func NewEnablementsRepository(db *sql.DB) *EnablementsRepository {
	return &EnablementsRepository{db: db}
}

// Create inserts a new enablement. A concurrent insert for the same
// (tenant, module) pair surfaces as domain.ErrEnablementExists.
func (r *EnablementsRepository) Create(ctx context.Context, e *domain.ModuleEnablement) error {
	query := `
		INSERT INTO module_enablements (id, tenant_id, module_id, enabled, default_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.ModuleID, e.Enabled, string(e.DefaultLevel), e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err, enablementsTenantModuleKey) {
		return domain.ErrEnablementExists
	}
	return err
}

// GetByID retrieves an enablement by ID.
func (r *EnablementsRepository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.ModuleEnablement, error) {
	query := `SELECT ` + enablementColumns + ` FROM module_enablements WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanEnablement(r.db.QueryRowContext(ctx, query, id))
}

// GetByTenantAndModule retrieves the enablement for a (tenant, module) pair.
func (r *EnablementsRepository) GetByTenantAndModule(ctx context.Context, tenantID, moduleID uuid.UUID, includeDeleted bool) (*domain.ModuleEnablement, error) {
	query := `SELECT ` + enablementColumns + ` FROM module_enablements WHERE tenant_id = $1 AND module_id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanEnablement(r.db.QueryRowContext(ctx, query, tenantID, moduleID))
}

// GetLiveByType retrieves a tenant's live, enabled enablement for a module type.
func (r *EnablementsRepository) GetLiveByType(ctx context.Context, tenantID uuid.UUID, moduleType domain.ModuleType) (*domain.ModuleEnablement, error) {
	query := `
		SELECT e.id, e.tenant_id, e.module_id, e.enabled, e.default_level, e.created_at, e.updated_at, e.deleted_at
		FROM module_enablements e
		JOIN modules m ON m.id = e.module_id
		WHERE e.tenant_id = $1 AND m.type = $2 AND e.deleted_at IS NULL AND e.enabled = TRUE
	`
	return scanEnablement(r.db.QueryRowContext(ctx, query, tenantID, string(moduleType)))
}

// Save overwrites enabled, default level and the deletion marker. It is
// used both to update live rows and to restore soft-deleted ones.
func (r *EnablementsRepository) Save(ctx context.Context, e *domain.ModuleEnablement) error {
	query := `
		UPDATE module_enablements
		SET enabled = $2, default_level = $3, deleted_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, e.ID, e.Enabled, string(e.DefaultLevel), e.DeletedAt)
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrEnablementNotFound)
}

// ListByTenant returns a tenant's live enablements joined with their catalog
// entries, ordered by display order.
func (r *EnablementsRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantModule, error) {
	query := `
		SELECT e.id, e.tenant_id, e.module_id, e.enabled, e.default_level, e.created_at, e.updated_at, e.deleted_at,
		       m.id, m.type, m.name, m.slug, m.description, m.icon, m.display_order, m.is_active, m.created_at, m.updated_at
		FROM module_enablements e
		JOIN modules m ON m.id = e.module_id
		WHERE e.tenant_id = $1 AND e.deleted_at IS NULL
		ORDER BY m.display_order ASC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.TenantModule
	for rows.Next() {
		tm := &domain.TenantModule{}
		var level, moduleType string
		if err := rows.Scan(
			&tm.ID, &tm.TenantID, &tm.ModuleID, &tm.Enabled, &level, &tm.CreatedAt, &tm.UpdatedAt, &tm.DeletedAt,
			&tm.Module.ID, &moduleType, &tm.Module.Name, &tm.Module.Slug, &tm.Module.Description, &tm.Module.Icon,
			&tm.Module.DisplayOrder, &tm.Module.IsActive, &tm.Module.CreatedAt, &tm.Module.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tm.DefaultLevel = domain.PermissionLevel(level)
		tm.Module.Type = domain.ModuleType(moduleType)
		result = append(result, tm)
	}
	return result, rows.Err()
}

// LookupGrant reads a tenant's live enablement for moduleType together with
// the user's live override in one statement, so a concurrent disable is
// observed either entirely or not at all.
func (r *EnablementsRepository) LookupGrant(ctx context.Context, tenantID, userID uuid.UUID, moduleType domain.ModuleType) (*domain.Grant, error) {
	query := `
		SELECT e.id, e.default_level, o.level
		FROM module_enablements e
		JOIN modules m ON m.id = e.module_id
		LEFT JOIN permission_overrides o
		       ON o.enablement_id = e.id AND o.user_id = $2 AND o.deleted_at IS NULL
		WHERE e.tenant_id = $1 AND m.type = $3 AND e.deleted_at IS NULL AND e.enabled = TRUE
	`
	var (
		grant    domain.Grant
		def      string
		override sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, tenantID, userID, string(moduleType)).Scan(&grant.EnablementID, &def, &override)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEnablementNotFound
	}
	if err != nil {
		return nil, err
	}
	grant.DefaultLevel = domain.PermissionLevel(def)
	if override.Valid {
		level := domain.PermissionLevel(override.String)
		grant.OverrideLevel = &level
	}
	return &grant, nil
}

// RetireTx soft-deletes a live enablement and clears its enabled flag.
func (r *EnablementsRepository) RetireTx(ctx context.Context, q Querier, id uuid.UUID) error {
	query := `
		UPDATE module_enablements
		SET enabled = FALSE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrEnablementNotFound)
}

// RetireByTenantTx soft-deletes every live enablement of a tenant.
func (r *EnablementsRepository) RetireByTenantTx(ctx context.Context, q Querier, tenantID uuid.UUID) (int64, error) {
	query := `
		UPDATE module_enablements
		SET enabled = FALSE, deleted_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`
	result, err := q.ExecContext(ctx, query, tenantID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEnablement(row rowScanner) (*domain.ModuleEnablement, error) {
	e := &domain.ModuleEnablement{}
	var level string
	err := row.Scan(&e.ID, &e.TenantID, &e.ModuleID, &e.Enabled, &level, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEnablementNotFound
	}
	if err != nil {
		return nil, err
	}
	e.DefaultLevel = domain.PermissionLevel(level)
	return e, nil
}
