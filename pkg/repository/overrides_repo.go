package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

const overrideColumns = `id, user_id, enablement_id, level, created_at, updated_at, deleted_at`

const overridesUserEnablementKey = "permission_overrides_user_enablement_key"

// OverridesRepository handles per-user permission overrides.
type OverridesRepository struct {
	db *sql.DB
}

// NewOverridesRepository creates a new overrides repository.
func NewOverridesRepository(db *sql.DB) *OverridesRepository {
	return &OverridesRepository{db: db}
}

// Create inserts a new override. A concurrent insert for the same
// (user, enablement) pair surfaces as domain.ErrOverrideExists.
func (r *OverridesRepository) Create(ctx context.Context, o *domain.PermissionOverride) error {
	query := `
		INSERT INTO permission_overrides (id, user_id, enablement_id, level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.UserID, o.EnablementID, string(o.Level), o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err, overridesUserEnablementKey) {
		return domain.ErrOverrideExists
	}
	return err
}

// GetByID retrieves an override by ID.
func (r *OverridesRepository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.PermissionOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM permission_overrides WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanOverride(r.db.QueryRowContext(ctx, query, id))
}

// GetByUserAndEnablement retrieves the override for a (user, enablement) pair.
func (r *OverridesRepository) GetByUserAndEnablement(ctx context.Context, userID, enablementID uuid.UUID, includeDeleted bool) (*domain.PermissionOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM permission_overrides WHERE user_id = $1 AND enablement_id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanOverride(r.db.QueryRowContext(ctx, query, userID, enablementID))
}

// Save overwrites the level and the deletion marker.
func (r *OverridesRepository) Save(ctx context.Context, o *domain.PermissionOverride) error {
	query := `
		UPDATE permission_overrides
		SET level = $2, deleted_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, o.ID, string(o.Level), o.DeletedAt)
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrOverrideNotFound)
}

// ListByUser returns a user's live overrides on live enablements, joined
// with the module they grant, ordered by display order.
func (r *OverridesRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserPermission, error) {
	query := `
		SELECT o.id, o.user_id, o.enablement_id, o.level, o.created_at, o.updated_at, o.deleted_at,
		       e.tenant_id, m.id, m.type, m.name
		FROM permission_overrides o
		JOIN module_enablements e ON e.id = o.enablement_id
		JOIN modules m ON m.id = e.module_id
		WHERE o.user_id = $1 AND o.deleted_at IS NULL AND e.deleted_at IS NULL
		ORDER BY m.display_order ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.UserPermission
	for rows.Next() {
		p := &domain.UserPermission{}
		var level, moduleType string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.EnablementID, &level, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
			&p.TenantID, &p.ModuleID, &moduleType, &p.ModuleName,
		); err != nil {
			return nil, err
		}
		p.Level = domain.PermissionLevel(level)
		p.ModuleType = domain.ModuleType(moduleType)
		result = append(result, p)
	}
	return result, rows.Err()
}

// Retire soft-deletes a live override and resets it to NONE.
func (r *OverridesRepository) Retire(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE permission_overrides
		SET level = 'NONE', deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrOverrideNotFound)
}

// RetireByEnablementTx resets to NONE and soft-deletes every live override
// rooted at an enablement.
func (r *OverridesRepository) RetireByEnablementTx(ctx context.Context, q Querier, enablementID uuid.UUID) (int64, error) {
	query := `
		UPDATE permission_overrides
		SET level = 'NONE', deleted_at = NOW(), updated_at = NOW()
		WHERE enablement_id = $1 AND deleted_at IS NULL
	`
	result, err := q.ExecContext(ctx, query, enablementID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RetireByTenantTx resets to NONE and soft-deletes every live override
// rooted at any enablement of a tenant.
func (r *OverridesRepository) RetireByTenantTx(ctx context.Context, q Querier, tenantID uuid.UUID) (int64, error) {
	query := `
		UPDATE permission_overrides
		SET level = 'NONE', deleted_at = NOW(), updated_at = NOW()
		WHERE deleted_at IS NULL
		  AND enablement_id IN (SELECT id FROM module_enablements WHERE tenant_id = $1)
	`
	result, err := q.ExecContext(ctx, query, tenantID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanOverride(row rowScanner) (*domain.PermissionOverride, error) {
	o := &domain.PermissionOverride{}
	var level string
	err := row.Scan(&o.ID, &o.UserID, &o.EnablementID, &level, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOverrideNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Level = domain.PermissionLevel(level)
	return o, nil
}
