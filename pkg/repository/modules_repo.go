package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

const moduleColumns = `id, type, name, slug, description, icon, display_order, is_active, created_at, updated_at`

// ModulesRepository reads and seeds the global module catalog.
type ModulesRepository struct {
	db *sql.DB
}

// NewModulesRepository creates a new modules repository.
func NewModulesRepository(db *sql.DB) *ModulesRepository {
	return &ModulesRepository{db: db}
}

// ListActive returns active catalog entries ordered by display order.
func (r *ModulesRepository) ListActive(ctx context.Context) ([]*domain.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE is_active = TRUE ORDER BY display_order ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []*domain.Module
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

// GetByID retrieves a catalog entry by ID.
func (r *ModulesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = $1`
	return scanModule(r.db.QueryRowContext(ctx, query, id))
}

// GetByType retrieves a catalog entry by type tag.
func (r *ModulesRepository) GetByType(ctx context.Context, moduleType domain.ModuleType) (*domain.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE type = $1`
	return scanModule(r.db.QueryRowContext(ctx, query, string(moduleType)))
}

// Upsert inserts a catalog entry or refreshes the existing entry of the same type.
func (r *ModulesRepository) Upsert(ctx context.Context, module *domain.Module) error {
	query := `
		INSERT INTO modules (id, type, name, slug, description, icon, display_order, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (type) DO UPDATE
		SET name = EXCLUDED.name,
		    slug = EXCLUDED.slug,
		    description = EXCLUDED.description,
		    icon = EXCLUDED.icon,
		    display_order = EXCLUDED.display_order,
		    is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		module.ID, string(module.Type), module.Name, module.Slug, module.Description, module.Icon,
		module.DisplayOrder, module.IsActive, module.CreatedAt, module.UpdatedAt,
	)
	return err
}

func scanModule(row rowScanner) (*domain.Module, error) {
	module := &domain.Module{}
	var moduleType string
	err := row.Scan(
		&module.ID, &moduleType, &module.Name, &module.Slug, &module.Description, &module.Icon,
		&module.DisplayOrder, &module.IsActive, &module.CreatedAt, &module.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrModuleNotFound
	}
	if err != nil {
		return nil, err
	}
	module.Type = domain.ModuleType(moduleType)
	return module, nil
}
