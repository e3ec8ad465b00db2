package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

const userColumns = `id, email, password_hash, name, role, tenant_id, created_at, updated_at, deleted_at`

// usersEmailActiveIndex is the partial unique index on active emails.
const usersEmailActiveIndex = "users_email_active_key"

// UsersRepository handles user persistence.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// Create creates a new user. A user bound to a tenant is only inserted
// while that tenant is live; the key-share lock waits out a concurrent
// tenant deletion and then sees its result.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, tenant_id, created_at, updated_at)
		SELECT $1::uuid, $2, $3, $4, $5, $6::uuid, $7::timestamptz, $8::timestamptz
		WHERE $6::uuid IS NULL
		   OR EXISTS (SELECT 1 FROM tenants WHERE id = $6::uuid AND deleted_at IS NULL FOR KEY SHARE)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, string(user.Role), user.TenantID,
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err, usersEmailActiveIndex) {
		return domain.ErrEmailInUse
	}
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrTenantNotFound)
}

// GetByID retrieves a user by ID. Soft-deleted users are only returned
// when includeDeleted is set.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an active user by email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// EmailInUse reports whether an active user other than excludeID holds email.
// Pass uuid.Nil to check against every active user.
func (r *UsersRepository) EmailInUse(ctx context.Context, email string, excludeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND id <> $2 AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email, excludeID).Scan(&exists)
	return exists, err
}

// List returns one page of users matching filter, newest first.
func (r *UsersRepository) List(ctx context.Context, filter domain.UserFilter, page domain.PageRequest) ([]*domain.User, error) {
	where, args := userWhere(filter)
	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Count returns the number of users matching filter.
func (r *UsersRepository) Count(ctx context.Context, filter domain.UserFilter) (int, error) {
	where, args := userWhere(filter)
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&count)
	return count, err
}

// CountActiveByTenantTx returns the number of live users in a tenant
// within a unit of work.
func (r *UsersRepository) CountActiveByTenantTx(ctx context.Context, q Querier, tenantID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND deleted_at IS NULL`
	var count int
	err := q.QueryRowContext(ctx, query, tenantID).Scan(&count)
	return count, err
}

// ExistsByRole reports whether any active user holds role.
func (r *UsersRepository) ExistsByRole(ctx context.Context, role domain.Role) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1 AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, string(role)).Scan(&exists)
	return exists, err
}

// Update updates a live user's mutable fields.
func (r *UsersRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, name = $4, role = $5, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, string(user.Role),
	)
	if isUniqueViolation(err, usersEmailActiveIndex) {
		return domain.ErrEmailInUse
	}
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrUserNotFound)
}

// SoftDelete soft-deletes a user.
func (r *UsersRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrUserNotFound)
}

// Restore clears the deletion marker. The partial unique index rejects the
// restore when another active user already holds the email.
func (r *UsersRepository) Restore(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if isUniqueViolation(err, usersEmailActiveIndex) {
		return domain.ErrEmailInUse
	}
	if err != nil {
		return err
	}
	return rowsAffected(result, domain.ErrDeletedUserNotFound)
}

func userWhere(filter domain.UserFilter) (string, []any) {
	var conds []string
	var args []any
	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.ExcludeMasters {
		conds = append(conds, "role <> 'MASTER'")
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var role string
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &role, &user.TenantID,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return user, nil
}
