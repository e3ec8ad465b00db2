package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

var userRowColumns = []string{"id", "email", "password_hash", "name", "role", "tenant_id", "created_at", "updated_at", "deleted_at"}


func TestUsersRepository_GetByID_Live(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	id := uuid.New()
	tenantID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1 AND deleted_at IS NULL`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(id.String(), "ana@acme.test", "hash", "Ana", "CLIENT", tenantID.String(), now, now, nil))

	user, err := repo.GetByID(context.Background(), id, false)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, domain.RoleClient, user.Role)
	require.NotNil(t, user.TenantID)
	assert.Equal(t, tenantID, *user.TenantID)
	assert.Nil(t, user.DeletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_GetByID_IncludeDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE id = \$1$`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(id.String(), "root@example.test", "hash", "Root", "MASTER", nil, now, now, now))

	user, err := repo.GetByID(context.Background(), id, true)
	require.NoError(t, err)
	assert.Nil(t, user.TenantID)
	assert.True(t, user.IsDeleted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	mock.ExpectQuery("FROM users").WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err = repo.GetByID(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUsersRepository_Create_DuplicateActiveEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_active_key"})

	now := time.Now()
	err = repo.Create(context.Background(), &domain.User{
		ID: uuid.New(), Email: "dup@acme.test", Role: domain.RoleMaster, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, domain.ErrEmailInUse)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUsersRepository_Create_DeletedTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	now := time.Now()
	user := &domain.User{
		ID: uuid.New(), Email: "late@acme.test", Role: domain.RoleClient, TenantID: &tenantID, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO users .* WHERE \$6::uuid IS NULL\s+OR EXISTS \(SELECT 1 FROM tenants WHERE id = \$6::uuid AND deleted_at IS NULL FOR KEY SHARE\)`).
		WithArgs(user.ID, user.Email, "", "", "CLIENT", &tenantID, now, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewUsersRepository(db).Create(context.Background(), user)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_CountActiveByTenantTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND deleted_at IS NULL`)).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := NewUsersRepository(db).CountActiveByTenantTx(context.Background(), db, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_List_TenantFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	tenantID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE deleted_at IS NULL AND tenant_id = $1 AND role <> 'MASTER' ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`)).
		WithArgs(tenantID, 10, 10).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(uuid.NewString(), "a@acme.test", "h", "A", "MANAGER", tenantID.String(), now, now, nil).
			AddRow(uuid.NewString(), "b@acme.test", "h", "B", "CLIENT", tenantID.String(), now, now, nil))

	users, err := repo.List(context.Background(), domain.UserFilter{TenantID: &tenantID, ExcludeMasters: true}, domain.PageRequest{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_Count_SelfFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	tenantID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND tenant_id = $1 AND id = $2`)).
		WithArgs(tenantID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.Count(context.Background(), domain.UserFilter{TenantID: &tenantID, UserID: &userID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepository_SoftDelete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUsersRepository(db)
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SoftDelete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUsersRepository_Restore(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "restored",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("deleted_at IS NOT NULL").WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "not deleted",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("deleted_at IS NOT NULL").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrDeletedUserNotFound,
		},
		{
			name: "email taken by active user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("deleted_at IS NOT NULL").
					WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_active_key"})
			},
			wantErr: domain.ErrEmailInUse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setup(mock)
			err = NewUsersRepository(db).Restore(context.Background(), uuid.New())
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
