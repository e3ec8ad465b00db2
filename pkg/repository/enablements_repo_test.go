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

func TestEnablementsRepository_LookupGrant(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	enablementID := uuid.New()

	t.Run("default only", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN permission_overrides")).
			WithArgs(tenantID, userID, "SALES").
			WillReturnRows(sqlmock.NewRows([]string{"id", "default_level", "level"}).
				AddRow(enablementID.String(), "READ", nil))

		grant, err := NewEnablementsRepository(db).LookupGrant(context.Background(), tenantID, userID, domain.ModuleSales)
		require.NoError(t, err)
		assert.Equal(t, enablementID, grant.EnablementID)
		assert.Nil(t, grant.OverrideLevel)
		assert.Equal(t, domain.LevelRead, grant.Effective())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("override wins", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("LEFT JOIN permission_overrides").
			WillReturnRows(sqlmock.NewRows([]string{"id", "default_level", "level"}).
				AddRow(enablementID.String(), "READ", "NONE"))

		grant, err := NewEnablementsRepository(db).LookupGrant(context.Background(), tenantID, userID, domain.ModuleSales)
		require.NoError(t, err)
		require.NotNil(t, grant.OverrideLevel)
		assert.Equal(t, domain.LevelNone, grant.Effective())
	})

	t.Run("not enabled", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("LEFT JOIN permission_overrides").
			WillReturnRows(sqlmock.NewRows([]string{"id", "default_level", "level"}))

		_, err = NewEnablementsRepository(db).LookupGrant(context.Background(), tenantID, userID, domain.ModuleSales)
		assert.ErrorIs(t, err, domain.ErrEnablementNotFound)
	})
}

func TestEnablementsRepository_Create_Race(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO module_enablements").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "module_enablements_tenant_module_key"})

	now := time.Now()
	err = NewEnablementsRepository(db).Create(context.Background(), &domain.ModuleEnablement{
		ID: uuid.New(), TenantID: uuid.New(), ModuleID: uuid.New(),
		Enabled: true, DefaultLevel: domain.LevelNone, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, domain.ErrEnablementExists)
}

func TestEnablementsRepository_Create_OtherUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pqErr := &pq.Error{Code: "23505", Constraint: "module_enablements_pkey"}
	mock.ExpectExec("INSERT INTO module_enablements").WillReturnError(pqErr)

	err = NewEnablementsRepository(db).Create(context.Background(), &domain.ModuleEnablement{ID: uuid.New()})
	assert.ErrorIs(t, err, pqErr)
	assert.NotErrorIs(t, err, domain.ErrEnablementExists)
}

func TestEnablementsRepository_GetByTenantAndModule_IncludeDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID, moduleID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM module_enablements WHERE tenant_id = \$1 AND module_id = \$2$`).
		WithArgs(tenantID, moduleID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "module_id", "enabled", "default_level", "created_at", "updated_at", "deleted_at"}).
			AddRow(uuid.NewString(), tenantID.String(), moduleID.String(), false, "WRITE", now, now, now))

	e, err := NewEnablementsRepository(db).GetByTenantAndModule(context.Background(), tenantID, moduleID, true)
	require.NoError(t, err)
	assert.False(t, e.IsLive())
	assert.Equal(t, domain.LevelWrite, e.DefaultLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnablementsRepository_RetireByTenantTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("WHERE tenant_id = $1 AND deleted_at IS NULL")).
		WithArgs(tenantID).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewEnablementsRepository(db).RetireByTenantTx(context.Background(), db, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
