package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

var moduleCols = []string{"id", "type", "name", "slug", "description", "icon", "display_order", "is_active", "created_at", "updated_at"}

func TestModulesRepository_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM modules WHERE is_active = TRUE ORDER BY display_order ASC`).
		WillReturnRows(sqlmock.NewRows(moduleCols).
			AddRow(uuid.NewString(), "FINANCIAL", "Financial", "financial", "", "dollar-sign", 2, true, now, now).
			AddRow(uuid.NewString(), "SALES", "Sales", "sales", "", "shopping-cart", 4, true, now, now))

	modules, err := NewModulesRepository(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, domain.ModuleFinancial, modules[0].Type)
	assert.Equal(t, 4, modules[1].DisplayOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModulesRepository_GetByType_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM modules WHERE type = \$1`).
		WithArgs("IMAGES").
		WillReturnRows(sqlmock.NewRows(moduleCols))

	_, err = NewModulesRepository(db).GetByType(context.Background(), domain.ModuleImages)
	assert.ErrorIs(t, err, domain.ErrModuleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModulesRepository_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	m := &domain.Module{
		ID:           uuid.New(),
		Type:         domain.ModuleReports,
		Name:         "Reports",
		Slug:         "reports",
		Icon:         "bar-chart",
		DisplayOrder: 6,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`ON CONFLICT \(type\) DO UPDATE`).
		WithArgs(m.ID, "REPORTS", "Reports", "reports", "", "bar-chart", 6, true, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewModulesRepository(db).Upsert(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}
