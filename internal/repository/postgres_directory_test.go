package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetting_TenantOverride(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresTenantSettingsRepository(db)

	tenantID := uuid.New().String()
	mock.ExpectQuery(`FROM tenant_settings`).
		WithArgs(tenantID, "measure.fee.required", SystemTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("false"))

	v, found, err := repo.GetSetting(context.Background(), tenantID, "measure.fee.required")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "false", v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSetting_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresTenantSettingsRepository(db)

	mock.ExpectQuery(`FROM tenant_settings`).WillReturnError(sql.ErrNoRows)

	_, found, err := repo.GetSetting(context.Background(), uuid.New().String(), "measure.checkin.grace_minutes")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveUserIDsByRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresUsersRepository(db)

	tenantID := uuid.New().String()
	mock.ExpectQuery(`FROM users`).
		WithArgs(tenantID, "STORE_MANAGER").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1").AddRow("m2"))

	ids, err := repo.ListActiveUserIDsByRole(context.Background(), tenantID, "STORE_MANAGER")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPermission(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRolePermissionsRepository(db)

	tenantID := uuid.New().String()
	mock.ExpectQuery(`FROM role_permissions`).
		WithArgs(tenantID, SystemTenantID, sqlmock.AnyArg(), "measure_tasks", "dispatch").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasPermission(context.Background(), tenantID, []string{"SALES"}, "measure_tasks", "dispatch")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPermission_NoRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRolePermissionsRepository(db)

	ok, err := repo.HasPermission(context.Background(), uuid.New().String(), nil, "measure_tasks", "dispatch")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
