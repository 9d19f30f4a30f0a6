package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slideboard-measure/internal/domain"
)

func newMemoryTask(tenantID, taskID, measureNo string) *domain.MeasureTask {
	now := time.Now()
	return &domain.MeasureTask{
		TaskID: taskID, TenantID: tenantID, MeasureNo: measureNo,
		Status: domain.MeasureTaskStatusPending, Round: 1, Variant: "A",
		FeeCheckStatus: domain.FeeCheckStatusNone, CreatedAt: now, UpdatedAt: now,
	}
}

func TestMemoryStore_RollbackDiscardsChanges(t *testing.T) {
	store := NewMemoryMeasureStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx MeasureTx) error {
		require.NoError(t, tx.CreateTask(ctx, newMemoryTask("t1", "k1", "M202401150001")))
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 0, store.TaskCount("t1"))

	_, err = store.GetTask(ctx, "t1", "k1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStore_CommitAndTenantIsolation(t *testing.T) {
	store := NewMemoryMeasureStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx MeasureTx) error {
		return tx.CreateTask(ctx, newMemoryTask("t1", "k1", "M202401150001"))
	})
	require.NoError(t, err)

	task, err := store.GetTask(ctx, "t1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "M202401150001", task.MeasureNo)

	_, err = store.GetTask(ctx, "t2", "k1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStore_LockLatestMeasureNo(t *testing.T) {
	store := NewMemoryMeasureStore()
	ctx := context.Background()
	store.PutTask(newMemoryTask("t1", "k1", "M202401150002"))
	store.PutTask(newMemoryTask("t1", "k2", "M202401150010"))
	store.PutTask(newMemoryTask("t1", "k3", "M202401140099"))
	store.PutTask(newMemoryTask("t2", "k4", "M202401150500"))

	err := store.RunInTx(ctx, func(tx MeasureTx) error {
		latest, err := tx.LockLatestMeasureNo(ctx, "t1", "M20240115")
		require.NoError(t, err)
		assert.Equal(t, "M202401150010", latest)

		none, err := tx.LockLatestMeasureNo(ctx, "t1", "M20240116")
		require.NoError(t, err)
		assert.Equal(t, "", none)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_DuplicateMeasureNoRejected(t *testing.T) {
	store := NewMemoryMeasureStore()
	ctx := context.Background()
	store.PutTask(newMemoryTask("t1", "k1", "M202401150001"))

	err := store.RunInTx(ctx, func(tx MeasureTx) error {
		return tx.CreateTask(ctx, newMemoryTask("t1", "k2", "M202401150001"))
	})
	assert.Error(t, err)
}

func TestMemoryStore_UpdateKeepsImmutableFields(t *testing.T) {
	store := NewMemoryMeasureStore()
	ctx := context.Background()
	store.PutTask(newMemoryTask("t1", "k1", "M202401150001"))

	err := store.RunInTx(ctx, func(tx MeasureTx) error {
		task, err := tx.GetTaskForUpdate(ctx, "t1", "k1")
		require.NoError(t, err)
		task.MeasureNo = "M209901010001"
		task.Status = domain.MeasureTaskStatusDispatching
		return tx.UpdateTask(ctx, task)
	})
	require.NoError(t, err)

	task, err := store.GetTask(ctx, "t1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "M202401150001", task.MeasureNo)
	assert.Equal(t, domain.MeasureTaskStatusDispatching, task.Status)
}

func TestMemoryStore_LatestSheetByStatus(t *testing.T) {
	store := NewMemoryMeasureStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx MeasureTx) error {
		for i, v := range []string{"A", "B"} {
			require.NoError(t, tx.CreateSheet(ctx, &domain.MeasureSheet{
				SheetID: "s" + v, TenantID: "t1", TaskID: "k1", Round: 1, Variant: v,
				Status: domain.MeasureSheetStatusSubmitted, Items: []domain.MeasureItem{{SortOrder: i}},
			}))
		}
		latest, err := tx.LatestSheetByStatus(ctx, "t1", "k1", domain.MeasureSheetStatusSubmitted)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "sB", latest.SheetID)

		none, err := tx.LatestSheetByStatus(ctx, "t1", "k1", domain.MeasureSheetStatusConfirmed)
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)

	sheets, err := store.ListSheets(ctx, "t1", "k1")
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "sB", sheets[1].Items[0].SheetID)
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()

	settings := NewMemoryTenantSettings()
	settings.Set(SystemTenantID, "measure.fee.required", "true")
	settings.Set("t1", "measure.fee.required", "false")
	v, found, err := settings.GetSetting(ctx, "t1", "measure.fee.required")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "false", v)
	v, _, _ = settings.GetSetting(ctx, "t2", "measure.fee.required")
	assert.Equal(t, "true", v)

	users := NewMemoryUsers()
	users.Add("t1", "STORE_MANAGER", "m2")
	users.Add("t1", "STORE_MANAGER", "m1")
	ids, err := users.ListActiveUserIDsByRole(ctx, "t1", "STORE_MANAGER")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	perms := NewMemoryRolePermissions()
	perms.Grant("", "sales", "measure_tasks", "dispatch")
	ok, err := perms.HasPermission(ctx, "t1", []string{"SALES"}, "measure_tasks", "dispatch")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = perms.HasPermission(ctx, "t1", []string{"WORKER"}, "measure_tasks", "dispatch")
	assert.False(t, ok)
}
