package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

func TestSplitTask_PendingIntoCategories(t *testing.T) {
	f := newFixture(t)
	original := f.createPending(t)
	ctx := context.Background()

	resp, err := f.svc.SplitTask(ctx, managerSession(), SplitTaskRequest{
		TaskID:     original.TaskID,
		Categories: []string{"CURTAIN", "WALLPAPER"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MeasureTaskStatusCancelled, resp.Original.Status)
	assert.Contains(t, resp.Original.Remark, "拆分为 2 个子任务")
	require.Len(t, resp.Tasks, 2)

	numbers := map[string]bool{original.MeasureNo: true}
	for i, child := range resp.Tasks {
		assert.Equal(t, domain.MeasureTaskStatusPending, child.Status)
		assert.Equal(t, original.TaskID, child.ParentID)
		assert.Equal(t, original.LeadID, child.LeadID)
		assert.Equal(t, original.CustomerID, child.CustomerID)
		assert.Equal(t, original.Type, child.Type)
		assert.Equal(t, original.IsFeeExempt, child.IsFeeExempt)
		assert.Equal(t, 1, child.Round)
		assert.Equal(t, "A", child.Variant)
		assert.False(t, numbers[child.MeasureNo], "measure number reused")
		numbers[child.MeasureNo] = true

		sheets, err := f.svc.ListSheets(ctx, adminSession(), child.TaskID)
		require.NoError(t, err)
		require.Len(t, sheets, 1)
		assert.Equal(t, domain.MeasureSheetStatusDraft, sheets[0].Status)

		records, err := f.svc.ListSplitRecords(ctx, adminSession(), child.TaskID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []string{"CURTAIN", "WALLPAPER"}[i], records[0].Category)
	}

	records, err := f.svc.ListSplitRecords(ctx, adminSession(), original.TaskID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	children, total, err := f.store.ListTasks(ctx, tenantA, &repository.TaskFilters{ParentID: original.TaskID}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, children, 2)
}

func TestSplitTask_PendingApprovalChildrenKeepWaiting(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.CreateTask(context.Background(), salesSession(), CreateTaskRequest{CustomerID: customerStd, IsFeeExempt: true})
	require.NoError(t, err)

	resp, err := f.svc.SplitTask(context.Background(), adminSession(), SplitTaskRequest{
		TaskID:     created.Task.TaskID,
		Categories: []string{"CURTAIN", "BLIND"},
	})
	require.NoError(t, err)
	for _, child := range resp.Tasks {
		assert.Equal(t, domain.MeasureTaskStatusPendingApproval, child.Status)
		assert.Equal(t, domain.FeeCheckStatusPending, child.FeeCheckStatus)
		assert.Equal(t, created.ApprovalID, child.FeeApprovalID)
	}
}

func TestSplitTask_Validation(t *testing.T) {
	f := newFixture(t)
	task := f.createPending(t)
	ctx := context.Background()

	cases := [][]string{
		{"CURTAIN"},
		{"CURTAIN", "CURTAIN"},
		{"CURTAIN", " "},
		nil,
	}
	for _, c := range cases {
		_, err := f.svc.SplitTask(ctx, adminSession(), SplitTaskRequest{TaskID: task.TaskID, Categories: c})
		assert.Equal(t, domain.KindValidation, domain.KindOf(err), "categories %v", c)
	}
	assert.Equal(t, domain.MeasureTaskStatusPending, f.task(t, task.TaskID).Status)

	_, err := f.svc.SplitTask(ctx, salesSession(), SplitTaskRequest{TaskID: task.TaskID, Categories: []string{"A", "B"}})
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestSplitTask_CancelledTask(t *testing.T) {
	f := newFixture(t)
	task := f.createPending(t)
	ctx := context.Background()

	_, err := f.svc.SplitTask(ctx, adminSession(), SplitTaskRequest{TaskID: task.TaskID, Categories: []string{"CURTAIN", "WALLPAPER"}})
	require.NoError(t, err)
	count := f.store.TaskCount(tenantA)

	_, err = f.svc.SplitTask(ctx, adminSession(), SplitTaskRequest{TaskID: task.TaskID, Categories: []string{"CURTAIN", "WALLPAPER"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	assert.Equal(t, count, f.store.TaskCount(tenantA))
}

func TestCreateNewVersion_Variant(t *testing.T) {
	f := newFixture(t)
	task := f.createPending(t)
	ctx := context.Background()

	v1, err := f.svc.CreateNewVersion(ctx, managerSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: VersionModeVariant})
	require.NoError(t, err)
	assert.Equal(t, "B", v1.Task.Variant)
	assert.Equal(t, 1, v1.Task.Round)
	assert.Equal(t, "B", v1.Sheet.Variant)
	assert.Equal(t, domain.MeasureSheetStatusDraft, v1.Sheet.Status)

	v2, err := f.svc.CreateNewVersion(ctx, managerSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: VersionModeVariant})
	require.NoError(t, err)
	assert.Equal(t, "C", v2.Task.Variant)
	assert.Equal(t, "R1-C", v2.Task.VersionDisplay())
}

func TestCreateNewVersion_Round(t *testing.T) {
	f := newFixture(t)
	task := f.advanceTo(t, domain.MeasureTaskStatusPendingConfirm)
	ctx := context.Background()

	_, err := f.svc.CreateNewVersion(ctx, managerSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: VersionModeVariant})
	require.NoError(t, err)

	resp, err := f.svc.CreateNewVersion(ctx, managerSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: VersionModeRound})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Task.Round)
	assert.Equal(t, "A", resp.Task.Variant)
	assert.Equal(t, domain.MeasureTaskStatusPendingConfirm, resp.Task.Status)
	assert.Equal(t, 2, resp.Sheet.Round)
}

func TestCreateNewVersion_VariantOverflowLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	task := f.createPending(t)
	ctx := context.Background()

	stored := f.task(t, task.TaskID)
	stored.Variant = "Z"
	f.store.PutTask(stored)
	sheetsBefore, err := f.svc.ListSheets(ctx, adminSession(), task.TaskID)
	require.NoError(t, err)
	logsBefore, err := f.svc.ListAuditLogs(ctx, adminSession(), task.TaskID)
	require.NoError(t, err)

	_, err = f.svc.CreateNewVersion(ctx, managerSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: VersionModeVariant})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVariantOverflow))

	after := f.task(t, task.TaskID)
	assert.Equal(t, "Z", after.Variant)
	assert.Equal(t, 1, after.Round)
	sheetsAfter, err := f.svc.ListSheets(ctx, adminSession(), task.TaskID)
	require.NoError(t, err)
	assert.Len(t, sheetsAfter, len(sheetsBefore))
	logsAfter, err := f.svc.ListAuditLogs(ctx, adminSession(), task.TaskID)
	require.NoError(t, err)
	assert.Len(t, logsAfter, len(logsBefore))
}

func TestCreateNewVersion_Validation(t *testing.T) {
	f := newFixture(t)
	task := f.createPending(t)

	_, err := f.svc.CreateNewVersion(context.Background(), managerSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: "SIDEWAYS"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.svc.CreateNewVersion(context.Background(), salesSession(), CreateNewVersionRequest{TaskID: task.TaskID, Mode: VersionModeRound})
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestHandleFeeApprovalResult(t *testing.T) {
	ctx := context.Background()

	t.Run("approved task becomes dispatchable", func(t *testing.T) {
		f := newFixture(t)
		created, err := f.svc.CreateTask(ctx, salesSession(), CreateTaskRequest{CustomerID: customerStd, IsFeeExempt: true})
		require.NoError(t, err)

		task, err := f.svc.HandleFeeApprovalResult(ctx, adminSession(), FeeApprovalResultRequest{
			TaskID:     created.Task.TaskID,
			ApprovalID: created.ApprovalID,
			Approved:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.MeasureTaskStatusPending, task.Status)
		assert.Equal(t, domain.FeeCheckStatusApproved, task.FeeCheckStatus)

		dispatched, err := f.svc.DispatchTask(ctx, managerSession(), DispatchTaskRequest{TaskID: task.TaskID, WorkerID: workerID})
		require.NoError(t, err)
		assert.Equal(t, domain.MeasureTaskStatusDispatching, dispatched.Status)
	})

	t.Run("rejected task is cancelled", func(t *testing.T) {
		f := newFixture(t)
		created, err := f.svc.CreateTask(ctx, salesSession(), CreateTaskRequest{CustomerID: customerStd, IsFeeExempt: true})
		require.NoError(t, err)

		task, err := f.svc.HandleFeeApprovalResult(ctx, adminSession(), FeeApprovalResultRequest{
			TaskID:  created.Task.TaskID,
			Comment: "不符合免费条件",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.MeasureTaskStatusCancelled, task.Status)
		assert.Equal(t, domain.FeeCheckStatusRejected, task.FeeCheckStatus)
		assert.Contains(t, task.Remark, "不符合免费条件")
	})

	t.Run("approval id mismatch", func(t *testing.T) {
		f := newFixture(t)
		created, err := f.svc.CreateTask(ctx, salesSession(), CreateTaskRequest{CustomerID: customerStd, IsFeeExempt: true})
		require.NoError(t, err)

		_, err = f.svc.HandleFeeApprovalResult(ctx, adminSession(), FeeApprovalResultRequest{
			TaskID: created.Task.TaskID, ApprovalID: "other", Approved: true,
		})
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("only pending approval tasks", func(t *testing.T) {
		f := newFixture(t)
		task := f.createPending(t)

		_, err := f.svc.HandleFeeApprovalResult(ctx, adminSession(), FeeApprovalResultRequest{TaskID: task.TaskID, Approved: true})
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	})
}
