package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"slideboard-measure/internal/domain"
)

const measureTaskColumns = `
	id::text,
	tenant_id::text,
	measure_no,
	lead_id::text,
	customer_id::text,
	status,
	type,
	round,
	variant,
	reject_count,
	reject_reason,
	is_fee_exempt,
	fee_check_status,
	fee_approval_id::text,
	scheduled_at,
	check_in_at,
	check_in_info,
	late_minutes,
	assigned_worker_id::text,
	parent_id::text,
	remark,
	created_by::text,
	created_at,
	updated_at,
	completed_at`

func scanMeasureTask(row rowScanner) (*domain.MeasureTask, error) {
	var t domain.MeasureTask
	var rejectReason, feeApprovalID, workerID, parentID, remark, createdBy sql.NullString
	var scheduledAt, checkInAt, completedAt sql.NullTime
	var checkInInfo []byte

	err := row.Scan(
		&t.TaskID,
		&t.TenantID,
		&t.MeasureNo,
		&t.LeadID,
		&t.CustomerID,
		&t.Status,
		&t.Type,
		&t.Round,
		&t.Variant,
		&t.RejectCount,
		&rejectReason,
		&t.IsFeeExempt,
		&t.FeeCheckStatus,
		&feeApprovalID,
		&scheduledAt,
		&checkInAt,
		&checkInInfo,
		&t.LateMinutes,
		&workerID,
		&parentID,
		&remark,
		&createdBy,
		&t.CreatedAt,
		&t.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.RejectReason = rejectReason.String
	t.FeeApprovalID = feeApprovalID.String
	t.AssignedWorkerID = workerID.String
	t.ParentID = parentID.String
	t.Remark = remark.String
	t.CreatedBy = createdBy.String
	t.ScheduledAt = timePtr(scheduledAt)
	t.CheckInAt = timePtr(checkInAt)
	t.CompletedAt = timePtr(completedAt)
	if len(checkInInfo) > 0 {
		t.CheckInInfo = append([]byte(nil), checkInInfo...)
	}
	return &t, nil
}

func getMeasureTask(ctx context.Context, q queryer, tenantID, taskID string, forUpdate bool) (*domain.MeasureTask, error) {
	if tenantID == "" || taskID == "" {
		return nil, fmt.Errorf("measure task not found: %w", sql.ErrNoRows)
	}

	query := `SELECT ` + measureTaskColumns + `
		FROM measure_tasks
		WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	task, err := scanMeasureTask(q.QueryRowContext(ctx, query, tenantID, taskID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("measure task not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get measure task: %w", err)
	}
	return task, nil
}

func listMeasureTasks(ctx context.Context, q queryer, tenantID string, filters *TaskFilters, page, size int) ([]*domain.MeasureTask, int, error) {
	if tenantID == "" {
		return []*domain.MeasureTask{}, 0, nil
	}

	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argN := 2
	add := func(col, v string) {
		if v == "" {
			return
		}
		where = append(where, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, v)
		argN++
	}
	if filters != nil {
		add("status", filters.Status)
		add("assigned_worker_id", filters.AssignedWorkerID)
		add("customer_id", filters.CustomerID)
		add("lead_id", filters.LeadID)
		add("parent_id", filters.ParentID)
	}

	// 查询总数
	queryCount := `SELECT COUNT(*) FROM measure_tasks WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := q.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count measure tasks: %w", err)
	}

	page, size = normalizePage(page, size)
	offset := (page - 1) * size

	argsList := append(args, size, offset)
	query := `SELECT ` + measureTaskColumns + `
		FROM measure_tasks
		WHERE ` + strings.Join(where, " AND ") + fmt.Sprintf(`
		ORDER BY created_at DESC, measure_no DESC
		LIMIT $%d OFFSET $%d`, argN, argN+1)

	rows, err := q.QueryContext(ctx, query, argsList...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list measure tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*domain.MeasureTask{}
	for rows.Next() {
		task, err := scanMeasureTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan measure task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate measure tasks: %w", err)
	}
	return tasks, total, nil
}

// GetTaskForUpdate 读取并锁定任务行
func (t *postgresMeasureTx) GetTaskForUpdate(ctx context.Context, tenantID, taskID string) (*domain.MeasureTask, error) {
	return getMeasureTask(ctx, t.tx, tenantID, taskID, true)
}

// CreateTask 插入测量任务
func (t *postgresMeasureTx) CreateTask(ctx context.Context, task *domain.MeasureTask) error {
	if task == nil || task.TenantID == "" || task.TaskID == "" {
		return fmt.Errorf("tenant_id and task id are required")
	}

	query := `
		INSERT INTO measure_tasks (
			id, tenant_id, measure_no, lead_id, customer_id,
			status, type, round, variant, reject_count, reject_reason,
			is_fee_exempt, fee_check_status, fee_approval_id,
			scheduled_at, check_in_at, check_in_info, late_minutes,
			assigned_worker_id, parent_id, remark, created_by,
			created_at, updated_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25
		)`

	_, err := t.tx.ExecContext(ctx, query,
		task.TaskID, task.TenantID, task.MeasureNo, task.LeadID, task.CustomerID,
		string(task.Status), string(task.Type), task.Round, task.Variant, task.RejectCount, nullString(task.RejectReason),
		task.IsFeeExempt, string(task.FeeCheckStatus), nullString(task.FeeApprovalID),
		nullTime(task.ScheduledAt), nullTime(task.CheckInAt), nullJSON(task.CheckInInfo), task.LateMinutes,
		nullString(task.AssignedWorkerID), nullString(task.ParentID), nullString(task.Remark), nullString(task.CreatedBy),
		task.CreatedAt, task.UpdatedAt, nullTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create measure task: %w", err)
	}
	return nil
}

// UpdateTask 更新任务的可变字段（单号、来源、租户不可变）
func (t *postgresMeasureTx) UpdateTask(ctx context.Context, task *domain.MeasureTask) error {
	if task == nil || task.TenantID == "" || task.TaskID == "" {
		return fmt.Errorf("tenant_id and task id are required")
	}

	query := `
		UPDATE measure_tasks SET
			status = $3,
			round = $4,
			variant = $5,
			reject_count = $6,
			reject_reason = $7,
			is_fee_exempt = $8,
			fee_check_status = $9,
			fee_approval_id = $10,
			scheduled_at = $11,
			check_in_at = $12,
			check_in_info = $13,
			late_minutes = $14,
			assigned_worker_id = $15,
			remark = $16,
			completed_at = $17,
			updated_at = $18
		WHERE tenant_id = $1 AND id = $2`

	result, err := t.tx.ExecContext(ctx, query,
		task.TenantID, task.TaskID,
		string(task.Status), task.Round, task.Variant, task.RejectCount, nullString(task.RejectReason),
		task.IsFeeExempt, string(task.FeeCheckStatus), nullString(task.FeeApprovalID),
		nullTime(task.ScheduledAt), nullTime(task.CheckInAt), nullJSON(task.CheckInInfo), task.LateMinutes,
		nullString(task.AssignedWorkerID), nullString(task.Remark), nullTime(task.CompletedAt), task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update measure task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("measure task not found: %w", sql.ErrNoRows)
	}
	return nil
}
