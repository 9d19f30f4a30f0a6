package repository

import (
	"context"
	"database/sql"
	"fmt"

	"slideboard-measure/internal/domain"
)

// CreateSplitRecord 写入拆单记录
func (t *postgresMeasureTx) CreateSplitRecord(ctx context.Context, record *domain.TaskSplitRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO measure_task_splits (
			id, tenant_id, original_task_id, new_task_id, category, reason, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.RecordID, record.TenantID, record.OriginalTaskID, record.NewTaskID,
		record.Category, nullString(record.Reason), nullString(record.CreatedBy), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create split record: %w", err)
	}
	return nil
}

// AppendRejection 追加驳回历史
func (t *postgresMeasureTx) AppendRejection(ctx context.Context, entry *domain.RejectionHistoryEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO measure_task_rejections (
			id, tenant_id, task_id, kind, reason, from_status, to_status,
			reject_count, rejected_by, rejected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.EntryID, entry.TenantID, entry.TaskID, string(entry.Kind), entry.Reason,
		string(entry.FromStatus), string(entry.ToStatus), entry.RejectCount,
		nullString(entry.RejectedBy), entry.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append rejection: %w", err)
	}
	return nil
}

func listRejections(ctx context.Context, q queryer, tenantID, taskID string) ([]*domain.RejectionHistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			id::text, tenant_id::text, task_id::text, kind, reason,
			from_status, to_status, reject_count, rejected_by::text, rejected_at
		FROM measure_task_rejections
		WHERE tenant_id = $1 AND task_id = $2
		ORDER BY rejected_at ASC, reject_count ASC`,
		tenantID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejections: %w", err)
	}
	defer rows.Close()

	entries := []*domain.RejectionHistoryEntry{}
	for rows.Next() {
		var e domain.RejectionHistoryEntry
		var rejectedBy sql.NullString
		if err := rows.Scan(
			&e.EntryID, &e.TenantID, &e.TaskID, &e.Kind, &e.Reason,
			&e.FromStatus, &e.ToStatus, &e.RejectCount, &rejectedBy, &e.RejectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}
		e.RejectedBy = rejectedBy.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func listSplitRecords(ctx context.Context, q queryer, tenantID, taskID string) ([]*domain.TaskSplitRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			id::text, tenant_id::text, original_task_id::text, new_task_id::text,
			category, reason, created_by::text, created_at
		FROM measure_task_splits
		WHERE tenant_id = $1 AND (original_task_id = $2 OR new_task_id = $2)
		ORDER BY created_at ASC`,
		tenantID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list split records: %w", err)
	}
	defer rows.Close()

	records := []*domain.TaskSplitRecord{}
	for rows.Next() {
		var r domain.TaskSplitRecord
		var reason, createdBy sql.NullString
		if err := rows.Scan(
			&r.RecordID, &r.TenantID, &r.OriginalTaskID, &r.NewTaskID,
			&r.Category, &reason, &createdBy, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan split record: %w", err)
		}
		r.Reason = reason.String
		r.CreatedBy = createdBy.String
		records = append(records, &r)
	}
	return records, rows.Err()
}
