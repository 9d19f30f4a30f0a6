package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"slideboard-measure/internal/domain"
)

func marshalJSONMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// InsertAuditLog 写入审计记录（与业务变更同一事务）
func (t *postgresMeasureTx) InsertAuditLog(ctx context.Context, log *domain.AuditLog) error {
	changed, err := marshalJSONMap(log.ChangedFields)
	if err != nil {
		return fmt.Errorf("failed to encode changed_fields: %w", err)
	}
	newValues, err := marshalJSONMap(log.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode new_values: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, user_id, table_name, record_id, action,
			changed_fields, new_values, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.LogID, log.TenantID, nullString(log.UserID), log.TableName, log.RecordID, string(log.Action),
		changed, newValues, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// CreateApproval 写入审批单
func (t *postgresMeasureTx) CreateApproval(ctx context.Context, approval *domain.Approval) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO approvals (
			id, tenant_id, entity_type, entity_id, flow_code, comment, status, requested_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		approval.ApprovalID, approval.TenantID, approval.EntityType, approval.EntityID, approval.FlowCode,
		nullString(approval.Comment), string(approval.Status), nullString(approval.RequestedBy), approval.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

func listAuditLogs(ctx context.Context, q queryer, tenantID, tableName, recordID string) ([]*domain.AuditLog, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			id::text, tenant_id::text, user_id::text, table_name, record_id::text,
			action, changed_fields, new_values, created_at
		FROM audit_logs
		WHERE tenant_id = $1 AND table_name = $2 AND record_id = $3
		ORDER BY created_at ASC`,
		tenantID, tableName, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		var userID sql.NullString
		var changed, newValues []byte
		if err := rows.Scan(
			&l.LogID, &l.TenantID, &userID, &l.TableName, &l.RecordID,
			&l.Action, &changed, &newValues, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.UserID = userID.String
		if len(changed) > 0 {
			if err := json.Unmarshal(changed, &l.ChangedFields); err != nil {
				return nil, fmt.Errorf("failed to decode changed_fields: %w", err)
			}
		}
		if len(newValues) > 0 {
			if err := json.Unmarshal(newValues, &l.NewValues); err != nil {
				return nil, fmt.Errorf("failed to decode new_values: %w", err)
			}
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
