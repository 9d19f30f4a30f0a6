package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

// 审计表名
const (
	AuditTableMeasureTasks  = "measure_tasks"
	AuditTableMeasureSheets = "measure_sheets"
)

// AuditEntry 一条审计记录
type AuditEntry struct {
	TenantID      string
	UserID        string
	TableName     string
	RecordID      string
	Action        domain.AuditAction
	ChangedFields map[string]any
	NewValues     map[string]any
}

// AuditRecorder 在业务事务内写 audit_logs，写失败则整体回滚
type AuditRecorder struct {
	now func() time.Time
}

func NewAuditRecorder(now func() time.Time) *AuditRecorder {
	if now == nil {
		now = time.Now
	}
	return &AuditRecorder{now: now}
}

func (r *AuditRecorder) Record(ctx context.Context, tx repository.MeasureTx, e AuditEntry) error {
	return tx.InsertAuditLog(ctx, &domain.AuditLog{
		LogID:         uuid.New().String(),
		TenantID:      e.TenantID,
		UserID:        e.UserID,
		TableName:     e.TableName,
		RecordID:      e.RecordID,
		Action:        e.Action,
		ChangedFields: e.ChangedFields,
		NewValues:     e.NewValues,
		CreatedAt:     r.now(),
	})
}

// RecordTaskCreate 任务创建
func (r *AuditRecorder) RecordTaskCreate(ctx context.Context, tx repository.MeasureTx, userID string, task *domain.MeasureTask) error {
	return r.Record(ctx, tx, AuditEntry{
		TenantID:  task.TenantID,
		UserID:    userID,
		TableName: AuditTableMeasureTasks,
		RecordID:  task.TaskID,
		Action:    domain.AuditActionCreate,
		NewValues: TaskSnapshot(task),
	})
}

// RecordTaskUpdate 任务变更，没有字段变化时不写
func (r *AuditRecorder) RecordTaskUpdate(ctx context.Context, tx repository.MeasureTx, userID string, before, after *domain.MeasureTask) error {
	changed := DiffTask(before, after)
	if len(changed) == 0 {
		return nil
	}
	return r.Record(ctx, tx, AuditEntry{
		TenantID:      after.TenantID,
		UserID:        userID,
		TableName:     AuditTableMeasureTasks,
		RecordID:      after.TaskID,
		Action:        domain.AuditActionUpdate,
		ChangedFields: changed,
	})
}

// TaskSnapshot 审计用的任务快照（json 字段名）
func TaskSnapshot(t *domain.MeasureTask) map[string]any {
	m := map[string]any{
		"measureNo":      t.MeasureNo,
		"leadId":         t.LeadID,
		"customerId":     t.CustomerID,
		"status":         string(t.Status),
		"type":           string(t.Type),
		"round":          t.Round,
		"variant":        t.Variant,
		"rejectCount":    t.RejectCount,
		"rejectReason":   t.RejectReason,
		"isFeeExempt":    t.IsFeeExempt,
		"feeCheckStatus": string(t.FeeCheckStatus),
		"feeApprovalId":  t.FeeApprovalID,
		"scheduledAt":    auditTime(t.ScheduledAt),
		"checkInAt":      auditTime(t.CheckInAt),
		"lateMinutes":    t.LateMinutes,
		"assignedWorker": t.AssignedWorkerID,
		"parentId":       t.ParentID,
		"remark":         t.Remark,
		"completedAt":    auditTime(t.CompletedAt),
	}
	if len(t.CheckInInfo) > 0 {
		m["checkInInfo"] = json.RawMessage(t.CheckInInfo)
	} else {
		m["checkInInfo"] = nil
	}
	return m
}

func auditTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// DiffTask 字段级差异：{"field": {"old": x, "new": y}}
func DiffTask(before, after *domain.MeasureTask) map[string]any {
	if before == nil || after == nil {
		return nil
	}
	oldSnap := TaskSnapshot(before)
	newSnap := TaskSnapshot(after)

	changed := map[string]any{}
	for field, nv := range newSnap {
		ov := oldSnap[field]
		if !auditValueEqual(ov, nv) {
			changed[field] = map[string]any{"old": ov, "new": nv}
		}
	}
	return changed
}

func auditValueEqual(a, b any) bool {
	ra, aok := a.(json.RawMessage)
	rb, bok := b.(json.RawMessage)
	if aok || bok {
		return aok && bok && string(ra) == string(rb)
	}
	return a == b
}
