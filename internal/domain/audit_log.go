package domain

import "time"

// AuditAction 审计动作
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
)

// AuditLog 审计记录（对应 audit_logs 表），只追加
type AuditLog struct {
	LogID         string         `db:"id"`
	TenantID      string         `db:"tenant_id"`
	UserID        string         `db:"user_id"`
	TableName     string         `db:"table_name"`
	RecordID      string         `db:"record_id"`
	Action        AuditAction    `db:"action"`
	ChangedFields map[string]any `db:"changed_fields"` // JSONB, UPDATE 使用
	NewValues     map[string]any `db:"new_values"`     // JSONB, CREATE 使用
	CreatedAt     time.Time      `db:"created_at"`
}

// ApprovalStatus 审批状态
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Approval 审批单（对应 approvals 表）
type Approval struct {
	ApprovalID  string         `db:"id"`
	TenantID    string         `db:"tenant_id"`
	EntityType  string         `db:"entity_type"`
	EntityID    string         `db:"entity_id"`
	FlowCode    string         `db:"flow_code"`
	Comment     string         `db:"comment"`
	Status      ApprovalStatus `db:"status"`
	RequestedBy string         `db:"requested_by"`
	CreatedAt   time.Time      `db:"created_at"`
}
