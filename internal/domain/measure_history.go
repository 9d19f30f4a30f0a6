package domain

import "time"

// TaskSplitRecord 拆单记录（对应 measure_task_splits 表）
// 只写不改，用于任务血缘查询
type TaskSplitRecord struct {
	RecordID       string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	OriginalTaskID string    `db:"original_task_id"`
	NewTaskID      string    `db:"new_task_id"`
	Category       string    `db:"category"`
	Reason         string    `db:"reason"`
	CreatedBy      string    `db:"created_by"`
	CreatedAt      time.Time `db:"created_at"`
}

// RejectionKind 驳回类型
type RejectionKind string

const (
	RejectionKindReview      RejectionKind = "REVIEW"      // 数据审核驳回
	RejectionKindOperational RejectionKind = "OPERATIONAL" // 运营驳回（重新指派 / 重新测量）
)

// RejectionHistoryEntry 驳回历史（对应 measure_task_rejections 表）
// 追加写入，与 reject_count 自增在同一事务内完成
type RejectionHistoryEntry struct {
	EntryID     string            `db:"id"`
	TenantID    string            `db:"tenant_id"`
	TaskID      string            `db:"task_id"`
	Kind        RejectionKind     `db:"kind"`
	Reason      string            `db:"reason"`
	FromStatus  MeasureTaskStatus `db:"from_status"`
	ToStatus    MeasureTaskStatus `db:"to_status"`
	RejectCount int               `db:"reject_count"` // 本次驳回后的累计次数
	RejectedBy  string            `db:"rejected_by"`
	RejectedAt  time.Time         `db:"rejected_at"`
}
