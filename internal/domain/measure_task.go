package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MeasureTaskStatus 测量任务状态
type MeasureTaskStatus string

const (
	MeasureTaskStatusPendingApproval MeasureTaskStatus = "PENDING_APPROVAL" // 免费测量待审批
	MeasureTaskStatusPending         MeasureTaskStatus = "PENDING"          // 待指派
	MeasureTaskStatusDispatching     MeasureTaskStatus = "DISPATCHING"      // 已指派，待接单
	MeasureTaskStatusPendingVisit    MeasureTaskStatus = "PENDING_VISIT"    // 待上门
	MeasureTaskStatusPendingConfirm  MeasureTaskStatus = "PENDING_CONFIRM"  // 数据已提交，待审核
	MeasureTaskStatusCompleted       MeasureTaskStatus = "COMPLETED"        // 已完成（终态）
	MeasureTaskStatusCancelled       MeasureTaskStatus = "CANCELLED"        // 已取消（终态，含拆单后的原任务）
)

// IsTerminal 终态任务不再接受任何状态变更
func (s MeasureTaskStatus) IsTerminal() bool {
	return s == MeasureTaskStatusCompleted || s == MeasureTaskStatusCancelled
}

// Valid 是否为已定义的状态
func (s MeasureTaskStatus) Valid() bool {
	switch s {
	case MeasureTaskStatusPendingApproval, MeasureTaskStatusPending, MeasureTaskStatusDispatching,
		MeasureTaskStatusPendingVisit, MeasureTaskStatusPendingConfirm,
		MeasureTaskStatusCompleted, MeasureTaskStatusCancelled:
		return true
	}
	return false
}

// FeeCheckStatus 测量费准入状态
type FeeCheckStatus string

const (
	FeeCheckStatusNone     FeeCheckStatus = "NONE"     // 无需审批
	FeeCheckStatusPending  FeeCheckStatus = "PENDING"  // 免费申请审批中
	FeeCheckStatusApproved FeeCheckStatus = "APPROVED" // 免费申请已通过
	FeeCheckStatusRejected FeeCheckStatus = "REJECTED" // 免费申请被驳回
)

// MeasureType 测量类型
type MeasureType string

const (
	MeasureTypeQuoteBased MeasureType = "QUOTE_BASED" // 基于报价单
	MeasureTypeBlind      MeasureType = "BLIND"       // 盲测
	MeasureTypeSalesSelf  MeasureType = "SALES_SELF"  // 销售自测
)

// Valid 是否为已定义的测量类型
func (t MeasureType) Valid() bool {
	return t == MeasureTypeQuoteBased || t == MeasureTypeBlind || t == MeasureTypeSalesSelf
}

const (
	// FirstRound 新任务的起始轮次
	FirstRound = 1
	// FirstVariant 每一轮的起始方案字母
	FirstVariant = "A"
	// LastVariant 同一轮内方案字母上限
	LastVariant = "Z"
	// InitialSheetVariant 创建任务时附带的草稿测量单方案标识
	InitialSheetVariant = "Initial"
)

// MeasureTask 测量任务领域模型（对应 measure_tasks 表）
// 聚合根：MeasureSheet / MeasureItem / RejectionHistoryEntry 均归属于任务
type MeasureTask struct {
	// 主键
	TaskID string `db:"id"` // UUID, PRIMARY KEY

	// 租户
	TenantID string `db:"tenant_id"` // UUID, NOT NULL

	// 测量单号：M + YYYYMMDD + 4 位当日序号（租户内唯一）
	MeasureNo string `db:"measure_no"`

	// 来源线索 / 客户
	LeadID     string `db:"lead_id"`
	CustomerID string `db:"customer_id"`

	// 状态
	Status MeasureTaskStatus `db:"status"`
	Type   MeasureType       `db:"type"`

	// 版本：轮次（重新测量 +1）+ 方案字母（同轮备选方案）
	Round   int    `db:"round"`
	Variant string `db:"variant"`

	// 驳回
	RejectCount  int    `db:"reject_count"`  // 只增不减
	RejectReason string `db:"reject_reason"` // 最近一次驳回原因

	// 测量费
	IsFeeExempt    bool           `db:"is_fee_exempt"`
	FeeCheckStatus FeeCheckStatus `db:"fee_check_status"`
	FeeApprovalID  string         `db:"fee_approval_id"` // nullable

	// 上门
	ScheduledAt      *time.Time      `db:"scheduled_at"`
	CheckInAt        *time.Time      `db:"check_in_at"`
	CheckInInfo      json.RawMessage `db:"check_in_info"` // 签到计算结果原样保存，不再重算
	LateMinutes      int             `db:"late_minutes"`
	AssignedWorkerID string          `db:"assigned_worker_id"` // nullable

	// 拆单来源
	ParentID string `db:"parent_id"` // nullable

	Remark      string     `db:"remark"`
	CreatedBy   string     `db:"created_by"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// VersionDisplay 版本展示，如 "R2-B"
func (t *MeasureTask) VersionDisplay() string {
	return fmt.Sprintf("R%d-%s", t.Round, t.Variant)
}

// IsAssignedTo 是否指派给指定测量师
func (t *MeasureTask) IsAssignedTo(userID string) bool {
	return t.AssignedWorkerID != "" && t.AssignedWorkerID == userID
}

// Clone 深拷贝（内存仓储和审计差异计算使用）
func (t *MeasureTask) Clone() *MeasureTask {
	if t == nil {
		return nil
	}
	c := *t
	c.ScheduledAt = cloneTime(t.ScheduledAt)
	c.CheckInAt = cloneTime(t.CheckInAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	if t.CheckInInfo != nil {
		c.CheckInInfo = append(json.RawMessage(nil), t.CheckInInfo...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ExemptionDecision 免测量费决策
// Requested: 调用方是否申请免费；TierOverride: 客户等级强制免费
type ExemptionDecision struct {
	Requested    bool
	TierOverride bool
}

// Exempt 最终是否免测量费
func (d ExemptionDecision) Exempt() bool {
	return d.TierOverride || d.Requested
}

// NeedsApproval 是否需要走免费测量审批
// 仅当需要收费、调用方主动申请、且既非等级强制也未预先批准时才需要审批
func (d ExemptionDecision) NeedsApproval(requiresFee, exemptApproved bool) bool {
	return requiresFee && d.Requested && !d.TierOverride && !exemptApproved
}
