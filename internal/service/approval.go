package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

const (
	ApprovalEntityMeasureTask = "MEASURE_TASK"
	ApprovalFlowFreeMeasure   = "FREE_MEASURE_APPROVAL"
)

// ApprovalRequest 审批提交
type ApprovalRequest struct {
	TenantID    string
	EntityType  string
	EntityID    string
	FlowCode    string
	Comment     string
	RequestedBy string
}

// ApprovalResult 审批提交结果
type ApprovalResult struct {
	ApprovalID string
}

// ApprovalSubmitter 审批提交，与调用方共用事务，失败时整体回滚
type ApprovalSubmitter interface {
	Submit(ctx context.Context, tx repository.MeasureTx, req ApprovalRequest) (*ApprovalResult, error)
}

// TxApprovalSubmitter 写入 approvals 表
type TxApprovalSubmitter struct {
	now func() time.Time
}

func NewTxApprovalSubmitter(now func() time.Time) *TxApprovalSubmitter {
	if now == nil {
		now = time.Now
	}
	return &TxApprovalSubmitter{now: now}
}

func (s *TxApprovalSubmitter) Submit(ctx context.Context, tx repository.MeasureTx, req ApprovalRequest) (*ApprovalResult, error) {
	if req.TenantID == "" || req.EntityID == "" || req.FlowCode == "" {
		return nil, fmt.Errorf("tenant_id, entity_id and flow_code are required")
	}
	approval := &domain.Approval{
		ApprovalID:  uuid.New().String(),
		TenantID:    req.TenantID,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		FlowCode:    req.FlowCode,
		Comment:     req.Comment,
		Status:      domain.ApprovalStatusPending,
		RequestedBy: req.RequestedBy,
		CreatedAt:   s.now(),
	}
	if err := tx.CreateApproval(ctx, approval); err != nil {
		return nil, err
	}
	return &ApprovalResult{ApprovalID: approval.ApprovalID}, nil
}
