package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

// CreateTask 创建测量任务
//
// 费用准入：
//  1. 顶级客户强制免费，不走审批
//  2. 申请免费、需要收费且未预先批准时进入 PENDING_APPROVAL 并提交审批（同一事务）
//  3. 其余情况直接 PENDING
func (s *measureTaskService) CreateTask(ctx context.Context, session *domain.Session, req CreateTaskRequest) (*CreateTaskResponse, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, domain.NewValidationError("customer_id is required")
	}
	if req.Type == "" {
		req.Type = domain.MeasureTypeQuoteBased
	}
	if !req.Type.Valid() {
		return nil, domain.NewValidationError("invalid measure type: %s", req.Type)
	}
	if err := s.permissions.Check(ctx, session, PermCreate); err != nil {
		return nil, err
	}

	var resp *CreateTaskResponse
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		customer, lead, err := s.resolveCustomerLead(ctx, tx, session.TenantID, req.CustomerID, req.LeadID)
		if err != nil {
			return err
		}

		decision := domain.ExemptionDecision{
			Requested:    req.IsFeeExempt,
			TierOverride: customer.IsTopTier(),
		}
		admission, err := s.admission.Evaluate(ctx, tx, session.TenantID, lead.LeadID, decision.Exempt())
		if err != nil {
			return err
		}
		// 销售自测不走免费审批
		needsApproval := decision.NeedsApproval(admission.RequiresFee, admission.ExemptApproved) &&
			req.Type != domain.MeasureTypeSalesSelf

		measureNo, err := s.allocator.Allocate(ctx, tx, session.TenantID)
		if err != nil {
			return err
		}

		now := s.now()
		task := &domain.MeasureTask{
			TaskID:         uuid.New().String(),
			TenantID:       session.TenantID,
			MeasureNo:      measureNo,
			LeadID:         lead.LeadID,
			CustomerID:     customer.CustomerID,
			Status:         domain.MeasureTaskStatusPending,
			Type:           req.Type,
			Round:          domain.FirstRound,
			Variant:        domain.FirstVariant,
			IsFeeExempt:    decision.Exempt(),
			FeeCheckStatus: domain.FeeCheckStatusNone,
			ScheduledAt:    req.ScheduledAt,
			Remark:         admissionRemark(req.Remark, admission.Message),
			CreatedBy:      session.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		switch {
		case needsApproval:
			task.Status = domain.MeasureTaskStatusPendingApproval
			task.FeeCheckStatus = domain.FeeCheckStatusPending
		case decision.Requested && !decision.TierOverride && admission.ExemptApproved:
			task.FeeCheckStatus = domain.FeeCheckStatusApproved
		}

		if err := tx.CreateTask(ctx, task); err != nil {
			return classifyStoreError(err)
		}

		sheet := s.newDraftSheet(task, domain.FirstRound, domain.InitialSheetVariant)
		if err := tx.CreateSheet(ctx, sheet); err != nil {
			return classifyStoreError(err)
		}

		approvalID := ""
		if needsApproval {
			result, err := s.approvals.Submit(ctx, tx, ApprovalRequest{
				TenantID:    session.TenantID,
				EntityType:  ApprovalEntityMeasureTask,
				EntityID:    task.TaskID,
				FlowCode:    ApprovalFlowFreeMeasure,
				Comment:     fmt.Sprintf("申请免费测量: %s", measureNo),
				RequestedBy: session.UserID,
			})
			if err != nil {
				return domain.Wrap(domain.ErrApprovalSubmitFailed, err)
			}
			approvalID = result.ApprovalID
			task.FeeApprovalID = approvalID
			if err := tx.UpdateTask(ctx, task); err != nil {
				return classifyStoreError(err)
			}
		}

		if err := tx.SetLeadStatus(ctx, session.TenantID, lead.LeadID, domain.LeadStatusPendingAssignment); err != nil {
			return classifyStoreError(err)
		}
		if err := tx.SetCustomerPipelineStatus(ctx, session.TenantID, customer.CustomerID, domain.CustomerPipelineMeasuring); err != nil {
			return classifyStoreError(err)
		}
		if err := s.audit.RecordTaskCreate(ctx, tx, session.UserID, task); err != nil {
			return classifyStoreError(err)
		}

		resp = &CreateTaskResponse{
			Task:       task,
			Sheet:      sheet,
			Admission:  admission,
			ApprovalID: approvalID,
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to create measure task",
			zap.String("tenant_id", session.TenantID),
			zap.String("customer_id", req.CustomerID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logTask("Measure task created", session, resp.Task,
		zap.Bool("fee_exempt", resp.Task.IsFeeExempt),
		zap.String("fee_check_status", string(resp.Task.FeeCheckStatus)),
	)
	return resp, nil
}

// resolveCustomerLead 读取客户和线索，校验两者一致
// 未指定线索时取客户来源线索；客户没有来源线索时任何线索都不匹配
func (s *measureTaskService) resolveCustomerLead(ctx context.Context, tx repository.MeasureTx, tenantID, customerID, leadID string) (*domain.Customer, *domain.Lead, error) {
	customer, err := tx.GetCustomer(ctx, tenantID, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.NewNotFoundError("customer")
		}
		return nil, nil, classifyStoreError(err)
	}

	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		leadID = customer.SourceLeadID
	}
	if leadID == "" {
		return nil, nil, domain.NewValidationError("lead_id is required: customer %s has no source lead", customerID)
	}
	if customer.SourceLeadID != leadID {
		return nil, nil, domain.NewStateError(domain.ErrLeadMismatch,
			"lead %s does not match customer's source lead", leadID)
	}

	lead, err := tx.GetLead(ctx, tenantID, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.NewNotFoundError("lead")
		}
		return nil, nil, classifyStoreError(err)
	}
	if lead.CustomerID != "" && lead.CustomerID != customer.CustomerID {
		return nil, nil, domain.NewStateError(domain.ErrLeadMismatch,
			"lead %s belongs to another customer", leadID)
	}
	return customer, lead, nil
}

func admissionRemark(remark, message string) string {
	if strings.TrimSpace(message) == "" {
		return remark
	}
	note := "[费用准入] " + message
	if strings.TrimSpace(remark) == "" {
		return note
	}
	return remark + "\n\n" + note
}
