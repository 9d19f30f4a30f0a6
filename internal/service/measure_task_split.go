package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

const defaultSplitReason = "按品类拆分"

// SplitTask 按品类拆单
// 原任务取消，每个品类新建一个 PENDING 任务（继承线索、客户、预约、类型、费用标记），整体一个事务
func (s *measureTaskService) SplitTask(ctx context.Context, session *domain.Session, req SplitTaskRequest) (*SplitTaskResponse, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	categories, err := normalizeCategories(req.Categories)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultSplitReason
	}
	if err := s.permissions.Check(ctx, session, PermSplit); err != nil {
		return nil, err
	}

	var resp *SplitTaskResponse
	err = s.inTx(ctx, func(tx repository.MeasureTx) error {
		original, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(original.Status, domain.EventSplit)
		if err != nil {
			return err
		}

		before := original.Clone()
		original.Status = next
		original.Remark = fmt.Sprintf("[拆单] %s (拆分为 %d 个子任务)", reason, len(categories))
		if err := s.saveTask(ctx, tx, session, before, original); err != nil {
			return err
		}

		children := make([]*domain.MeasureTask, 0, len(categories))
		for _, category := range categories {
			child, err := s.createSplitChild(ctx, tx, session, before, category, reason)
			if err != nil {
				return err
			}
			children = append(children, child)
		}

		resp = &SplitTaskResponse{Original: original, Tasks: children}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTask("Measure task split", session, resp.Original,
		zap.Strings("categories", categories),
		zap.Int("new_tasks", len(resp.Tasks)),
	)
	return resp, nil
}

// createSplitChild 拆单子任务 + 草稿测量单 + 拆单记录 + 审计
func (s *measureTaskService) createSplitChild(ctx context.Context, tx repository.MeasureTx, session *domain.Session, original *domain.MeasureTask, category, reason string) (*domain.MeasureTask, error) {
	measureNo, err := s.allocator.Allocate(ctx, tx, session.TenantID)
	if err != nil {
		return nil, err
	}

	// 免费审批尚未结束的，子任务继续等待审批
	status := domain.MeasureTaskStatusPending
	if original.FeeCheckStatus == domain.FeeCheckStatusPending {
		status = domain.MeasureTaskStatusPendingApproval
	}

	now := s.now()
	child := &domain.MeasureTask{
		TaskID:         uuid.New().String(),
		TenantID:       original.TenantID,
		MeasureNo:      measureNo,
		LeadID:         original.LeadID,
		CustomerID:     original.CustomerID,
		Status:         status,
		Type:           original.Type,
		Round:          domain.FirstRound,
		Variant:        domain.FirstVariant,
		IsFeeExempt:    original.IsFeeExempt,
		FeeCheckStatus: original.FeeCheckStatus,
		FeeApprovalID:  original.FeeApprovalID,
		ScheduledAt:    original.ScheduledAt,
		ParentID:       original.TaskID,
		Remark:         fmt.Sprintf("[拆单自 %s] 品类: %s", original.MeasureNo, category),
		CreatedBy:      session.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.CreateTask(ctx, child); err != nil {
		return nil, classifyStoreError(err)
	}
	if err := tx.CreateSheet(ctx, s.newDraftSheet(child, domain.FirstRound, domain.InitialSheetVariant)); err != nil {
		return nil, classifyStoreError(err)
	}
	if err := tx.CreateSplitRecord(ctx, &domain.TaskSplitRecord{
		RecordID:       uuid.New().String(),
		TenantID:       original.TenantID,
		OriginalTaskID: original.TaskID,
		NewTaskID:      child.TaskID,
		Category:       category,
		Reason:         reason,
		CreatedBy:      session.UserID,
		CreatedAt:      now,
	}); err != nil {
		return nil, classifyStoreError(err)
	}
	if err := s.audit.RecordTaskCreate(ctx, tx, session.UserID, child); err != nil {
		return nil, classifyStoreError(err)
	}
	return child, nil
}

// normalizeCategories 至少两个不同的非空品类，保持输入顺序
func normalizeCategories(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, domain.NewValidationError("split category must not be empty")
		}
		if seen[c] {
			return nil, domain.NewValidationError("duplicate split category: %s", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) < 2 {
		return nil, domain.NewValidationError("split requires at least two categories")
	}
	return out, nil
}

// CreateNewVersion 新版本
// ROUND：轮次 +1，方案重置为 A；VARIANT：同轮下一个方案字母，超过 Z 报错且不写入
func (s *measureTaskService) CreateNewVersion(ctx context.Context, session *domain.Session, req CreateNewVersionRequest) (*CreateNewVersionResponse, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	if req.Mode != VersionModeRound && req.Mode != VersionModeVariant {
		return nil, domain.NewValidationError("invalid version mode: %s", req.Mode)
	}
	if err := s.permissions.Check(ctx, session, PermVersion); err != nil {
		return nil, err
	}

	var resp *CreateNewVersionResponse
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, domain.EventNewVersion)
		if err != nil {
			return err
		}

		round, variant := task.Round, task.Variant
		switch req.Mode {
		case VersionModeRound:
			round, variant = domain.NextRound(task.Round)
		case VersionModeVariant:
			existing, err := tx.ListSheetVariants(ctx, task.TenantID, task.TaskID, task.Round)
			if err != nil {
				return classifyStoreError(err)
			}
			variant, err = domain.NextVariant(existing, task.Variant)
			if err != nil {
				return err
			}
		}

		before := task.Clone()
		task.Status = next
		task.Round = round
		task.Variant = variant
		if err := s.saveTask(ctx, tx, session, before, task); err != nil {
			return err
		}

		sheet := s.newDraftSheet(task, round, variant)
		if err := tx.CreateSheet(ctx, sheet); err != nil {
			return classifyStoreError(err)
		}
		resp = &CreateNewVersionResponse{Task: task, Sheet: sheet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTask("Measure task new version", session, resp.Task,
		zap.String("mode", string(req.Mode)),
		zap.String("version", resp.Task.VersionDisplay()),
	)
	return resp, nil
}

// HandleFeeApprovalResult 免费测量审批结果回调
// 通过：PENDING_APPROVAL -> PENDING；驳回：PENDING_APPROVAL -> CANCELLED
func (s *measureTaskService) HandleFeeApprovalResult(ctx context.Context, session *domain.Session, req FeeApprovalResultRequest) (*domain.MeasureTask, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	if err := s.permissions.Check(ctx, session, PermApproveFee); err != nil {
		return nil, err
	}

	event := domain.EventFeeApproved
	feeStatus := domain.FeeCheckStatusApproved
	if !req.Approved {
		event = domain.EventFeeRejected
		feeStatus = domain.FeeCheckStatusRejected
	}

	var updated *domain.MeasureTask
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, event)
		if err != nil {
			return err
		}
		if req.ApprovalID != "" && task.FeeApprovalID != "" && req.ApprovalID != task.FeeApprovalID {
			return domain.NewValidationError("approval %s does not belong to task %s", req.ApprovalID, task.MeasureNo)
		}

		before := task.Clone()
		task.Status = next
		task.FeeCheckStatus = feeStatus
		if !req.Approved && strings.TrimSpace(req.Comment) != "" {
			task.Remark = strings.TrimSpace(task.Remark + "\n\n[免费审批驳回] " + req.Comment)
		}
		if err := s.saveTask(ctx, tx, session, before, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTask("Fee approval result applied", session, updated, zap.Bool("approved", req.Approved))
	return updated, nil
}
