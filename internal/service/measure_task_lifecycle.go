package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

// DispatchTask 指派测量师：PENDING -> DISPATCHING
// 测量费未结清且无免费时直接失败
func (s *measureTaskService) DispatchTask(ctx context.Context, session *domain.Session, req DispatchTaskRequest) (*domain.MeasureTask, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		return nil, domain.NewValidationError("worker_id is required")
	}
	if err := s.permissions.Check(ctx, session, PermDispatch); err != nil {
		return nil, err
	}

	var updated *domain.MeasureTask
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, domain.EventDispatch)
		if err != nil {
			return err
		}
		if err := s.gate.Check(ctx, tx, task); err != nil {
			return err
		}

		before := task.Clone()
		task.Status = next
		task.AssignedWorkerID = req.WorkerID
		if req.ScheduledAt != nil {
			t := *req.ScheduledAt
			task.ScheduledAt = &t
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

	s.logTask("Measure task dispatched", session, updated, zap.String("worker_id", req.WorkerID))
	return updated, nil
}

// AcceptTask 测量师接单：DISPATCHING -> PENDING_VISIT，仅限被指派的测量师
func (s *measureTaskService) AcceptTask(ctx context.Context, session *domain.Session, taskID string) (*domain.MeasureTask, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(taskID); err != nil {
		return nil, err
	}

	var updated *domain.MeasureTask
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, taskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, domain.EventAccept)
		if err != nil {
			return err
		}
		if !task.IsAssignedTo(session.UserID) {
			return domain.ErrNotAssignedWorker
		}

		before := task.Clone()
		task.Status = next
		if err := s.saveTask(ctx, tx, session, before, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTask("Measure task accepted", session, updated)
	return updated, nil
}

// CheckIn 现场签到：任意非终态，状态不变
// 计算结果（围栏距离、迟到分钟）原样保存
func (s *measureTaskService) CheckIn(ctx context.Context, session *domain.Session, req CheckInRequest) (*CheckInResponse, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	if !req.Location.Valid() {
		return nil, domain.NewValidationError("invalid check-in location")
	}
	if req.Target != nil && !req.Target.Valid() {
		return nil, domain.NewValidationError("invalid target location")
	}
	if req.ToleranceMeters < 0 {
		return nil, domain.NewValidationError("tolerance must not be negative")
	}

	grace := settingInt(ctx, s.settings, s.logger, session.TenantID, SettingCheckInGraceMinutes, s.cfg.GraceMinutes)
	tolerance := req.ToleranceMeters
	if tolerance == 0 {
		tolerance = float64(settingInt(ctx, s.settings, s.logger, session.TenantID, SettingCheckInGeofenceMeter, int(s.cfg.GeofenceMeters)))
	}

	var resp *CheckInResponse
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, domain.EventCheckIn)
		if err != nil {
			return err
		}
		if task.AssignedWorkerID != "" && !task.IsAssignedTo(session.UserID) && !session.HasRole(domain.RoleAdmin) {
			return domain.ErrNotAssignedWorker
		}

		now := s.now()
		result := ComputeCheckIn(req.Location, req.Target, tolerance, task.ScheduledAt, now, grace)
		if req.Strict && result.WithinRange != nil && !*result.WithinRange {
			return domain.NewStateError(domain.ErrOutOfGeofence,
				"check-in is %.1f m from target, tolerance %.0f m", *result.DistanceMeters, tolerance)
		}
		info, err := json.Marshal(result)
		if err != nil {
			return domain.NewInternalError(err)
		}

		before := task.Clone()
		task.Status = next
		task.CheckInAt = &now
		task.CheckInInfo = info
		task.LateMinutes = result.LateMinutes
		if err := s.saveTask(ctx, tx, session, before, task); err != nil {
			return err
		}
		resp = &CheckInResponse{Task: task, Result: result}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTask("Measure task checked in", session, resp.Task,
		zap.Int("late_minutes", resp.Result.LateMinutes),
		zap.Bool("is_late", resp.Result.IsLate),
	)
	return resp, nil
}

// SubmitMeasureData 提交测量数据：PENDING_VISIT / PENDING_CONFIRM -> PENDING_CONFIRM
// 在任务当前 (round, variant) 下新建 SUBMITTED 测量单
func (s *measureTaskService) SubmitMeasureData(ctx context.Context, session *domain.Session, req SubmitMeasureDataRequest) (*SubmitMeasureDataResponse, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	items, err := normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	var resp *SubmitMeasureDataResponse
	err = s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, domain.EventSubmit)
		if err != nil {
			return err
		}
		if !task.IsAssignedTo(session.UserID) {
			return domain.ErrNotAssignedWorker
		}

		now := s.now()
		sheet := &domain.MeasureSheet{
			SheetID:     uuid.New().String(),
			TenantID:    task.TenantID,
			TaskID:      task.TaskID,
			Status:      domain.MeasureSheetStatusSubmitted,
			Round:       task.Round,
			Variant:     task.Variant,
			SitePhotos:  req.SitePhotos,
			SketchMap:   req.SketchMap,
			SubmittedBy: session.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
			Items:       items,
		}
		for i := range sheet.Items {
			sheet.Items[i].TenantID = task.TenantID
			sheet.Items[i].SheetID = sheet.SheetID
		}
		if err := tx.CreateSheet(ctx, sheet); err != nil {
			return classifyStoreError(err)
		}
		if err := s.audit.Record(ctx, tx, AuditEntry{
			TenantID:  task.TenantID,
			UserID:    session.UserID,
			TableName: AuditTableMeasureSheets,
			RecordID:  sheet.SheetID,
			Action:    domain.AuditActionCreate,
			NewValues: map[string]any{
				"taskId":    task.TaskID,
				"status":    string(sheet.Status),
				"round":     sheet.Round,
				"variant":   sheet.Variant,
				"itemCount": len(sheet.Items),
			},
		}); err != nil {
			return classifyStoreError(err)
		}

		before := task.Clone()
		task.Status = next
		if err := s.saveTask(ctx, tx, session, before, task); err != nil {
			return err
		}
		resp = &SubmitMeasureDataResponse{Task: task, Sheet: sheet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTask("Measure data submitted", session, resp.Task,
		zap.String("sheet_id", resp.Sheet.SheetID),
		zap.Int("items", len(resp.Sheet.Items)),
	)
	return resp, nil
}

// normalizeItems 校验测量明细并补默认值
func normalizeItems(in []domain.MeasureItem) ([]domain.MeasureItem, error) {
	if len(in) == 0 {
		return nil, domain.NewValidationError("at least one measure item is required")
	}
	out := make([]domain.MeasureItem, len(in))
	for i, item := range in {
		item = item.Clone()
		if strings.TrimSpace(item.RoomName) == "" {
			return nil, domain.NewValidationError("item %d: room_name is required", i+1)
		}
		if item.Width <= 0 || item.Height <= 0 {
			return nil, domain.NewValidationError("item %d: width and height must be positive", i+1)
		}
		if item.WindowType == "" {
			item.WindowType = domain.WindowTypeStraight
		}
		if !item.WindowType.Valid() {
			return nil, domain.NewValidationError("item %d: invalid window_type %s", i+1, item.WindowType)
		}
		if item.InstallType != "" && item.InstallType != domain.InstallTypeTop && item.InstallType != domain.InstallTypeSide {
			return nil, domain.NewValidationError("item %d: invalid install_type %s", i+1, item.InstallType)
		}
		if item.BoxDepth != nil && *item.BoxDepth < 0 {
			return nil, domain.NewValidationError("item %d: box_depth must not be negative", i+1)
		}
		if item.ItemID == "" {
			item.ItemID = uuid.New().String()
		}
		if item.SortOrder == 0 {
			item.SortOrder = i + 1
		}
		out[i] = item
	}
	return out, nil
}

// reviewerRoles 可以审核测量数据的角色
var reviewerRoles = []string{domain.RoleAdmin, domain.RoleSales, domain.RoleStoreManager}

// ReviewTask 审核测量数据
// 通过：PENDING_CONFIRM -> COMPLETED，最近提交的测量单确认
// 驳回：PENDING_CONFIRM -> PENDING_VISIT，驳回次数 +1，测量单退回草稿
func (s *measureTaskService) ReviewTask(ctx context.Context, session *domain.Session, req ReviewTaskRequest) (*domain.MeasureTask, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	if !session.HasAnyRole(reviewerRoles...) {
		return nil, domain.NewStateError(domain.ErrForbidden, "role not allowed to review measure data")
	}
	reason := strings.TrimSpace(req.Reason)
	if !req.Approved && reason == "" {
		return nil, domain.NewValidationError("reject reason is required")
	}

	event := domain.EventApprove
	sheetStatus := domain.MeasureSheetStatusConfirmed
	if !req.Approved {
		event = domain.EventReviewReject
		sheetStatus = domain.MeasureSheetStatusDraft
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

		sheet, err := tx.LatestSheetByStatus(ctx, task.TenantID, task.TaskID, domain.MeasureSheetStatusSubmitted)
		if err != nil {
			return classifyStoreError(err)
		}
		if sheet != nil {
			if err := tx.SetSheetStatus(ctx, task.TenantID, sheet.SheetID, sheetStatus); err != nil {
				return classifyStoreError(err)
			}
		}

		before := task.Clone()
		task.Status = next
		if req.Approved {
			now := s.now()
			task.CompletedAt = &now
		} else {
			if err := s.recordRejection(ctx, tx, session, task, before.Status, next, domain.RejectionKindReview, reason); err != nil {
				return err
			}
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

	s.logTask("Measure task reviewed", session, updated, zap.Bool("approved", req.Approved))
	if !req.Approved {
		s.escalate(ctx, updated)
	}
	return updated, nil
}

// RejectTask 运营驳回
// PENDING_CONFIRM -> PENDING_VISIT（数据问题，重新测量）；PENDING_VISIT / DISPATCHING -> PENDING 并清空测量师
func (s *measureTaskService) RejectTask(ctx context.Context, session *domain.Session, req RejectTaskRequest) (*domain.MeasureTask, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(req.TaskID); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.NewValidationError("reject reason is required")
	}
	if err := s.permissions.Check(ctx, session, PermReject); err != nil {
		return nil, err
	}

	var updated *domain.MeasureTask
	err := s.inTx(ctx, func(tx repository.MeasureTx) error {
		task, err := s.lockTask(ctx, tx, session, req.TaskID)
		if err != nil {
			return err
		}
		next, err := domain.Transition(task.Status, domain.EventOpReject)
		if err != nil {
			return err
		}

		before := task.Clone()
		if err := s.recordRejection(ctx, tx, session, task, before.Status, next, domain.RejectionKindOperational, reason); err != nil {
			return err
		}
		task.Status = next
		if next == domain.MeasureTaskStatusPending {
			task.AssignedWorkerID = ""
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

	s.logTask("Measure task rejected", session, updated,
		zap.Int("reject_count", updated.RejectCount),
		zap.String("reason", reason),
	)
	s.escalate(ctx, updated)
	return updated, nil
}

// recordRejection 驳回次数 +1 并追加驳回历史（调用方负责写回任务）
// from 为驳回前状态，不读取 task.Status，调用方可能已经改写
func (s *measureTaskService) recordRejection(ctx context.Context, tx repository.MeasureTx, session *domain.Session, task *domain.MeasureTask, from, next domain.MeasureTaskStatus, kind domain.RejectionKind, reason string) error {
	task.RejectCount++
	task.RejectReason = reason

	entry := &domain.RejectionHistoryEntry{
		EntryID:     uuid.New().String(),
		TenantID:    task.TenantID,
		TaskID:      task.TaskID,
		Kind:        kind,
		Reason:      reason,
		FromStatus:  from,
		ToStatus:    next,
		RejectCount: task.RejectCount,
		RejectedBy:  session.UserID,
		RejectedAt:  s.now(),
	}
	if err := tx.AppendRejection(ctx, entry); err != nil {
		return classifyStoreError(err)
	}
	return nil
}
