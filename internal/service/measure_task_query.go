package service

import (
	"context"
	"database/sql"
	"errors"

	"slideboard-measure/internal/domain"
)

// GetTask 租户内读取任务
func (s *measureTaskService) GetTask(ctx context.Context, session *domain.Session, taskID string) (*domain.MeasureTask, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := requireTaskID(taskID); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, session.TenantID, taskID)
	if err != nil {
		return nil, classifyTaskLookup(err)
	}
	return task, nil
}

// ListTasks 任务列表
// 只有测量师角色的用户只能看到指派给自己的任务
func (s *measureTaskService) ListTasks(ctx context.Context, session *domain.Session, req ListTasksRequest) (*ListTasksResponse, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if req.Filters.Status != "" && !domain.MeasureTaskStatus(req.Filters.Status).Valid() {
		return nil, domain.NewValidationError("invalid status filter: %s", req.Filters.Status)
	}
	filters := req.Filters
	if isWorkerOnly(session) {
		filters.AssignedWorkerID = session.UserID
	}

	page, size := req.Page, req.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}

	items, total, err := s.store.ListTasks(ctx, session.TenantID, &filters, page, size)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return &ListTasksResponse{Items: items, Total: total, Page: page, Size: size}, nil
}

func isWorkerOnly(session *domain.Session) bool {
	if !session.HasRole(domain.RoleWorker) {
		return false
	}
	return !session.HasAnyRole(domain.RoleAdmin, domain.RoleSales, domain.RoleStoreManager, domain.RoleAreaManager)
}

// ensureTask 确认任务存在于当前租户
func (s *measureTaskService) ensureTask(ctx context.Context, session *domain.Session, taskID string) error {
	_, err := s.GetTask(ctx, session, taskID)
	return err
}

func (s *measureTaskService) ListSheets(ctx context.Context, session *domain.Session, taskID string) ([]*domain.MeasureSheet, error) {
	if err := s.ensureTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	sheets, err := s.store.ListSheets(ctx, session.TenantID, taskID)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return sheets, nil
}

func (s *measureTaskService) GetSheet(ctx context.Context, session *domain.Session, taskID, sheetID string) (*domain.MeasureSheet, error) {
	if err := s.ensureTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	if sheetID == "" {
		return nil, domain.NewValidationError("sheet_id is required")
	}
	sheet, err := s.store.GetSheet(ctx, session.TenantID, taskID, sheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("measure sheet")
		}
		return nil, classifyStoreError(err)
	}
	return sheet, nil
}

func (s *measureTaskService) ListRejections(ctx context.Context, session *domain.Session, taskID string) ([]*domain.RejectionHistoryEntry, error) {
	if err := s.ensureTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListRejections(ctx, session.TenantID, taskID)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return entries, nil
}

func (s *measureTaskService) ListSplitRecords(ctx context.Context, session *domain.Session, taskID string) ([]*domain.TaskSplitRecord, error) {
	if err := s.ensureTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	records, err := s.store.ListSplitRecords(ctx, session.TenantID, taskID)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return records, nil
}

func (s *measureTaskService) ListAuditLogs(ctx context.Context, session *domain.Session, taskID string) ([]*domain.AuditLog, error) {
	if err := s.ensureTask(ctx, session, taskID); err != nil {
		return nil, err
	}
	logs, err := s.store.ListAuditLogs(ctx, session.TenantID, AuditTableMeasureTasks, taskID)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return logs, nil
}
