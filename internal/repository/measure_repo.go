package repository

import (
	"context"

	"slideboard-measure/internal/domain"
)

// SystemTenantID 系统级默认数据（权限、设置）所属租户
const SystemTenantID = "00000000-0000-0000-0000-000000000001"

// TaskFilters 测量任务查询过滤器
type TaskFilters struct {
	Status           string // 可选，按状态过滤
	AssignedWorkerID string // 可选，按测量师过滤
	CustomerID       string // 可选
	LeadID           string // 可选
	ParentID         string // 可选，拆单来源
}

// MeasureTx 事务内的数据访问
// 所有方法都要求 tenantID，未找到返回包装过的 sql.ErrNoRows
type MeasureTx interface {
	// 测量单号：锁定 (tenant, prefix) 并返回当前最大单号，没有时返回 ""
	LockLatestMeasureNo(ctx context.Context, tenantID, prefix string) (string, error)

	// CRM
	GetCustomer(ctx context.Context, tenantID, customerID string) (*domain.Customer, error)
	GetLead(ctx context.Context, tenantID, leadID string) (*domain.Lead, error)
	SetLeadStatus(ctx context.Context, tenantID, leadID, status string) error
	SetCustomerPipelineStatus(ctx context.Context, tenantID, customerID, status string) error

	// 测量任务（GetTaskForUpdate 对任务行加锁，直到事务结束）
	GetTaskForUpdate(ctx context.Context, tenantID, taskID string) (*domain.MeasureTask, error)
	CreateTask(ctx context.Context, task *domain.MeasureTask) error
	UpdateTask(ctx context.Context, task *domain.MeasureTask) error

	// 测量单（CreateSheet 同时写入明细）
	CreateSheet(ctx context.Context, sheet *domain.MeasureSheet) error
	ListSheetVariants(ctx context.Context, tenantID, taskID string, round int) ([]string, error)
	LatestSheetByStatus(ctx context.Context, tenantID, taskID string, status domain.MeasureSheetStatus) (*domain.MeasureSheet, error)
	SetSheetStatus(ctx context.Context, tenantID, sheetID string, status domain.MeasureSheetStatus) error

	// 拆单 / 驳回历史（只追加）
	CreateSplitRecord(ctx context.Context, record *domain.TaskSplitRecord) error
	AppendRejection(ctx context.Context, entry *domain.RejectionHistoryEntry) error

	// 审计 / 审批
	InsertAuditLog(ctx context.Context, log *domain.AuditLog) error
	CreateApproval(ctx context.Context, approval *domain.Approval) error

	// 测量费记录
	HasPaidMeasureFee(ctx context.Context, tenantID, leadID string) (bool, error)
	HasApprovedExemption(ctx context.Context, tenantID, leadID string) (bool, error)
}

// MeasureStore 测量任务存储
// 状态变更必须在 RunInTx 内完成：fn 返回错误则整体回滚
type MeasureStore interface {
	RunInTx(ctx context.Context, fn func(tx MeasureTx) error) error

	GetTask(ctx context.Context, tenantID, taskID string) (*domain.MeasureTask, error)
	ListTasks(ctx context.Context, tenantID string, filters *TaskFilters, page, size int) ([]*domain.MeasureTask, int, error)
	ListSheets(ctx context.Context, tenantID, taskID string) ([]*domain.MeasureSheet, error)
	GetSheet(ctx context.Context, tenantID, taskID, sheetID string) (*domain.MeasureSheet, error)
	ListRejections(ctx context.Context, tenantID, taskID string) ([]*domain.RejectionHistoryEntry, error)
	// ListSplitRecords 任务作为原任务或新任务出现的拆单记录
	ListSplitRecords(ctx context.Context, tenantID, taskID string) ([]*domain.TaskSplitRecord, error)
	ListAuditLogs(ctx context.Context, tenantID, tableName, recordID string) ([]*domain.AuditLog, error)
}

// TenantSettingsRepository 租户设置（key/value）
type TenantSettingsRepository interface {
	// GetSetting 先查租户设置，再查系统默认；都没有时 found=false
	GetSetting(ctx context.Context, tenantID, key string) (value string, found bool, err error)
}

// UsersRepository 用户目录（升级通知按角色查找接收人）
type UsersRepository interface {
	ListActiveUserIDsByRole(ctx context.Context, tenantID, roleCode string) ([]string, error)
}

// RolePermissionsRepository 角色权限查询
type RolePermissionsRepository interface {
	// HasPermission 任一角色拥有 resourceType:permissionType（租户配置或系统默认）
	HasPermission(ctx context.Context, tenantID string, roleCodes []string, resourceType, permissionType string) (bool, error)
}
