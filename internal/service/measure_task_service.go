package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slideboard-measure/internal/config"
	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/logger"
	"slideboard-measure/internal/repository"
)

// MeasureTaskService 测量任务生命周期引擎
// 每个状态变更：事务内加锁读取任务 -> 查迁移表 -> 写入 -> 审计，提交后再做升级通知
type MeasureTaskService interface {
	CreateTask(ctx context.Context, session *domain.Session, req CreateTaskRequest) (*CreateTaskResponse, error)
	DispatchTask(ctx context.Context, session *domain.Session, req DispatchTaskRequest) (*domain.MeasureTask, error)
	AcceptTask(ctx context.Context, session *domain.Session, taskID string) (*domain.MeasureTask, error)
	CheckIn(ctx context.Context, session *domain.Session, req CheckInRequest) (*CheckInResponse, error)
	SubmitMeasureData(ctx context.Context, session *domain.Session, req SubmitMeasureDataRequest) (*SubmitMeasureDataResponse, error)
	ReviewTask(ctx context.Context, session *domain.Session, req ReviewTaskRequest) (*domain.MeasureTask, error)
	RejectTask(ctx context.Context, session *domain.Session, req RejectTaskRequest) (*domain.MeasureTask, error)
	SplitTask(ctx context.Context, session *domain.Session, req SplitTaskRequest) (*SplitTaskResponse, error)
	CreateNewVersion(ctx context.Context, session *domain.Session, req CreateNewVersionRequest) (*CreateNewVersionResponse, error)
	HandleFeeApprovalResult(ctx context.Context, session *domain.Session, req FeeApprovalResultRequest) (*domain.MeasureTask, error)

	GetTask(ctx context.Context, session *domain.Session, taskID string) (*domain.MeasureTask, error)
	ListTasks(ctx context.Context, session *domain.Session, req ListTasksRequest) (*ListTasksResponse, error)
	ListSheets(ctx context.Context, session *domain.Session, taskID string) ([]*domain.MeasureSheet, error)
	GetSheet(ctx context.Context, session *domain.Session, taskID, sheetID string) (*domain.MeasureSheet, error)
	ListRejections(ctx context.Context, session *domain.Session, taskID string) ([]*domain.RejectionHistoryEntry, error)
	ListSplitRecords(ctx context.Context, session *domain.Session, taskID string) ([]*domain.TaskSplitRecord, error)
	ListAuditLogs(ctx context.Context, session *domain.Session, taskID string) ([]*domain.AuditLog, error)

	// WaitEscalations 等待已提交操作的升级通知发送完毕（优雅退出 / 测试）
	WaitEscalations()
}

// MeasureTaskDeps 引擎依赖
// Store/Permissions/Settings 必填，其余为空时使用默认实现
type MeasureTaskDeps struct {
	Store       repository.MeasureStore
	Permissions PermissionChecker
	Settings    SettingsProvider
	Allocator   *MeasureNoAllocator
	Admission   FeeAdmissionEvaluator
	Gate        *PaymentGate
	Approvals   ApprovalSubmitter
	Escalation  *EscalationNotifier // nil 时不发升级通知
	Audit       *AuditRecorder
	Config      config.MeasureConfig
	Now         func() time.Time
	Logger      *zap.Logger
}

type measureTaskService struct {
	store       repository.MeasureStore
	permissions PermissionChecker
	settings    SettingsProvider
	allocator   *MeasureNoAllocator
	admission   FeeAdmissionEvaluator
	gate        *PaymentGate
	approvals   ApprovalSubmitter
	escalation  *EscalationNotifier
	audit       *AuditRecorder
	cfg         config.MeasureConfig
	now         func() time.Time
	logger      *zap.Logger

	escalations sync.WaitGroup
}

// NewMeasureTaskService 创建 MeasureTaskService 实例
func NewMeasureTaskService(deps MeasureTaskDeps) MeasureTaskService {
	s := &measureTaskService{
		store:       deps.Store,
		permissions: deps.Permissions,
		settings:    deps.Settings,
		allocator:   deps.Allocator,
		admission:   deps.Admission,
		gate:        deps.Gate,
		approvals:   deps.Approvals,
		escalation:  deps.Escalation,
		audit:       deps.Audit,
		cfg:         deps.Config,
		now:         deps.Now,
		logger:      deps.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.allocator == nil {
		s.allocator = NewMeasureNoAllocator(s.now)
	}
	if s.admission == nil {
		s.admission = NewPolicyFeeAdmission(s.settings)
	}
	if s.gate == nil {
		s.gate = NewPaymentGate(s.admission)
	}
	if s.approvals == nil {
		s.approvals = NewTxApprovalSubmitter(s.now)
	}
	if s.audit == nil {
		s.audit = NewAuditRecorder(s.now)
	}
	return s
}

// ============================================
// Request/Response DTOs
// ============================================

// CreateTaskRequest 创建测量任务请求
type CreateTaskRequest struct {
	CustomerID  string
	LeadID      string             // 可选，默认取客户来源线索
	Type        domain.MeasureType // 默认 QUOTE_BASED
	ScheduledAt *time.Time
	IsFeeExempt bool // 申请免测量费
	Remark      string
}

// CreateTaskResponse 创建测量任务响应
type CreateTaskResponse struct {
	Task       *domain.MeasureTask
	Sheet      *domain.MeasureSheet // 初始草稿测量单
	Admission  *FeeAdmission
	ApprovalID string // 走免费审批时的审批单
}

// DispatchTaskRequest 指派请求
type DispatchTaskRequest struct {
	TaskID      string
	WorkerID    string
	ScheduledAt *time.Time // 为空时保留原预约时间
}

// CheckInRequest 签到请求
type CheckInRequest struct {
	TaskID          string
	Location        GeoPoint
	Target          *GeoPoint // 目标地址坐标，为空时不做围栏校验
	ToleranceMeters float64   // 0 使用租户设置 / 默认半径
	Strict          bool      // 超出范围时拒绝签到
}

// CheckInResponse 签到响应
type CheckInResponse struct {
	Task   *domain.MeasureTask
	Result *CheckInResult
}

// SubmitMeasureDataRequest 提交测量数据
type SubmitMeasureDataRequest struct {
	TaskID     string
	SitePhotos []string
	SketchMap  string
	Items      []domain.MeasureItem
}

// SubmitMeasureDataResponse 提交测量数据响应
type SubmitMeasureDataResponse struct {
	Task  *domain.MeasureTask
	Sheet *domain.MeasureSheet
}

// ReviewTaskRequest 审核请求；Approved=false 时 Reason 必填
type ReviewTaskRequest struct {
	TaskID   string
	Approved bool
	Reason   string
}

// RejectTaskRequest 运营驳回请求
type RejectTaskRequest struct {
	TaskID string
	Reason string
}

// SplitTaskRequest 按品类拆单
type SplitTaskRequest struct {
	TaskID     string
	Categories []string
	Reason     string
}

// SplitTaskResponse 拆单结果
type SplitTaskResponse struct {
	Original *domain.MeasureTask
	Tasks    []*domain.MeasureTask
}

// VersionMode 新版本方式
type VersionMode string

const (
	VersionModeRound   VersionMode = "ROUND"   // 重新测量：轮次 +1
	VersionModeVariant VersionMode = "VARIANT" // 同轮备选方案：字母 +1
)

// CreateNewVersionRequest 新版本请求
type CreateNewVersionRequest struct {
	TaskID string
	Mode   VersionMode
}

// CreateNewVersionResponse 新版本响应
type CreateNewVersionResponse struct {
	Task  *domain.MeasureTask
	Sheet *domain.MeasureSheet
}

// FeeApprovalResultRequest 免费测量审批回调
type FeeApprovalResultRequest struct {
	TaskID     string
	ApprovalID string // 可选，与任务上的审批单校验
	Approved   bool
	Comment    string
}

// ListTasksRequest 任务列表
type ListTasksRequest struct {
	Filters  repository.TaskFilters
	Page     int
	PageSize int
}

// ListTasksResponse 任务列表响应
type ListTasksResponse struct {
	Items []*domain.MeasureTask
	Total int
	Page  int
	Size  int
}

// ============================================
// 内部工具
// ============================================

func requireSession(session *domain.Session) error {
	if !session.Valid() {
		return domain.ErrUnauthorized
	}
	return nil
}

func requireTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return domain.NewValidationError("task_id is required")
	}
	return nil
}

// inTx 执行事务并把底层错误归类
func (s *measureTaskService) inTx(ctx context.Context, fn func(tx repository.MeasureTx) error) error {
	return classifyStoreError(s.store.RunInTx(ctx, fn))
}

// lockTask 加锁读取任务（租户内）
func (s *measureTaskService) lockTask(ctx context.Context, tx repository.MeasureTx, session *domain.Session, taskID string) (*domain.MeasureTask, error) {
	task, err := tx.GetTaskForUpdate(ctx, session.TenantID, taskID)
	if err != nil {
		return nil, classifyTaskLookup(err)
	}
	return task, nil
}

// saveTask 写回任务并记录审计
func (s *measureTaskService) saveTask(ctx context.Context, tx repository.MeasureTx, session *domain.Session, before, after *domain.MeasureTask) error {
	after.UpdatedAt = s.now()
	if err := tx.UpdateTask(ctx, after); err != nil {
		return classifyStoreError(err)
	}
	if err := s.audit.RecordTaskUpdate(ctx, tx, session.UserID, before, after); err != nil {
		return classifyStoreError(err)
	}
	return nil
}

// newDraftSheet 空白草稿测量单
func (s *measureTaskService) newDraftSheet(task *domain.MeasureTask, round int, variant string) *domain.MeasureSheet {
	now := s.now()
	return &domain.MeasureSheet{
		SheetID:   uuid.New().String(),
		TenantID:  task.TenantID,
		TaskID:    task.TaskID,
		Status:    domain.MeasureSheetStatusDraft,
		Round:     round,
		Variant:   variant,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *measureTaskService) logTask(msg string, session *domain.Session, task *domain.MeasureTask, fields ...zap.Field) {
	all := append(logger.TaskFields(session.TenantID, task.TaskID, session.UserID),
		zap.String("measure_no", task.MeasureNo),
		zap.String("status", string(task.Status)),
	)
	s.logger.Info(msg, append(all, fields...)...)
}

// escalate 提交后异步发送升级通知，不受请求取消影响
func (s *measureTaskService) escalate(ctx context.Context, task *domain.MeasureTask) {
	if s.escalation == nil || len(EscalationRoles(task.RejectCount)) == 0 {
		return
	}
	snapshot := task.Clone()
	detached := context.WithoutCancel(ctx)

	s.escalations.Add(1)
	go func() {
		defer s.escalations.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Escalation notifier panicked",
					zap.String("task_id", snapshot.TaskID),
					zap.Any("panic", r),
				)
			}
		}()
		s.escalation.Notify(detached, snapshot)
	}()
}

func (s *measureTaskService) WaitEscalations() {
	s.escalations.Wait()
}
