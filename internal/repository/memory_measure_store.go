package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"slideboard-measure/internal/domain"
)

// MemoryFeeRecord 测量费记录（内存版）
type MemoryFeeRecord struct {
	TenantID   string
	LeadID     string
	RecordType string
	Status     string
}

type memoryState struct {
	tasks      map[string]*domain.MeasureTask
	sheets     []*domain.MeasureSheet // 插入顺序
	splits     []*domain.TaskSplitRecord
	rejections []*domain.RejectionHistoryEntry
	auditLogs  []*domain.AuditLog
	approvals  []*domain.Approval
	customers  map[string]domain.Customer
	leads      map[string]domain.Lead
	feeRecords []MemoryFeeRecord
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		tasks:     make(map[string]*domain.MeasureTask, len(s.tasks)),
		sheets:    make([]*domain.MeasureSheet, len(s.sheets)),
		customers: make(map[string]domain.Customer, len(s.customers)),
		leads:     make(map[string]domain.Lead, len(s.leads)),
	}
	for id, t := range s.tasks {
		c.tasks[id] = t.Clone()
	}
	for i, sh := range s.sheets {
		c.sheets[i] = sh.Clone()
	}
	for id, v := range s.customers {
		c.customers[id] = v
	}
	for id, v := range s.leads {
		c.leads[id] = v
	}
	// 只追加的记录本身不会被修改，复制切片头即可
	c.splits = append([]*domain.TaskSplitRecord(nil), s.splits...)
	c.rejections = append([]*domain.RejectionHistoryEntry(nil), s.rejections...)
	c.auditLogs = append([]*domain.AuditLog(nil), s.auditLogs...)
	c.approvals = append([]*domain.Approval(nil), s.approvals...)
	c.feeRecords = append([]MemoryFeeRecord(nil), s.feeRecords...)
	return c
}

// MemoryMeasureStore 数据库关闭时使用的内存实现（本地调试 / 单元测试）
// RunInTx 持有全局写锁，在状态副本上执行，成功后整体替换，失败则丢弃副本
type MemoryMeasureStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryMeasureStore() *MemoryMeasureStore {
	return &MemoryMeasureStore{
		state: &memoryState{
			tasks:     map[string]*domain.MeasureTask{},
			customers: map[string]domain.Customer{},
			leads:     map[string]domain.Lead{},
		},
	}
}

var _ MeasureStore = (*MemoryMeasureStore)(nil)
var _ MeasureTx = (*memoryMeasureTx)(nil)

// --- 初始化数据 ---

func (s *MemoryMeasureStore) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.customers[c.CustomerID] = c
}

func (s *MemoryMeasureStore) PutLead(l domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.leads[l.LeadID] = l
}

func (s *MemoryMeasureStore) AddFeeRecord(r MemoryFeeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.feeRecords = append(s.state.feeRecords, r)
}

// PutTask 直接写入任务（用于构造任意状态）
func (s *MemoryMeasureStore) PutTask(t *domain.MeasureTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tasks[t.TaskID] = t.Clone()
}

// Lead / Customer / Approvals 读取（测试断言使用）
func (s *MemoryMeasureStore) Lead(leadID string) (domain.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.leads[leadID]
	return l, ok
}

func (s *MemoryMeasureStore) Customer(customerID string) (domain.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.customers[customerID]
	return c, ok
}

func (s *MemoryMeasureStore) Approvals(tenantID string) []domain.Approval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Approval{}
	for _, a := range s.state.approvals {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	return out
}

// TaskCount 租户内任务总数
func (s *MemoryMeasureStore) TaskCount(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.state.tasks {
		if t.TenantID == tenantID {
			n++
		}
	}
	return n
}

// --- MeasureStore ---

func (s *MemoryMeasureStore) RunInTx(ctx context.Context, fn func(tx MeasureTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memoryMeasureTx{state: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.state = working
	return nil
}

func (s *MemoryMeasureStore) GetTask(_ context.Context, tenantID, taskID string) (*domain.MeasureTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return nil, fmt.Errorf("measure task not found: %w", sql.ErrNoRows)
	}
	return t.Clone(), nil
}

func (s *MemoryMeasureStore) ListTasks(_ context.Context, tenantID string, filters *TaskFilters, page, size int) ([]*domain.MeasureTask, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := []*domain.MeasureTask{}
	for _, t := range s.state.tasks {
		if t.TenantID != tenantID || !matchTaskFilters(t, filters) {
			continue
		}
		all = append(all, t.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].MeasureNo > all[j].MeasureNo
	})

	total := len(all)
	page, size = normalizePage(page, size)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func matchTaskFilters(t *domain.MeasureTask, f *TaskFilters) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && string(t.Status) != f.Status {
		return false
	}
	if f.AssignedWorkerID != "" && t.AssignedWorkerID != f.AssignedWorkerID {
		return false
	}
	if f.CustomerID != "" && t.CustomerID != f.CustomerID {
		return false
	}
	if f.LeadID != "" && t.LeadID != f.LeadID {
		return false
	}
	if f.ParentID != "" && t.ParentID != f.ParentID {
		return false
	}
	return true
}

func (s *MemoryMeasureStore) ListSheets(_ context.Context, tenantID, taskID string) ([]*domain.MeasureSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.MeasureSheet{}
	for _, sh := range s.state.sheets {
		if sh.TenantID == tenantID && sh.TaskID == taskID {
			out = append(out, sh.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func (s *MemoryMeasureStore) GetSheet(_ context.Context, tenantID, taskID, sheetID string) (*domain.MeasureSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.state.sheets {
		if sh.SheetID == sheetID && sh.TenantID == tenantID && sh.TaskID == taskID {
			return sh.Clone(), nil
		}
	}
	return nil, fmt.Errorf("measure sheet not found: %w", sql.ErrNoRows)
}

func (s *MemoryMeasureStore) ListRejections(_ context.Context, tenantID, taskID string) ([]*domain.RejectionHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.RejectionHistoryEntry{}
	for _, e := range s.state.rejections {
		if e.TenantID == tenantID && e.TaskID == taskID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryMeasureStore) ListSplitRecords(_ context.Context, tenantID, taskID string) ([]*domain.TaskSplitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.TaskSplitRecord{}
	for _, r := range s.state.splits {
		if r.TenantID == tenantID && (r.OriginalTaskID == taskID || r.NewTaskID == taskID) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryMeasureStore) ListAuditLogs(_ context.Context, tenantID, tableName, recordID string) ([]*domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.AuditLog{}
	for _, l := range s.state.auditLogs {
		if l.TenantID == tenantID && l.TableName == tableName && l.RecordID == recordID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

// --- MeasureTx ---

type memoryMeasureTx struct {
	state *memoryState
}

func (t *memoryMeasureTx) LockLatestMeasureNo(_ context.Context, tenantID, prefix string) (string, error) {
	if tenantID == "" || prefix == "" {
		return "", fmt.Errorf("tenant_id and prefix are required")
	}
	latest := ""
	for _, task := range t.state.tasks {
		if task.TenantID == tenantID && strings.HasPrefix(task.MeasureNo, prefix) && task.MeasureNo > latest {
			latest = task.MeasureNo
		}
	}
	return latest, nil
}

func (t *memoryMeasureTx) GetCustomer(_ context.Context, tenantID, customerID string) (*domain.Customer, error) {
	c, ok := t.state.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return nil, fmt.Errorf("customer not found: %w", sql.ErrNoRows)
	}
	return &c, nil
}

func (t *memoryMeasureTx) GetLead(_ context.Context, tenantID, leadID string) (*domain.Lead, error) {
	l, ok := t.state.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return nil, fmt.Errorf("lead not found: %w", sql.ErrNoRows)
	}
	return &l, nil
}

func (t *memoryMeasureTx) SetLeadStatus(_ context.Context, tenantID, leadID, status string) error {
	l, ok := t.state.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return nil
	}
	l.Status = status
	t.state.leads[leadID] = l
	return nil
}

func (t *memoryMeasureTx) SetCustomerPipelineStatus(_ context.Context, tenantID, customerID, status string) error {
	c, ok := t.state.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return nil
	}
	c.PipelineStatus = status
	t.state.customers[customerID] = c
	return nil
}

func (t *memoryMeasureTx) GetTaskForUpdate(_ context.Context, tenantID, taskID string) (*domain.MeasureTask, error) {
	task, ok := t.state.tasks[taskID]
	if !ok || task.TenantID != tenantID {
		return nil, fmt.Errorf("measure task not found: %w", sql.ErrNoRows)
	}
	return task.Clone(), nil
}

func (t *memoryMeasureTx) CreateTask(_ context.Context, task *domain.MeasureTask) error {
	if task == nil || task.TenantID == "" || task.TaskID == "" {
		return fmt.Errorf("tenant_id and task id are required")
	}
	if _, exists := t.state.tasks[task.TaskID]; exists {
		return fmt.Errorf("failed to create measure task: duplicate id %s", task.TaskID)
	}
	for _, other := range t.state.tasks {
		if other.TenantID == task.TenantID && other.MeasureNo == task.MeasureNo {
			return fmt.Errorf("failed to create measure task: duplicate measure_no %s", task.MeasureNo)
		}
	}
	t.state.tasks[task.TaskID] = task.Clone()
	return nil
}

func (t *memoryMeasureTx) UpdateTask(_ context.Context, task *domain.MeasureTask) error {
	existing, ok := t.state.tasks[task.TaskID]
	if !ok || existing.TenantID != task.TenantID {
		return fmt.Errorf("measure task not found: %w", sql.ErrNoRows)
	}
	updated := task.Clone()
	// 不可变字段
	updated.MeasureNo = existing.MeasureNo
	updated.LeadID = existing.LeadID
	updated.CustomerID = existing.CustomerID
	updated.ParentID = existing.ParentID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	t.state.tasks[task.TaskID] = updated
	return nil
}

func (t *memoryMeasureTx) CreateSheet(_ context.Context, sheet *domain.MeasureSheet) error {
	if sheet == nil || sheet.TenantID == "" || sheet.SheetID == "" || sheet.TaskID == "" {
		return fmt.Errorf("tenant_id, sheet id and task id are required")
	}
	c := sheet.Clone()
	for i := range c.Items {
		c.Items[i].TenantID = c.TenantID
		c.Items[i].SheetID = c.SheetID
	}
	t.state.sheets = append(t.state.sheets, c)
	return nil
}

func (t *memoryMeasureTx) ListSheetVariants(_ context.Context, tenantID, taskID string, round int) ([]string, error) {
	out := []string{}
	for _, sh := range t.state.sheets {
		if sh.TenantID == tenantID && sh.TaskID == taskID && sh.Round == round {
			out = append(out, sh.Variant)
		}
	}
	return out, nil
}

func (t *memoryMeasureTx) LatestSheetByStatus(_ context.Context, tenantID, taskID string, status domain.MeasureSheetStatus) (*domain.MeasureSheet, error) {
	var latest *domain.MeasureSheet
	for _, sh := range t.state.sheets {
		if sh.TenantID != tenantID || sh.TaskID != taskID || sh.Status != status {
			continue
		}
		// 插入顺序即创建顺序，同轮次取后写入的
		if latest == nil || sh.Round >= latest.Round {
			latest = sh
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (t *memoryMeasureTx) SetSheetStatus(_ context.Context, tenantID, sheetID string, status domain.MeasureSheetStatus) error {
	for _, sh := range t.state.sheets {
		if sh.SheetID == sheetID && sh.TenantID == tenantID {
			sh.Status = status
			return nil
		}
	}
	return fmt.Errorf("measure sheet not found: %w", sql.ErrNoRows)
}

func (t *memoryMeasureTx) CreateSplitRecord(_ context.Context, record *domain.TaskSplitRecord) error {
	c := *record
	t.state.splits = append(t.state.splits, &c)
	return nil
}

func (t *memoryMeasureTx) AppendRejection(_ context.Context, entry *domain.RejectionHistoryEntry) error {
	c := *entry
	t.state.rejections = append(t.state.rejections, &c)
	return nil
}

func (t *memoryMeasureTx) InsertAuditLog(_ context.Context, log *domain.AuditLog) error {
	c := *log
	t.state.auditLogs = append(t.state.auditLogs, &c)
	return nil
}

func (t *memoryMeasureTx) CreateApproval(_ context.Context, approval *domain.Approval) error {
	c := *approval
	t.state.approvals = append(t.state.approvals, &c)
	return nil
}

func (t *memoryMeasureTx) hasFeeRecord(tenantID, leadID, recordType, status string) bool {
	for _, r := range t.state.feeRecords {
		if r.TenantID == tenantID && r.LeadID == leadID && r.RecordType == recordType && r.Status == status {
			return true
		}
	}
	return false
}

func (t *memoryMeasureTx) HasPaidMeasureFee(_ context.Context, tenantID, leadID string) (bool, error) {
	return t.hasFeeRecord(tenantID, leadID, FeeRecordTypePayment, FeeRecordStatusPaid), nil
}

func (t *memoryMeasureTx) HasApprovedExemption(_ context.Context, tenantID, leadID string) (bool, error) {
	return t.hasFeeRecord(tenantID, leadID, FeeRecordTypeExemption, FeeRecordStatusApproved), nil
}
