package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slideboard-measure/internal/config"
	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/notify"
	"slideboard-measure/internal/repository"
)

const (
	tenantA = "11111111-1111-1111-1111-111111111111"
	tenantB = "22222222-2222-2222-2222-222222222222"

	customerStd = "c-std"
	leadStd     = "l-std"
	customerVIP = "c-vip"
	leadVIP     = "l-vip"

	workerID = "worker-1"
)

var baseTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingSender 记录所有通知
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) Sent() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.sent...)
}

func (s *recordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

// failingApprovals 审批系统不可用
type failingApprovals struct{}

func (failingApprovals) Submit(context.Context, repository.MeasureTx, ApprovalRequest) (*ApprovalResult, error) {
	return nil, errors.New("approval service unavailable")
}

type fixture struct {
	store    *repository.MemoryMeasureStore
	settings *repository.MemoryTenantSettings
	users    *repository.MemoryUsers
	perms    *repository.MemoryRolePermissions
	sender   *recordingSender
	clock    *testClock
	svc      MeasureTaskService
}

type fixtureOption func(*MeasureTaskDeps)

func withApprovals(a ApprovalSubmitter) fixtureOption {
	return func(d *MeasureTaskDeps) { d.Approvals = a }
}

func newFixture(t require.TestingT, opts ...fixtureOption) *fixture {
	f := &fixture{
		store:    repository.NewMemoryMeasureStore(),
		settings: repository.NewMemoryTenantSettings(),
		users:    repository.NewMemoryUsers(),
		perms:    repository.NewMemoryRolePermissions(),
		sender:   &recordingSender{},
		clock:    &testClock{t: baseTime},
	}

	for _, tenant := range []string{tenantA, tenantB} {
		f.store.PutCustomer(domain.Customer{CustomerID: customerStd + tenant[:1], TenantID: tenant, Name: "张三", Level: "B", SourceLeadID: leadStd + tenant[:1]})
		f.store.PutLead(domain.Lead{LeadID: leadStd + tenant[:1], TenantID: tenant, CustomerID: customerStd + tenant[:1], Status: "NEW"})
	}
	// tenantA 的常用数据使用不带后缀的 id
	f.store.PutCustomer(domain.Customer{CustomerID: customerStd, TenantID: tenantA, Name: "王五", Level: "B", SourceLeadID: leadStd})
	f.store.PutLead(domain.Lead{LeadID: leadStd, TenantID: tenantA, CustomerID: customerStd, Status: "NEW"})
	f.store.PutCustomer(domain.Customer{CustomerID: customerVIP, TenantID: tenantA, Name: "李四", Level: domain.CustomerLevelTop, SourceLeadID: leadVIP})
	f.store.PutLead(domain.Lead{LeadID: leadVIP, TenantID: tenantA, CustomerID: customerVIP, Status: "NEW"})

	f.perms.Grant("", domain.RoleSales, "measure_tasks", "create")
	for _, p := range []string{"create", "dispatch", "reject", "split", "version"} {
		f.perms.Grant("", domain.RoleStoreManager, "measure_tasks", p)
	}

	f.users.Add(tenantA, domain.RoleStoreManager, "sm-1")
	f.users.Add(tenantA, domain.RoleStoreManager, "sm-2")
	f.users.Add(tenantA, domain.RoleAreaManager, "am-1")

	settings := NewRepositorySettingsProvider(f.settings)
	deps := MeasureTaskDeps{
		Store:       f.store,
		Permissions: NewRolePermissionChecker(f.perms),
		Settings:    settings,
		Escalation:  NewEscalationNotifier(f.users, f.sender, 4, zap.NewNop()),
		Config: config.MeasureConfig{
			GraceMinutes:   15,
			GeofenceMeters: 500,
		},
		Now:    f.clock.Now,
		Logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(&deps)
	}
	f.svc = NewMeasureTaskService(deps)
	require.NotNil(t, f.svc)
	return f
}

func adminSession() *domain.Session {
	return &domain.Session{TenantID: tenantA, UserID: "admin-1", Roles: []string{domain.RoleAdmin}}
}

func salesSession() *domain.Session {
	return &domain.Session{TenantID: tenantA, UserID: "sales-1", Roles: []string{domain.RoleSales}}
}

func managerSession() *domain.Session {
	return &domain.Session{TenantID: tenantA, UserID: "sm-1", Roles: []string{domain.RoleStoreManager}}
}

func workerSession() *domain.Session {
	return &domain.Session{TenantID: tenantA, UserID: workerID, Roles: []string{domain.RoleWorker}}
}

// markFeePaid 标记线索已支付测量费
func (f *fixture) markFeePaid(tenantID, leadID string) {
	f.store.AddFeeRecord(repository.MemoryFeeRecord{
		TenantID:   tenantID,
		LeadID:     leadID,
		RecordType: repository.FeeRecordTypePayment,
		Status:     repository.FeeRecordStatusPaid,
	})
}

// createPending 已付费的标准客户任务（PENDING）
func (f *fixture) createPending(t require.TestingT) *domain.MeasureTask {
	f.markFeePaid(tenantA, leadStd)
	resp, err := f.svc.CreateTask(context.Background(), salesSession(), CreateTaskRequest{CustomerID: customerStd})
	require.NoError(t, err)
	require.Equal(t, domain.MeasureTaskStatusPending, resp.Task.Status)
	return resp.Task
}

// advanceTo 把任务推进到指定状态
func (f *fixture) advanceTo(t require.TestingT, status domain.MeasureTaskStatus) *domain.MeasureTask {
	ctx := context.Background()
	task := f.createPending(t)
	if status == domain.MeasureTaskStatusPending {
		return task
	}

	scheduled := baseTime.Add(2 * time.Hour)
	task, err := f.svc.DispatchTask(ctx, managerSession(), DispatchTaskRequest{TaskID: task.TaskID, WorkerID: workerID, ScheduledAt: &scheduled})
	require.NoError(t, err)
	if status == domain.MeasureTaskStatusDispatching {
		return task
	}

	task, err = f.svc.AcceptTask(ctx, workerSession(), task.TaskID)
	require.NoError(t, err)
	if status == domain.MeasureTaskStatusPendingVisit {
		return task
	}

	sub, err := f.svc.SubmitMeasureData(ctx, workerSession(), SubmitMeasureDataRequest{
		TaskID: task.TaskID,
		Items:  []domain.MeasureItem{sampleItem("客厅")},
	})
	require.NoError(t, err)
	task = sub.Task
	if status == domain.MeasureTaskStatusPendingConfirm {
		return task
	}

	task, err = f.svc.ReviewTask(ctx, salesSession(), ReviewTaskRequest{TaskID: task.TaskID, Approved: true})
	require.NoError(t, err)
	require.Equal(t, domain.MeasureTaskStatusCompleted, task.Status)
	return task
}

func sampleItem(room string) domain.MeasureItem {
	return domain.MeasureItem{
		RoomName:     room,
		WindowType:   domain.WindowTypeStraight,
		Width:        240,
		Height:       260,
		InstallType:  domain.InstallTypeTop,
		WallMaterial: domain.WallMaterialConcrete,
	}
}

func (f *fixture) task(t require.TestingT, taskID string) *domain.MeasureTask {
	task, err := f.store.GetTask(context.Background(), tenantA, taskID)
	require.NoError(t, err)
	return task
}
