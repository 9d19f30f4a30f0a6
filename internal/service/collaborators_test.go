package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
	"slideboard-measure/internal/store"
)

// countingSettings 记录查库次数
type countingSettings struct {
	*repository.MemoryTenantSettings
	calls int
}

func (c *countingSettings) GetSetting(ctx context.Context, tenantID, key string) (string, bool, error) {
	c.calls++
	return c.MemoryTenantSettings.GetSetting(ctx, tenantID, key)
}

func TestCachedSettingsProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := &countingSettings{MemoryTenantSettings: repository.NewMemoryTenantSettings()}
	repo.Set(tenantA, SettingCheckInGraceMinutes, "20")
	p := NewCachedSettingsProvider(repo, store.NewRedisKV(client), time.Minute, zap.NewNop())
	ctx := context.Background()

	v, err := p.Get(ctx, tenantA, SettingCheckInGraceMinutes, "15")
	require.NoError(t, err)
	assert.Equal(t, "20", v)

	// 缓存命中，不再查库
	repo.Set(tenantA, SettingCheckInGraceMinutes, "30")
	v, err = p.Get(ctx, tenantA, SettingCheckInGraceMinutes, "15")
	require.NoError(t, err)
	assert.Equal(t, "20", v)
	assert.Equal(t, 1, repo.calls)

	require.NoError(t, p.Invalidate(ctx, tenantA, SettingCheckInGraceMinutes))
	v, err = p.Get(ctx, tenantA, SettingCheckInGraceMinutes, "15")
	require.NoError(t, err)
	assert.Equal(t, "30", v)

	// 未配置也缓存
	v, err = p.Get(ctx, tenantB, SettingCheckInGraceMinutes, "15")
	require.NoError(t, err)
	assert.Equal(t, "15", v)
	v, err = p.Get(ctx, tenantB, SettingCheckInGraceMinutes, "15")
	require.NoError(t, err)
	assert.Equal(t, "15", v)
	assert.Equal(t, 3, repo.calls)

	// 过期后重新查库
	mr.FastForward(2 * time.Minute)
	_, err = p.Get(ctx, tenantB, SettingCheckInGraceMinutes, "15")
	require.NoError(t, err)
	assert.Equal(t, 4, repo.calls)
}

func TestCachedSettingsProvider_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	repo := repository.NewMemoryTenantSettings()
	repo.Set(repository.SystemTenantID, SettingFeeRequired, "false")
	p := NewCachedSettingsProvider(repo, store.NewRedisKV(client), time.Minute, zap.NewNop())

	v, err := p.Get(context.Background(), tenantA, SettingFeeRequired, "true")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
}

func TestSettingInt(t *testing.T) {
	repo := repository.NewMemoryTenantSettings()
	p := NewRepositorySettingsProvider(repo)
	ctx := context.Background()

	assert.Equal(t, 15, settingInt(ctx, p, zap.NewNop(), tenantA, SettingCheckInGraceMinutes, 15))
	repo.Set(tenantA, SettingCheckInGraceMinutes, " 5 ")
	assert.Equal(t, 5, settingInt(ctx, p, zap.NewNop(), tenantA, SettingCheckInGraceMinutes, 15))
	repo.Set(tenantA, SettingCheckInGraceMinutes, "soon")
	assert.Equal(t, 15, settingInt(ctx, p, zap.NewNop(), tenantA, SettingCheckInGraceMinutes, 15))
	repo.Set(tenantA, SettingCheckInGraceMinutes, "-3")
	assert.Equal(t, 15, settingInt(ctx, p, zap.NewNop(), tenantA, SettingCheckInGraceMinutes, 15))
}

func TestRolePermissionChecker(t *testing.T) {
	perms := repository.NewMemoryRolePermissions()
	perms.Grant("", domain.RoleStoreManager, "measure_tasks", "dispatch")
	perms.Grant(tenantB, domain.RoleSales, "measure_tasks", "dispatch")
	c := NewRolePermissionChecker(perms)
	ctx := context.Background()

	assert.NoError(t, c.Check(ctx, adminSession(), PermSplit))
	assert.NoError(t, c.Check(ctx, managerSession(), PermDispatch))
	assert.True(t, errors.Is(c.Check(ctx, managerSession(), PermSplit), domain.ErrForbidden))
	assert.True(t, errors.Is(c.Check(ctx, salesSession(), PermDispatch), domain.ErrForbidden))
	assert.NoError(t, c.Check(ctx, &domain.Session{TenantID: tenantB, UserID: "s", Roles: []string{"sales"}}, PermDispatch))
	assert.True(t, errors.Is(c.Check(ctx, &domain.Session{TenantID: tenantA}, PermDispatch), domain.ErrUnauthorized))
	assert.True(t, errors.Is(c.Check(ctx, &domain.Session{TenantID: tenantA, UserID: "u"}, PermDispatch), domain.ErrForbidden))

	r, p := PermApproveFee.Split()
	assert.Equal(t, "measure_tasks", r)
	assert.Equal(t, "approve_fee", p)
}

func TestEscalationRoles(t *testing.T) {
	assert.Empty(t, EscalationRoles(0))
	assert.Empty(t, EscalationRoles(2))
	assert.Equal(t, []string{domain.RoleStoreManager}, EscalationRoles(3))
	assert.Equal(t, []string{domain.RoleStoreManager, domain.RoleAreaManager}, EscalationRoles(4))
	assert.Equal(t, []string{domain.RoleStoreManager, domain.RoleAreaManager}, EscalationRoles(9))
}

// failingUsers 用户目录不可用
type failingUsers struct{}

func (failingUsers) ListActiveUserIDsByRole(context.Context, string, string) ([]string, error) {
	return nil, errors.New("directory unavailable")
}

func TestEscalationNotifier_Notify(t *testing.T) {
	users := repository.NewMemoryUsers()
	users.Add(tenantA, domain.RoleStoreManager, "sm-1")
	users.Add(tenantA, domain.RoleAreaManager, "am-1")
	users.Add(tenantB, domain.RoleStoreManager, "sm-other")
	sender := &recordingSender{}
	n := NewEscalationNotifier(users, sender, 2, zap.NewNop())
	task := &domain.MeasureTask{TaskID: "k1", TenantID: tenantA, MeasureNo: "M202401150001", RejectReason: "尺寸不全"}

	task.RejectCount = 2
	assert.Equal(t, 0, n.Notify(context.Background(), task))

	task.RejectCount = 3
	assert.Equal(t, 1, n.Notify(context.Background(), task))
	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "sm-1", sent[0].UserID)
	assert.Equal(t, "/service/measurement/k1", sent[0].Link)
	assert.Contains(t, sent[0].Content, "尺寸不全")

	sender.Reset()
	task.RejectCount = 4
	assert.Equal(t, 2, n.Notify(context.Background(), task))

	// 错误全部吞掉
	assert.Equal(t, 0, NewEscalationNotifier(failingUsers{}, sender, 2, zap.NewNop()).Notify(context.Background(), task))
	assert.Equal(t, 0, NewEscalationNotifier(users, &recordingSender{err: errors.New("down")}, 0, zap.NewNop()).Notify(context.Background(), task))
}

func TestDiffTask(t *testing.T) {
	before := &domain.MeasureTask{TaskID: "k1", Status: domain.MeasureTaskStatusPending, Round: 1, Variant: "A"}
	after := before.Clone()
	after.Status = domain.MeasureTaskStatusDispatching
	after.AssignedWorkerID = "w1"

	diff := DiffTask(before, after)
	require.Len(t, diff, 2)
	assert.Equal(t, map[string]any{"old": "PENDING", "new": "DISPATCHING"}, diff["status"])
	assert.Equal(t, map[string]any{"old": "", "new": "w1"}, diff["assignedWorker"])

	after2 := after.Clone()
	after2.CheckInInfo = []byte(`{"lateMinutes":3}`)
	diff = DiffTask(after, after2)
	assert.Contains(t, diff, "checkInInfo")

	assert.Empty(t, DiffTask(after2, after2.Clone()))
	assert.Nil(t, DiffTask(nil, after))
}

func TestDistanceAndLateness(t *testing.T) {
	a := GeoPoint{Latitude: 0, Longitude: 0}
	b := GeoPoint{Latitude: 1, Longitude: 0}
	assert.InDelta(t, 111195, DistanceMeters(a, b), 1)
	assert.Equal(t, 0.0, DistanceMeters(a, a))
	assert.False(t, math.IsNaN(DistanceMeters(GeoPoint{Latitude: 90}, GeoPoint{Latitude: -90})))

	scheduled := baseTime
	assert.Equal(t, 0, LateMinutes(nil, baseTime, 0))
	assert.Equal(t, 0, LateMinutes(&scheduled, baseTime.Add(15*time.Minute), 15*time.Minute))
	assert.Equal(t, 0, LateMinutes(&scheduled, baseTime.Add(15*time.Minute+59*time.Second), 15*time.Minute))
	assert.Equal(t, 1, LateMinutes(&scheduled, baseTime.Add(16*time.Minute), 15*time.Minute))
	assert.Equal(t, 0, LateMinutes(&scheduled, baseTime.Add(-time.Hour), 15*time.Minute))

	assert.False(t, GeoPoint{Latitude: 91}.Valid())
	assert.True(t, GeoPoint{Latitude: -33.86, Longitude: 151.2}.Valid())
}

func TestComputeCheckIn_Message(t *testing.T) {
	scheduled := baseTime.Add(-time.Hour)
	target := GeoPoint{Latitude: 1, Longitude: 1}
	r := ComputeCheckIn(GeoPoint{Latitude: 2, Longitude: 1}, &target, 500, &scheduled, baseTime, 15)
	assert.Equal(t, "签到成功，迟到 45 分钟，不在签到范围内", r.Message)
	assert.Equal(t, 500.0, r.ToleranceMeters)
}
