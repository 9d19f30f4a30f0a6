package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryTenantSettings 内存版租户设置
type MemoryTenantSettings struct {
	mu       sync.RWMutex
	settings map[string]string // tenantID + "/" + key -> value
}

func NewMemoryTenantSettings() *MemoryTenantSettings {
	return &MemoryTenantSettings{settings: map[string]string{}}
}

var _ TenantSettingsRepository = (*MemoryTenantSettings)(nil)

func (r *MemoryTenantSettings) Set(tenantID, key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[tenantID+"/"+key] = value
}

func (r *MemoryTenantSettings) GetSetting(_ context.Context, tenantID, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.settings[tenantID+"/"+key]; ok {
		return v, true, nil
	}
	if v, ok := r.settings[SystemTenantID+"/"+key]; ok {
		return v, true, nil
	}
	return "", false, nil
}

// MemoryUsers 内存版用户目录
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]map[string][]string // tenantID -> role -> userIDs
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: map[string]map[string][]string{}}
}

var _ UsersRepository = (*MemoryUsers)(nil)

func (r *MemoryUsers) Add(tenantID, roleCode, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[tenantID] == nil {
		r.users[tenantID] = map[string][]string{}
	}
	r.users[tenantID][roleCode] = append(r.users[tenantID][roleCode], userID)
}

func (r *MemoryUsers) ListActiveUserIDsByRole(_ context.Context, tenantID, roleCode string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := append([]string{}, r.users[tenantID][roleCode]...)
	sort.Strings(ids)
	return ids, nil
}

// MemoryRolePermissions 内存版角色权限
type MemoryRolePermissions struct {
	mu    sync.RWMutex
	perms map[string]bool // tenantID|role|resource|permission
}

func NewMemoryRolePermissions() *MemoryRolePermissions {
	return &MemoryRolePermissions{perms: map[string]bool{}}
}

var _ RolePermissionsRepository = (*MemoryRolePermissions)(nil)

func permKey(tenantID, role, resourceType, permissionType string) string {
	return strings.Join([]string{tenantID, strings.ToUpper(role), resourceType, permissionType}, "|")
}

// Grant tenantID 为空表示系统默认
func (r *MemoryRolePermissions) Grant(tenantID, roleCode, resourceType, permissionType string) {
	if tenantID == "" {
		tenantID = SystemTenantID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms[permKey(tenantID, roleCode, resourceType, permissionType)] = true
}

func (r *MemoryRolePermissions) HasPermission(_ context.Context, tenantID string, roleCodes []string, resourceType, permissionType string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range roleCodes {
		if r.perms[permKey(tenantID, role, resourceType, permissionType)] ||
			r.perms[permKey(SystemTenantID, role, resourceType, permissionType)] {
			return true, nil
		}
	}
	return false, nil
}
