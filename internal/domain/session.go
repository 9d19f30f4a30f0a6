package domain

import "strings"

// 角色代码
const (
	RoleAdmin        = "ADMIN"
	RoleSales        = "SALES"
	RoleStoreManager = "STORE_MANAGER"
	RoleAreaManager  = "AREA_MANAGER"
	RoleWorker       = "WORKER"
)

// Session 调用方会话（由鉴权层提供）
type Session struct {
	TenantID string
	UserID   string
	Roles    []string
}

// Valid 租户和用户都必须存在
func (s *Session) Valid() bool {
	return s != nil && strings.TrimSpace(s.TenantID) != "" && strings.TrimSpace(s.UserID) != ""
}

// HasRole 大小写不敏感
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole 拥有任一角色
func (s *Session) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}
