package service

import (
	"context"
	"strings"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

// PermissionKey 权限标识 resource_type:permission_type
type PermissionKey string

const (
	PermCreate     PermissionKey = "measure_tasks:create"
	PermDispatch   PermissionKey = "measure_tasks:dispatch"
	PermReject     PermissionKey = "measure_tasks:reject"
	PermSplit      PermissionKey = "measure_tasks:split"
	PermVersion    PermissionKey = "measure_tasks:version"
	PermApproveFee PermissionKey = "measure_tasks:approve_fee"
)

// Split 拆成 (resourceType, permissionType)
func (k PermissionKey) Split() (string, string) {
	parts := strings.SplitN(string(k), ":", 2)
	if len(parts) != 2 {
		return string(k), ""
	}
	return parts[0], parts[1]
}

// PermissionChecker 权限检查，拒绝时返回 KindUnauthorized 错误
type PermissionChecker interface {
	Check(ctx context.Context, session *domain.Session, key PermissionKey) error
}

// RolePermissionChecker 基于 role_permissions 表，ADMIN 拥有全部权限
type RolePermissionChecker struct {
	repo repository.RolePermissionsRepository
}

func NewRolePermissionChecker(repo repository.RolePermissionsRepository) *RolePermissionChecker {
	return &RolePermissionChecker{repo: repo}
}

func (c *RolePermissionChecker) Check(ctx context.Context, session *domain.Session, key PermissionKey) error {
	if !session.Valid() {
		return domain.ErrUnauthorized
	}
	if session.HasRole(domain.RoleAdmin) {
		return nil
	}
	if len(session.Roles) == 0 {
		return domain.NewStateError(domain.ErrForbidden, "permission %s denied: no role", key)
	}

	resourceType, permissionType := key.Split()
	ok, err := c.repo.HasPermission(ctx, session.TenantID, session.Roles, resourceType, permissionType)
	if err != nil {
		return domain.NewInternalError(err)
	}
	if !ok {
		return domain.NewStateError(domain.ErrForbidden, "permission %s denied", key)
	}
	return nil
}
