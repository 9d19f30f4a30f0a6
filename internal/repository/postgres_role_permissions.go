package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresRolePermissionsRepository 角色权限 Repository 实现
type PostgresRolePermissionsRepository struct {
	db *sql.DB
}

func NewPostgresRolePermissionsRepository(db *sql.DB) *PostgresRolePermissionsRepository {
	return &PostgresRolePermissionsRepository{db: db}
}

var _ RolePermissionsRepository = (*PostgresRolePermissionsRepository)(nil)

// HasPermission 查询租户配置及系统默认权限
func (r *PostgresRolePermissionsRepository) HasPermission(ctx context.Context, tenantID string, roleCodes []string, resourceType, permissionType string) (bool, error) {
	if len(roleCodes) == 0 || resourceType == "" || permissionType == "" {
		return false, nil
	}
	if tenantID == "" {
		tenantID = SystemTenantID
	}

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_permissions
			WHERE tenant_id IN ($1, $2)
			  AND role_code = ANY($3)
			  AND resource_type = $4
			  AND permission_type = $5
			  AND is_active = TRUE
		)`,
		tenantID, SystemTenantID, pq.Array(roleCodes), resourceType, permissionType,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to query role permission: %w", err)
	}
	return exists, nil
}
