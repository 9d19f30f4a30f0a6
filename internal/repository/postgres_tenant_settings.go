package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresTenantSettingsRepository 租户设置 Repository 实现
type PostgresTenantSettingsRepository struct {
	db *sql.DB
}

func NewPostgresTenantSettingsRepository(db *sql.DB) *PostgresTenantSettingsRepository {
	return &PostgresTenantSettingsRepository{db: db}
}

var _ TenantSettingsRepository = (*PostgresTenantSettingsRepository)(nil)

// GetSetting 租户设置优先于系统默认
func (r *PostgresTenantSettingsRepository) GetSetting(ctx context.Context, tenantID, key string) (string, bool, error) {
	if key == "" {
		return "", false, fmt.Errorf("setting key is required")
	}
	if tenantID == "" {
		tenantID = SystemTenantID
	}

	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value
		FROM tenant_settings
		WHERE key = $2 AND tenant_id IN ($1, $3)
		ORDER BY CASE WHEN tenant_id = $1 THEN 0 ELSE 1 END
		LIMIT 1`,
		tenantID, key, SystemTenantID,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get tenant setting %s: %w", key, err)
	}
	return value, true, nil
}
