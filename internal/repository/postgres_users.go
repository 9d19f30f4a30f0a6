package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresUsersRepository 用户目录 Repository 实现
type PostgresUsersRepository struct {
	db *sql.DB
}

func NewPostgresUsersRepository(db *sql.DB) *PostgresUsersRepository {
	return &PostgresUsersRepository{db: db}
}

var _ UsersRepository = (*PostgresUsersRepository)(nil)

// ListActiveUserIDsByRole 租户内某角色的在职用户
func (r *PostgresUsersRepository) ListActiveUserIDsByRole(ctx context.Context, tenantID, roleCode string) ([]string, error) {
	if tenantID == "" || roleCode == "" {
		return []string{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id::text
		FROM users
		WHERE tenant_id = $1 AND role = $2 AND status = 'active'
		ORDER BY id`,
		tenantID, roleCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
