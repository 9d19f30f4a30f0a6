package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// LockLatestMeasureNo 锁定 (tenant, prefix) 并返回当前最大单号
// 事务级咨询锁串行化同一租户同一天的分配；当天第一个单号没有行可锁，只靠咨询锁
// 锁等待超过 lock_timeout 时返回 55P03，由上层归类为并发冲突
func (t *postgresMeasureTx) LockLatestMeasureNo(ctx context.Context, tenantID, prefix string) (string, error) {
	if tenantID == "" || prefix == "" {
		return "", fmt.Errorf("tenant_id and prefix are required")
	}

	if t.lockTimeout > 0 {
		// SET 不支持参数占位符
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if _, err := t.tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		tenantID, prefix,
	); err != nil {
		return "", fmt.Errorf("failed to acquire measure_no lock: %w", err)
	}

	var latest string
	err := t.tx.QueryRowContext(ctx, `
		SELECT measure_no
		FROM measure_tasks
		WHERE tenant_id = $1 AND measure_no LIKE $2
		ORDER BY measure_no DESC
		LIMIT 1
		FOR UPDATE`,
		tenantID, prefix+"%",
	).Scan(&latest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest measure_no: %w", err)
	}
	return latest, nil
}
