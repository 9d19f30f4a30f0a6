package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"slideboard-measure/internal/config"
)

const defaultConnectTimeout = 30 * time.Second

func newConnectBackoff(maxElapsed time.Duration) backoff.BackOff {
	// BackOff 有状态，每次连接都新建
	bo := backoff.NewExponentialBackOff()
	if maxElapsed <= 0 {
		maxElapsed = defaultConnectTimeout
	}
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// NewPostgresDB 创建 PostgreSQL 数据库连接
// 启动时数据库可能尚未就绪（容器编排），Ping 按指数退避重试直到 ConnectTimeout
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingErr := db.PingContext(ctx)
		if pingErr != nil && logger != nil {
			logger.Warn("database not ready, retrying",
				zap.Int("attempt", attempt),
				zap.String("host", cfg.Host),
				zap.Error(pingErr),
			)
		}
		return pingErr
	}, backoff.WithContext(newConnectBackoff(cfg.ConnectTimeout), ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
