package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"slideboard-measure/internal/domain"
)

// queryer *sql.DB 与 *sql.Tx 的公共部分
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresMeasureStore 测量任务存储的 PostgreSQL 实现
type PostgresMeasureStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresMeasureStore lockTimeout 为测量单号分配时的锁等待上限（<=0 不设置）
func NewPostgresMeasureStore(db *sql.DB, lockTimeout time.Duration) *PostgresMeasureStore {
	return &PostgresMeasureStore{db: db, lockTimeout: lockTimeout}
}

// 确保实现了接口
var _ MeasureStore = (*PostgresMeasureStore)(nil)
var _ MeasureTx = (*postgresMeasureTx)(nil)

// RunInTx 在一个数据库事务内执行 fn
func (s *PostgresMeasureStore) RunInTx(ctx context.Context, fn func(tx MeasureTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresMeasureTx{tx: tx, lockTimeout: s.lockTimeout}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresMeasureTx 事务句柄
type postgresMeasureTx struct {
	tx          *sql.Tx
	lockTimeout time.Duration
}

// --- 只读查询（事务外） ---

func (s *PostgresMeasureStore) GetTask(ctx context.Context, tenantID, taskID string) (*domain.MeasureTask, error) {
	return getMeasureTask(ctx, s.db, tenantID, taskID, false)
}

func (s *PostgresMeasureStore) ListTasks(ctx context.Context, tenantID string, filters *TaskFilters, page, size int) ([]*domain.MeasureTask, int, error) {
	return listMeasureTasks(ctx, s.db, tenantID, filters, page, size)
}

func (s *PostgresMeasureStore) ListSheets(ctx context.Context, tenantID, taskID string) ([]*domain.MeasureSheet, error) {
	return listMeasureSheets(ctx, s.db, tenantID, taskID)
}

func (s *PostgresMeasureStore) GetSheet(ctx context.Context, tenantID, taskID, sheetID string) (*domain.MeasureSheet, error) {
	return getMeasureSheet(ctx, s.db, tenantID, taskID, sheetID)
}

func (s *PostgresMeasureStore) ListRejections(ctx context.Context, tenantID, taskID string) ([]*domain.RejectionHistoryEntry, error) {
	return listRejections(ctx, s.db, tenantID, taskID)
}

func (s *PostgresMeasureStore) ListSplitRecords(ctx context.Context, tenantID, taskID string) ([]*domain.TaskSplitRecord, error) {
	return listSplitRecords(ctx, s.db, tenantID, taskID)
}

func (s *PostgresMeasureStore) ListAuditLogs(ctx context.Context, tenantID, tableName, recordID string) ([]*domain.AuditLog, error) {
	return listAuditLogs(ctx, s.db, tenantID, tableName, recordID)
}

// --- 参数转换 ---

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// nullJSON JSONB 参数以文本传入
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
