package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/repository"
)

const (
	measureNoPrefix = "M"
	measureNoSeqMax = 9999
)

// MeasureNoAllocator 测量单号分配器
// 单号格式：M + YYYYMMDD + 4 位当日序号，(租户, 日期) 内唯一
// 必须在调用方事务内使用：序号锁随事务提交/回滚释放
type MeasureNoAllocator struct {
	now func() time.Time
}

// NewMeasureNoAllocator now 为 nil 时使用 time.Now
func NewMeasureNoAllocator(now func() time.Time) *MeasureNoAllocator {
	if now == nil {
		now = time.Now
	}
	return &MeasureNoAllocator{now: now}
}

// Prefix 当日单号前缀
func (a *MeasureNoAllocator) Prefix() string {
	return measureNoPrefix + a.now().Format("20060102")
}

// Allocate 分配下一个单号
// 锁超时 / 死锁由 classifyStoreError 归为并发冲突，这里不做重试
func (a *MeasureNoAllocator) Allocate(ctx context.Context, tx repository.MeasureTx, tenantID string) (string, error) {
	prefix := a.Prefix()

	latest, err := tx.LockLatestMeasureNo(ctx, tenantID, prefix)
	if err != nil {
		return "", classifyStoreError(err)
	}

	seq, err := nextSequence(prefix, latest)
	if err != nil {
		return "", err
	}
	return domain.FormatMeasureNo(prefix, seq), nil
}

func nextSequence(prefix, latest string) (int, error) {
	if latest == "" {
		return 1, nil
	}
	if len(latest) <= len(prefix) || latest[:len(prefix)] != prefix {
		return 0, domain.NewInternalError(fmt.Errorf("measure_no %q does not match prefix %q", latest, prefix))
	}
	seq, err := strconv.Atoi(latest[len(prefix):])
	if err != nil {
		return 0, domain.NewInternalError(fmt.Errorf("invalid measure_no sequence %q: %w", latest, err))
	}
	if seq >= measureNoSeqMax {
		return 0, domain.NewStateError(domain.ErrSequenceOverflow, "measure number sequence for %s exhausted", prefix)
	}
	return seq + 1, nil
}
