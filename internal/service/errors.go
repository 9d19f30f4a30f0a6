package service

import (
	"database/sql"
	"errors"

	"slideboard-measure/internal/database"
	"slideboard-measure/internal/domain"
)

// classifyStoreError 将仓储层错误归类为 domain.Error
// 已分类的错误原样返回
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Wrap(domain.NewNotFoundError("record"), err)
	case database.IsConcurrencyError(err):
		return domain.Wrap(domain.ErrConcurrentUpdate, err)
	default:
		return domain.NewInternalError(err)
	}
}

// classifyTaskLookup 任务不存在时返回 ErrTaskNotFound
func classifyTaskLookup(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wrap(domain.ErrTaskNotFound, err)
	}
	return classifyStoreError(err)
}
