package database

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE
const (
	codeLockNotAvailable     = "55P03" // lock_timeout 触发
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
	codeQueryCanceled        = "57014" // statement_timeout 触发
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsConcurrencyError 锁等待超时、死锁、序列化失败、唯一约束冲突
// 这些错误意味着整体操作可以由调用方重试
func IsConcurrencyError(err error) bool {
	switch pqCode(err) {
	case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeUniqueViolation, codeQueryCanceled:
		return true
	}
	return false
}

// IsUniqueViolation 唯一约束冲突
func IsUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// IsLockTimeout 锁等待超时
func IsLockTimeout(err error) bool {
	return pqCode(err) == codeLockNotAvailable
}
