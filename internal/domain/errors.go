package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，表现层据此区分"鉴权/校验失败"、"业务规则拒绝"和"可重试的并发冲突"
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "UNAUTHORIZED" // 无会话、角色不符、非指派测量师
	KindValidation   ErrorKind = "VALIDATION"   // 入参不合法、交叉引用不一致
	KindNotFound     ErrorKind = "NOT_FOUND"    // 租户内不存在
	KindState        ErrorKind = "STATE"        // 当前状态不允许该操作（业务错误）
	KindConcurrency  ErrorKind = "CONCURRENCY"  // 锁超时 / 死锁 / 唯一约束冲突，整体重试即可
	KindDownstream   ErrorKind = "DOWNSTREAM"   // 审批等下游协作方失败
	KindInternal     ErrorKind = "INTERNAL"
)

// Error 测量任务引擎统一错误
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Code 匹配，使 errors.Is(err, ErrVariantOverflow) 对包装过的错误同样成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Retryable 只有并发冲突可以由调用方整体重试
func (e *Error) Retryable() bool { return e.Kind == KindConcurrency }

var (
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "unauthorized"}
	ErrForbidden            = &Error{Kind: KindUnauthorized, Code: "FORBIDDEN", Message: "permission denied"}
	ErrNotAssignedWorker    = &Error{Kind: KindUnauthorized, Code: "NOT_ASSIGNED_WORKER", Message: "only the assigned worker can perform this operation"}
	ErrTaskNotFound         = &Error{Kind: KindNotFound, Code: "TASK_NOT_FOUND", Message: "measure task not found"}
	ErrInvalidTransition    = &Error{Kind: KindState, Code: "INVALID_TRANSITION", Message: "operation not allowed in current status"}
	ErrTaskCompleted        = &Error{Kind: KindState, Code: "TASK_COMPLETED", Message: "completed task cannot be modified"}
	ErrCannotSplitCompleted = &Error{Kind: KindState, Code: "CANNOT_SPLIT_COMPLETED", Message: "cannot split completed task"}
	ErrVariantOverflow      = &Error{Kind: KindState, Code: "VARIANT_OVERFLOW", Message: "variant letters exhausted for current round"}
	ErrSequenceOverflow     = &Error{Kind: KindState, Code: "SEQUENCE_OVERFLOW", Message: "daily measure number sequence exhausted"}
	ErrFeeNotCleared        = &Error{Kind: KindState, Code: "FEE_NOT_CLEARED", Message: "measurement fee not cleared and no exemption in force"}
	ErrOutOfGeofence        = &Error{Kind: KindState, Code: "OUT_OF_GEOFENCE", Message: "check-in location out of range"}
	ErrLeadMismatch         = &Error{Kind: KindValidation, Code: "LEAD_MISMATCH", Message: "lead does not match customer's source lead"}
	ErrApprovalSubmitFailed = &Error{Kind: KindDownstream, Code: "APPROVAL_SUBMIT_FAILED", Message: "failed to submit approval"}
	ErrConcurrentUpdate     = &Error{Kind: KindConcurrency, Code: "CONCURRENT_UPDATE", Message: "concurrent update, please retry"}
)

// NewValidationError 入参校验错误
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION", Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError 租户内实体不存在
func NewNotFoundError(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: entity + " not found"}
}

// NewStateError 带上下文的状态错误，Code 与 base 相同以便 errors.Is 匹配
func NewStateError(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 以 base 的分类包装底层错误
func Wrap(base *Error, err error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: err}
}

// NewInternalError 未分类的内部错误
func NewInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
}

// KindOf 取错误分类；非 *Error 视为内部错误
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError 将任意错误规整为 *Error
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternalError(err)
}
