package httpapi

import (
	"slideboard-measure/internal/domain"
)

// Result 统一响应结构
// - code: 2000 成功，其余按错误分类
// - type: 'success' | 'error' | 'warning'
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1

	// 业务错误码，按 domain.ErrorKind 映射
	ResultUnauthorized = 4010
	ResultValidation   = 4000
	ResultNotFound     = 4040
	ResultState        = 4090
	ResultRetryable    = 4091 // 并发冲突，客户端可整体重试
	ResultDownstream   = 5020
	ResultInternal     = 5000
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// FailErr 按错误分类生成响应；内部错误不暴露细节
func FailErr(err error) Result[any] {
	de := domain.AsError(err)
	r := Result[any]{Code: resultCode(de.Kind), Type: "error", Message: de.Message}
	if de.Kind == domain.KindConcurrency {
		r.Type = "warning"
	}
	if de.Code != "" {
		r.Result = map[string]any{"errorCode": de.Code}
	}
	return r
}

func resultCode(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnauthorized:
		return ResultUnauthorized
	case domain.KindValidation:
		return ResultValidation
	case domain.KindNotFound:
		return ResultNotFound
	case domain.KindState:
		return ResultState
	case domain.KindConcurrency:
		return ResultRetryable
	case domain.KindDownstream:
		return ResultDownstream
	default:
		return ResultInternal
	}
}
