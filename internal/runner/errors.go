package runner

import (
	"errors"
	"time"
)

// Kind 单站点失败类型
type Kind string

const (
	KindUnreachable  Kind = "Unreachable"
	KindFormNotFound Kind = "FormNotFound"
	KindTimedOut     Kind = "TimedOut"
	KindCancelled    Kind = "Cancelled"
	KindInternal     Kind = "Internal"
)

// 对外展示的失败原因
const (
	ReasonUnreachable  = "unreachable"
	ReasonFormNotFound = "form not found"
	ReasonCancelled    = "cancelled"
	ReasonUnavailable  = "browser unavailable"
)

// TaskError 单站点失败，Reason 给前端展示，Err 为原始错误写日志
type TaskError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *TaskError) Error() string {
	return e.Reason
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// MetricLabel 指标标签
func (k Kind) MetricLabel() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindFormNotFound:
		return "form_not_found"
	case KindTimedOut:
		return "timed_out"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// IsKind 判断 err 是否为指定类型的 TaskError
func IsKind(err error, kind Kind) bool {
	var te *TaskError
	return errors.As(err, &te) && te.Kind == kind
}

func unreachable(err error) *TaskError {
	return &TaskError{Kind: KindUnreachable, Reason: ReasonUnreachable, Err: err}
}

func formNotFound(err error) *TaskError {
	return &TaskError{Kind: KindFormNotFound, Reason: ReasonFormNotFound, Err: err}
}

func timedOut(limit time.Duration, err error) *TaskError {
	return &TaskError{Kind: KindTimedOut, Reason: "timed out after " + limit.String(), Err: err}
}

func cancelled(err error) *TaskError {
	return &TaskError{Kind: KindCancelled, Reason: ReasonCancelled, Err: err}
}

func internal(reason string, err error) *TaskError {
	if reason == "" && err != nil {
		reason = err.Error()
	}
	return &TaskError{Kind: KindInternal, Reason: reason, Err: err}
}
