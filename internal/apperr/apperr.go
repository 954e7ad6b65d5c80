// Package apperr 定义业务错误分类，HTTP 层据此映射状态码。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 是错误分类。
type Kind int

const (
	Internal Kind = iota
	NotFound
	InvalidInput
	InsufficientStock
	Unauthorized
	Conflict
	TransactionFailure
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case InsufficientStock:
		return "insufficient_stock"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case TransactionFailure:
		return "transaction_failure"
	default:
		return "internal"
	}
}

// Error 携带分类、可对外展示的 Msg，以及内部原因 Err（不对外暴露）。
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建一个不带原因的业务错误。
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 在 err 外包一层业务分类。
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误链上最外层 *Error 的分类；非业务错误一律视为 Internal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is 判断错误链上是否存在指定分类（包括被 TransactionFailure 包裹的原因）。
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Message 返回可安全展示给调用方的文案。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Msg
	}
	return "internal server error"
}
