// Package errs 定义了跨组件使用的错误分类体系。
// 错误在发生处即被标注 Kind，之后任何一层都不再根据错误文本重新推断分类。
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind 是错误的分类标签，与任何传输层状态码无关。
type Kind string

const (
	Validation       Kind = "Validation"
	NotFound         Kind = "NotFound"
	AlreadyExists    Kind = "AlreadyExists"
	PermissionDenied Kind = "PermissionDenied"
	RateLimited      Kind = "RateLimited"
	Unavailable      Kind = "Unavailable"
	Timeout          Kind = "Timeout"
	SystemFailure    Kind = "SystemFailure"
	DataIntegrity    Kind = "DataIntegrity"
)

// Kinds 返回全部分类，顺序固定。
func Kinds() []Kind {
	return []Kind{Validation, NotFound, AlreadyExists, PermissionDenied, RateLimited, Unavailable, Timeout, SystemFailure, DataIntegrity}
}

// Error 是带分类的结构化错误。
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Inner   error          `json:"-"`
}

// New 创建一个指定分类的错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf 使用格式化字符串创建一个指定分类的错误。
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 为底层错误附加分类和描述。inner 为 nil 时等价于 New。
func Wrap(kind Kind, message string, inner error) *Error {
	return &Error{Kind: kind, Message: message, Inner: inner}
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// WithDetail 返回附加了一个细节键值的副本，原错误不变。
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

// Is 让 errors.Is(err, errs.New(kind, "")) 按分类匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// From 将任意错误转换为 *Error。
// 若错误链中已存在 *Error，则原样返回，保留其分类与细节。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(Timeout, "operation timed out", err)
	case errors.Is(err, context.Canceled):
		return Wrap(Unavailable, "operation cancelled", err)
	}
	return Wrap(SystemFailure, err.Error(), err)
}

// KindOf 返回错误的分类，nil 返回空字符串。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// IsKind 判断错误是否属于指定分类。
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
