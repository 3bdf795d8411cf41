// Package result 提供统一的成功/失败信封 Result[T]。
// 不变式：Success 为 true 当且仅当 Error 为 nil；Success 为 false 当且仅当 Data 为 nil。
package result

import (
	"context"
	"fmt"

	"report-intake-go/pkg/errs"
)

// Result 是所有可失败操作的返回信封。
type Result[T any] struct {
	Success bool        `json:"success"`
	Data    *T          `json:"data"`
	Error   *errs.Error `json:"error"`
}

// Ok 构造成功信封。
func Ok[T any](v T) Result[T] {
	return Result[T]{Success: true, Data: &v}
}

// Fail 构造失败信封，err 会经 errs.From 归类；nil 视为系统错误。
func Fail[T any](err error) Result[T] {
	e := errs.From(err)
	if e == nil {
		e = errs.New(errs.SystemFailure, "failure without error")
	}
	return Result[T]{Error: e}
}

// From 将 (值, 错误) 二元组转换为信封。
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// Value 返回数据，失败时返回零值。
func (r Result[T]) Value() T {
	var zero T
	if r.Data == nil {
		return zero
	}
	return *r.Data
}

// Unwrap 还原为 Go 惯用的 (值, 错误) 形式。
func (r Result[T]) Unwrap() (T, error) {
	if !r.Success {
		var zero T
		return zero, r.Error
	}
	return r.Value(), nil
}

// Kind 返回失败分类，成功时为空。
func (r Result[T]) Kind() errs.Kind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}

// Map 仅在成功时变换数据，失败原样透传。
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if !r.Success {
		return Result[U]{Error: r.Error}
	}
	return Ok(f(r.Value()))
}

// Chain 串联一个依赖前一步结果的可失败步骤，遇到首个失败即短路。
func Chain[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if !r.Success {
		return Result[U]{Error: r.Error}
	}
	return f(r.Value())
}

// Attempt 执行 f 并将其错误或 panic 转换为信封。
// 已带分类的错误保持原分类，不根据文本重新推断。
func Attempt[T any](f func() (T, error)) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail[T](recovered(p))
		}
	}()
	return From(f())
}

// AttemptAsync 在独立的 goroutine 中执行 f，结果通过容量为 1 的通道返回。
// ctx 在 f 完成前被取消时，通道返回取消对应的失败信封。
func AttemptAsync[T any](ctx context.Context, f func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	done := make(chan Result[T], 1)
	go func() {
		done <- Attempt(func() (T, error) { return f(ctx) })
	}()
	go func() {
		select {
		case r := <-done:
			out <- r
		case <-ctx.Done():
			out <- Fail[T](ctx.Err())
		}
	}()
	return out
}

// recovered 将 panic 值转换为错误；若 panic 值本身是分类错误则保留。
func recovered(p any) error {
	switch v := p.(type) {
	case *errs.Error:
		return v
	case error:
		return errs.Wrap(errs.SystemFailure, "panic: "+v.Error(), v)
	default:
		return errs.New(errs.SystemFailure, fmt.Sprintf("panic: %v", v))
	}
}
