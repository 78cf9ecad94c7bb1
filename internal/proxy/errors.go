package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable 表示连接拒绝、超时或读取响应失败等传输层错误。
	ErrUnreachable = errors.New("backend unreachable")
	// ErrProductionDispatchFailed 是 production backend 的 ErrUnreachable，整个请求以 502 结束。
	ErrProductionDispatchFailed = errors.New("production dispatch failed")
	// ErrHookPanicked 表示 HeaderMungeHook 在为该 target 处理 header 时 panic。
	ErrHookPanicked = errors.New("header munge hook panicked")
)

// DispatchError 描述一次分发失败，同时 unwrap 到错误类别与底层原因。
type DispatchError struct {
	Backend string
	Kind    error
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newDispatchError(backendName string, kind, cause error) *DispatchError {
	return &DispatchError{Backend: backendName, Kind: kind, Err: cause}
}

// asProductionFailure 把 production 的分发错误提升为 ErrProductionDispatchFailed，保留原始类别。
func asProductionFailure(err error) error {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return &DispatchError{
			Backend: dispatchErr.Backend,
			Kind:    ErrProductionDispatchFailed,
			Err:     dispatchErr,
		}
	}
	return &DispatchError{Kind: ErrProductionDispatchFailed, Err: err}
}
