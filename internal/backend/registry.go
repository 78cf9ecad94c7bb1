package backend

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateBackendName 表示 production 或已注册的 sandbox 已经占用该名称。
var ErrDuplicateBackendName = errors.New("duplicate backend name")

// Registry 持有唯一的 production Backend 以及按注册顺序排列的 sandbox 列表。
// 注册只在 run 之前发生，之后所有请求并发只读。
type Registry struct {
	mu         sync.RWMutex
	production Backend
	sandboxes  []Backend
	names      map[string]struct{}
}

// NewRegistry 使用必填的 production Backend 创建注册表。
func NewRegistry(production Backend) (*Registry, error) {
	if err := production.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		production: production,
		names:      map[string]struct{}{production.Name: {}},
	}, nil
}

// Register 追加一个 sandbox Backend，名称冲突时返回 ErrDuplicateBackendName。
func (r *Registry) Register(b Backend) error {
	if err := b.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[b.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBackendName, b.Name)
	}
	r.names[b.Name] = struct{}{}
	r.sandboxes = append(r.sandboxes, b)
	return nil
}

// MustRegister 在注册失败时 panic，适合示例程序或测试初始化。
func (r *Registry) MustRegister(b Backend) {
	if err := r.Register(b); err != nil {
		panic(err)
	}
}

// Production 返回 production Backend。
func (r *Registry) Production() Backend {
	return r.production
}

// Sandboxes 返回 sandbox 列表的副本（按注册顺序）。
func (r *Registry) Sandboxes() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sandboxes) == 0 {
		return nil
	}
	result := make([]Backend, len(r.sandboxes))
	copy(result, r.sandboxes)
	return result
}

// Lookup 按名称查找 sandbox；production 不参与查找。
func (r *Registry) Lookup(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.sandboxes {
		if b.Name == name {
			return b, true
		}
	}
	return Backend{}, false
}

// SelectByNames 返回名称出现在 names 中的 sandbox，保持注册顺序。
// 未注册的名称直接忽略，不返回错误；重复名称只会命中一次。
func (r *Registry) SelectByNames(names []string) []Backend {
	if len(names) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var selected []Backend
	for _, b := range r.sandboxes {
		if _, ok := wanted[b.Name]; ok {
			selected = append(selected, b)
		}
	}
	return selected
}

// UnknownNames 返回 names 中未注册为 sandbox 的名称，仅用于调试日志。
func (r *Registry) UnknownNames(names []string) []string {
	var unknown []string
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
