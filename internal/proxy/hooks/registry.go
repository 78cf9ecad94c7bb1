package hooks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/internal/metrics"
)

var registry sync.Map

var (
	// ErrDuplicateHook indicates a report is already registered under the name.
	ErrDuplicateHook = errors.New("hook already registered")
	// ErrUnknownReport indicates no report is registered under the name.
	ErrUnknownReport = errors.New("report not registered")
)

// ReportOptions 是构建具名 completion hook 的依赖，每个 ProxyServer 各自传入。
type ReportOptions struct {
	Logger        *logrus.Logger
	Metrics       *metrics.Collector
	IgnoreHeaders []string
}

// ReportFactory 为单个 ProxyServer 构建 completion hook，注册表只保存工厂，不保存实例。
type ReportFactory func(ReportOptions) CompletionHook

// Register stores a named report factory so configuration can refer to it by name.
func Register(name string, factory ReportFactory) error {
	key := normalizeKey(name)
	if key == "" {
		return errors.New("hook name required")
	}
	if factory == nil {
		return errors.New("hook factory required")
	}
	if _, loaded := registry.LoadOrStore(key, factory); loaded {
		return ErrDuplicateHook
	}
	return nil
}

// MustRegister panics on registration failure; used from package init.
func MustRegister(name string, factory ReportFactory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Build 用 opts 构建 name 对应的 completion hook，每次调用返回新实例。
func Build(name string, opts ReportOptions) (CompletionHook, error) {
	key := normalizeKey(name)
	value, ok := registry.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	hook := value.(ReportFactory)(opts)
	if hook == nil {
		return nil, fmt.Errorf("report %q built a nil hook", key)
	}
	return hook, nil
}

// Names returns registered report names sorted alphabetically.
func Names() []string {
	var names []string
	registry.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
