package hooks

import (
	"net/http"
	"time"

	"github.com/schatten/schatten/internal/backend"
)

// Outcome mirrors the proxy's per-backend response record. Err 非空表示失败，
// 此时 Status/Header/Body 均为空值。写入聚合结果后不再修改。
type Outcome struct {
	Backend string
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
	Err     error
}

// Failed 表示该 backend 的请求没有拿到响应。
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// SelectionHook 根据请求方法返回需要镜像的 sandbox 名称。
type SelectionHook interface {
	SelectBackends(method string) []string
}

// HeaderMungeHook 在发往 target 之前修改该 target 独占的 header 副本。
type HeaderMungeHook interface {
	MungeHeaders(header http.Header, target backend.Backend)
}

// CompletionHook 在所有参与者都有结果后调用一次，participants 以 production 开头。
type CompletionHook interface {
	BackendsFinished(results map[string]Outcome, participants []backend.Backend)
}

// SelectionFunc adapts a plain function to SelectionHook.
type SelectionFunc func(method string) []string

// SelectBackends implements SelectionHook.
func (f SelectionFunc) SelectBackends(method string) []string {
	return f(method)
}

// HeaderMungeFunc adapts a plain function to HeaderMungeHook.
type HeaderMungeFunc func(header http.Header, target backend.Backend)

// MungeHeaders implements HeaderMungeHook.
func (f HeaderMungeFunc) MungeHeaders(header http.Header, target backend.Backend) {
	f(header, target)
}

// CompletionFunc adapts a plain function to CompletionHook.
type CompletionFunc func(results map[string]Outcome, participants []backend.Backend)

// BackendsFinished implements CompletionHook.
func (f CompletionFunc) BackendsFinished(results map[string]Outcome, participants []backend.Backend) {
	f(results, participants)
}

// Set 汇总三个可选 hook，run 之前设置，之后只读共享。
type Set struct {
	Selection    SelectionHook
	MungeHeaders HeaderMungeHook
	Completion   CompletionHook
}

// Status 返回每类 hook 是否已设置，供诊断接口输出。
func (s Set) Status() map[string]string {
	return map[string]string{
		"selection":  status(s.Selection != nil),
		"munge":      status(s.MungeHeaders != nil),
		"completion": status(s.Completion != nil),
	}
}

func status(set bool) string {
	if set {
		return "set"
	}
	return "unset"
}
