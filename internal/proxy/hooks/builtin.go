package hooks

import (
	"net/http"
	"strings"

	"github.com/schatten/schatten/internal/backend"
)

// WildcardMethod 表示 sandbox 接收所有方法的镜像流量。
const WildcardMethod = "*"

// defaultMethods 在 sandbox 未声明 Methods 时使用，只镜像无副作用的读请求。
var defaultMethods = []string{http.MethodGet, http.MethodHead}

// MethodSelector 是按请求方法挑选 sandbox 的内置 SelectionHook。
type MethodSelector struct {
	order []string
	rules map[string]map[string]struct{}
}

// NewMethodSelector 创建空的 MethodSelector。
func NewMethodSelector() *MethodSelector {
	return &MethodSelector{rules: map[string]map[string]struct{}{}}
}

// Allow 声明 name 对应的 sandbox 接收哪些方法；methods 为空时只接收 GET/HEAD。
func (s *MethodSelector) Allow(name string, methods []string) *MethodSelector {
	if len(methods) == 0 {
		methods = defaultMethods
	}
	set, ok := s.rules[name]
	if !ok {
		set = map[string]struct{}{}
		s.rules[name] = set
		s.order = append(s.order, name)
	}
	for _, m := range methods {
		set[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	return s
}

// SelectBackends implements SelectionHook.
func (s *MethodSelector) SelectBackends(method string) []string {
	method = strings.ToUpper(method)
	var names []string
	for _, name := range s.order {
		set := s.rules[name]
		if _, ok := set[WildcardMethod]; ok {
			names = append(names, name)
			continue
		}
		if _, ok := set[method]; ok {
			names = append(names, name)
		}
	}
	return names
}

// HeaderTagger 是按 backend 名称追加固定 header 的内置 HeaderMungeHook，
// 常用于给 sandbox 副本打标（例如 X-Kage-Sandbox: 1）。
type HeaderTagger struct {
	tags map[string]http.Header
}

// NewHeaderTagger 创建空的 HeaderTagger。
func NewHeaderTagger() *HeaderTagger {
	return &HeaderTagger{tags: map[string]http.Header{}}
}

// Tag 为 name 对应的 backend 设置 headers，重复调用会覆盖同名 header。
func (t *HeaderTagger) Tag(name string, headers map[string]string) *HeaderTagger {
	if len(headers) == 0 {
		return t
	}
	h, ok := t.tags[name]
	if !ok {
		h = http.Header{}
		t.tags[name] = h
	}
	for key, value := range headers {
		h.Set(key, value)
	}
	return t
}

// Empty 表示没有任何 backend 需要打标。
func (t *HeaderTagger) Empty() bool {
	return len(t.tags) == 0
}

// MungeHeaders implements HeaderMungeHook.
func (t *HeaderTagger) MungeHeaders(header http.Header, target backend.Backend) {
	tags, ok := t.tags[target.Name]
	if !ok {
		return
	}
	for key, values := range tags {
		header[key] = append([]string(nil), values...)
	}
}
