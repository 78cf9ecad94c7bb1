// Package shadow 是影子流量代理的对外入口：一个必选的 production backend 负责返回给客户端的
// 响应，零个或多个 sandbox backend 接收镜像请求，其结果只用于对比与观测。
//
//	srv, _ := shadow.New("127.0.0.1", 1234, shadow.NewBackend("production", "localhost", 3000))
//	_ = srv.AddBackend(shadow.NewBackend("sandbox", "localhost", 3001))
//	_ = srv.OnSelectBackends(shadow.SelectionFunc(func(method string) []string { return []string{"sandbox"} }))
//	_ = srv.Run()
package shadow

import (
	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/proxy"
	"github.com/schatten/schatten/internal/proxy/hooks"
)

type (
	// Backend 描述一个 production 或 sandbox 目标。
	Backend = backend.Backend
	// Outcome 是单个 backend 的响应或失败记录。
	Outcome = hooks.Outcome

	SelectionHook   = hooks.SelectionHook
	HeaderMungeHook = hooks.HeaderMungeHook
	CompletionHook  = hooks.CompletionHook

	SelectionFunc   = hooks.SelectionFunc
	HeaderMungeFunc = hooks.HeaderMungeFunc
	CompletionFunc  = hooks.CompletionFunc

	// Doer 是出站 HTTP 客户端接口，*http.Client 满足。
	Doer = proxy.Doer
	// DispatchError 描述分发失败，可通过 errors.Is 匹配 ErrUnreachable 等类别。
	DispatchError = proxy.DispatchError
)

var (
	ErrDuplicateBackendName     = backend.ErrDuplicateBackendName
	ErrInvalidBackend           = backend.ErrInvalidBackend
	ErrUnreachable              = proxy.ErrUnreachable
	ErrProductionDispatchFailed = proxy.ErrProductionDispatchFailed
	ErrHookPanicked             = proxy.ErrHookPanicked
)

// NewBackend constructs a Backend.
func NewBackend(name, host string, port int) Backend {
	return backend.New(name, host, port)
}
