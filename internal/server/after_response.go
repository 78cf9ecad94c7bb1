package server

import (
	"net"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const contextKeyAfterResponse = "_schatten_after_response"

// afterResponse 保存每个连接上待执行的回调。fasthttp 在响应 flush 之后把连接置为
// StateIdle，连接关闭（已写完或写失败）时置为 StateClosed，此时客户端已拿到完整响应。
// fasthttp 在同一连接上串行处理请求，因此每个连接最多挂一个回调。
type afterResponse struct {
	logger  *logrus.Logger
	pending sync.Map // net.Conn -> func()
}

func newAfterResponse(logger *logrus.Logger) *afterResponse {
	return &afterResponse{logger: logger}
}

// install 把回调挂到 fasthttp 的 ConnState 上，保留已有的 ConnState。
func (a *afterResponse) install(srv *fasthttp.Server) {
	prev := srv.ConnState
	srv.ConnState = func(conn net.Conn, state fasthttp.ConnState) {
		a.connState(conn, state)
		if prev != nil {
			prev(conn, state)
		}
	}
}

func (a *afterResponse) connState(conn net.Conn, state fasthttp.ConnState) {
	switch state {
	case fasthttp.StateIdle, fasthttp.StateClosed, fasthttp.StateHijacked:
	default:
		return
	}
	value, ok := a.pending.LoadAndDelete(conn)
	if !ok {
		return
	}
	// 回调运行在连接的 serve goroutine 上，panic 不能传到 fasthttp。
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(logrus.Fields{
				"action": "after_response",
				"panic":  r,
			}).Error("after_response_panic")
		}
	}()
	value.(func())()
}

// AfterResponse 登记 fn，在当前请求的响应 flush 给客户端之后、同一连接读取下一个请求之前执行一次。
// 应用不是由 NewApp 构建时返回 false，调用方需自行安排执行时机。
// 同一连接上有 pipelined 请求排队时 fasthttp 会推迟 flush，此时 fn 先于 flush 执行。
func AfterResponse(c fiber.Ctx, fn func()) bool {
	ar, ok := c.Locals(contextKeyAfterResponse).(*afterResponse)
	if !ok || ar == nil {
		return false
	}
	conn := c.RequestCtx().Conn()
	if conn == nil {
		return false
	}
	ar.pending.Store(conn, fn)
	return true
}
