package proxy

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/schatten/schatten/internal/server"
)

// Capture 是入站请求的一次性快照：方法、原始 URI（path+query）、header 与完整 body。
// 构建后只读，分发时每个 target 通过 CloneHeader 获得独立副本，body 只读共享。
type Capture struct {
	Method string
	URI    string
	Header http.Header
	Body   []byte
}

// CaptureFiber 从 fiber 上下文构建 Capture。fasthttp 在调用 handler 前已读完整个 body，
// 这里复制一份，因为 fasthttp 会在请求结束后复用底层缓冲区。
func CaptureFiber(c fiber.Ctx) *Capture {
	req := c.Request()

	header := http.Header{}
	req.Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	filtered := http.Header{}
	server.CopyHeaders(filtered, header)
	filtered.Del("Content-Length")

	// c.Body() 会按 Content-Encoding 解压，这里要的是客户端发来的原始字节。
	raw := req.Body()
	body := make([]byte, len(raw))
	copy(body, raw)

	// 保留原始 request-target，避免 fasthttp 对 path 的规范化；absolute-form 退回 path+query。
	uri := string(req.Header.RequestURI())
	if !strings.HasPrefix(uri, "/") {
		uri = string(req.URI().RequestURI())
	}

	return &Capture{
		Method: c.Method(),
		URI:    uri,
		Header: filtered,
		Body:   body,
	}
}

// CloneHeader 返回 header 的深拷贝，修改副本不会影响 Capture 或其它副本。
func (c *Capture) CloneHeader() http.Header {
	if c == nil || c.Header == nil {
		return http.Header{}
	}
	return c.Header.Clone()
}

// Host 返回客户端请求携带的 Host，用于在出站请求中保留原始 Host。
func (c *Capture) Host() string {
	if c == nil {
		return ""
	}
	return c.Header.Get("Host")
}
