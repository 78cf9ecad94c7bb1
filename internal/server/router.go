package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that runs the shadow pipeline for one
// inbound request. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Proxy  ProxyHandler
	// BodyLimit caps the buffered inbound body; zero keeps Fiber's default.
	BodyLimit int
	// Diagnostics reserves the /-/ prefix for local endpoints instead of proxying it.
	Diagnostics bool
}

const (
	contextKeyRequestID = "_schatten_request_id"
	diagnosticsPrefix   = "/-/"
)

// NewApp builds a Fiber application that forwards every request to the proxy
// handler. Default Date/Content-Type headers are disabled so the relayed
// production response is not decorated by the listener.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:             true,
		BodyLimit:                 opts.BodyLimit,
		DisableDefaultDate:        true,
		DisableDefaultContentType: true,
	})

	after := newAfterResponse(opts.Logger)
	after.install(app.Server())

	app.Use(recover.New())
	app.Use(requestContextMiddleware(after))

	app.All("/*", func(c fiber.Ctx) error {
		if opts.Diagnostics && IsDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成 ID，写入 Locals 供日志使用，并挂上 AfterResponse 登记表。
// 不写响应头：客户端看到的 header 必须与 production 完全一致。
func requestContextMiddleware(after *afterResponse) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(contextKeyRequestID, uuid.NewString())
		c.Locals(contextKeyAfterResponse, after)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// SetRequestID overrides the stored request id; used by tests that build a Ctx by hand.
func SetRequestID(c fiber.Ctx, requestID string) {
	c.Locals(contextKeyRequestID, requestID)
}

// IsDiagnosticsPath reports whether the path belongs to the diagnostics surface.
func IsDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, diagnosticsPrefix)
}
