package proxy

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/internal/logging"
	"github.com/schatten/schatten/internal/server"
)

// Forwarder 包装流水线 handler：handler 缺失或 panic 时返回 JSON 错误并记录日志，
// 单个请求的故障不会影响其它请求。
type Forwarder struct {
	handler server.ProxyHandler
	logger  *logrus.Logger
}

// NewForwarder 创建 Forwarder。
func NewForwarder(handler server.ProxyHandler, logger *logrus.Logger) *Forwarder {
	return &Forwarder{
		handler: handler,
		logger:  logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx) error {
	if f.handler == nil {
		f.logError(c, "proxy_handler_missing", nil)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "proxy_handler_missing"})
	}
	return f.invokeHandler(c)
}

func (f *Forwarder) invokeHandler(c fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.respondHandlerPanic(c, r)
		}
	}()
	return f.handler.Handle(c)
}

func (f *Forwarder) respondHandlerPanic(c fiber.Ctx, recovered interface{}) error {
	f.logError(c, "proxy_handler_panic", fmt.Errorf("panic: %v", recovered))
	clearResponseHeaders(c.Response())
	c.Response().ResetBody()
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "proxy_handler_panic"})
}

func (f *Forwarder) logError(c fiber.Ctx, code string, err error) {
	if f.logger == nil {
		return
	}
	fields := logging.RequestFields(server.RequestID(c), c.Method(), string(c.Request().Header.RequestURI()))
	fields["action"] = "proxy"
	fields["error"] = code
	if err != nil {
		f.logger.WithFields(fields).Error(err.Error())
		return
	}
	f.logger.WithFields(fields).Error("proxy handler unavailable")
}
