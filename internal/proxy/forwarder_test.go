package proxy

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/schatten/schatten/internal/server"
)

func TestForwarderMissingHandler(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	server.SetRequestID(ctx, "missing-req")

	logger := logrus.New()
	logBuf := &bytes.Buffer{}
	logger.SetOutput(logBuf)

	forwarder := NewForwarder(nil, logger)
	if err := forwarder.Handle(ctx); err != nil {
		t.Fatalf("forwarder.Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for missing handler, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "proxy_handler_missing") {
		t.Fatalf("expected error body to mention proxy_handler_missing, got %s", body)
	}
	if !strings.Contains(logBuf.String(), "missing-req") {
		t.Fatalf("expected log to include request id, got %s", logBuf.String())
	}
}

func TestForwarderHandlerPanic(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()
	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	server.SetRequestID(ctx, "panic-req")

	logger := logrus.New()
	logBuf := &bytes.Buffer{}
	logger.SetOutput(logBuf)

	forwarder := NewForwarder(server.ProxyHandlerFunc(func(c fiber.Ctx) error {
		c.Set("X-Partial", "1")
		panic("boom")
	}), logger)

	if err := forwarder.Handle(ctx); err != nil {
		t.Fatalf("forwarder.Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for handler panic, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "proxy_handler_panic") {
		t.Fatalf("expected error body to mention proxy_handler_panic, got %s", body)
	}
	if got := ctx.Response().Header.Peek("X-Partial"); len(got) != 0 {
		t.Fatalf("partial headers should be discarded, got %s", got)
	}
	if !strings.Contains(logBuf.String(), "panic-req") {
		t.Fatalf("expected log to include panic request id, got %s", logBuf.String())
	}
}

func TestForwarderPassesThrough(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()
	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)

	forwarder := NewForwarder(server.ProxyHandlerFunc(func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	}), logrus.New())

	if err := forwarder.Handle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
}
