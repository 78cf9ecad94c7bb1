package server

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/schatten/schatten/internal/logging"
)

func TestRouterForwardsEveryPathToProxy(t *testing.T) {
	rec := &proxyRecorder{}
	app := newTestApp(t, rec, true)

	for _, target := range []string{"/", "/api/users?id=1", "/deep/nested/path"} {
		req := httptest.NewRequest("POST", "http://proxy.local"+target, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("expected 204 for %s, got %d", target, resp.StatusCode)
		}
	}

	if rec.calls != 3 {
		t.Fatalf("expected 3 proxied calls, got %d", rec.calls)
	}
	if rec.lastRequestID == "" {
		t.Fatalf("expected request id to be available to proxy handler")
	}
}

func TestRouterDoesNotLeakRequestIDHeader(t *testing.T) {
	app := newTestApp(t, &proxyRecorder{}, true)

	resp, err := app.Test(httptest.NewRequest("GET", "http://proxy.local/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.Header.Get("X-Request-ID") != "" {
		t.Fatalf("router must not decorate the relayed response")
	}
	if resp.Header.Get("Date") != "" {
		t.Fatalf("default Date header should be disabled")
	}
}

func TestRouterDiagnosticsPrefixFallsThrough(t *testing.T) {
	rec := &proxyRecorder{}
	app := newTestApp(t, rec, true)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://proxy.local/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("expected diagnostics route to answer, got %q", string(body))
	}
	if rec.calls != 0 {
		t.Fatalf("diagnostics path must not reach the proxy")
	}
}

func TestRouterProxiesDiagnosticsPrefixWhenDisabled(t *testing.T) {
	rec := &proxyRecorder{}
	app := newTestApp(t, rec, false)

	if _, err := app.Test(httptest.NewRequest("GET", "http://proxy.local/-/backends", nil)); err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("expected /-/ path to be proxied when diagnostics are off")
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{Proxy: &proxyRecorder{}}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard()}); err == nil {
		t.Fatalf("missing proxy should fail")
	}
}

func TestIsDiagnosticsPath(t *testing.T) {
	if !IsDiagnosticsPath("/-/metrics") {
		t.Fatalf("expected /-/metrics to be diagnostics")
	}
	if IsDiagnosticsPath("/metrics") || IsDiagnosticsPath("/-") {
		t.Fatalf("unexpected diagnostics match")
	}
}

func newTestApp(t *testing.T, rec *proxyRecorder, diagnostics bool) *fiber.App {
	t.Helper()

	app, err := NewApp(AppOptions{
		Logger:      logging.Discard(),
		Proxy:       rec,
		Diagnostics: diagnostics,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}

type proxyRecorder struct {
	calls         int
	lastRequestID string
}

func (p *proxyRecorder) Handle(c fiber.Ctx) error {
	p.calls++
	p.lastRequestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
