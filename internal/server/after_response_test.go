package server

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/schatten/schatten/internal/logging"
)

func TestAfterResponseRunsOnceResponseIsFlushed(t *testing.T) {
	received := make(chan struct{})
	sawClient := make(chan bool, 1)
	app, err := NewApp(AppOptions{
		Logger: logging.Discard(),
		Proxy: ProxyHandlerFunc(func(c fiber.Ctx) error {
			registered := AfterResponse(c, func() {
				select {
				case <-received:
					sawClient <- true
				case <-time.After(2 * time.Second):
					sawClient <- false
				}
			})
			if !registered {
				t.Errorf("AfterResponse should be available on apps built by NewApp")
			}
			return c.SendString("done")
		}),
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		_ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	client := &http.Client{Transport: &http.Transport{}, Timeout: 10 * time.Second}
	t.Cleanup(client.CloseIdleConnections)

	resp, err := client.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "done" {
		t.Fatalf("unexpected body %q", string(body))
	}
	close(received)

	select {
	case ok := <-sawClient:
		if !ok {
			t.Fatalf("callback ran before the response reached the client")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("callback was not called")
	}
}

func TestAfterResponseRecoversCallbackPanic(t *testing.T) {
	var calls atomic.Int32
	app, err := NewApp(AppOptions{
		Logger: logging.Discard(),
		Proxy: ProxyHandlerFunc(func(c fiber.Ctx) error {
			AfterResponse(c, func() {
				calls.Add(1)
				panic("callback bug")
			})
			return c.SendString("ok")
		}),
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "http://proxy.local/", nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected callback once per request, got %d", got)
	}
}

func TestAfterResponseUnavailableOutsideNewApp(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c fiber.Ctx) error {
		if AfterResponse(c, func() {}) {
			return c.SendString("registered")
		}
		return c.SendString("unavailable")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://proxy.local/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "unavailable" {
		t.Fatalf("expected AfterResponse to report unavailable, got %q", string(body))
	}
}
