package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/metrics"
	"github.com/schatten/schatten/internal/proxy/hooks"
)

// Diagnostics 汇集 /-/ 诊断接口需要读取的运行时状态。
type Diagnostics struct {
	Registry *backend.Registry
	// Hooks 在每次请求时调用，返回三类 hook 的设置状态。
	Hooks   func() map[string]string
	Metrics *metrics.Collector
}

// RegisterDiagnosticsRoutes 暴露 /-/backends 与 /-/metrics，供 SRE 查询影子拓扑和指标。
func RegisterDiagnosticsRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil || diag.Registry == nil {
		return
	}

	app.Get("/-/backends", func(c fiber.Ctx) error {
		hookStatus := map[string]string{}
		if diag.Hooks != nil {
			hookStatus = diag.Hooks()
		}
		return c.JSON(fiber.Map{
			"production": encodeBackend(diag.Registry.Production()),
			"sandboxes":  encodeBackends(diag.Registry.Sandboxes()),
			"hooks":      hookStatus,
			"reports":    hooks.Names(),
		})
	})

	if diag.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(diag.Metrics.Handler()))
	}
}

type backendPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func encodeBackends(list []backend.Backend) []backendPayload {
	result := make([]backendPayload, 0, len(list))
	for _, b := range list {
		result = append(result, encodeBackend(b))
	}
	return result
}

func encodeBackend(b backend.Backend) backendPayload {
	return backendPayload{Name: b.Name, Address: b.Address()}
}
