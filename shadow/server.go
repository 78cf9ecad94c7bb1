package shadow

import (
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/logging"
	"github.com/schatten/schatten/internal/metrics"
	"github.com/schatten/schatten/internal/proxy"
	"github.com/schatten/schatten/internal/proxy/hooks"
	"github.com/schatten/schatten/internal/server"
	"github.com/schatten/schatten/internal/server/routes"
)

// ErrServerStarted 表示 App/Run 之后再修改 backend 或 hook；配置在开始监听后只读。
var ErrServerStarted = errors.New("proxy server already started")

// ProxyServer 持有 backend 注册表与 hook，并把每个请求交给影子流水线处理。
type ProxyServer struct {
	host     string
	port     int
	registry *backend.Registry
	opts     options

	mu    sync.Mutex
	hooks hooks.Set
	app   *fiber.App
}

// New 创建 ProxyServer，production 必须是合法的 Backend。
func New(host string, port int, production Backend, opts ...Option) (*ProxyServer, error) {
	registry, err := backend.NewRegistry(production)
	if err != nil {
		return nil, err
	}
	if port < 0 || port > 65535 {
		return nil, errors.New("listen port out of range: " + strconv.Itoa(port))
	}

	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = server.NewUpstreamClient(nil)
	}

	return &ProxyServer{
		host:     host,
		port:     port,
		registry: registry,
		opts:     o,
	}, nil
}

// AddBackend 注册一个 sandbox，名称与 production 或已有 sandbox 冲突时返回 ErrDuplicateBackendName。
func (s *ProxyServer) AddBackend(b Backend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app != nil {
		return ErrServerStarted
	}
	return s.registry.Register(b)
}

// OnSelectBackends sets the hook that picks sandboxes per request method.
func (s *ProxyServer) OnSelectBackends(hook SelectionHook) error {
	return s.setHook(func(set *hooks.Set) { set.Selection = hook })
}

// OnMungeHeaders sets the hook applied to each target's private header copy.
func (s *ProxyServer) OnMungeHeaders(hook HeaderMungeHook) error {
	return s.setHook(func(set *hooks.Set) { set.MungeHeaders = hook })
}

// OnServerFinished sets the hook called once every participant has an outcome.
func (s *ProxyServer) OnServerFinished(hook CompletionHook) error {
	return s.setHook(func(set *hooks.Set) { set.Completion = hook })
}

func (s *ProxyServer) setHook(apply func(*hooks.Set)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app != nil {
		return ErrServerStarted
	}
	apply(&s.hooks)
	return nil
}

// Production returns the production backend.
func (s *ProxyServer) Production() Backend {
	return s.registry.Production()
}

// Sandboxes returns registered sandboxes in registration order.
func (s *ProxyServer) Sandboxes() []Backend {
	return s.registry.Sandboxes()
}

// Metrics 返回 WithMetrics 创建的指标集合，未开启时为 nil。
func (s *ProxyServer) Metrics() *metrics.Collector {
	return s.opts.metrics
}

// Address 返回监听地址 host:port。
func (s *ProxyServer) Address() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// App 构建（仅一次）fiber 应用并冻结配置，之后的注册调用返回 ErrServerStarted。
// 测试可以直接对返回的 app 调用 Test。
func (s *ProxyServer) App() (*fiber.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app != nil {
		return s.app, nil
	}

	set := s.hooks
	handler := proxy.NewHandler(proxy.HandlerOptions{
		Registry: s.registry,
		Hooks:    set,
		Client:   s.opts.client,
		Logger:   s.opts.logger,
		Metrics:  s.opts.metrics,
	})
	app, err := server.NewApp(server.AppOptions{
		Logger:      s.opts.logger,
		Proxy:       proxy.NewForwarder(handler, s.opts.logger),
		BodyLimit:   s.opts.bodyLimit,
		Diagnostics: s.opts.diagnostics,
	})
	if err != nil {
		return nil, err
	}
	if s.opts.diagnostics {
		routes.RegisterDiagnosticsRoutes(app, routes.Diagnostics{
			Registry: s.registry,
			Hooks:    set.Status,
			Metrics:  s.opts.metrics,
		})
	}

	s.app = app
	return app, nil
}

// Run 开始监听并阻塞直到服务退出。
func (s *ProxyServer) Run() error {
	app, err := s.App()
	if err != nil {
		return err
	}

	s.opts.logger.WithFields(logrus.Fields{
		"action":     "listen",
		"address":    s.Address(),
		"production": s.registry.Production().String(),
		"sandboxes":  len(s.registry.Sandboxes()),
		"hooks":      s.hooks.Status(),
	}).Info("listen")

	return app.Listen(s.Address(), fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown 优雅关闭监听；尚未 Run 时直接返回。
func (s *ProxyServer) Shutdown() error {
	s.mu.Lock()
	app := s.app
	s.mu.Unlock()
	if app == nil {
		return nil
	}
	return app.Shutdown()
}
