package shadow

import (
	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/internal/metrics"
)

// Option 调整 ProxyServer 的可选依赖。
type Option func(*options)

type options struct {
	logger      *logrus.Logger
	client      Doer
	metrics     *metrics.Collector
	bodyLimit   int
	diagnostics bool
}

// WithLogger 使用调用方的 logrus logger，默认丢弃所有日志。
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClient 替换出站 HTTP 客户端，默认使用共享连接池且不跟随重定向的 http.Client。
func WithClient(client Doer) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithMetrics 以 namespace 创建 Prometheus 指标集合。
func WithMetrics(namespace string) Option {
	return func(o *options) {
		o.metrics = metrics.NewCollector(namespace, nil)
	}
}

// WithBodyLimit 限制入站请求 body 的最大字节数。
func WithBodyLimit(limit int) Option {
	return func(o *options) {
		o.bodyLimit = limit
	}
}

// WithDiagnostics 开启 /-/backends 与 /-/metrics，开启后这两个路径不再被代理。
func WithDiagnostics(enabled bool) Option {
	return func(o *options) {
		o.diagnostics = enabled
	}
}
