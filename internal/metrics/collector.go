// Package metrics 汇总影子流量相关的 Prometheus 指标。Collector 持有独立的
// prometheus.Registry，所有记录方法都允许 nil 接收者，未启用指标时可直接传 nil。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Role 区分 production 与 sandbox 分发。
const (
	RoleProduction = "production"
	RoleSandbox    = "sandbox"
)

const defaultNamespace = "schatten"

// Collector 注册并记录分发、汇合与 completion hook 指标。
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	shadowJoin       prometheus.Histogram
	completionTotal  *prometheus.CounterVec
	divergenceTotal  *prometheus.CounterVec
}

// NewCollector 创建 Collector；registry 为 nil 时新建私有 registry。
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Outbound requests per backend, role and result.",
		}, []string{"backend", "role", "result"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Round-trip duration of outbound requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "role"}),
		shadowJoin: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shadow_join_duration_seconds",
			Help:      "Time the request path waits at the shadow join barrier.",
			Buckets:   prometheus.DefBuckets,
		}),
		completionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_total",
			Help:      "Completion hook decisions per request.",
		}, []string{"result"}),
		divergenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shadow_divergence_total",
			Help:      "Sandbox responses that differ from production, by field.",
		}, []string{"backend", "field"}),
	}

	registry.MustRegister(
		c.dispatchTotal,
		c.dispatchDuration,
		c.shadowJoin,
		c.completionTotal,
		c.divergenceTotal,
	)
	return c
}

// ObserveDispatch 记录一次分发的耗时与结果。
func (c *Collector) ObserveDispatch(backendName, role string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.dispatchTotal.WithLabelValues(backendName, role, result).Inc()
	c.dispatchDuration.WithLabelValues(backendName, role).Observe(elapsed.Seconds())
}

// ObserveShadowJoin 记录请求在汇合点的等待时间。
func (c *Collector) ObserveShadowJoin(elapsed time.Duration) {
	if c == nil {
		return
	}
	c.shadowJoin.Observe(elapsed.Seconds())
}

// ObserveCompletion 记录 completion hook 的处理结果：fired / skipped / unset / panic。
func (c *Collector) ObserveCompletion(result string) {
	if c == nil {
		return
	}
	c.completionTotal.WithLabelValues(result).Inc()
}

// ObserveDivergence 记录 sandbox 与 production 的差异字段。
func (c *Collector) ObserveDivergence(backendName, field string) {
	if c == nil {
		return
	}
	c.divergenceTotal.WithLabelValues(backendName, field).Inc()
}

// Registry 返回底层 registry，供测试或外部 exporter 使用。
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 返回 Prometheus 文本格式的 http.Handler。
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
