package proxy

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/logging"
	"github.com/schatten/schatten/internal/metrics"
	"github.com/schatten/schatten/internal/proxy/hooks"
	"github.com/schatten/schatten/internal/server"
)

// Completion 结果标签，对应 completion_total{result}。
const (
	completionFired   = "fired"
	completionSkipped = "skipped"
	completionUnset   = "unset"
	completionPanic   = "panic"
)

// HandlerOptions 汇总 Handler 的依赖，Registry 必填，其余可为空。
type HandlerOptions struct {
	Registry *backend.Registry
	Hooks    hooks.Set
	Client   Doer
	Logger   *logrus.Logger
	Metrics  *metrics.Collector
}

// Handler 执行单个请求的影子流水线：
// capture → select → shadow join → production → relay → aggregate → completion hook。
type Handler struct {
	registry   *backend.Registry
	hooks      hooks.Set
	dispatcher *Dispatcher
	shadows    *Coordinator
	logger     *logrus.Logger
	metrics    *metrics.Collector
}

// NewHandler constructs the pipeline handler with a shared dispatcher.
func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	dispatcher := NewDispatcher(opts.Client, opts.Hooks.MungeHeaders, logger, opts.Metrics)
	return &Handler{
		registry:   opts.Registry,
		hooks:      opts.Hooks,
		dispatcher: dispatcher,
		shadows:    NewCoordinator(dispatcher, logger, opts.Metrics),
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Handle 实现 server.ProxyHandler。production 失败时返回 502 且不触发 completion hook；
// 成功时原样转发 production 响应，聚合与 hook 在响应 flush 给客户端之后执行。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	capture := CaptureFiber(c)
	fields := logging.RequestFields(server.RequestID(c), capture.Method, capture.URI)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	production := h.registry.Production()
	selected := h.selectSandboxes(capture.Method, fields)
	participants := make([]backend.Backend, 0, 1+len(selected))
	participants = append(participants, production)
	participants = append(participants, selected...)

	agg := NewAggregate(len(participants))
	h.shadows.DispatchShadows(ctx, selected, capture, agg)

	outcome, err := h.dispatcher.Send(ctx, production, capture, metrics.RoleProduction)
	if err != nil {
		err = asProductionFailure(err)
		h.logger.WithFields(logging.Merge(fields, logrus.Fields{
			"action":     "proxy",
			"backend":    production.Name,
			"elapsed_ms": time.Since(started).Milliseconds(),
			"error":      err.Error(),
		})).Error("production_failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "production_unreachable"})
	}

	h.relay(c, outcome, func() {
		h.complete(agg, outcome, participants, fields)
	})

	h.logger.WithFields(logging.Merge(fields, logrus.Fields{
		"action":          "proxy",
		"upstream_status": outcome.Status,
		"sandboxes":       len(selected),
		"elapsed_ms":      time.Since(started).Milliseconds(),
	})).Info("proxy_complete")
	return nil
}

func (h *Handler) selectSandboxes(method string, fields logrus.Fields) []backend.Backend {
	if h.hooks.Selection == nil {
		return nil
	}
	names := h.hooks.Selection.SelectBackends(method)
	if unknown := h.registry.UnknownNames(names); len(unknown) > 0 {
		h.logger.WithFields(logging.Merge(fields, logrus.Fields{
			"action":  "select",
			"unknown": unknown,
		})).Debug("selection_unknown")
	}
	return h.registry.SelectByNames(names)
}

// relay 用 production 的状态码、header 与 body 整体替换客户端响应（先清空再设置）。
// done 通过 server.AfterResponse 在响应 flush 之后执行一次；应用不是 server.NewApp 构建的，
// 退回到 body stream 关闭时执行（此时响应仍在连接缓冲区里）。
func (h *Handler) relay(c fiber.Ctx, outcome hooks.Outcome, done func()) {
	resp := c.Response()
	clearResponseHeaders(resp)

	for key, values := range outcome.Header {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for _, value := range values {
			resp.Header.Add(key, value)
		}
	}
	c.Status(outcome.Status)

	size := len(outcome.Body)
	if c.Method() == http.MethodHead {
		if declared, err := strconv.Atoi(outcome.Header.Get("Content-Length")); err == nil && declared >= 0 {
			size = declared
		}
	}
	if server.AfterResponse(c, done) {
		resp.SetBodyStream(bytes.NewReader(outcome.Body), size)
		return
	}
	resp.SetBodyStream(&relayBody{Reader: bytes.NewReader(outcome.Body), done: done}, size)
}

// complete 写入 production 结果，参与者全部到齐时调用 completion hook。
func (h *Handler) complete(agg *Aggregate, production hooks.Outcome, participants []backend.Backend, fields logrus.Fields) {
	agg.Record(production)

	if h.hooks.Completion == nil {
		h.metrics.ObserveCompletion(completionUnset)
		return
	}

	results, ok := agg.Complete(len(participants))
	if !ok {
		h.metrics.ObserveCompletion(completionSkipped)
		h.logger.WithFields(logging.Merge(fields, logrus.Fields{
			"action":       "completion",
			"participants": len(participants),
			"recorded":     agg.Len(),
		})).Warn("completion_skipped")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.metrics.ObserveCompletion(completionPanic)
			h.logger.WithFields(logging.Merge(fields, logrus.Fields{
				"action": "completion",
				"panic":  r,
			})).Error("completion_hook_panic")
		}
	}()
	h.hooks.Completion.BackendsFinished(results, participants)
	h.metrics.ObserveCompletion(completionFired)
}

func clearResponseHeaders(resp *fasthttp.Response) {
	var keys []string
	resp.Header.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	for _, key := range keys {
		resp.Header.Del(key)
	}
	resp.Header.SetNoDefaultContentType(true)
}

// relayBody 是没有 AfterResponse 时使用的 body stream。fasthttp 在把响应体写入连接缓冲区后
// （或重置响应时）调用 Close，done 恰好执行一次。
type relayBody struct {
	*bytes.Reader
	once sync.Once
	done func()
}

func (b *relayBody) Close() error {
	b.once.Do(func() {
		if b.done != nil {
			b.done()
		}
	})
	return nil
}
