package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/logging"
	"github.com/schatten/schatten/internal/metrics"
	"github.com/schatten/schatten/internal/proxy/hooks"
)

// Doer 是出站 HTTP 客户端的最小接口，*http.Client 即满足；测试可注入假实现。
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Dispatcher 负责向单个 backend 发出请求：克隆 header、执行 munge hook、读完整个响应。
type Dispatcher struct {
	client  Doer
	munge   hooks.HeaderMungeHook
	logger  *logrus.Logger
	metrics *metrics.Collector
}

// NewDispatcher constructs a Dispatcher. munge and collector may be nil.
func NewDispatcher(client Doer, munge hooks.HeaderMungeHook, logger *logrus.Logger, collector *metrics.Collector) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		client:  client,
		munge:   munge,
		logger:  logger,
		metrics: collector,
	}
}

// Send 把 capture 原样发往 target，成功时返回完整的 Outcome。
// 失败返回 *DispatchError，调用方决定是记录为失败结果还是终止请求。
func (d *Dispatcher) Send(ctx context.Context, target backend.Backend, capture *Capture, role string) (hooks.Outcome, error) {
	started := time.Now()
	outcome, err := d.send(ctx, target, capture)
	elapsed := time.Since(started)
	outcome.Backend = target.Name
	outcome.Latency = elapsed

	d.metrics.ObserveDispatch(target.Name, role, elapsed, err)
	if err != nil {
		d.logger.WithFields(logging.Merge(
			logging.DispatchFields(target.Name, target.Address(), role),
			logrus.Fields{"action": "dispatch", "elapsed_ms": elapsed.Milliseconds(), "error": err.Error()},
		)).Warn("dispatch_failed")
		return outcome, err
	}
	d.logger.WithFields(logging.Merge(
		logging.DispatchFields(target.Name, target.Address(), role),
		logrus.Fields{"action": "dispatch", "upstream_status": outcome.Status, "elapsed_ms": elapsed.Milliseconds()},
	)).Debug("dispatch_complete")
	return outcome, nil
}

func (d *Dispatcher) send(ctx context.Context, target backend.Backend, capture *Capture) (hooks.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	header, err := d.targetHeader(target, capture)
	if err != nil {
		return hooks.Outcome{}, err
	}

	var body io.Reader = http.NoBody
	if len(capture.Body) > 0 {
		body = bytes.NewReader(capture.Body)
	}

	req, err := http.NewRequestWithContext(ctx, capture.Method, target.URL(capture.URI), body)
	if err != nil {
		return hooks.Outcome{}, newDispatchError(target.Name, ErrUnreachable, err)
	}
	req.Header = header
	req.ContentLength = int64(len(capture.Body))
	if host := header.Get("Host"); host != "" {
		req.Host = host
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return hooks.Outcome{}, newDispatchError(target.Name, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return hooks.Outcome{}, newDispatchError(target.Name, ErrUnreachable, fmt.Errorf("read body: %w", err))
	}

	return hooks.Outcome{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   payload,
	}, nil
}

// targetHeader 为 target 克隆 header 并执行 munge hook；hook panic 只影响当前 target。
func (d *Dispatcher) targetHeader(target backend.Backend, capture *Capture) (header http.Header, err error) {
	header = capture.CloneHeader()
	if d.munge == nil {
		return header, nil
	}
	defer func() {
		if r := recover(); r != nil {
			header = nil
			err = newDispatchError(target.Name, ErrHookPanicked, fmt.Errorf("panic: %v", r))
		}
	}()
	d.munge.MungeHeaders(header, target)
	return header, nil
}
