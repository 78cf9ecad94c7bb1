package proxy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/metrics"
	"github.com/schatten/schatten/internal/proxy/hooks"
)

// Coordinator 并发分发 sandbox 请求，并在全部完成后才返回（join barrier）。
type Coordinator struct {
	dispatcher *Dispatcher
	logger     *logrus.Logger
	metrics    *metrics.Collector
}

// NewCoordinator wires a coordinator on top of the shared dispatcher.
func NewCoordinator(dispatcher *Dispatcher, logger *logrus.Logger, collector *metrics.Collector) *Coordinator {
	return &Coordinator{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    collector,
	}
}

// DispatchShadows 为 selected 中的每个 backend 启动一个 goroutine，无论成功失败都恰好
// 写入一条 Outcome。所有 goroutine 结束前不会返回；selected 为空时立即返回。
func (s *Coordinator) DispatchShadows(ctx context.Context, selected []backend.Backend, capture *Capture, agg *Aggregate) {
	if len(selected) == 0 {
		return
	}

	started := time.Now()
	var wg conc.WaitGroup
	for _, target := range selected {
		wg.Go(func() {
			outcome, err := s.dispatcher.Send(ctx, target, capture, metrics.RoleSandbox)
			if err != nil {
				outcome = hooks.Outcome{Backend: target.Name, Latency: outcome.Latency, Err: err}
			}
			agg.Record(outcome)
		})
	}

	// 单个 shadow 的 panic 不能带走整个请求：回收后补记失败结果。
	if recovered := wg.WaitAndRecover(); recovered != nil {
		s.logger.WithFields(logrus.Fields{
			"action": "shadow_join",
		}).Error(recovered.String())
		for _, target := range selected {
			agg.Record(hooks.Outcome{Backend: target.Name, Err: newDispatchError(target.Name, ErrUnreachable, recovered.AsError())})
		}
	}

	elapsed := time.Since(started)
	s.metrics.ObserveShadowJoin(elapsed)
	s.logger.WithFields(logrus.Fields{
		"action":     "shadow_join",
		"sandboxes":  len(selected),
		"elapsed_ms": elapsed.Milliseconds(),
	}).Debug("shadow_join")
}
