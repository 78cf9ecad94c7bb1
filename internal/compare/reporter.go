// Package compare 提供内置的 diff-log completion hook：逐个比较 sandbox 与 production
// 的状态码、body 与 header，把差异写入结构化日志并累加 divergence 指标。
package compare

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"

	"github.com/schatten/schatten/internal/backend"
	"github.com/schatten/schatten/internal/logging"
	"github.com/schatten/schatten/internal/metrics"
	"github.com/schatten/schatten/internal/proxy/hooks"
)

// 差异字段，对应 shadow_divergence_total{field}。
const (
	FieldStatus  = "status"
	FieldBody    = "body"
	FieldHeader  = "header"
	FieldFailure = "failure"
)

// ReportName 是 diff-log 在 hooks 注册表中的名称。
const ReportName = "diff-log"

func init() {
	hooks.MustRegister(ReportName, func(opts hooks.ReportOptions) hooks.CompletionHook {
		return NewReporter(opts.Logger, opts.Metrics, opts.IgnoreHeaders)
	})
}

// Divergence 描述一个 sandbox 相对 production 的单项差异。
type Divergence struct {
	Backend string
	Field   string
	Detail  string
}

// Reporter 实现 hooks.CompletionHook。
type Reporter struct {
	logger  *logrus.Logger
	metrics *metrics.Collector
	ignore  map[string]struct{}
}

// NewReporter 创建 Reporter；ignoreHeaders 中的 header 不参与比较（大小写不敏感）。
func NewReporter(logger *logrus.Logger, collector *metrics.Collector, ignoreHeaders []string) *Reporter {
	if logger == nil {
		logger = logging.Discard()
	}
	ignore := make(map[string]struct{}, len(ignoreHeaders))
	for _, h := range ignoreHeaders {
		if h = strings.TrimSpace(h); h != "" {
			ignore[http.CanonicalHeaderKey(h)] = struct{}{}
		}
	}
	return &Reporter{logger: logger, metrics: collector, ignore: ignore}
}

// BackendsFinished 记录每个 sandbox 的差异。participants[0] 是 production。
func (r *Reporter) BackendsFinished(results map[string]hooks.Outcome, participants []backend.Backend) {
	for _, d := range r.Compare(results, participants) {
		r.metrics.ObserveDivergence(d.Backend, d.Field)
		r.logger.WithFields(logrus.Fields{
			"action":  "compare",
			"backend": d.Backend,
			"field":   d.Field,
			"detail":  d.Detail,
		}).Warn("shadow_diff")
	}
}

// Compare 返回所有 sandbox 相对 production 的差异，按 participants 顺序排列。
func (r *Reporter) Compare(results map[string]hooks.Outcome, participants []backend.Backend) []Divergence {
	if len(participants) < 2 {
		return nil
	}
	production, ok := results[participants[0].Name]
	if !ok || production.Failed() {
		return nil
	}

	var out []Divergence
	for _, sb := range participants[1:] {
		outcome, ok := results[sb.Name]
		if !ok {
			continue
		}
		out = append(out, r.compareOne(sb.Name, production, outcome)...)
	}
	return out
}

func (r *Reporter) compareOne(name string, production, sandbox hooks.Outcome) []Divergence {
	if sandbox.Failed() {
		return []Divergence{{Backend: name, Field: FieldFailure, Detail: sandbox.Err.Error()}}
	}

	var out []Divergence
	if production.Status != sandbox.Status {
		out = append(out, Divergence{
			Backend: name,
			Field:   FieldStatus,
			Detail:  fmt.Sprintf("%d != %d", production.Status, sandbox.Status),
		})
	}
	if !bytes.Equal(production.Body, sandbox.Body) {
		out = append(out, Divergence{Backend: name, Field: FieldBody, Detail: bodyDetail(production.Body, sandbox.Body)})
	}
	if diff := r.headerDiff(production.Header, sandbox.Header); diff != "" {
		out = append(out, Divergence{Backend: name, Field: FieldHeader, Detail: diff})
	}
	return out
}

func (r *Reporter) headerDiff(production, sandbox http.Header) string {
	return cmp.Diff(production, sandbox,
		cmpopts.EquateEmpty(),
		cmpopts.IgnoreMapEntries(func(key string, _ []string) bool {
			_, skip := r.ignore[http.CanonicalHeaderKey(key)]
			return skip
		}),
	)
}

func bodyDetail(production, sandbox []byte) string {
	if len(production) != len(sandbox) {
		return fmt.Sprintf("length %d != %d", len(production), len(sandbox))
	}
	for i := range production {
		if production[i] != sandbox[i] {
			return fmt.Sprintf("first difference at byte %d", i)
		}
	}
	return ""
}
