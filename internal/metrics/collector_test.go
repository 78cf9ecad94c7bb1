package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDispatchCountsResults(t *testing.T) {
	c := NewCollector("test", nil)

	c.ObserveDispatch("sandbox", RoleSandbox, time.Millisecond, nil)
	c.ObserveDispatch("sandbox", RoleSandbox, time.Millisecond, errors.New("boom"))
	c.ObserveDispatch("production", RoleProduction, time.Millisecond, nil)

	if got := testutil.ToFloat64(c.dispatchTotal.WithLabelValues("sandbox", RoleSandbox, "failure")); got != 1 {
		t.Fatalf("expected 1 sandbox failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.dispatchTotal.WithLabelValues("production", RoleProduction, "success")); got != 1 {
		t.Fatalf("expected 1 production success, got %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveDispatch("a", RoleSandbox, time.Second, nil)
	c.ObserveShadowJoin(time.Second)
	c.ObserveCompletion("fired")
	c.ObserveDivergence("a", "status")
	if c.Registry() != nil {
		t.Fatalf("nil collector should expose nil registry")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil collector handler should 404, got %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("", nil)
	c.ObserveCompletion("fired")
	c.ObserveDivergence("sandbox", "status")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`schatten_completion_total{result="fired"} 1`,
		`schatten_shadow_divergence_total{backend="sandbox",field="status"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected exposition to contain %q, got %s", want, body)
		}
	}
}
