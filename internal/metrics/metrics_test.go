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

func TestObserveLoad(t *testing.T) {
	c := NewCollector()

	c.ObserveLoad(120*time.Millisecond, 5, nil)
	c.ObserveLoad(time.Millisecond, 0, errors.New("missing file"))

	if v := testutil.ToFloat64(c.ledgerLoads.WithLabelValues("ok")); v != 1 {
		t.Errorf("expected 1 ok load, got %v", v)
	}
	if v := testutil.ToFloat64(c.ledgerLoads.WithLabelValues("error")); v != 1 {
		t.Errorf("expected 1 failed load, got %v", v)
	}
	if v := testutil.ToFloat64(c.ledgerRows); v != 5 {
		t.Errorf("expected rows gauge 5, got %v", v)
	}
}

func TestRegistry(t *testing.T) {
	c := NewCollector()
	c.ObserveLoad(time.Second, 3, nil)
	c.ObserveLoad(time.Second, 0, errors.New("missing file"))
	c.ObserveCache("overview", true)

	n, err := testutil.GatherAndCount(c.Registry(), "ledgerlens_ledger_loads_total", "ledgerlens_ledger_rows", "ledgerlens_stats_cache_requests_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 series, got %d", n)
	}

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var goRuntime bool
	for _, mf := range families {
		if mf.GetName() == "go_goroutines" {
			goRuntime = true
		}
	}
	if !goRuntime {
		t.Error("expected Go runtime metrics in the registry")
	}
}

func TestObserveCacheAndVerdicts(t *testing.T) {
	c := NewCollector()

	c.ObserveCache("overview", true)
	c.ObserveCache("overview", false)
	c.ObserveCache("by-category", true)
	c.ObserveVerdict(true)
	c.ObserveVerdict(false)
	c.ObserveVerdict(false)

	if v := testutil.ToFloat64(c.cacheRequests.WithLabelValues("hit")); v != 2 {
		t.Errorf("expected 2 hits, got %v", v)
	}
	if v := testutil.ToFloat64(c.cacheRequests.WithLabelValues("miss")); v != 1 {
		t.Errorf("expected 1 miss, got %v", v)
	}
	if v := testutil.ToFloat64(c.scoreVerdicts.WithLabelValues("normal")); v != 2 {
		t.Errorf("expected 2 normal verdicts, got %v", v)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("GET", 200, 5*time.Millisecond)
	c.ObserveRequest("GET", 404, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`ledgerlens_http_requests_total{method="GET",status="200"} 1`,
		`ledgerlens_http_requests_total{method="GET",status="404"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
