package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/memorykeep/docsync/pkg/types"
)

var _ types.MetricsRecorder = (*Collector)(nil)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return collector
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "docsync" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "docsync")
		}
		if collector.Registry() == nil {
			t.Error("registry is nil")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}
		if collector.Enabled() {
			t.Error("Enabled() = true for disabled collector")
		}

		// Should not panic
		collector.RecordOperation("read", "theme", "cloud", time.Millisecond)
		collector.RecordProbeSkip("theme", "decode")
		collector.RecordReadSource("theme", "cloud")
		collector.RecordDelete("theme", true)
		collector.UpdateCacheStats("cache", types.CacheStats{Entries: 3})

		if len(collector.GetMetrics()) != 0 {
			t.Error("disabled collector should not track operations")
		}
	})

	t.Run("const labels", func(t *testing.T) {
		collector, err := NewCollector(&Config{
			Enabled:   true,
			Namespace: "test",
			Labels:    map[string]string{"instance": "a"},
		})
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		collector.RecordReadSource("theme", "cloud")

		expected := `
# HELP test_read_source_total Reads by the tier that served them
# TYPE test_read_source_total counter
test_read_source_total{instance="a",kind="theme",source="cloud"} 1
`
		if err := testutil.CollectAndCompare(collector.readSourceCounter, strings.NewReader(expected)); err != nil {
			t.Error(err)
		}
	})
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordOperation("write", "theme", "cloud", 100*time.Millisecond)
	collector.RecordOperation("write", "theme", "noop", 50*time.Millisecond)
	collector.RecordOperation("write", "theme", "error", 300*time.Millisecond)
	collector.RecordOperation("read", "theme", "default", 10*time.Millisecond)

	if got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("write", "theme", "noop")); got != 1 {
		t.Errorf("noop writes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(collector.operationCounter); got != 4 {
		t.Errorf("operation series = %d, want 4", got)
	}
	if got := testutil.CollectAndCount(collector.operationDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}

	ops := collector.GetMetrics()
	if len(ops) != 2 {
		t.Fatalf("len(GetMetrics()) = %d, want 2", len(ops))
	}
	if ops[0].Operation != "read" || ops[1].Operation != "write" {
		t.Errorf("GetMetrics() not sorted: %s, %s", ops[0].Operation, ops[1].Operation)
	}

	write := ops[1]
	if write.Count != 3 {
		t.Errorf("Count = %d, want 3", write.Count)
	}
	if write.Errors != 1 {
		t.Errorf("Errors = %d, want 1", write.Errors)
	}
	if write.AvgDuration != 150*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 150ms", write.AvgDuration)
	}
	if write.Outcomes["cloud"] != 1 || write.Outcomes["noop"] != 1 {
		t.Errorf("Outcomes = %v", write.Outcomes)
	}

	// returned copies are detached from the collector
	write.Outcomes["cloud"] = 99
	if collector.GetMetrics()[1].Outcomes["cloud"] != 1 {
		t.Error("GetMetrics() leaked internal state")
	}
}

func TestRecordDiscoveryMetrics(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordProbeSkip("theme", "decode")
	collector.RecordProbeSkip("theme", "decode")
	collector.RecordProbeSkip("theme", "foreign")
	collector.RecordDelete("life_events", true)
	collector.RecordDelete("life_events", false)

	if got := testutil.ToFloat64(collector.probeSkipCounter.WithLabelValues("theme", "decode")); got != 2 {
		t.Errorf("decode skips = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.deleteCounter.WithLabelValues("life_events", "error")); got != 1 {
		t.Errorf("failed deletes = %v, want 1", got)
	}
}

func TestUpdateCacheStats(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.UpdateCacheStats("cache", types.CacheStats{Entries: 7, HitRate: 0.5})

	if got := testutil.ToFloat64(collector.cacheEntriesGauge.WithLabelValues("cache")); got != 7 {
		t.Errorf("entries = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.cacheHitRateGauge.WithLabelValues("cache")); got != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", got)
	}
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordOperation("read", "theme", "cloud", time.Millisecond)
	collector.ResetMetrics()

	if len(collector.GetMetrics()) != 0 {
		t.Error("ResetMetrics() left operations behind")
	}
	if got := testutil.ToFloat64(collector.operationCounter.WithLabelValues("read", "theme", "cloud")); got != 1 {
		t.Errorf("prometheus counter = %v, want 1 after reset", got)
	}
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)
	collector.RecordOperation("read", "theme", "cloud", time.Millisecond)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_operations_total{kind="theme",operation="read",outcome="cloud"} 1`) {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	collector.DebugHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/operations", nil))
	var body struct {
		Operations []OperationMetrics `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("debug body: %v", err)
	}
	if len(body.Operations) != 1 || body.Operations[0].Kind != "theme" {
		t.Errorf("debug operations = %+v", body.Operations)
	}

	disabled, _ := NewCollector(&Config{Enabled: false})
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled metrics status = %d, want 404", rec.Code)
	}
}
