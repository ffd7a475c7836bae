package hooks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersFamily(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}

	m.RecordCacheHit("object")
	m.RecordCacheHit("object")
	m.RecordCacheMiss("artifact")

	if got := testutil.ToFloat64(m.CacheHits.WithLabelValues("object")); got != 2 {
		t.Errorf("CacheHits(object) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses.WithLabelValues("artifact")); got != 1 {
		t.Errorf("CacheMisses(artifact) = %v, want 1", got)
	}
}

func TestNewMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewMetrics(nil)
	if m != nil {
		t.Fatal("expected nil Metrics for nil Registerer")
	}
	// Methods on a nil *Metrics must not panic.
	m.RecordCacheHit("object")
	m.observeCompileDuration(1.5)
}
