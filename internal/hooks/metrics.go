package hooks

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Hook Bus's counters and histograms. The Executor
// records cache hits and misses as it drives a BuildPlan; nothing in
// this module observes CompileDuration, LinkDuration or
// CompileFailures. The core never starts an HTTP /metrics server;
// NewMetrics only registers onto the prometheus.Registerer the caller
// supplies, leaving serving it to an external collaborator.
type Metrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CompileDuration  prometheus.Histogram
	LinkDuration     prometheus.Histogram
	CompileFailures  prometheus.Counter
}

// NewMetrics constructs and registers the Hook Bus's metric family on
// reg. reg may be nil, in which case NewMetrics returns nil and the
// Bus records no metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clydepm_cache_hits_total",
			Help: "Cache hits, by tier (object or artifact).",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clydepm_cache_misses_total",
			Help: "Cache misses, by tier (object or artifact).",
		}, []string{"tier"}),
		CompileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clydepm_compile_duration_seconds",
			Help:    "Wall-clock duration of a single CompileStep.",
			Buckets: prometheus.DefBuckets,
		}),
		LinkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clydepm_link_duration_seconds",
			Help:    "Wall-clock duration of a single LinkStep.",
			Buckets: prometheus.DefBuckets,
		}),
		CompileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clydepm_compile_failures_total",
			Help: "CompileSteps that ended in a diagnostic of severity error.",
		}),
	}

	reg.MustRegister(m.CacheHits, m.CacheMisses, m.CompileDuration, m.LinkDuration, m.CompileFailures)
	return m
}

func (m *Metrics) RecordCacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordCacheMiss(tier string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(tier).Inc()
}

func (m *Metrics) observeCompileDuration(seconds float64) {
	if m == nil {
		return
	}
	m.CompileDuration.Observe(seconds)
}

func (m *Metrics) observeLinkDuration(seconds float64) {
	if m == nil {
		return
	}
	m.LinkDuration.Observe(seconds)
}

func (m *Metrics) recordCompileFailure() {
	if m == nil {
		return
	}
	m.CompileFailures.Inc()
}
