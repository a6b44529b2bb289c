// Package metrics exposes the pipeline's Prometheus instrumentation. All
// methods are nil-safe so components can run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics instruments dataset processing and cross-validation runs.
type PipelineMetrics struct {
	recordsLoaded  prometheus.Counter
	recordsDropped *prometheus.CounterVec
	graphsBuilt    prometheus.Counter
	graphDrops     prometheus.Counter
	foldDuration   prometheus.Histogram
	runsTotal      *prometheus.CounterVec
	servingErrors  prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
}

// New registers the pipeline collectors on reg and returns the wrapper.
func New(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		recordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "records_loaded_total",
			Help:      "Dataset records accepted by the loader.",
		}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "records_dropped_total",
			Help:      "Records excluded before training, by reason.",
		}, []string{"reason"}),
		graphsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "graphs_built_total",
			Help:      "Molecular graphs constructed.",
		}),
		graphDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "graph_drops_total",
			Help:      "Records dropped because their graph could not be built.",
		}),
		foldDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "molgraph",
			Name:      "fold_duration_seconds",
			Help:      "Wall time of one cross-validation round, training included.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "runs_total",
			Help:      "Cross-validation runs, by final status.",
		}, []string{"status"}),
		servingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "serving_errors_total",
			Help:      "Failed requests to the training backend.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "graph_cache_hits_total",
			Help:      "Graph cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "molgraph",
			Name:      "graph_cache_misses_total",
			Help:      "Graph cache misses.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.recordsLoaded, m.recordsDropped, m.graphsBuilt, m.graphDrops,
			m.foldDuration, m.runsTotal, m.servingErrors, m.cacheHits, m.cacheMisses,
		)
	}
	return m
}

func (m *PipelineMetrics) RecordsLoaded(n int) {
	if m == nil {
		return
	}
	m.recordsLoaded.Add(float64(n))
}

func (m *PipelineMetrics) RecordsDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recordsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *PipelineMetrics) GraphsBuilt(n int) {
	if m == nil {
		return
	}
	m.graphsBuilt.Add(float64(n))
}

func (m *PipelineMetrics) GraphDrops(n int) {
	if m == nil || n == 0 {
		return
	}
	m.graphDrops.Add(float64(n))
}

func (m *PipelineMetrics) ObserveFold(d time.Duration) {
	if m == nil {
		return
	}
	m.foldDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ServingError() {
	if m == nil {
		return
	}
	m.servingErrors.Inc()
}

func (m *PipelineMetrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *PipelineMetrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
