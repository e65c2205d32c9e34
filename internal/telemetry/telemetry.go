// Package telemetry exposes Prometheus metrics for the ingest and serving
// paths. The processing core stays metrics-free; callers record counts from
// the results it returns.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsIngested *prometheus.CounterVec
	DocumentsDropped  *prometheus.CounterVec
	PipelineFailures  prometheus.Counter
	ClassifyRequests  *prometheus.CounterVec
	ClassifyLatency   prometheus.Histogram
}

// New builds a Metrics set on its own registry, including the standard
// process and Go collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	reg.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry: reg,
		DocumentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finsent_documents_ingested_total",
			Help: "Documents accepted into the pipeline, by source.",
		}, []string{"source"}),
		DocumentsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finsent_documents_dropped_total",
			Help: "Documents removed by a preprocessing step, by step name.",
		}, []string{"step"}),
		PipelineFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "finsent_pipeline_failures_total",
			Help: "Rows rejected during preprocessing.",
		}),
		ClassifyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finsent_classify_requests_total",
			Help: "Classifier batch calls, by adapter and outcome.",
		}, []string{"adapter", "outcome"}),
		ClassifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "finsent_classify_latency_seconds",
			Help:    "Wall time of classifier batch calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDropped records per-step drop counts from a pipeline run.
func (m *Metrics) ObserveDropped(dropped map[string]int) {
	for step, n := range dropped {
		m.DocumentsDropped.WithLabelValues(step).Add(float64(n))
	}
}
