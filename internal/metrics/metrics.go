// Package metrics exposes a handful of Prometheus gauges/counters for the
// queue and worker pool, following the teacher's habit (data-ingestion,
// alerting-engine) of registering a small metrics.Collector alongside each
// service rather than leaving operations unobservable.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the process-wide metric instruments for the worker.
// CallbackAttempts is incremented by internal/callback's Dispatcher, once
// per delivery attempt, labelled by outcome.
type Collector struct {
	JobsProcessed    *prometheus.CounterVec
	JobsInFlight     prometheus.Gauge
	CallbackAttempts *prometheus.CounterVec
}

// NewCollector builds and registers the collector's instruments against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_processed_total",
			Help: "Number of jobs processed by the worker pool, labelled by terminal status.",
		}, []string{"status"}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_jobs_in_flight",
			Help: "Number of jobs currently being processed by the worker pool.",
		}),
		CallbackAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_callback_attempts_total",
			Help: "Number of callback delivery attempts, labelled by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.JobsProcessed, c.JobsInFlight, c.CallbackAttempts)
	return c
}
