// Package metrics exposes the core's operational counters, gauges, and
// histograms through a caller-supplied Prometheus registry, so tests
// can assert against an isolated registry instead of the global one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the detection loop emits to.
type Metrics struct {
	IterationDuration prometheus.Histogram
	CandidatesFound   *prometheus.CounterVec
	BlocksApplied     *prometheus.CounterVec
	BlocksReleased    *prometheus.CounterVec
	DetectorThreshold *prometheus.GaugeVec
	BlockerFailures   *prometheus.CounterVec
}

// New registers collectors under namespace/subsystem with the default
// Prometheus registry.
func New(namespace, subsystem string) *Metrics {
	return NewWithRegistry(namespace, subsystem, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors with registerer, which may be a
// *prometheus.Registry built fresh for a test to avoid duplicate
// registration panics across test runs.
func NewWithRegistry(namespace, subsystem string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "iteration_duration_seconds",
			Help:      "Duration of one detection loop iteration.",
			Buckets:   prometheus.DefBuckets,
		}),
		CandidatesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "candidates_found_total",
			Help:      "Candidate users surfaced by a detector after validation, by detector.",
		}, []string{"detector"}),
		BlocksApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_applied_total",
			Help:      "Blocks installed, by blocker.",
		}, []string{"blocker"}),
		BlocksReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_released_total",
			Help:      "Blocks released after dwell time elapsed, by blocker.",
		}, []string{"blocker"}),
		DetectorThreshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "detector_threshold",
			Help:      "Current adapted threshold, by detector.",
		}, []string{"detector"}),
		BlockerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocker_failures_total",
			Help:      "Failed blocker operations, by blocker and operation.",
		}, []string{"blocker", "operation"}),
	}

	registerer.MustRegister(
		m.IterationDuration,
		m.CandidatesFound,
		m.BlocksApplied,
		m.BlocksReleased,
		m.DetectorThreshold,
		m.BlockerFailures,
	)

	return m
}
