// Package metrics records Prometheus metrics for a batch run.
//
// Runs are short-lived, so metrics are not served over HTTP. Instead they are
// written once at the end of a run in the text exposition format, ready for
// node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dbchores"

// Outcomes of a single query.
const (
	OutcomeExecuted     = "executed"
	OutcomeSkipped      = "skipped"
	OutcomeSkippedCheck = "skipped_check"
	OutcomeFailed       = "failed"
)

// Recorder collects the metrics of one run in its own registry. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	state    *prometheus.GaugeVec
	facts    prometheus.Gauge
	lastRun  prometheus.Gauge
}

// New creates a recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Number of queries by phase, engine and outcome",
			},
			[]string{"phase", "engine", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of dispatched queries in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_state",
				Help:      "Current state of the batch (1 for the active state)",
			},
			[]string{"state"},
		),
		facts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facts",
			Help:      "Number of facts collected",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the batch finished",
		}),
	}

	r.registry.MustRegister(r.queries, r.duration, r.state, r.facts, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// RecordQuery counts a query outcome. Durations are only observed for
// queries that reached the engine.
func (r *Recorder) RecordQuery(phase, engine, outcome string, d time.Duration) {
	if r == nil {
		return
	}

	r.queries.WithLabelValues(phase, engine, outcome).Inc()
	if outcome == OutcomeExecuted || outcome == OutcomeFailed {
		r.duration.WithLabelValues(engine).Observe(d.Seconds())
	}
}

// SetState marks state as the active batch state.
func (r *Recorder) SetState(state string, all []string) {
	if r == nil {
		return
	}

	for _, s := range all {
		r.state.WithLabelValues(s).Set(0)
	}

	r.state.WithLabelValues(state).Set(1)
}

// SetFacts records the size of the fact store.
func (r *Recorder) SetFacts(n int) {
	if r == nil {
		return
	}

	r.facts.Set(float64(n))
}

// Finish stamps the completion time.
func (r *Recorder) Finish(at time.Time) {
	if r == nil {
		return
	}

	r.lastRun.Set(float64(at.Unix()))
}

// WriteFile writes all metrics to path atomically.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}

	return errors.Wrapf(prometheus.WriteToTextfile(path, r.registry), "failed to write metrics to %s", path)
}
