package vote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricVoteMutationsTotal   = "vote_mutations_total"
	MetricVoteMutationDuration = "vote_mutation_duration_seconds"
)

// Mutation action labels.
const (
	actionCast        = "cast"
	actionChange      = "change"
	actionRepeat      = "repeat"
	actionRetract     = "retract"
	actionRetractNoop = "retract_noop"
)

// Status labels for mutation outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for vote mutations.
// All operations are thread-safe.
type Metrics struct {
	mutationsTotal   *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
}

// NewMetrics creates and returns a new Metrics instance with all
// collectors initialized. The metrics are not registered; call
// Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVoteMutationsTotal,
				Help: "Total number of vote mutations by action and status",
			},
			[]string{"action", "status"},
		),
		mutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricVoteMutationDuration,
				Help:    "Histogram of vote mutation duration in seconds by action",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"action"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	if err := reg.Register(m.mutationsTotal); err != nil {
		return err
	}
	return reg.Register(m.mutationDuration)
}

// RecordMutation records one mutation outcome with its duration.
func (m *Metrics) RecordMutation(action string, ok bool, d time.Duration) {
	status := StatusSuccess
	if !ok {
		status = StatusFailure
	}
	m.mutationsTotal.WithLabelValues(action, status).Inc()
	m.mutationDuration.WithLabelValues(action).Observe(d.Seconds())
}
