package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricEventsApplied  = "ingest_events_applied_total"
	MetricEventsRejected = "ingest_events_rejected_total"
	MetricEventsFailed   = "ingest_events_failed_total"
	MetricDecodeErrors   = "ingest_decode_errors_total"
	MetricApplyLatency   = "ingest_apply_latency_seconds"
)

// Metrics contains Prometheus metrics for the vote event consumer.
// All operations are thread-safe.
type Metrics struct {
	eventsApplied  prometheus.Counter
	eventsRejected prometheus.Counter
	eventsFailed   prometheus.Counter
	decodeErrors   prometheus.Counter
	applyLatency   prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all
// collectors initialized. The metrics are not registered; call
// Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsApplied,
			Help: "Total number of vote events successfully applied",
		}),
		eventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsRejected,
			Help: "Total number of vote events rejected by business rules",
		}),
		eventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsFailed,
			Help: "Total number of vote events that hit transient failures",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDecodeErrors,
			Help: "Total number of frames that failed CBOR decoding",
		}),
		applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricApplyLatency,
			Help:    "Histogram of end-to-end event apply latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all collectors with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncEventsApplied increments the applied events counter.
func (m *Metrics) IncEventsApplied() {
	m.eventsApplied.Inc()
}

// IncEventsRejected increments the rejected events counter.
func (m *Metrics) IncEventsRejected() {
	m.eventsRejected.Inc()
}

// IncEventsFailed increments the failed events counter.
func (m *Metrics) IncEventsFailed() {
	m.eventsFailed.Inc()
}

// IncDecodeErrors increments the decode errors counter.
func (m *Metrics) IncDecodeErrors() {
	m.decodeErrors.Inc()
}

// ObserveApplyLatency records one apply latency sample.
func (m *Metrics) ObserveApplyLatency(seconds float64) {
	m.applyLatency.Observe(seconds)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsApplied,
		m.eventsRejected,
		m.eventsFailed,
		m.decodeErrors,
		m.applyLatency,
	}
}
