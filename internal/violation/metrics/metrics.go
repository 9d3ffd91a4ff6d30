package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the violation module.
// Tracks ingestion outcomes, status transitions, query latency and event delivery.
type Metrics struct {
	Ingested          *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	IngestDuration    prometheus.Histogram
	ListDuration      prometheus.Histogram
	EventsPublished   prometheus.Counter
	EventsDropped     prometheus.Counter
	EventsShed        prometheus.Counter
	EventSendFailures prometheus.Counter
}

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// New creates the violation metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests; a nil reg leaves the metrics unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ingested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwatch_violations_ingested_total",
			Help: "Violations admitted to the store, by violation type",
		}, []string{"violation_type"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwatch_violations_rejected_total",
			Help: "Drafts rejected by validation, by offending field",
		}, []string{"field"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficwatch_violation_transitions_total",
			Help: "Status transitions by outcome and target status",
		}, []string{"to", "outcome"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficwatch_violation_ingest_duration_seconds",
			Help:    "Duration of validate+insert operations",
			Buckets: durationBuckets,
		}),
		ListDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficwatch_violation_list_duration_seconds",
			Help:    "Duration of violation listing queries",
			Buckets: durationBuckets,
		}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "trafficwatch_violation_events_published_total",
			Help: "Lifecycle events delivered to the event sink",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "trafficwatch_violation_events_dropped_total",
			Help: "Lifecycle events dropped because the dispatch buffer was full",
		}),
		EventsShed: f.NewCounter(prometheus.CounterOpts{
			Name: "trafficwatch_violation_events_shed_total",
			Help: "Lifecycle events skipped while the sink circuit was open",
		}),
		EventSendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trafficwatch_violation_event_send_failures_total",
			Help: "Lifecycle events the sink failed to accept",
		}),
	}
}

// IncrementIngested records a successful ingestion.
func (m *Metrics) IncrementIngested(violationType string) {
	m.Ingested.WithLabelValues(violationType).Inc()
}

// IncrementRejected records a draft rejected on field.
func (m *Metrics) IncrementRejected(field string) {
	if field == "" {
		field = "unknown"
	}
	m.Rejected.WithLabelValues(field).Inc()
}

// IncrementTransition records a transition attempt and its outcome
// (applied, invalid, not_found, error).
func (m *Metrics) IncrementTransition(to, outcome string) {
	m.Transitions.WithLabelValues(to, outcome).Inc()
}

// ObserveIngest records the duration of an ingestion.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIngest(start time.Time) {
	m.IngestDuration.Observe(time.Since(start).Seconds())
}

// ObserveList records the duration of a listing query.
func (m *Metrics) ObserveList(start time.Time) {
	m.ListDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementEventsPublished(n int) {
	m.EventsPublished.Add(float64(n))
}

func (m *Metrics) IncrementEventsDropped() {
	m.EventsDropped.Inc()
}

func (m *Metrics) IncrementEventSendFailures(n int) {
	m.EventSendFailures.Add(float64(n))
}

func (m *Metrics) IncrementEventsShed(n int) {
	m.EventsShed.Add(float64(n))
}
