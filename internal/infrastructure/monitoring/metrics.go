package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	PollRequests      *prometheus.CounterVec
	PollLatency       *prometheus.HistogramVec
	DecryptFailures   *prometheus.CounterVec
	Decisions         *prometheus.CounterVec
	DecisionLatency   *prometheus.HistogramVec
	StatusTransitions *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authenticator_poll_requests_total",
				Help: "Total number of authorization polls.",
			},
			[]string{"source", "outcome"},
		),
		PollLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authenticator_poll_latency_seconds",
				Help:    "Latency of authorization polls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		DecryptFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authenticator_decrypt_failures_total",
				Help: "Total number of envelopes that could not be decrypted.",
			},
			[]string{"algorithm"},
		),
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authenticator_decisions_total",
				Help: "Total number of confirm and deny requests.",
			},
			[]string{"confirm", "outcome"},
		),
		DecisionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authenticator_decision_latency_seconds",
				Help:    "Latency of confirm and deny requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"confirm"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authenticator_status_transitions_total",
				Help: "Total number of authorization status changes.",
			},
			[]string{"from", "to"},
		),
	}
}

// RecordPoll records one poll round-trip.
func (m *Metrics) RecordPoll(source, outcome string, duration time.Duration) {
	m.PollRequests.WithLabelValues(source, outcome).Inc()
	m.PollLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordDecryptFailure records an envelope that could not be decrypted.
func (m *Metrics) RecordDecryptFailure(algorithm string) {
	m.DecryptFailures.WithLabelValues(algorithm).Inc()
}

// RecordDecision records a confirm or deny round-trip.
func (m *Metrics) RecordDecision(confirm bool, outcome string, duration time.Duration) {
	label := strconv.FormatBool(confirm)
	m.Decisions.WithLabelValues(label, outcome).Inc()
	m.DecisionLatency.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordStatusTransition records a status change.
func (m *Metrics) RecordStatusTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}
