// Package fixmetrics holds the Prometheus Collector exposed by the
// engine and control HTTP surfaces.
package fixmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gofix"
)

// Label names.
const (
	labelReason    = "reason"
	labelState     = "state"
	labelDirection = "direction"
)

// -------------------------------------------------------------------------
// Collector — Prometheus FIX Engine Metrics
// -------------------------------------------------------------------------

// Collector holds all FIX engine Prometheus metrics.
//
//   - Sessions gauge tracks currently active sessions by FSM state.
//   - Message counters track TX/RX volumes without per-CompID labels,
//     to avoid unbounded series growth across many initiator
//     connections.
//   - Parse error and termination counters are labeled by reason, for
//     alerting on specific failure modes.
//   - Resend request counters are labeled by direction (sent/received).
type Collector struct {
	// Sessions tracks the number of sessions currently in each FSM state.
	Sessions *prometheus.GaugeVec

	// MessagesSent counts total FIX messages transmitted.
	MessagesSent prometheus.Counter

	// MessagesReceived counts total FIX messages received.
	MessagesReceived prometheus.Counter

	// ParseErrors counts codec parse failures, labeled by reason.
	ParseErrors *prometheus.CounterVec

	// SessionTerminations counts session terminations, labeled by reason.
	SessionTerminations *prometheus.CounterVec

	// ResendRequests counts ResendRequest traffic, labeled by direction.
	ResendRequests *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.MessagesSent,
		c.MessagesReceived,
		c.ParseErrors,
		c.SessionTerminations,
		c.ResendRequests,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of sessions currently in each FSM state.",
		}, []string{labelState}),

		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total FIX messages transmitted.",
		}),

		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total FIX messages received.",
		}),

		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_parse_errors_total",
			Help:      "Total codec parse failures, labeled by reason.",
		}, []string{labelReason}),

		SessionTerminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_terminations_total",
			Help:      "Total session terminations, labeled by reason.",
		}, []string{labelReason}),

		ResendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resend_requests_total",
			Help:      "Total ResendRequest traffic, labeled by direction (sent/received).",
		}, []string{labelDirection}),
	}
}

// -------------------------------------------------------------------------
// session.MetricsReporter implementation
// -------------------------------------------------------------------------

// IncMessagesSent implements session.MetricsReporter. msgType is accepted
// for interface compatibility but not used as a label, to keep the series
// count bounded regardless of dictionary size.
func (c *Collector) IncMessagesSent(msgType string) {
	c.MessagesSent.Inc()
}

// IncMessagesReceived implements session.MetricsReporter.
func (c *Collector) IncMessagesReceived(msgType string) {
	c.MessagesReceived.Inc()
}

// IncParseError implements session.MetricsReporter.
func (c *Collector) IncParseError(reason string) {
	c.ParseErrors.WithLabelValues(reason).Inc()
}

// IncResendRequest implements session.MetricsReporter.
func (c *Collector) IncResendRequest(direction string) {
	c.ResendRequests.WithLabelValues(direction).Inc()
}

// RecordSessionTransition implements session.MetricsReporter. The Sessions
// gauge is keyed by current state only (not a from/to pair, unlike the
// teacher's BFD state_transitions_total) since spec.md §7 calls for a
// state gauge, not a transition counter.
func (c *Collector) RecordSessionTransition(oldStatus, newStatus string) {
	if oldStatus != "" {
		c.Sessions.WithLabelValues(oldStatus).Dec()
	}
	c.Sessions.WithLabelValues(newStatus).Inc()
}

// RecordTermination implements session.MetricsReporter.
func (c *Collector) RecordTermination(reason string) {
	c.SessionTerminations.WithLabelValues(reason).Inc()
}
