package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the channel gateway.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.MessagesIn.WithLabelValues("whatsapp").Inc()
type Metrics struct {
	// MessagesIn counts inbound messages bridged into the chat layer.
	// Labels: channel_type
	MessagesIn *prometheus.CounterVec

	// MessagesOut counts outbound deliveries attempted on a transport.
	// Labels: channel_type, status (sent|dropped)
	MessagesOut *prometheus.CounterVec

	// ActiveConnections is the number of live transport sessions.
	// Labels: channel_type
	ActiveConnections *prometheus.GaugeVec

	// PairingRequests counts pairing attempts by outcome.
	// Labels: channel_type, outcome (delivered|timeout|error)
	PairingRequests *prometheus.CounterVec

	// StatusTransitions counts persisted channel status changes.
	// Labels: channel_type, status
	StatusTransitions *prometheus.CounterVec

	// Reconnects counts transparent reconnects after a restart-required
	// disconnect. Labels: channel_type
	Reconnects *prometheus.CounterVec
}

// NewMetrics creates and registers the gateway metrics on the default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesIn: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_messages_in_total",
				Help: "Inbound messages bridged from a transport into the chat layer",
			},
			[]string{"channel_type"},
		),
		MessagesOut: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_messages_out_total",
				Help: "Outbound message deliveries by status",
			},
			[]string{"channel_type", "status"},
		),
		ActiveConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parley_active_connections",
				Help: "Live transport sessions",
			},
			[]string{"channel_type"},
		),
		PairingRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_pairing_requests_total",
				Help: "Pairing requests by outcome",
			},
			[]string{"channel_type", "outcome"},
		),
		StatusTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_status_transitions_total",
				Help: "Persisted channel status transitions",
			},
			[]string{"channel_type", "status"},
		),
		Reconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_reconnects_total",
				Help: "Transport reconnects after a restart-required disconnect",
			},
			[]string{"channel_type"},
		),
	}
}
