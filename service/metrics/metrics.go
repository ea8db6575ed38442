package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the wallet client.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics. A nil
// *Metrics disables recording everywhere.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Balance Poller Metrics
	balancePollsTotal      *prometheus.CounterVec
	balancePollDuration    *prometheus.HistogramVec
	staleBalanceDropsTotal *prometheus.CounterVec

	// Session Metrics
	sessionActionsTotal *prometheus.CounterVec

	// Transfer Metrics
	transfersTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		balancePollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_polls_total",
				Help: "Total number of balance fetches by status and trigger",
			},
			[]string{"status", "trigger"},
		),
		balancePollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "balance_poll_duration_seconds",
				Help:    "Duration of balance fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"trigger"},
		),
		staleBalanceDropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stale_balance_drops_total",
				Help: "Balance fetch results discarded because the address changed mid-flight",
			},
			[]string{"trigger"},
		),
		sessionActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_actions_total",
				Help: "Wallet session actions by action and outcome",
			},
			[]string{"action", "status"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_total",
				Help: "Transfer attempts by final status",
			},
			[]string{"status"},
		),
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Wallet events published to NATS by event type and status",
			},
			[]string{"event_type", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publishes in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"event_type"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordBalancePoll records one balance fetch. Trigger is "interval",
// "refresh", or "address_change".
func (m *Metrics) RecordBalancePoll(status, trigger string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.balancePollsTotal.WithLabelValues(status, trigger).Inc()
	m.balancePollDuration.WithLabelValues(trigger).Observe(durationSeconds)
}

// RecordStaleBalanceDrop records a fetch result discarded by the stale guard.
func (m *Metrics) RecordStaleBalanceDrop(trigger string) {
	if m == nil {
		return
	}
	m.staleBalanceDropsTotal.WithLabelValues(trigger).Inc()
}

// RecordSessionAction records a session action outcome.
// Action is "create_wallet", "login", or "logout".
func (m *Metrics) RecordSessionAction(action, status string) {
	if m == nil {
		return
	}
	m.sessionActionsTotal.WithLabelValues(action, status).Inc()
}

// RecordTransfer records a transfer attempt's final status.
func (m *Metrics) RecordTransfer(status string) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(status).Inc()
}

// RecordNATSPublish records a wallet event publish with its duration.
func (m *Metrics) RecordNATSPublish(eventType, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(eventType, status).Inc()
	if status == "success" {
		m.natsPublishDuration.WithLabelValues(eventType).Observe(durationSeconds)
	}
}
