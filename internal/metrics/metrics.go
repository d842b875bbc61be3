// Package metrics provides Prometheus metrics for the session core.
// Labels are bounded enums only; account IDs never appear in labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imorning_chat"

var (
	// LifecycleEventsTotal counts connection lifecycle events by kind.
	LifecycleEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_events_total",
		Help:      "Total number of connection lifecycle events, by event.",
	}, []string{"event"})

	// ClosureFailuresTotal counts closed-on-error events by classification.
	ClosureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "closure_failures_total",
		Help:      "Total number of connections closed on error, by classification.",
	}, []string{"classification"})

	// ConnectionState is 1 for the current connection state and 0 otherwise.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Current connection state (1 for the active state).",
	}, []string{"state"})

	// ReconnectRequestsTotal counts reconnection requests accepted by the scheduler.
	ReconnectRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnect_requests_total",
		Help:      "Total number of reconnection requests enqueued.",
	})

	// ReconnectAttemptsTotal counts reconnection attempts by result.
	ReconnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnect_attempts_total",
		Help:      "Total number of reconnection attempts, by result.",
	}, []string{"result"})

	// LoginAttemptsTotal counts interactive login attempts by result.
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	}, []string{"result"})

	// QuickRepliesTotal counts inline replies by result.
	QuickRepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quick_replies_total",
		Help:      "Total number of inline replies handled, by result.",
	}, []string{"result"})

	// MessagesReceivedTotal counts messages delivered to the background receiver.
	MessagesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Total number of messages received while authenticated.",
	})
)

// SetConnectionState marks current as the active state among all.
func SetConnectionState(current string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == current {
			value = 1
		}
		ConnectionState.WithLabelValues(s).Set(value)
	}
}
