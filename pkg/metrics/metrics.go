// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textswap_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textswap_messages_appended_total",
		Help: "Messages persisted",
	})

	MessagesMarkedRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textswap_messages_marked_read_total",
		Help: "Messages transitioned to read",
	})

	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textswap_conversations_created_total",
		Help: "Conversations created on first contact",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textswap_live_publish_failures_total",
		Help: "Live-update publishes that failed after a successful append",
	})

	// ActiveSubscriptions is labelled by kind: conversation or inbox.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "textswap_live_subscriptions_active",
		Help: "Active live-update subscriptions",
	}, []string{"kind"})

	LiveEventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textswap_live_events_delivered_total",
		Help: "Events handed to subscribers",
	}, []string{"type"})

	BrokerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "textswap_live_broker_connected",
		Help: "1 while the live-update broker is connected",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textswap_notifications_total",
		Help: "New-message notifications by outcome",
	}, []string{"outcome"})

	RatingTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textswap_rating_transactions_total",
		Help: "Rating summary transactions by operation and outcome",
	}, []string{"op", "outcome"})

	RatingConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textswap_rating_conflict_retries_total",
		Help: "Rating transactions retried after a conflict",
	})

	StaleReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textswap_stale_reads_total",
		Help: "Reads served from the last-known cache after a transport error",
	}, []string{"view"})
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
}
