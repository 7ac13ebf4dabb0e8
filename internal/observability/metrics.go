package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of registered push connections",
		},
	)

	MessagesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_created_total",
			Help: "Messages persisted, by initial delivery state",
		},
		[]string{"state"},
	)

	// outcome is "delivered" or "skipped"; event is the push event name.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Push delivery attempts by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	PushFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_push_failures_total",
			Help: "Pushes rejected by a registered channel",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_sweep_duration_seconds",
			Help:    "Duration of scheduled-message sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	// result is "delivered", "lost_race" or "error".
	SweepMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sweep_messages_total",
			Help: "Due messages handled by sweeps, by result",
		},
		[]string{"result"},
	)

	SweepFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sweep_failures_total",
			Help: "Sweeps aborted by a query failure or panic",
		},
	)

	OutboxPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_outbox_published_total",
			Help: "Outbox events published to Kafka",
		},
	)

	OutboxFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_outbox_failures_total",
			Help: "Outbox publish attempts that failed",
		},
	)

	OutboxDeadLetteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_outbox_dead_lettered_total",
			Help: "Outbox events moved to the dead-letter table",
		},
	)
)
