package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_persisted_total",
			Help: "Total number of per-recipient notification rows written",
		},
		[]string{"status"}, // status: created, duplicate, failed
	)

	ChannelPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_publishes_total",
			Help: "Total number of pub/sub channel publishes",
		},
		[]string{"status"}, // status: success, failed, dropped
	)

	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_frames_delivered_total",
			Help: "Total number of frames written to client connections",
		},
		[]string{"transport", "kind"}, // kind: message, heartbeat
	)

	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transport_active_connections",
			Help: "Number of open client connections per transport",
		},
		[]string{"transport"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "Time spent resolving and persisting one event",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"event_type"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	SlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries slower than the slow-query threshold",
		},
	)

	DeadLetteredMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_dead_lettered_total",
			Help: "Total number of messages parked on the dead letter queue",
		},
		[]string{"routing_key", "reason"},
	)
)

// RecordDispatchDuration records resolve+persist time for one event.
func RecordDispatchDuration(eventType string, duration time.Duration) {
	DispatchDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records HTTP handler latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMQConsumeLatency records MQ handler latency.
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery counts one query over the slow-query threshold.
func IncrementSlowQuery() {
	SlowQueries.Inc()
}

// RecordDeadLetter counts one message parked on the DLQ.
func RecordDeadLetter(routingKey, reason string) {
	DeadLetteredMessages.WithLabelValues(routingKey, reason).Inc()
}
