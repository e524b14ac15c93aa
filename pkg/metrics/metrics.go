package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records websocket authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_auth_attempts_total",
			Help: "Total number of realtime authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveConnections tracks registered realtime connections across all rooms.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_connections",
			Help: "Number of live connections registered in a room",
		},
	)

	// Supersessions counts connections closed because a newer one for the same identity registered.
	Supersessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_supersessions_total",
			Help: "Total number of superseded connections",
		},
	)

	// InboundEvents counts frames received from clients by event type.
	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_inbound_events_total",
			Help: "Total number of inbound realtime frames",
		},
		[]string{"type"},
	)

	// RejectedEvents counts inbound frames answered with an error event, by error code.
	RejectedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rejected_events_total",
			Help: "Total number of inbound frames rejected with an error event",
		},
		[]string{"code"},
	)

	// DeliveryFailures counts peer sends that failed during fan-out.
	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_delivery_failures_total",
			Help: "Total number of failed peer deliveries during broadcast",
		},
	)

	// BroadcastLatency measures how long one room fan-out takes.
	BroadcastLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_broadcast_latency_seconds",
			Help:    "Room broadcast fan-out latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
