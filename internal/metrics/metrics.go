package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"service", "method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "method", "route"},
	)

	// Chat metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_messages_sent_total",
			Help: "Total user messages stored",
		},
		[]string{"room_type", "path"}, // path: "rest" or "realtime"
	)

	SystemMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_system_messages_total",
			Help: "Join/leave announcements stored",
		},
		[]string{"kind"},
	)

	// Relay metrics
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medchat_notifications_published_total",
			Help: "Notification records published to the broker",
		},
	)

	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medchat_notifications_failed_total",
			Help: "Notification publishes that failed",
		},
	)

	RelayRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_relay_records_total",
			Help: "Notification records handled by the gateway",
		},
		[]string{"outcome"}, // delivered, queued, dropped
	)

	// Hub metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medchat_ws_connections",
			Help: "Open websocket connections",
		},
		[]string{"hub"},
	)

	WSEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_ws_events_dropped_total",
			Help: "Events dropped because a connection's send buffer was full",
		},
		[]string{"hub"},
	)
)
