// Package observability exposes the Prometheus collectors of chat-relay.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection lifecycle
	ConnectionsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_connections_accepted_total",
			Help: "Total authenticated socket connections",
		},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_connections_rejected_total",
			Help: "Total socket handshakes rejected",
		},
		[]string{"reason"},
	)

	SessionsReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_sessions_replaced_total",
			Help: "Total registrations that superseded a live connection of the same user",
		},
	)

	// Routing
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_messages_persisted_total",
			Help: "Total direct messages stored",
		},
	)

	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_live_pushes_total",
			Help: "Total events pushed to a reachable connection",
		},
		[]string{"event"},
	)

	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_dropped_events_total",
			Help: "Total outbound events dropped by a connection queue",
		},
		[]string{"event"},
	)

	RejectedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_rejected_events_total",
			Help: "Total inbound events answered with an error event",
		},
		[]string{"event"},
	)

	// Durable store
	PresenceWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_presence_write_failures_total",
			Help: "Total presence updates that failed to persist",
		},
	)

	PresenceReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_presence_reconciled_total",
			Help: "Total stale online records marked offline by reconciliation",
		},
	)

	// REST
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Process
	ProcessResidentMemory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_process_resident_memory_bytes",
			Help: "Resident set size sampled by the stats reporter",
		},
	)

	ProcessCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_process_cpu_percent",
			Help: "Process CPU usage sampled by the stats reporter",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_online_users",
			Help: "Users currently reachable for live push",
		},
	)
)
