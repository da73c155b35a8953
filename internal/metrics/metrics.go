// Package metrics exposes Prometheus collectors for the chat subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Presence
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalbox_online_users",
			Help: "Identities with a registered connection",
		},
	)

	Connections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbox_connections_total",
			Help: "Websocket connections by kind",
		},
		[]string{"kind"}, // "authenticated" or "anonymous"
	)

	// Protocol
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbox_events_received_total",
			Help: "Client events received",
		},
		[]string{"event"},
	)

	RejectedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbox_rejected_requests_total",
			Help: "Client events dropped as invalid or unauthenticated",
		},
		[]string{"event"},
	)

	// Messaging
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signalbox_messages_sent_total",
			Help: "Messages persisted",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbox_deliveries_total",
			Help: "Message delivery outcomes",
		},
		[]string{"result"}, // "live" or "offline"
	)

	StorageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbox_storage_failures_total",
			Help: "Message store operations that failed",
		},
		[]string{"op"},
	)

	// Notifications
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbox_notifications_total",
			Help: "Offline notification outcomes",
		},
		[]string{"result"}, // "sent", "failed", "dropped"
	)

	NotifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalbox_notify_duration_seconds",
			Help:    "Offline notification attempt duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)
