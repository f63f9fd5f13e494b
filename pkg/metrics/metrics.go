// Package metrics provides Prometheus metrics for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedEventsPublished counts change feed events by table and operation
	FeedEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendline",
			Subsystem: "changefeed",
			Name:      "events_published_total",
			Help:      "Total number of change feed events published",
		},
		[]string{"table", "op"},
	)

	// FeedEventsDelivered counts events handed to subscribers after filtering
	FeedEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendline",
			Subsystem: "changefeed",
			Name:      "events_delivered_total",
			Help:      "Total number of change feed events delivered to subscribers",
		},
		[]string{"table"},
	)

	// FeedReconnects counts subscriber reconnect attempts
	FeedReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendline",
			Subsystem: "changefeed",
			Name:      "reconnects_total",
			Help:      "Total number of change feed subscription reconnects",
		},
		[]string{"table"},
	)

	// FanoutTotal tracks notification fan-out results
	FanoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendline",
			Subsystem: "fanout",
			Name:      "notifications_total",
			Help:      "Total number of notification fan-out attempts by type and result",
		},
		[]string{"type", "result"},
	)

	// RealtimeSessions tracks connected WebSocket sessions
	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "friendline",
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Number of connected realtime sessions",
		},
	)

	// ModerationDecisions tracks classifier outcomes
	ModerationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendline",
			Subsystem: "moderation",
			Name:      "decisions_total",
			Help:      "Total number of moderation decisions by outcome",
		},
		[]string{"outcome"},
	)
)
