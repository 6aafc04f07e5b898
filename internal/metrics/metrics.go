package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_commands_dispatched_total",
			Help: "Total inbound events dispatched, by command",
		},
		[]string{"command"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_handler_errors_total",
			Help: "Total handler failures surfaced to users",
		},
		[]string{"command", "kind"},
	)

	EngagementPoints = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_engagement_points_total",
			Help: "Total engagement points awarded",
		},
	)

	// Scheduler metrics
	JobsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_jobs_scheduled_total",
			Help: "Total announcements scheduled",
		},
	)

	JobsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_jobs_fired_total",
			Help: "Total announcements fired",
		},
	)

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_broadcast_deliveries_total",
			Help: "Broadcast deliveries per recipient",
		},
		[]string{"result"}, // "sent" or "failed"
	)

	// Gateway metrics
	OutboundSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "herald_outbound_send_duration_seconds",
			Help:    "Chat transport send latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)
