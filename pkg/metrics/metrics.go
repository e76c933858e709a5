package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts notification records created by the scheduler, by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_created_total",
			Help: "Total number of notification records created",
		},
		[]string{"type"},
	)

	// ChannelDeliveries records per-channel transport outcomes (delivered|failed).
	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_channel_deliveries_total",
			Help: "Total number of per-channel delivery attempts by outcome",
		},
		[]string{"channel", "result"},
	)

	// DispatchOutcomes counts terminal delivery-axis states reached by the dispatcher.
	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_dispatch_outcomes_total",
			Help: "Total notifications moved to a terminal delivery state",
		},
		[]string{"status"},
	)

	// DispatchDeferrals counts notifications held back by quiet hours or digests.
	DispatchDeferrals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_dispatch_deferrals_total",
			Help: "Total notifications deferred during a dispatch pass",
		},
		[]string{"reason"},
	)

	// ScheduleFirings counts schedule rule executions and their outcome (success|error).
	ScheduleFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_schedule_firings_total",
			Help: "Total schedule rule firings",
		},
		[]string{"result"},
	)

	// DispatchPassDuration measures the latency of full dispatch passes.
	DispatchPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifier_dispatch_pass_seconds",
			Help:    "Duration of dispatcher passes over due notifications",
			Buckets: prometheus.DefBuckets,
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
