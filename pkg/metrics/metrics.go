package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanCycles counts reminder scan cycles by result (ok|fetch_error).
	ScanCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agency_reminder_scan_cycles_total",
			Help: "Total number of reminder scan cycles",
		},
		[]string{"result"},
	)

	// ReminderOutcomes counts per-task scan outcomes (created|skipped|no_action|failed).
	ReminderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agency_reminder_task_outcomes_total",
			Help: "Per-task outcomes of reminder scans",
		},
		[]string{"outcome"},
	)

	// ScanDuration measures how long a single user scan takes.
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agency_reminder_scan_duration_seconds",
			Help:    "Duration of a reminder scan for one user",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ActiveReminderSessions tracks open reminder sessions.
	ActiveReminderSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agency_reminder_sessions_active",
			Help: "Number of open reminder sessions",
		},
	)

	// PushDeliveries counts push delivery attempts by outcome (success|gone|transient|skipped).
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agency_push_deliveries_total",
			Help: "Push delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	// NotificationsCreated counts persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agency_notifications_created_total",
			Help: "Notifications persisted by type",
		},
		[]string{"type"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agency_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
