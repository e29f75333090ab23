package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal tracks health checks per service and probe type
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_health_checks_total",
			Help: "Total number of health checks executed",
		},
		[]string{"service", "check_type", "status"},
	)

	// CheckLatency tracks probe latency
	CheckLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_health_check_latency_seconds",
			Help:    "Health check latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "check_type"},
	)

	// FailuresHandled tracks failures reported to the coordinator
	FailuresHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_failures_handled_total",
			Help: "Total number of failures reported",
		},
		[]string{"service", "level"},
	)

	// RecoveryAttempts tracks recovery outcomes per strategy
	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_recovery_attempts_total",
			Help: "Total number of completed recovery attempts",
		},
		[]string{"service", "strategy", "status"},
	)

	// FallbacksExecuted tracks fallback dispatches
	FallbacksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_fallbacks_executed_total",
			Help: "Total number of fallback executions",
		},
		[]string{"service", "fallback_type"},
	)

	// AlertsRaised tracks health alerts after cooldown dedup
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_raised_total",
			Help: "Total number of health alerts raised",
		},
		[]string{"service", "alert_type", "severity"},
	)

	// ServiceHealthScore tracks the coordinator's per-service health score
	ServiceHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_service_health_score",
			Help: "Current health score of the service (0-1)",
		},
		[]string{"service"},
	)
)
