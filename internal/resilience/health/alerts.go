package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/events"
	"github.com/vietddude/sentinel/internal/resilience/metrics"
)

const (
	alertCooldown     = 15 * time.Minute
	alertHistoryLimit = 100
)

// Alert is a raised health alert after cooldown deduplication.
type Alert struct {
	Service   string    `json:"service"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// alerter deduplicates alerts by a per-(service, type) cooldown window.
type alerter struct {
	sink events.Sink

	mu       sync.Mutex
	lastSent map[string]time.Time
	recent   []Alert
}

func newAlerter(sink events.Sink) *alerter {
	return &alerter{
		sink:     sink,
		lastSent: make(map[string]time.Time),
	}
}

// evaluate applies alert rules to a check result: status-derived alerts
// plus a response-time alert when latency exceeds the configured threshold.
func (a *alerter) evaluate(result domain.HealthCheckResult, cfg domain.HealthCheckConfig) {
	switch result.Status {
	case domain.StatusUnhealthy:
		a.raise(result.Service, "status_unhealthy", "error", result.Error)
	case domain.StatusError:
		a.raise(result.Service, "check_error", "error", result.Error)
	case domain.StatusTimeout:
		a.raise(result.Service, "check_timeout", "warning", result.Error)
	case domain.StatusDegraded:
		a.raise(result.Service, "status_degraded", "warning", result.Error)
	}

	if cfg.ResponseTimeThreshold > 0 && result.ResponseTime > cfg.ResponseTimeThreshold {
		a.raise(result.Service, "slow_response", "warning", result.ResponseTime.String())
	}
}

// raise emits the alert unless a prior alert of the same (service, type)
// fired inside the cooldown window; those are silently dropped.
func (a *alerter) raise(service, alertType, severity, message string) {
	key := service + ":" + alertType
	now := time.Now()

	a.mu.Lock()
	if last, ok := a.lastSent[key]; ok && now.Sub(last) < alertCooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent[key] = now

	alert := Alert{
		Service:   service,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: now,
	}
	a.recent = append(a.recent, alert)
	if len(a.recent) > alertHistoryLimit {
		a.recent = a.recent[len(a.recent)-alertHistoryLimit:]
	}
	a.mu.Unlock()

	metrics.AlertsRaised.WithLabelValues(service, alertType, severity).Inc()
	a.sink.TrackEvent("health_alert", map[string]any{
		"service":  service,
		"type":     alertType,
		"severity": severity,
		"message":  message,
	})
	slog.Warn("Health alert", "service", service, "type", alertType, "severity", severity)
}

// RecentAlerts returns the most recent alerts, oldest first.
func (r *Registry) RecentAlerts() []Alert {
	r.alerter.mu.Lock()
	defer r.alerter.mu.Unlock()

	out := make([]Alert, len(r.alerter.recent))
	copy(out, r.alerter.recent)
	return out
}
