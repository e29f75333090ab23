package coordinator

import (
	"fmt"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/resilience/health"
)

// RecoveryStatus describes the recovery state of one service.
type RecoveryStatus struct {
	Service             string                   `json:"service"`
	HealthScore         float64                  `json:"health_score"`
	ConsecutiveFailures int                      `json:"consecutive_failures"`
	Active              *domain.RecoveryAttempt  `json:"active,omitempty"`
	History             []domain.RecoveryAttempt `json:"history,omitempty"`
}

// GlobalStatus aggregates coordinator-wide statistics.
type GlobalStatus struct {
	Stats            Stats                     `json:"stats"`
	Services         map[string]RecoveryStatus `json:"services"`
	UnresolvedEvents int                       `json:"unresolved_events"`
}

// RecoveryAnalytics summarizes recovery behavior over a window.
type RecoveryAnalytics struct {
	Service         string         `json:"service,omitempty"`
	WindowHours     int            `json:"window_hours"`
	TotalAttempts   int            `json:"total_attempts"`
	Successful      int            `json:"successful"`
	SuccessRate     float64        `json:"success_rate"`
	AvgDuration     time.Duration  `json:"avg_duration"`
	AvgAttemptsMade float64        `json:"avg_attempts_made"`
	ByStrategy      map[string]int `json:"by_strategy"`
	ByStatus        map[string]int `json:"by_status"`
}

// GetRecoveryStatus returns recovery state for one service.
func (c *Coordinator) GetRecoveryStatus(service string) (RecoveryStatus, error) {
	c.mu.RLock()
	state, ok := c.services[service]
	c.mu.RUnlock()
	if !ok {
		return RecoveryStatus{}, fmt.Errorf("%w: %s", ErrNotRegistered, service)
	}

	status := RecoveryStatus{
		Service: service,
		History: state.orchestrator.History(),
	}
	if active, ok := state.orchestrator.Active(); ok {
		status.Active = &active
	}

	status.HealthScore, status.ConsecutiveFailures = state.snapshot()

	return status, nil
}

// GetGlobalRecoveryStatus returns coordinator-wide statistics and a
// per-service summary.
func (c *Coordinator) GetGlobalRecoveryStatus() GlobalStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	unresolved := 0
	for _, e := range c.events {
		if !e.Resolved {
			unresolved++
		}
	}
	c.mu.RUnlock()

	services := make(map[string]RecoveryStatus, len(names))
	for _, name := range names {
		status, err := c.GetRecoveryStatus(name)
		if err != nil {
			continue
		}
		status.History = nil // keep the global view compact
		services[name] = status
	}

	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	return GlobalStatus{
		Stats:            stats,
		Services:         services,
		UnresolvedEvents: unresolved,
	}
}

// GetServiceHealthReport builds the analytics report for one service over
// the last 24 hours.
func (c *Coordinator) GetServiceHealthReport(service string) (health.Report, error) {
	report, err := c.registry.ServiceReport(service, 24)
	if err != nil {
		return health.Report{}, fmt.Errorf("%w: %s", ErrNotRegistered, service)
	}
	return report, nil
}

// GetAllServicesHealth returns 24h reports for every registered service.
func (c *Coordinator) GetAllServicesHealth() map[string]health.Report {
	return c.registry.AllReports(24)
}

// GetHealthAnalytics builds reports over the given window. An empty
// service name covers all services.
func (c *Coordinator) GetHealthAnalytics(service string, hoursBack int) (map[string]health.Report, error) {
	if service == "" {
		return c.registry.AllReports(hoursBack), nil
	}
	report, err := c.registry.ServiceReport(service, hoursBack)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, service)
	}
	return map[string]health.Report{service: report}, nil
}

// GetRecoveryAnalytics summarizes completed attempts over the given
// window. An empty service name covers all services.
func (c *Coordinator) GetRecoveryAnalytics(service string, hoursBack int) (RecoveryAnalytics, error) {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	since := time.Now().Add(-time.Duration(hoursBack) * time.Hour)

	c.mu.RLock()
	states := make([]*serviceState, 0, len(c.services))
	if service != "" {
		state, ok := c.services[service]
		if !ok {
			c.mu.RUnlock()
			return RecoveryAnalytics{}, fmt.Errorf("%w: %s", ErrNotRegistered, service)
		}
		states = append(states, state)
	} else {
		for _, state := range c.services {
			states = append(states, state)
		}
	}
	c.mu.RUnlock()

	analytics := RecoveryAnalytics{
		Service:     service,
		WindowHours: hoursBack,
		ByStrategy:  make(map[string]int),
		ByStatus:    make(map[string]int),
	}

	var totalDuration time.Duration
	var totalAttemptsMade int
	for _, state := range states {
		for _, attempt := range state.orchestrator.History() {
			if attempt.EndedAt.Before(since) {
				continue
			}
			analytics.TotalAttempts++
			analytics.ByStrategy[string(attempt.Strategy)]++
			analytics.ByStatus[string(attempt.Status)]++
			totalDuration += attempt.Duration()
			totalAttemptsMade += attempt.AttemptsMade
			if attempt.Status == domain.RecoverySuccessful {
				analytics.Successful++
			}
		}
	}

	if analytics.TotalAttempts > 0 {
		analytics.SuccessRate = float64(analytics.Successful) / float64(analytics.TotalAttempts)
		analytics.AvgDuration = totalDuration / time.Duration(analytics.TotalAttempts)
		analytics.AvgAttemptsMade = float64(totalAttemptsMade) / float64(analytics.TotalAttempts)
	}
	return analytics, nil
}

// RecentFailureEvents returns in-memory failure events for a service,
// newest first. An empty service matches all.
func (c *Coordinator) RecentFailureEvents(service string, limit int) []domain.FailureEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.FailureEvent, 0, limit)
	for i := len(c.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := c.events[i]
		if service == "" || e.Service == service {
			out = append(out, *e)
		}
	}
	return out
}
