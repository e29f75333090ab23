// Package coordinator ties health monitoring, recovery orchestration and
// fallback dispatch together behind the failure-handling API.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/cache"
	"github.com/vietddude/sentinel/internal/infra/events"
	"github.com/vietddude/sentinel/internal/infra/storage"
	"github.com/vietddude/sentinel/internal/resilience/fallback"
	"github.com/vietddude/sentinel/internal/resilience/health"
	"github.com/vietddude/sentinel/internal/resilience/metrics"
	"github.com/vietddude/sentinel/internal/resilience/recovery"
)

// ErrNotRegistered is returned when operating on an unknown service name.
var ErrNotRegistered = errors.New("service not registered")

const eventHistoryLimit = 10000

// HandleStatus discriminates the outcome of HandleFailure. Callers branch
// on this value, not on error types.
type HandleStatus string

const (
	StatusRecovered HandleStatus = "recovery_successful"
	StatusFallback  HandleStatus = "fallback_executed"
	StatusFailed    HandleStatus = "handling_failed"
)

// HandleResult is the structured outcome of one HandleFailure call.
type HandleResult struct {
	Status       HandleStatus        `json:"status"`
	RecoveryID   string              `json:"recovery_id,omitempty"`
	FallbackType domain.FallbackType `json:"fallback_type,omitempty"`
	Data         map[string]any      `json:"data,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Stats are the global counters updated at each handling step.
type Stats struct {
	TotalFailures           int64 `json:"total_failures"`
	TotalRecoveryAttempts   int64 `json:"total_recovery_attempts"`
	SuccessfulRecoveries    int64 `json:"successful_recoveries"`
	FailedRecoveries        int64 `json:"failed_recoveries"`
	TotalFallbackExecutions int64 `json:"total_fallback_executions"`
}

// serviceState bundles everything the coordinator owns for one service.
// Its mutex serializes failure handling per service; different services
// proceed in parallel. The score counters live under their own mutex so
// status reads never wait out an in-flight recovery.
type serviceState struct {
	mu sync.Mutex

	registration domain.ServiceRegistration
	orchestrator *recovery.Orchestrator
	dispatcher   *fallback.Dispatcher

	scoreMu             sync.Mutex
	consecutiveFailures int
	healthScore         float64
}

// snapshot reads the score counters without touching the handling lock.
func (s *serviceState) snapshot() (healthScore float64, consecutiveFailures int) {
	s.scoreMu.Lock()
	defer s.scoreMu.Unlock()
	return s.healthScore, s.consecutiveFailures
}

// Options configures collaborator wiring for a Coordinator.
type Options struct {
	Sink             events.Sink
	LocalCache       cache.Cache
	SharedCache      cache.Cache // may be nil
	EventRepo        storage.FailureEventRepository
	AttemptRepo      storage.RecoveryAttemptRepository
	EventRetention   time.Duration
	AttemptRetention time.Duration
	RegistryTick     time.Duration
}

// Coordinator owns all per-service state by composition; components are
// looked up by service name, never by back-reference.
type Coordinator struct {
	registry    *health.Registry
	sink        events.Sink
	local       cache.Cache
	shared      cache.Cache
	eventRepo   storage.FailureEventRepository
	attemptRepo storage.RecoveryAttemptRepository

	eventRetention   time.Duration
	attemptRetention time.Duration

	mu       sync.RWMutex
	services map[string]*serviceState
	events   []*domain.FailureEvent

	statsMu sync.Mutex
	stats   Stats
}

// New creates a coordinator. Zero-value Options give in-memory caching,
// no persistence and default retention (7 days events, 30 days attempts).
func New(opts Options) *Coordinator {
	if opts.Sink == nil {
		opts.Sink = events.NopSink{}
	}
	if opts.LocalCache == nil {
		opts.LocalCache = cache.NewMemory()
	}
	if opts.EventRetention <= 0 {
		opts.EventRetention = 7 * 24 * time.Hour
	}
	if opts.AttemptRetention <= 0 {
		opts.AttemptRetention = 30 * 24 * time.Hour
	}

	return &Coordinator{
		registry:         health.NewRegistry(opts.Sink, opts.RegistryTick),
		sink:             opts.Sink,
		local:            opts.LocalCache,
		shared:           opts.SharedCache,
		eventRepo:        opts.EventRepo,
		attemptRepo:      opts.AttemptRepo,
		eventRetention:   opts.EventRetention,
		attemptRetention: opts.AttemptRetention,
		services:         make(map[string]*serviceState),
	}
}

// Registry exposes the health registry (scheduling loop, reports).
func (c *Coordinator) Registry() *health.Registry {
	return c.registry
}

// RegisterService wires up a monitor, orchestrator and dispatcher for the
// service. Registering an existing name replaces its state.
func (c *Coordinator) RegisterService(reg domain.ServiceRegistration) error {
	if reg.Name == "" {
		return fmt.Errorf("service name is required")
	}

	if err := c.registry.RegisterService(reg.Name, reg.Health, reg.URL, reg.Dependencies); err != nil {
		return err
	}
	reg.RegisteredAt = time.Now()

	state := &serviceState{
		registration: reg,
		orchestrator: recovery.NewOrchestrator(reg.Name, reg.Recovery, c.sink),
		dispatcher:   fallback.NewDispatcher(reg.Name, reg.Fallbacks, c.local, c.shared, c.sink),
		healthScore:  1.0,
	}

	c.mu.Lock()
	c.services[reg.Name] = state
	c.mu.Unlock()

	metrics.ServiceHealthScore.WithLabelValues(reg.Name).Set(1.0)
	slog.Info("Service registered", "service", reg.Name, "fallbacks", len(reg.Fallbacks))
	return nil
}

// UnregisterService removes the service and all derived state.
func (c *Coordinator) UnregisterService(name string) error {
	c.mu.Lock()
	_, ok := c.services[name]
	delete(c.services, name)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return c.registry.UnregisterService(name)
}

// SetCustomCheck installs the custom-check predicate on the service's
// monitor.
func (c *Coordinator) SetCustomCheck(service string, fn health.CustomCheck) error {
	monitor, err := c.registry.Monitor(service)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotRegistered, service)
	}
	monitor.SetCustomCheck(fn)
	return nil
}

// CheckServiceHealth runs one check for the service immediately.
func (c *Coordinator) CheckServiceHealth(ctx context.Context, service string, checkType domain.CheckType, params map[string]any) (domain.HealthCheckResult, error) {
	result, err := c.registry.CheckNow(ctx, service, checkType, params)
	if err != nil {
		return domain.HealthCheckResult{}, fmt.Errorf("%w: %s", ErrNotRegistered, service)
	}
	return result, nil
}

// HandleFailure is the main entry point: record the failure, attempt
// recovery for high/critical levels, and fall back to degraded behavior
// when recovery is skipped or fails. It never returns an error for
// expected failure conditions, only for unknown services.
func (c *Coordinator) HandleFailure(
	ctx context.Context,
	service string,
	level domain.FailureLevel,
	failureType string,
	message string,
	meta map[string]any,
	op recovery.OperationProbe,
	healthFn recovery.HealthProbe,
) (HandleResult, error) {
	c.mu.RLock()
	state, ok := c.services[service]
	c.mu.RUnlock()
	if !ok {
		return HandleResult{}, fmt.Errorf("%w: %s", ErrNotRegistered, service)
	}

	// Serialize handling per service; other services proceed in parallel.
	state.mu.Lock()
	defer state.mu.Unlock()

	event := c.recordFailure(ctx, service, level, failureType, message)
	state.scoreMu.Lock()
	state.consecutiveFailures++
	state.scoreMu.Unlock()
	metrics.FailuresHandled.WithLabelValues(service, string(level)).Inc()

	if level == domain.FailureHigh || level == domain.FailureCritical {
		result, recovered := c.attemptRecovery(ctx, state, event, level, meta, op, healthFn)
		if recovered {
			return result, nil
		}
	}

	return c.attemptFallback(ctx, state, level, failureType, message, meta), nil
}

func (c *Coordinator) recordFailure(ctx context.Context, service string, level domain.FailureLevel, failureType, message string) *domain.FailureEvent {
	event := &domain.FailureEvent{
		ID:        uuid.New().String(),
		Service:   service,
		Level:     level,
		Type:      failureType,
		Message:   message,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	if len(c.events) > eventHistoryLimit {
		c.events = c.events[len(c.events)-eventHistoryLimit:]
	}
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.TotalFailures++
	c.statsMu.Unlock()

	if c.eventRepo != nil {
		if err := c.eventRepo.Save(ctx, event); err != nil {
			slog.Debug("Failed to persist failure event", "service", service, "error", err)
		}
	}
	c.sink.TrackEvent("failure_reported", map[string]any{
		"service": service,
		"level":   string(level),
		"type":    failureType,
	})
	return event
}

func (c *Coordinator) attemptRecovery(
	ctx context.Context,
	state *serviceState,
	event *domain.FailureEvent,
	level domain.FailureLevel,
	meta map[string]any,
	op recovery.OperationProbe,
	healthFn recovery.HealthProbe,
) (HandleResult, bool) {
	strategy := c.pickStrategy(level, state)

	attempt, err := state.orchestrator.StartRecovery(strategy, meta)
	if err != nil {
		// An attempt is already in flight; reject this one in its favor.
		slog.Warn("Recovery not started", "service", event.Service, "error", err)
		return HandleResult{}, false
	}

	c.mu.Lock()
	event.RecoveryID = attempt.ID
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.TotalRecoveryAttempts++
	c.statsMu.Unlock()

	final, err := state.orchestrator.ExecuteRecovery(ctx, attempt.ID, healthFn, op, meta)
	if err != nil {
		slog.Warn("Recovery execution failed", "service", event.Service, "error", err)
		return HandleResult{}, false
	}

	if c.attemptRepo != nil {
		if saveErr := c.attemptRepo.Save(ctx, &final); saveErr != nil {
			slog.Debug("Failed to persist recovery attempt", "service", event.Service, "error", saveErr)
		}
	}

	if final.Status != domain.RecoverySuccessful {
		c.statsMu.Lock()
		c.stats.FailedRecoveries++
		c.statsMu.Unlock()
		return HandleResult{}, false
	}

	c.statsMu.Lock()
	c.stats.SuccessfulRecoveries++
	c.statsMu.Unlock()

	c.mu.Lock()
	event.Resolved = true
	c.mu.Unlock()

	if c.eventRepo != nil {
		if err := c.eventRepo.MarkResolved(ctx, event.ID, attempt.ID); err != nil {
			slog.Debug("Failed to persist event resolution", "service", event.Service, "error", err)
		}
	}

	state.scoreMu.Lock()
	state.consecutiveFailures = 0
	state.scoreMu.Unlock()
	c.adjustHealthScore(state, +0.1)

	return HandleResult{
		Status:     StatusRecovered,
		RecoveryID: attempt.ID,
		Data: map[string]any{
			"strategy":            string(final.Strategy),
			"attempts":            final.AttemptsMade,
			"recovery_percentage": final.RecoveryPercentage,
		},
	}, true
}

func (c *Coordinator) attemptFallback(
	ctx context.Context,
	state *serviceState,
	level domain.FailureLevel,
	failureType string,
	message string,
	meta map[string]any,
) HandleResult {
	operationType := failureType
	var originalRequest map[string]any
	if meta != nil {
		if v, ok := meta["operation"].(string); ok && v != "" {
			operationType = v
		}
		if v, ok := meta["request"].(map[string]any); ok {
			originalRequest = v
		}
	}

	_, failures := state.snapshot()
	fctx := domain.FailureContext{
		Service:             state.registration.Name,
		Level:               level,
		FailureType:         failureType,
		Message:             message,
		ConsecutiveFailures: failures,
		Metadata:            meta,
	}
	if meta != nil {
		if d, ok := meta["response_time"].(time.Duration); ok {
			fctx.ResponseTime = d
		}
	}
	if monitor, err := c.registry.Monitor(state.registration.Name); err == nil {
		hs := monitor.State()
		if hs.TotalChecks > 0 {
			fctx.ErrorRate = float64(hs.TotalFailures) / float64(hs.TotalChecks)
		}
		if fctx.ResponseTime == 0 {
			if history := monitor.History(time.Time{}); len(history) > 0 {
				fctx.ResponseTime = history[len(history)-1].ResponseTime
			}
		}
	}

	outcome, err := state.dispatcher.Execute(ctx, fctx, operationType, originalRequest)
	if err != nil {
		c.adjustHealthScore(state, -0.1)
		return HandleResult{Status: StatusFailed, Error: err.Error()}
	}

	c.statsMu.Lock()
	c.stats.TotalFallbackExecutions++
	c.statsMu.Unlock()

	return HandleResult{
		Status:       StatusFallback,
		FallbackType: outcome.Type,
		Data:         outcome.Data,
	}
}

// pickStrategy is the deterministic decision table. Critical failures
// always recover immediately regardless of history or score.
func (c *Coordinator) pickStrategy(level domain.FailureLevel, state *serviceState) domain.RecoveryStrategy {
	if level == domain.FailureCritical {
		return domain.StrategyImmediate
	}
	score, failures := state.snapshot()
	switch {
	case failures >= 5:
		return domain.StrategyCanary
	case failures >= 3:
		return domain.StrategyGradual
	case score > 0.7:
		return domain.StrategyImmediate
	case score > 0.4:
		return domain.StrategyGradual
	default:
		return domain.StrategyAdaptive
	}
}

// adjustHealthScore shifts the score, clamped to [0, 1].
func (c *Coordinator) adjustHealthScore(state *serviceState, delta float64) {
	state.scoreMu.Lock()
	state.healthScore += delta
	if state.healthScore > 1.0 {
		state.healthScore = 1.0
	}
	if state.healthScore < 0.0 {
		state.healthScore = 0.0
	}
	score := state.healthScore
	state.scoreMu.Unlock()
	metrics.ServiceHealthScore.WithLabelValues(state.registration.Name).Set(score)
}

// Prune drops failure events and recovery history older than the
// configured retention windows, in memory and in the audit store.
func (c *Coordinator) Prune(ctx context.Context) (eventsRemoved, attemptsRemoved int) {
	eventCutoff := time.Now().Add(-c.eventRetention)
	attemptCutoff := time.Now().Add(-c.attemptRetention)

	c.mu.Lock()
	kept := c.events[:0]
	for _, e := range c.events {
		if e.Timestamp.After(eventCutoff) {
			kept = append(kept, e)
		}
	}
	eventsRemoved = len(c.events) - len(kept)
	c.events = kept

	states := make([]*serviceState, 0, len(c.services))
	for _, s := range c.services {
		states = append(states, s)
	}
	c.mu.Unlock()

	for _, s := range states {
		attemptsRemoved += s.orchestrator.PruneHistory(attemptCutoff)
	}

	if c.eventRepo != nil {
		if _, err := c.eventRepo.Purge(ctx, eventCutoff); err != nil {
			slog.Debug("Failed to purge persisted events", "error", err)
		}
	}
	if c.attemptRepo != nil {
		if _, err := c.attemptRepo.Purge(ctx, attemptCutoff); err != nil {
			slog.Debug("Failed to purge persisted attempts", "error", err)
		}
	}
	return eventsRemoved, attemptsRemoved
}
