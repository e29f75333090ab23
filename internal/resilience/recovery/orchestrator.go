// Package recovery implements the recovery-attempt state machine and the
// strategies that ramp traffic back to a failed service.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/events"
	"github.com/vietddude/sentinel/internal/resilience/metrics"
)

var (
	// ErrRecoveryActive is returned when a second recovery is started
	// while one is still in flight for the service.
	ErrRecoveryActive = errors.New("recovery already in progress")

	// ErrUnknownAttempt is returned when executing an attempt id that is
	// not the active one.
	ErrUnknownAttempt = errors.New("unknown recovery attempt")
)

const historyLimit = 50

// HealthProbe reports whether the service looks healthy. Implementations
// are caller-supplied; errors are counted as failed samples and never
// propagate past the strategy body.
type HealthProbe func(ctx context.Context, args map[string]any) (bool, error)

// OperationProbe exercises one representative operation against the
// service. Same error discipline as HealthProbe.
type OperationProbe func(ctx context.Context, args map[string]any) (bool, error)

// Orchestrator owns the recovery state machine for one service. At most
// one attempt is in flight at a time; completed attempts move into a
// bounded history ring.
type Orchestrator struct {
	service string
	cfg     domain.RecoveryConfig
	sink    events.Sink

	mu      sync.Mutex
	active  *domain.RecoveryAttempt
	history []domain.RecoveryAttempt
}

// NewOrchestrator creates an orchestrator with defaulted config.
func NewOrchestrator(service string, cfg domain.RecoveryConfig, sink events.Sink) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.GradualInterval <= 0 {
		cfg.GradualInterval = 10 * time.Second
	}
	if cfg.CanaryTrafficPercent <= 0 {
		cfg.CanaryTrafficPercent = 0.05
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 0.8
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2.0
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Orchestrator{service: service, cfg: cfg, sink: sink}
}

// Config returns the orchestrator's recovery configuration.
func (o *Orchestrator) Config() domain.RecoveryConfig {
	return o.cfg
}

// StartRecovery creates a new attempt and makes it the active one.
// A still-running attempt causes ErrRecoveryActive.
func (o *Orchestrator) StartRecovery(strategy domain.RecoveryStrategy, meta map[string]any) (domain.RecoveryAttempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && !o.active.Status.Terminal() {
		return domain.RecoveryAttempt{}, fmt.Errorf("%w: %s", ErrRecoveryActive, o.active.ID)
	}

	attempt := &domain.RecoveryAttempt{
		ID:        uuid.New().String(),
		Service:   o.service,
		Strategy:  strategy,
		Status:    domain.RecoveryNotStarted,
		StartedAt: time.Now(),
		Context:   meta,
	}
	o.active = attempt

	slog.Info("Recovery started", "service", o.service, "strategy", strategy, "id", attempt.ID)
	return *attempt, nil
}

// ExecuteRecovery runs the strategy body for the active attempt and
// finalizes its status. The whole run is bounded by the configured
// recovery timeout.
func (o *Orchestrator) ExecuteRecovery(ctx context.Context, id string, health HealthProbe, op OperationProbe, args map[string]any) (domain.RecoveryAttempt, error) {
	o.mu.Lock()
	if o.active == nil || o.active.ID != id {
		o.mu.Unlock()
		return domain.RecoveryAttempt{}, fmt.Errorf("%w: %s", ErrUnknownAttempt, id)
	}
	o.active.Status = domain.RecoveryInProgress
	// Strategies mutate a private copy; the shared attempt is only
	// touched under the lock.
	work := *o.active
	o.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	success, err := o.runStrategy(runCtx, &work, health, op, args)

	o.mu.Lock()
	attempt := o.active
	*attempt = work
	switch {
	case success:
		attempt.Status = domain.RecoverySuccessful
		attempt.RecoveryPercentage = 100
	case errors.Is(err, context.DeadlineExceeded):
		attempt.Status = domain.RecoveryTimeout
		attempt.ErrorMessages = append(attempt.ErrorMessages, "recovery timeout exceeded")
	case attempt.RecoveryPercentage > 0:
		attempt.Status = domain.RecoveryPartial
	default:
		attempt.Status = domain.RecoveryFailed
	}
	attempt.EndedAt = time.Now()

	final := *attempt
	o.history = append(o.history, final)
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
	o.mu.Unlock()

	metrics.RecoveryAttempts.WithLabelValues(o.service, string(final.Strategy), string(final.Status)).Inc()
	o.sink.TrackEvent("recovery_completed", map[string]any{
		"service":  o.service,
		"strategy": string(final.Strategy),
		"status":   string(final.Status),
		"attempts": final.AttemptsMade,
	})
	slog.Info("Recovery finished",
		"service", o.service,
		"strategy", final.Strategy,
		"status", final.Status,
		"attempts", final.AttemptsMade,
		"percentage", final.RecoveryPercentage,
	)

	return final, nil
}

// Active returns a copy of the in-flight attempt, if any.
func (o *Orchestrator) Active() (domain.RecoveryAttempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || o.active.Status.Terminal() {
		return domain.RecoveryAttempt{}, false
	}
	return *o.active, true
}

// History returns completed attempts, oldest first.
func (o *Orchestrator) History() []domain.RecoveryAttempt {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]domain.RecoveryAttempt, len(o.history))
	copy(out, o.history)
	return out
}

// PruneHistory drops completed attempts that ended before cutoff and
// returns how many were removed.
func (o *Orchestrator) PruneHistory(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.history[:0]
	for _, a := range o.history {
		if a.EndedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(o.history) - len(kept)
	o.history = kept
	return removed
}

func (o *Orchestrator) runStrategy(ctx context.Context, attempt *domain.RecoveryAttempt, health HealthProbe, op OperationProbe, args map[string]any) (bool, error) {
	switch attempt.Strategy {
	case domain.StrategyImmediate:
		return o.runImmediate(ctx, attempt, health, op, args)
	case domain.StrategyGradual:
		return o.runGradual(ctx, attempt, op, args)
	case domain.StrategyCanary:
		return o.runCanary(ctx, attempt, op, args)
	case domain.StrategyLoadBalanced:
		return o.runLoadBalanced(ctx, attempt, health, op, args)
	case domain.StrategyAdaptive:
		return o.runAdaptive(ctx, attempt, op, args)
	case domain.StrategyRolling:
		return o.runRolling(ctx, attempt, health, op, args)
	default:
		o.recordError(attempt, fmt.Sprintf("unknown strategy: %s", attempt.Strategy))
		return false, nil
	}
}
