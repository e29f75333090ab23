// Package fallback implements prioritized degraded-behavior dispatch for
// services whose recovery failed or was not attempted.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/cache"
	"github.com/vietddude/sentinel/internal/infra/events"
	"github.com/vietddude/sentinel/internal/resilience/metrics"
)

// ErrUnavailable is returned when no fallback config matched the failure
// context or every matched mechanism failed. It is the one dispatcher
// error callers are expected to branch on.
var ErrUnavailable = errors.New("no fallback available")

// Dispatcher holds a service's priority-ordered fallback chain.
type Dispatcher struct {
	service string
	configs []domain.FallbackConfig
	local   cache.Cache
	shared  cache.Cache // may be nil
	client  *http.Client
	sink    events.Sink

	mu       sync.Mutex
	lastUsed map[domain.FallbackType]time.Time
}

// NewDispatcher creates a dispatcher. Configs are kept in ascending
// priority order. shared may be nil when no distributed cache is wired.
func NewDispatcher(service string, configs []domain.FallbackConfig, local, shared cache.Cache, sink events.Sink) *Dispatcher {
	ordered := make([]domain.FallbackConfig, len(configs))
	copy(ordered, configs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	if local == nil {
		local = cache.NewMemory()
	}
	if sink == nil {
		sink = events.NopSink{}
	}

	return &Dispatcher{
		service:  service,
		configs:  ordered,
		local:    local,
		shared:   shared,
		client:   &http.Client{Timeout: 10 * time.Second},
		sink:     sink,
		lastUsed: make(map[domain.FallbackType]time.Time),
	}
}

// Execute walks the chain in priority order and runs the first eligible
// mechanism. A mechanism failure moves on to the next config; exhausting
// the chain yields ErrUnavailable.
func (d *Dispatcher) Execute(ctx context.Context, fctx domain.FailureContext, operationType string, originalRequest map[string]any) (domain.FallbackOutcome, error) {
	var lastErr error

	for _, cfg := range d.configs {
		if !d.eligible(ctx, cfg, fctx) {
			continue
		}

		outcome, err := d.run(ctx, cfg, fctx, operationType, originalRequest)
		if err != nil {
			lastErr = err
			slog.Debug("Fallback mechanism failed",
				"service", d.service, "type", cfg.Type, "error", err)
			continue
		}

		d.markUsed(ctx, cfg)
		metrics.FallbacksExecuted.WithLabelValues(d.service, string(cfg.Type)).Inc()
		d.sink.TrackEvent("fallback_executed", map[string]any{
			"service":   d.service,
			"type":      string(cfg.Type),
			"operation": operationType,
		})
		return outcome, nil
	}

	if lastErr != nil {
		return domain.FallbackOutcome{}, fmt.Errorf("%w: %s", ErrUnavailable, lastErr)
	}
	return domain.FallbackOutcome{}, fmt.Errorf("%w for service %s", ErrUnavailable, d.service)
}

func (d *Dispatcher) eligible(ctx context.Context, cfg domain.FallbackConfig, fctx domain.FailureContext) bool {
	if !cfg.Enabled {
		return false
	}
	if d.inCooldown(ctx, cfg) {
		return false
	}
	if cfg.LevelThreshold != "" && fctx.Level.Ordinal() < cfg.LevelThreshold.Ordinal() {
		return false
	}
	if cfg.MaxFailures > 0 && fctx.ConsecutiveFailures < cfg.MaxFailures {
		return false
	}
	if cfg.ResponseTimeThreshold > 0 && fctx.ResponseTime < cfg.ResponseTimeThreshold {
		return false
	}
	if cfg.ErrorRateThreshold > 0 && fctx.ErrorRate < cfg.ErrorRateThreshold {
		return false
	}
	return true
}

func (d *Dispatcher) inCooldown(ctx context.Context, cfg domain.FallbackConfig) bool {
	if cfg.Cooldown <= 0 {
		return false
	}

	d.mu.Lock()
	last, ok := d.lastUsed[cfg.Type]
	d.mu.Unlock()
	if ok && time.Since(last) < cfg.Cooldown {
		return true
	}

	if d.shared != nil {
		if _, hit, err := d.shared.Get(ctx, d.cooldownKey(cfg.Type)); err == nil && hit {
			return true
		}
	}
	return false
}

// markUsed records the cooldown timestamp locally and, when wired, in the
// shared cache so restarts keep honoring the window.
func (d *Dispatcher) markUsed(ctx context.Context, cfg domain.FallbackConfig) {
	d.mu.Lock()
	d.lastUsed[cfg.Type] = time.Now()
	d.mu.Unlock()

	if d.shared != nil && cfg.Cooldown > 0 {
		if err := d.shared.Set(ctx, d.cooldownKey(cfg.Type), "1", cfg.Cooldown); err != nil {
			slog.Debug("Failed to persist fallback cooldown", "service", d.service, "error", err)
		}
	}
}

func (d *Dispatcher) cooldownKey(t domain.FallbackType) string {
	return fmt.Sprintf("fallback:cooldown:%s:%s", d.service, t)
}

func (d *Dispatcher) run(ctx context.Context, cfg domain.FallbackConfig, fctx domain.FailureContext, operationType string, originalRequest map[string]any) (domain.FallbackOutcome, error) {
	switch cfg.Type {
	case domain.FallbackCache:
		return d.fromCache(ctx, operationType, originalRequest)
	case domain.FallbackCachedResponse, domain.FallbackStaticResponse:
		return d.staticResponse(cfg, operationType), nil
	case domain.FallbackAlternativeService:
		return d.alternativeService(ctx, cfg, originalRequest)
	case domain.FallbackDegradedMode:
		return d.degradedMode(cfg, fctx), nil
	case domain.FallbackQueueRequest:
		return d.queueRequest(ctx, cfg, operationType, originalRequest)
	default:
		return domain.FallbackOutcome{}, fmt.Errorf("unknown fallback type: %s", cfg.Type)
	}
}
