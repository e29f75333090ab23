package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/events"
)

// ErrServiceNotFound is returned when operating on an unregistered service.
var ErrServiceNotFound = errors.New("service not found")

const (
	defaultTick     = 30 * time.Second
	batchDeadline   = 300 * time.Second
	defaultInterval = 60 * time.Second
)

type serviceMeta struct {
	url          string
	dependencies []string
	enabled      bool
	interval     time.Duration
	lastCheck    time.Time
}

// Registry owns the set of health monitors, drives the periodic check
// loop and raises threshold alerts.
type Registry struct {
	sink events.Sink
	tick time.Duration

	mu       sync.RWMutex
	monitors map[string]*Monitor
	meta     map[string]*serviceMeta
	alerter  *alerter
}

// NewRegistry creates an empty registry. A nil sink disables event
// tracking.
func NewRegistry(sink events.Sink, tick time.Duration) *Registry {
	if sink == nil {
		sink = events.NopSink{}
	}
	if tick <= 0 {
		tick = defaultTick
	}
	return &Registry{
		sink:     sink,
		tick:     tick,
		monitors: make(map[string]*Monitor),
		meta:     make(map[string]*serviceMeta),
		alerter:  newAlerter(sink),
	}
}

// RegisterService creates a monitor for the service and enables periodic
// checking. Registering an existing name replaces its monitor.
func (r *Registry) RegisterService(name string, cfg domain.HealthCheckConfig, url string, dependencies []string) error {
	monitor, err := NewMonitor(name, cfg)
	if err != nil {
		return err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	r.mu.Lock()
	r.monitors[name] = monitor
	r.meta[name] = &serviceMeta{
		url:          url,
		dependencies: dependencies,
		enabled:      cfg.Enabled,
		interval:     interval,
	}
	r.mu.Unlock()

	slog.Info("Registered health monitor", "service", name, "type", cfg.Type, "interval", interval)
	return nil
}

// UnregisterService removes the monitor and metadata for the service.
func (r *Registry) UnregisterService(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.monitors[name]; !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	delete(r.monitors, name)
	delete(r.meta, name)
	return nil
}

// Monitor returns the monitor for the named service.
func (r *Registry) Monitor(name string) (*Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.monitors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return m, nil
}

// Services returns the registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.monitors))
	for name := range r.monitors {
		names = append(names, name)
	}
	return names
}

// CheckNow runs one check for the service and evaluates alert rules on
// the result.
func (r *Registry) CheckNow(ctx context.Context, service string, checkType domain.CheckType, params map[string]any) (domain.HealthCheckResult, error) {
	monitor, err := r.Monitor(service)
	if err != nil {
		return domain.HealthCheckResult{}, err
	}

	result := monitor.Check(ctx, checkType, params)

	r.mu.Lock()
	if meta, ok := r.meta[service]; ok {
		meta.lastCheck = time.Now()
	}
	r.mu.Unlock()

	r.alerter.evaluate(result, monitor.Config())
	return result, nil
}

// Run drives the periodic check loop until ctx is cancelled. Each tick
// dispatches one concurrent check per due service; the whole batch shares
// one aggregate deadline so a hung dependency cannot stall the loop.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	slog.Info("Health check loop started", "tick", r.tick)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Health check loop stopped")
			return
		case <-ticker.C:
			r.runDueChecks(ctx)
		}
	}
}

func (r *Registry) runDueChecks(ctx context.Context) {
	now := time.Now()

	r.mu.RLock()
	due := make([]string, 0, len(r.meta))
	for name, meta := range r.meta {
		if meta.enabled && now.Sub(meta.lastCheck) >= meta.interval {
			due = append(due, name)
		}
	}
	r.mu.RUnlock()

	if len(due) == 0 {
		return
	}

	batchCtx, cancel := context.WithTimeout(ctx, batchDeadline)
	defer cancel()

	g, gctx := errgroup.WithContext(batchCtx)
	for _, name := range due {
		g.Go(func() error {
			monitor, err := r.Monitor(name)
			if err != nil {
				return nil // unregistered mid-tick
			}
			if _, err := r.CheckNow(gctx, name, monitor.Config().Type, nil); err != nil {
				slog.Warn("Scheduled check failed", "service", name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
