package worker

import (
	"context"
	"log/slog"
	"time"
)

// PruneTarget is anything that can drop history older than its retention
// windows.
type PruneTarget interface {
	Prune(ctx context.Context) (eventsRemoved, attemptsRemoved int)
}

// Pruner periodically purges failure and recovery history.
type Pruner struct {
	target    PruneTarget
	retention time.Duration
}

// NewPruner creates a pruner. retention should be the shortest configured
// retention window; it drives the check interval.
func NewPruner(target PruneTarget, retention time.Duration) *Pruner {
	return &Pruner{target: target, retention: retention}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of the retention window, clamped to [1m, 1h]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	events, attempts := p.target.Prune(ctx)
	if events > 0 || attempts > 0 {
		slog.Info("Pruned resilience history", "events", events, "attempts", attempts)
	}
}
