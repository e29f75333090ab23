// Package memory provides in-process audit stores for tests and no-DB
// deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/storage"
)

// EventRepo implements storage.FailureEventRepository in memory.
type EventRepo struct {
	mu     sync.Mutex
	events []*domain.FailureEvent
}

// NewEventRepo creates an empty in-memory event store.
func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

func (r *EventRepo) Save(ctx context.Context, event *domain.FailureEvent) error {
	copied := *event

	r.mu.Lock()
	r.events = append(r.events, &copied)
	r.mu.Unlock()
	return nil
}

func (r *EventRepo) MarkResolved(ctx context.Context, id, recoveryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.ID == id {
			e.Resolved = true
			e.RecoveryID = recoveryID
			return nil
		}
	}
	return fmt.Errorf("%w: event %s", storage.ErrNotFound, id)
}

func (r *EventRepo) ListRecent(ctx context.Context, service string, since time.Time) ([]*domain.FailureEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.FailureEvent, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.Timestamp.Before(since) {
			continue
		}
		if service != "" && e.Service != service {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (r *EventRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	for _, e := range r.events {
		if e.Timestamp.After(before) {
			kept = append(kept, e)
		}
	}
	removed := int64(len(r.events) - len(kept))
	r.events = kept
	return removed, nil
}

// AttemptRepo implements storage.RecoveryAttemptRepository in memory.
type AttemptRepo struct {
	mu       sync.Mutex
	attempts []*domain.RecoveryAttempt
}

// NewAttemptRepo creates an empty in-memory attempt store.
func NewAttemptRepo() *AttemptRepo {
	return &AttemptRepo{}
}

func (r *AttemptRepo) Save(ctx context.Context, attempt *domain.RecoveryAttempt) error {
	copied := *attempt

	r.mu.Lock()
	r.attempts = append(r.attempts, &copied)
	r.mu.Unlock()
	return nil
}

func (r *AttemptRepo) ListRecent(ctx context.Context, service string, since time.Time) ([]*domain.RecoveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.RecoveryAttempt, 0)
	for i := len(r.attempts) - 1; i >= 0; i-- {
		a := r.attempts[i]
		if a.EndedAt.Before(since) {
			continue
		}
		if service != "" && a.Service != service {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (r *AttemptRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.attempts[:0]
	for _, a := range r.attempts {
		if a.EndedAt.After(before) {
			kept = append(kept, a)
		}
	}
	removed := int64(len(r.attempts) - len(kept))
	r.attempts = kept
	return removed, nil
}
