// Package storage defines the audit persistence collaborators. Writes are
// best-effort: the resilience core stays correct when persistence fails.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// FailureEventRepository persists the failure-event audit trail.
type FailureEventRepository interface {
	// Save inserts a failure event.
	Save(ctx context.Context, event *domain.FailureEvent) error

	// MarkResolved flips the resolved flag and links the recovery attempt.
	MarkResolved(ctx context.Context, id, recoveryID string) error

	// ListRecent returns events for a service since the given time,
	// newest first. An empty service matches all services.
	ListRecent(ctx context.Context, service string, since time.Time) ([]*domain.FailureEvent, error)

	// Purge deletes events older than before and reports how many.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// RecoveryAttemptRepository persists completed recovery attempts.
type RecoveryAttemptRepository interface {
	// Save inserts a completed attempt.
	Save(ctx context.Context, attempt *domain.RecoveryAttempt) error

	// ListRecent returns attempts for a service since the given time,
	// newest first. An empty service matches all services.
	ListRecent(ctx context.Context, service string, since time.Time) ([]*domain.RecoveryAttempt, error)

	// Purge deletes attempts that ended before the given time.
	Purge(ctx context.Context, before time.Time) (int64, error)
}
