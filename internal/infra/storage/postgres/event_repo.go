package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// EventRepo implements storage.FailureEventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL failure event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Save inserts a failure event.
func (r *EventRepo) Save(ctx context.Context, event *domain.FailureEvent) error {
	query := `
		INSERT INTO failure_events (id, service, level, failure_type, message, resolved, recovery_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		event.ID,
		event.Service,
		string(event.Level),
		event.Type,
		event.Message,
		event.Resolved,
		event.RecoveryID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save failure event: %w", err)
	}
	return nil
}

// MarkResolved flips the resolved flag and links the recovery attempt.
func (r *EventRepo) MarkResolved(ctx context.Context, id, recoveryID string) error {
	query := `
		UPDATE failure_events
		SET resolved = TRUE, recovery_id = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, recoveryID)
	if err != nil {
		return fmt.Errorf("failed to resolve failure event: %w", err)
	}
	return nil
}

// ListRecent returns events for a service since the given time, newest
// first. An empty service matches all services.
func (r *EventRepo) ListRecent(ctx context.Context, service string, since time.Time) ([]*domain.FailureEvent, error) {
	query := `
		SELECT id, service, level, failure_type, message, resolved, COALESCE(recovery_id, '') AS recovery_id, created_at
		FROM failure_events
		WHERE created_at >= $1 AND ($2 = '' OR service = $2)
		ORDER BY created_at DESC
	`

	var rows []struct {
		ID          string    `db:"id"`
		Service     string    `db:"service"`
		Level       string    `db:"level"`
		FailureType string    `db:"failure_type"`
		Message     string    `db:"message"`
		Resolved    bool      `db:"resolved"`
		RecoveryID  string    `db:"recovery_id"`
		CreatedAt   time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, since, service); err != nil {
		return nil, fmt.Errorf("failed to list failure events: %w", err)
	}

	out := make([]*domain.FailureEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.FailureEvent{
			ID:         row.ID,
			Service:    row.Service,
			Level:      domain.FailureLevel(row.Level),
			Type:       row.FailureType,
			Message:    row.Message,
			Resolved:   row.Resolved,
			RecoveryID: row.RecoveryID,
			Timestamp:  row.CreatedAt,
		})
	}
	return out, nil
}

// Purge deletes events older than before.
func (r *EventRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failure_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge failure events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
