package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// AttemptRepo implements storage.RecoveryAttemptRepository using PostgreSQL.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new PostgreSQL recovery attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Save inserts a completed attempt. Error messages are stored as JSON.
func (r *AttemptRepo) Save(ctx context.Context, attempt *domain.RecoveryAttempt) error {
	errs, err := json.Marshal(attempt.ErrorMessages)
	if err != nil {
		return fmt.Errorf("failed to encode error messages: %w", err)
	}

	query := `
		INSERT INTO recovery_attempts
			(id, service, strategy, status, attempts_made, recovery_percentage, error_messages, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(
		ctx,
		query,
		attempt.ID,
		attempt.Service,
		string(attempt.Strategy),
		string(attempt.Status),
		attempt.AttemptsMade,
		attempt.RecoveryPercentage,
		errs,
		attempt.StartedAt,
		attempt.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save recovery attempt: %w", err)
	}
	return nil
}

// ListRecent returns attempts for a service since the given time, newest
// first. An empty service matches all services.
func (r *AttemptRepo) ListRecent(ctx context.Context, service string, since time.Time) ([]*domain.RecoveryAttempt, error) {
	query := `
		SELECT id, service, strategy, status, attempts_made, recovery_percentage, error_messages, started_at, ended_at
		FROM recovery_attempts
		WHERE ended_at >= $1 AND ($2 = '' OR service = $2)
		ORDER BY ended_at DESC
	`

	var rows []struct {
		ID                 string    `db:"id"`
		Service            string    `db:"service"`
		Strategy           string    `db:"strategy"`
		Status             string    `db:"status"`
		AttemptsMade       int       `db:"attempts_made"`
		RecoveryPercentage float64   `db:"recovery_percentage"`
		ErrorMessages      []byte    `db:"error_messages"`
		StartedAt          time.Time `db:"started_at"`
		EndedAt            time.Time `db:"ended_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, since, service); err != nil {
		return nil, fmt.Errorf("failed to list recovery attempts: %w", err)
	}

	out := make([]*domain.RecoveryAttempt, 0, len(rows))
	for _, row := range rows {
		var errs []string
		_ = json.Unmarshal(row.ErrorMessages, &errs)

		out = append(out, &domain.RecoveryAttempt{
			ID:                 row.ID,
			Service:            row.Service,
			Strategy:           domain.RecoveryStrategy(row.Strategy),
			Status:             domain.RecoveryStatus(row.Status),
			AttemptsMade:       row.AttemptsMade,
			RecoveryPercentage: row.RecoveryPercentage,
			ErrorMessages:      errs,
			StartedAt:          row.StartedAt,
			EndedAt:            row.EndedAt,
		})
	}
	return out, nil
}

// Purge deletes attempts that ended before the given time.
func (r *AttemptRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recovery_attempts WHERE ended_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge recovery attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
