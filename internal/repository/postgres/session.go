package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cafetrack/internal/domain"
	"cafetrack/internal/repository"
)

// SessionRepository is a PostgreSQL implementation of
// repository.SessionRepository.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{q: db}
}

// Create records the start of a tracking session.
func (r *SessionRepository) Create(ctx context.Context, record *domain.TrackRecord) error {
	query := `INSERT INTO track_sessions (id, order_id, started_at) VALUES ($1, $2, $3)`
	_, err := r.q.ExecContext(ctx, query, record.ID, record.OrderID, record.StartedAt)
	return err
}

// Close records the end of a session and its final order status.
func (r *SessionRepository) Close(ctx context.Context, sessionID string, final domain.OrderStatus) error {
	query := `UPDATE track_sessions SET stopped_at = $1, final_status = $2 WHERE id = $3 AND stopped_at IS NULL`

	result, err := r.q.ExecContext(ctx, query, time.Now().UTC(), final, sessionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetByOrder returns the most recent session for an order.
func (r *SessionRepository) GetByOrder(ctx context.Context, orderID string) (*domain.TrackRecord, error) {
	query := `SELECT id, order_id, started_at, stopped_at, COALESCE(final_status, '')
	          FROM track_sessions WHERE order_id = $1 ORDER BY started_at DESC LIMIT 1`

	var record domain.TrackRecord
	var stoppedAt sql.NullTime
	var finalStatus string

	err := r.q.QueryRowContext(ctx, query, orderID).Scan(
		&record.ID, &record.OrderID, &record.StartedAt, &stoppedAt, &finalStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if stoppedAt.Valid {
		record.StoppedAt = &stoppedAt.Time
	}
	record.FinalStatus = domain.OrderStatus(finalStatus)

	return &record, nil
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
