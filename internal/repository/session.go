package repository

import (
	"context"

	"cafetrack/internal/domain"
)

// SessionRepository defines the persistence operations for tracking-session
// audit records.
type SessionRepository interface {
	// Create records the start of a tracking session.
	Create(ctx context.Context, record *domain.TrackRecord) error

	// Close records the end of a session and its final order status.
	Close(ctx context.Context, sessionID string, final domain.OrderStatus) error

	// GetByOrder returns the most recent session for an order.
	GetByOrder(ctx context.Context, orderID string) (*domain.TrackRecord, error)
}
