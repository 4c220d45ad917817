package repository

import (
	"context"

	"cafetrack/internal/domain"
)

// BreadcrumbRepository defines the persistence operations for rider
// position breadcrumbs.
type BreadcrumbRepository interface {
	// Record appends one position observation.
	Record(ctx context.Context, crumb *domain.Breadcrumb) error

	// ListByOrder returns the breadcrumb trail of an order, oldest first.
	ListByOrder(ctx context.Context, orderID string, limit int) ([]*domain.Breadcrumb, error)

	// LastByRider returns the most recent breadcrumb for a rider.
	LastByRider(ctx context.Context, riderID string) (*domain.Breadcrumb, error)
}
