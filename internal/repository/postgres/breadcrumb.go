package postgres

import (
	"context"
	"database/sql"
	"errors"

	"cafetrack/internal/domain"
	"cafetrack/internal/repository"
)

// BreadcrumbRepository is a PostgreSQL implementation of
// repository.BreadcrumbRepository.
type BreadcrumbRepository struct {
	q Querier
}

// NewBreadcrumbRepository creates a new PostgreSQL breadcrumb repository.
func NewBreadcrumbRepository(db *sql.DB) *BreadcrumbRepository {
	return &BreadcrumbRepository{q: db}
}

// Record appends one position observation.
func (r *BreadcrumbRepository) Record(ctx context.Context, crumb *domain.Breadcrumb) error {
	query := `INSERT INTO breadcrumbs (id, rider_id, order_id, lat, lng, heading_degrees, recorded_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.ExecContext(ctx, query,
		crumb.ID, crumb.RiderID, crumb.OrderID, crumb.Lat, crumb.Lng, crumb.HeadingDegrees, crumb.RecordedAt)
	return err
}

// ListByOrder returns the breadcrumb trail of an order, oldest first.
func (r *BreadcrumbRepository) ListByOrder(ctx context.Context, orderID string, limit int) ([]*domain.Breadcrumb, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT id, rider_id, COALESCE(order_id, ''), lat, lng, heading_degrees, recorded_at
	          FROM breadcrumbs WHERE order_id = $1 ORDER BY recorded_at ASC LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, orderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crumbs []*domain.Breadcrumb
	for rows.Next() {
		var crumb domain.Breadcrumb
		if err := rows.Scan(&crumb.ID, &crumb.RiderID, &crumb.OrderID,
			&crumb.Lat, &crumb.Lng, &crumb.HeadingDegrees, &crumb.RecordedAt); err != nil {
			return nil, err
		}
		crumbs = append(crumbs, &crumb)
	}
	return crumbs, rows.Err()
}

// LastByRider returns the most recent breadcrumb for a rider.
func (r *BreadcrumbRepository) LastByRider(ctx context.Context, riderID string) (*domain.Breadcrumb, error) {
	query := `SELECT id, rider_id, COALESCE(order_id, ''), lat, lng, heading_degrees, recorded_at
	          FROM breadcrumbs WHERE rider_id = $1 ORDER BY recorded_at DESC LIMIT 1`

	var crumb domain.Breadcrumb
	err := r.q.QueryRowContext(ctx, query, riderID).Scan(&crumb.ID, &crumb.RiderID, &crumb.OrderID,
		&crumb.Lat, &crumb.Lng, &crumb.HeadingDegrees, &crumb.RecordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &crumb, nil
}

var _ repository.BreadcrumbRepository = (*BreadcrumbRepository)(nil)
