package postgres

import (
	"context"
	"database/sql"
	"errors"

	"cafetrack/internal/domain"
	"cafetrack/internal/repository"
)

// RiderRepository is a PostgreSQL implementation of repository.RiderRepository.
type RiderRepository struct {
	q Querier
}

// NewRiderRepository creates a new PostgreSQL rider repository.
func NewRiderRepository(db *sql.DB) *RiderRepository {
	return &RiderRepository{q: db}
}

// Upsert creates or refreshes a rider record.
func (r *RiderRepository) Upsert(ctx context.Context, rider *domain.Rider) error {
	query := `INSERT INTO riders (id, name, phone, status)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, status = EXCLUDED.status`
	_, err := r.q.ExecContext(ctx, query, rider.ID, rider.Name, rider.Phone, rider.Status)
	return err
}

// GetByID retrieves a rider by ID.
func (r *RiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	query := `SELECT id, COALESCE(name, ''), COALESCE(phone, ''), status FROM riders WHERE id = $1`

	var rider domain.Rider
	err := r.q.QueryRowContext(ctx, query, id).Scan(&rider.ID, &rider.Name, &rider.Phone, &rider.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &rider, nil
}

// UpdateStatus updates the status of a rider.
func (r *RiderRepository) UpdateStatus(ctx context.Context, id string, status domain.RiderStatus) error {
	query := `UPDATE riders SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
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

var _ repository.RiderRepository = (*RiderRepository)(nil)
