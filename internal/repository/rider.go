package repository

import (
	"context"

	"cafetrack/internal/domain"
)

// RiderRepository defines the persistence operations for riders.
type RiderRepository interface {
	// Upsert creates or refreshes a rider record.
	Upsert(ctx context.Context, rider *domain.Rider) error

	// GetByID retrieves a rider by ID.
	GetByID(ctx context.Context, id string) (*domain.Rider, error)

	// UpdateStatus updates the status of a rider.
	UpdateStatus(ctx context.Context, id string, status domain.RiderStatus) error
}
