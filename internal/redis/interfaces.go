package redis

import (
	"context"
	"time"

	"cafetrack/internal/geo"
)

// LocationStoreInterface defines the interface for rider location operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, riderID string, lat, lng float64) error
	GetLocation(ctx context.Context, riderID string) (geo.Point, bool, error)
	RemoveLocation(ctx context.Context, riderID string) error
}

// LockStoreInterface defines the interface for distributed tracking locks.
type LockStoreInterface interface {
	AcquireTrackLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	RefreshTrackLock(ctx context.Context, orderID string, ttl time.Duration) error
	ReleaseTrackLock(ctx context.Context, orderID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
