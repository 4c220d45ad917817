package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireTrackLock attempts to acquire the tracking lock for an order, so
// that only one service instance runs a polling session for it.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquireTrackLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:track:%s", orderID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// RefreshTrackLock extends the tracking lock while a session is alive.
func (s *LockStore) RefreshTrackLock(ctx context.Context, orderID string, ttl time.Duration) error {
	key := fmt.Sprintf("lock:track:%s", orderID)
	return s.client.Expire(ctx, key, ttl).Err()
}

// ReleaseTrackLock releases the tracking lock for an order.
func (s *LockStore) ReleaseTrackLock(ctx context.Context, orderID string) error {
	key := fmt.Sprintf("lock:track:%s", orderID)

	return s.client.Del(ctx, key).Err()
}
