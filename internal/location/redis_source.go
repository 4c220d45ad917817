package location

import (
	"context"
	"fmt"

	"cafetrack/internal/geo"
	"cafetrack/internal/redis"
)

// RedisSource reads positions that riders push through this service's own
// ingest endpoint. It is the cheapest source and should be first in order.
type RedisSource struct {
	store redis.LocationStoreInterface
}

// NewRedisSource creates a source backed by the Redis geo index.
func NewRedisSource(store redis.LocationStoreInterface) *RedisSource {
	return &RedisSource{store: store}
}

// Name identifies the source in error messages.
func (s *RedisSource) Name() string { return "redis-geo" }

// Lookup returns the entity's last reported position from the geo index.
// Redis errors count as a miss so the resolver can fall through to the
// upstream HTTP sources.
func (s *RedisSource) Lookup(ctx context.Context, entityID string) (geo.Point, error) {
	pt, ok, err := s.store.GetLocation(ctx, entityID)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return geo.Point{}, ErrUnavailable
	}
	return pt, nil
}

var _ Source = (*RedisSource)(nil)
