package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"cafetrack/internal/geo"
)

const riderLocationKey = "riders:locations"

// LocationStore handles rider location operations in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a rider's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, riderID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, riderLocationKey, &redis.GeoLocation{
		Name:      riderID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// GetLocation returns a rider's last known position. The boolean is false
// when the rider has never reported a position.
func (s *LocationStore) GetLocation(ctx context.Context, riderID string) (geo.Point, bool, error) {
	positions, err := s.client.GeoPos(ctx, riderLocationKey, riderID).Result()
	if err != nil {
		return geo.Point{}, false, err
	}
	if len(positions) == 0 || positions[0] == nil {
		return geo.Point{}, false, nil
	}
	return geo.Point{Lat: positions[0].Latitude, Lng: positions[0].Longitude}, true, nil
}

// RemoveLocation removes a rider from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, riderID string) error {
	return s.client.ZRem(ctx, riderLocationKey, riderID).Err()
}
