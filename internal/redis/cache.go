package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
)

// CacheStore handles short-lived entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// OrderSnapshotTTL keeps a polled order snapshot just long enough that
// multiple viewers of the same order share one upstream fetch per tick.
const OrderSnapshotTTL = 4 * time.Second

const orderSnapshotPrefix = "cache:order:"

// cachedOrder is the wire form of a TrackedOrder snapshot.
type cachedOrder struct {
	ID              string             `json:"id"`
	Type            string             `json:"type"`
	Status          string             `json:"status"`
	Items           []domain.OrderItem `json:"items,omitempty"`
	Total           float64            `json:"total"`
	RiderID         string             `json:"rider_id,omitempty"`
	RiderName       string             `json:"rider_name,omitempty"`
	RiderPin        *geo.Point         `json:"rider_pin,omitempty"`
	CustomerAddress string             `json:"customer_address,omitempty"`
	CustomerPin     *geo.Point         `json:"customer_pin,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// GetOrderSnapshot retrieves a cached order snapshot. Returns nil on miss.
func (s *CacheStore) GetOrderSnapshot(ctx context.Context, orderID string) (*domain.TrackedOrder, error) {
	data, err := s.client.Get(ctx, orderSnapshotPrefix+orderID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached cachedOrder
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &domain.TrackedOrder{
		ID:              cached.ID,
		Type:            domain.OrderType(cached.Type),
		Status:          domain.OrderStatus(cached.Status),
		Items:           cached.Items,
		Total:           cached.Total,
		RiderID:         cached.RiderID,
		RiderName:       cached.RiderName,
		RiderLocation:   cached.RiderPin,
		CustomerAddress: cached.CustomerAddress,
		CustomerPin:     cached.CustomerPin,
		UpdatedAt:       cached.UpdatedAt,
	}, nil
}

// SetOrderSnapshot stores an order snapshot with the snapshot TTL.
func (s *CacheStore) SetOrderSnapshot(ctx context.Context, order *domain.TrackedOrder) error {
	cached := cachedOrder{
		ID:              order.ID,
		Type:            string(order.Type),
		Status:          string(order.Status),
		Items:           order.Items,
		Total:           order.Total,
		RiderID:         order.RiderID,
		RiderName:       order.RiderName,
		RiderPin:        order.RiderLocation,
		CustomerAddress: order.CustomerAddress,
		CustomerPin:     order.CustomerPin,
		UpdatedAt:       order.UpdatedAt,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, orderSnapshotPrefix+order.ID, data, OrderSnapshotTTL).Err()
}

// InvalidateOrderSnapshot removes a cached order snapshot.
func (s *CacheStore) InvalidateOrderSnapshot(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, orderSnapshotPrefix+orderID).Err()
}
