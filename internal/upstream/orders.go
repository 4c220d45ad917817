// Package upstream holds HTTP clients for the backend services this tracker
// consumes: the order service (status polls, authoritative ETAs) and the
// delivery service's rider-location endpoints.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
	redisstore "cafetrack/internal/redis"
)

// OrderClient polls the order service for tracking snapshots.
type OrderClient struct {
	client  *http.Client
	baseURL string
	token   string

	// cache, when set, deduplicates polls across concurrent viewers of
	// the same order.
	cache *redisstore.CacheStore
}

// NewOrderClient creates a client for the order service. token is the
// service-to-service bearer token; cache may be nil.
func NewOrderClient(baseURL, token string, timeout time.Duration, cache *redisstore.CacheStore) *OrderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OrderClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
		cache:   cache,
	}
}

// orderPayload tolerates the field spellings the order service has used over
// time. Coordinates are pointers so absent and zero are distinguishable.
type orderPayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	OrderType string `json:"order_type"`
	Type      string `json:"type"`
	Status    string `json:"status"`

	Items []domain.OrderItem `json:"items"`
	Total float64            `json:"total"`

	RiderID   string `json:"rider_id"`
	RiderName string `json:"rider_name"`
	Rider     *struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"rider"`
	RiderLat *float64 `json:"rider_lat"`
	RiderLng *float64 `json:"rider_lng"`

	CustomerAddress string   `json:"customer_address"`
	CustomerLat     *float64 `json:"customer_lat"`
	CustomerLng     *float64 `json:"customer_lng"`
}

// FetchOrder retrieves the full tracking snapshot for an order. The snapshot
// replaces any previous one wholesale; there is no partial merge.
func (c *OrderClient) FetchOrder(ctx context.Context, orderID string) (*domain.TrackedOrder, error) {
	if c.cache != nil {
		if cached, err := c.cache.GetOrderSnapshot(ctx, orderID); err == nil && cached != nil {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/trackorder/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrOrderNotFound
	default:
		return nil, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var payload orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode order payload: %w", err)
	}

	order := payload.toOrder()
	if order.ID == "" {
		order.ID = orderID
	}

	if c.cache != nil {
		if err := c.cache.SetOrderSnapshot(ctx, order); err != nil {
			log.Printf("order snapshot cache write failed: %v", err)
		}
	}

	return order, nil
}

// EstimateDeliveryTime asks the delivery service for an authoritative ETA.
// Callers fall back to a local haversine estimate when this fails.
func (c *OrderClient) EstimateDeliveryTime(ctx context.Context, orderID string, customerPin geo.Point) (int, error) {
	q := url.Values{}
	q.Set("customer_lat", strconv.FormatFloat(customerPin.Lat, 'f', -1, 64))
	q.Set("customer_lng", strconv.FormatFloat(customerPin.Lng, 'f', -1, 64))

	endpoint := c.baseURL + "/delivery/estimate-delivery-time/" + url.PathEscape(orderID) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return 0, ErrUnauthorized
	default:
		return 0, fmt.Errorf("delivery service returned status %d", resp.StatusCode)
	}

	var body struct {
		TotalEstimatedMinutes float64 `json:"total_estimated_minutes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode estimate payload: %w", err)
	}
	if body.TotalEstimatedMinutes <= 0 {
		return 0, fmt.Errorf("delivery service returned estimate %v", body.TotalEstimatedMinutes)
	}

	return int(body.TotalEstimatedMinutes + 0.5), nil
}

func (c *OrderClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (p *orderPayload) toOrder() *domain.TrackedOrder {
	order := &domain.TrackedOrder{
		ID:              p.ID,
		Status:          domain.NormalizeStatus(p.Status),
		Items:           p.Items,
		Total:           p.Total,
		RiderID:         p.RiderID,
		RiderName:       p.RiderName,
		CustomerAddress: p.CustomerAddress,
		UpdatedAt:       time.Now().UTC(),
	}
	if order.ID == "" {
		order.ID = p.OrderID
	}

	orderType := p.OrderType
	if orderType == "" {
		orderType = p.Type
	}
	switch domain.OrderType(orderType) {
	case domain.OrderTypePickup:
		order.Type = domain.OrderTypePickup
	default:
		order.Type = domain.OrderTypeDelivery
	}

	if p.Rider != nil {
		if order.RiderID == "" {
			order.RiderID = p.Rider.ID
		}
		if order.RiderName == "" {
			order.RiderName = p.Rider.Name
		}
		if pt, ok := pointFrom(p.Rider.Lat, p.Rider.Lng); ok {
			order.RiderLocation = &pt
		} else if pt, ok := pointFrom(p.Rider.Latitude, p.Rider.Longitude); ok {
			order.RiderLocation = &pt
		}
	}
	if order.RiderLocation == nil {
		if pt, ok := pointFrom(p.RiderLat, p.RiderLng); ok {
			order.RiderLocation = &pt
		}
	}

	if pt, ok := pointFrom(p.CustomerLat, p.CustomerLng); ok {
		order.CustomerPin = &pt
	}

	return order
}

func pointFrom(lat, lng *float64) (geo.Point, bool) {
	if lat == nil || lng == nil {
		return geo.Point{}, false
	}
	pt := geo.Point{Lat: *lat, Lng: *lng}
	return pt, pt.Valid()
}
