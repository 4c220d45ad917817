package domain

import (
	"strings"
	"time"

	"cafetrack/internal/geo"
)

// OrderType distinguishes delivery orders (tracked live) from pickups.
type OrderType string

const (
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypePickup   OrderType = "PICKUP"
)

// OrderStatus is the normalized tracking status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPickedUp   OrderStatus = "picked up"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transitions can happen. Tracking
// sessions must stop polling once a terminal status is observed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// NormalizeStatus maps the free-text status spellings used by the upstream
// order service onto the canonical OrderStatus set. Unknown values pass
// through lowercased so new upstream statuses degrade gracefully.
func NormalizeStatus(raw string) OrderStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)

	switch key {
	case "pending", "placed", "confirmed", "accepted":
		return OrderStatusPending
	case "preparing", "processing":
		return OrderStatusProcessing
	case "pickedup", "readyforpickup":
		return OrderStatusPickedUp
	case "intransit", "delivering", "ontheway", "outfordelivery":
		return OrderStatusDelivering
	case "delivered", "completed", "complete", "done":
		return OrderStatusCompleted
	case "cancelled", "canceled":
		return OrderStatusCancelled
	}
	return OrderStatus(s)
}

// OrderItem is a line item of a tracked order, kept for snapshot display.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// TrackedOrder is the subset of order fields relevant to live tracking.
// It is refreshed wholesale on every poll; there is no partial merge.
type TrackedOrder struct {
	ID              string
	Type            OrderType
	Status          OrderStatus
	Items           []OrderItem
	Total           float64
	RiderID         string
	RiderName       string
	RiderLocation   *geo.Point
	CustomerAddress string
	CustomerPin     *geo.Point
	UpdatedAt       time.Time
}
