package tracking

import "errors"

var (
	// ErrInvalidOrderID is returned when the order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrNotTracking is returned when no session exists for an order.
	ErrNotTracking = errors.New("order is not being tracked")

	// ErrAlreadyTracking is returned when another service instance holds
	// the tracking lock for an order.
	ErrAlreadyTracking = errors.New("order is already tracked by another instance")
)
