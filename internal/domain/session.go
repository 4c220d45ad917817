package domain

import "time"

// TrackRecord is the audit row for one tracking session.
type TrackRecord struct {
	ID          string
	OrderID     string
	StartedAt   time.Time
	StoppedAt   *time.Time
	FinalStatus OrderStatus
}
