package domain

import "time"

// Breadcrumb is one persisted position observation of a rider. Breadcrumbs
// form the history trail shown after a delivery completes.
type Breadcrumb struct {
	ID             string
	RiderID        string
	OrderID        string
	Lat            float64
	Lng            float64
	HeadingDegrees float64
	RecordedAt     time.Time
}
