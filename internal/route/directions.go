// Package route plans driving routes between two points via a third-party
// directions service and holds the currently rendered route for a tracking
// session.
package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cafetrack/internal/geo"
)

// ErrNoRoute is returned when the directions service finds no drivable path.
var ErrNoRoute = errors.New("no route found")

// Route is a planned driving route. Geometry is the provider's encoded
// polyline, passed through opaquely for the map overlay to draw.
type Route struct {
	Geometry        string    `json:"geometry"`
	DistanceKm      float64   `json:"distance_km"`
	DurationMinutes int       `json:"duration_minutes"`
	PlannedAt       time.Time `json:"planned_at"`
}

// Planner requests a driving route between two points.
type Planner interface {
	Plan(ctx context.Context, origin, destination geo.Point) (*Route, error)
}

// HTTPDirections is an OSRM-compatible directions client.
type HTTPDirections struct {
	client  *http.Client
	baseURL string
}

// NewHTTPDirections creates a directions client for the given provider.
func NewHTTPDirections(baseURL string, timeout time.Duration) *HTTPDirections {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDirections{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// directionsResponse mirrors the provider's route response.
type directionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// Plan requests a driving route from origin to destination.
func (d *HTTPDirections) Plan(ctx context.Context, origin, destination geo.Point) (*Route, error) {
	if !origin.Valid() || !destination.Valid() {
		return nil, fmt.Errorf("invalid route endpoints %v -> %v", origin, destination)
	}

	// OSRM takes lng,lat pairs in the path, driving profile.
	endpoint := d.baseURL + "/route/v1/driving/" +
		coord(origin.Lng) + "," + coord(origin.Lat) + ";" +
		coord(destination.Lng) + "," + coord(destination.Lat) +
		"?overview=full"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions service returned status %d", resp.StatusCode)
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode directions response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, ErrNoRoute
	}

	r := body.Routes[0]
	return &Route{
		Geometry:        r.Geometry,
		DistanceKm:      r.Distance / 1000,
		DurationMinutes: int(r.Duration/60 + 0.5),
		PlannedAt:       time.Now().UTC(),
	}, nil
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

var _ Planner = (*HTTPDirections)(nil)
