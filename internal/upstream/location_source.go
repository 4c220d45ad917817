package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cafetrack/internal/geo"
	"cafetrack/internal/location"
)

// LocationSource looks up an entity's position on one upstream endpoint.
// Different backend services expose rider positions under different paths and
// payload shapes, so several of these are usually chained behind a resolver.
type LocationSource struct {
	name     string
	client   *http.Client
	template string // URL template with one %s for the entity id
	token    string
}

// NewLocationSource creates a source for one candidate endpoint. template
// must contain exactly one %s placeholder for the entity id, for example
// "http://delivery/api/rider-location/%s".
func NewLocationSource(name, template, token string, timeout time.Duration) *LocationSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocationSource{
		name:     name,
		client:   &http.Client{Timeout: timeout},
		template: template,
		token:    token,
	}
}

// Name identifies the endpoint in error messages.
func (s *LocationSource) Name() string { return s.name }

// Lookup issues one GET against the candidate endpoint. Transport failures,
// non-OK statuses and responses lacking a usable coordinate pair are all
// misses; only a 401 is fatal.
func (s *LocationSource) Lookup(ctx context.Context, entityID string) (geo.Point, error) {
	endpoint := fmt.Sprintf(s.template, url.PathEscape(entityID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", location.ErrUnavailable, err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", location.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return geo.Point{}, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return geo.Point{}, fmt.Errorf("%w: status %d", location.ErrUnavailable, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", location.ErrUnavailable, err)
	}

	pt, ok := extractPoint(body)
	if !ok {
		return geo.Point{}, fmt.Errorf("%w: no coordinates in response", location.ErrUnavailable)
	}
	return pt, nil
}

// coordinate field spellings seen across the backend services.
var coordinateKeys = [][2]string{
	{"lat", "lng"},
	{"latitude", "longitude"},
	{"Lat", "Lng"},
}

// objects the coordinate pair may be nested under.
var nestedKeys = []string{"location", "rider", "driver", "data"}

// extractPoint pulls a coordinate pair out of a decoded JSON object, trying
// every known field spelling and one level of nesting. A pair only counts
// when both components are finite and within WGS84 bounds.
func extractPoint(body map[string]any) (geo.Point, bool) {
	for _, keys := range coordinateKeys {
		lat, okLat := coordValue(body[keys[0]])
		lng, okLng := coordValue(body[keys[1]])
		if okLat && okLng {
			pt := geo.Point{Lat: lat, Lng: lng}
			if pt.Valid() {
				return pt, true
			}
		}
	}

	for _, key := range nestedKeys {
		if nested, ok := body[key].(map[string]any); ok {
			if pt, ok := extractPoint(nested); ok {
				return pt, true
			}
		}
	}

	return geo.Point{}, false
}

// coordValue coerces a JSON value into a finite float64. Some backends send
// coordinates as strings.
func coordValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

var _ location.Source = (*LocationSource)(nil)
