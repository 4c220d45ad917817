package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cafetrack/internal/geo"
)

var (
	// ErrNotFound is returned when the provider has no match for an address.
	// Not-found results are never cached, so a later retry can succeed.
	ErrNotFound = errors.New("address not found")
)

// Geocoder resolves a free-text address into a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// HTTPGeocoder queries a Nominatim-style geocoding API.
type HTTPGeocoder struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewHTTPGeocoder creates a geocoder client for the given provider base URL.
func NewHTTPGeocoder(baseURL, userAgent string, timeout time.Duration) *HTTPGeocoder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGeocoder{
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

// geocodeResult mirrors the provider's search response entry. Coordinates
// arrive as strings.
type geocodeResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to a coordinate using the provider's search
// endpoint. Zero results map to ErrNotFound.
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (geo.Point, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return geo.Point{}, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return geo.Point{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var results []geocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return geo.Point{}, err
	}
	if len(results) == 0 {
		return geo.Point{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocoder returned bad latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocoder returned bad longitude %q: %w", results[0].Lon, err)
	}

	pt := geo.Point{Lat: lat, Lng: lng}
	if !pt.Valid() {
		return geo.Point{}, ErrNotFound
	}
	return pt, nil
}

// Ensure the HTTP client satisfies the interface.
var _ Geocoder = (*HTTPGeocoder)(nil)
