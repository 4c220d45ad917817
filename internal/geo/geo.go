package geo

import "math"

const (
	// EarthRadiusKm is the mean earth radius used for haversine distance.
	EarthRadiusKm = 6371.0

	// DefaultAvgSpeedKmh is the assumed rider speed when no better data exists.
	DefaultAvgSpeedKmh = 25.0

	// MinEtaMinutes is the floor applied to locally computed estimates so very
	// short distances never produce a zero-minute ETA.
	MinEtaMinutes = 3
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is a usable coordinate: both components
// finite and within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm returns the great-circle distance between a and b in kilometers
// using the haversine formula.
func DistanceKm(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Heading returns the initial great-circle bearing from prev toward curr, in
// degrees normalized to [0, 360). North is 0, east is 90.
func Heading(prev, curr Point) float64 {
	lat1 := radians(prev.Lat)
	lat2 := radians(curr.Lat)
	dLng := radians(curr.Lng - prev.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := degrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// EstimateMinutes converts a distance into whole minutes of travel at the
// given average speed. The result is rounded and never below MinEtaMinutes.
func EstimateMinutes(distanceKm, avgSpeedKmh float64) int {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = DefaultAvgSpeedKmh
	}
	minutes := int(math.Round(distanceKm / avgSpeedKmh * 60))
	if minutes < MinEtaMinutes {
		return MinEtaMinutes
	}
	return minutes
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
