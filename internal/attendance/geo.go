package attendance

import (
	"math"

	"classroll/internal/validate"
)

// earthRadiusM is the mean Earth radius (IUGG), in meters.
const earthRadiusM = 6371008.8

// DefaultRadiusM is the proximity threshold for LOCATION sessions.
const DefaultRadiusM = 50.0

// Validate rejects coordinates outside the geographic ranges.
func (l Location) Validate() error {
	return validate.Struct(l)
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}
