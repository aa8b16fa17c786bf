package location

import (
	"fmt"
	"math"

	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
)

// Statute miles per degree of arc (60 nautical miles) and kilometres per mile.
// Output must stay bit-compatible with the mobile client, so these are not
// replaced by an Earth radius.
const (
	milesPerDegree = 60 * 1.1515
	kmPerMile      = 1.609344
)

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewGeoPoint returns a GeoPoint after checking both coordinates are in range.
func NewGeoPoint(lat, lon float64) (GeoPoint, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return GeoPoint{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidLatitude, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return GeoPoint{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidLongitude, lon)
	}
	return GeoPoint{Lat: lat, Lon: lon}, nil
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// Distance returns the great-circle distance between a and b in kilometres,
// using the spherical law of cosines.
func Distance(a, b GeoPoint) float64 {
	if a == b {
		return 0
	}

	theta := a.Lon - b.Lon
	cosAngle := math.Sin(toRadians(a.Lat))*math.Sin(toRadians(b.Lat)) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Cos(toRadians(theta))

	// Rounding can push near-identical or antipodal points just past ±1.
	cosAngle = math.Max(-1, math.Min(1, cosAngle))

	degrees := toDegrees(math.Acos(cosAngle))
	return degrees * milesPerDegree * kmPerMile
}

// RoundToNearest50 rounds a distance in metres to the nearest 50 metres
func RoundToNearest50(meters float64) int {
	return int(math.Round(meters/50.0) * 50)
}

// FormatDistance renders a distance for a list row: metres under one
// kilometre, otherwise kilometres with one decimal.
func FormatDistance(km float64) string {
	meters := RoundToNearest50(km * 1000)
	if meters < 1000 {
		return fmt.Sprintf("%d m", meters)
	}
	return fmt.Sprintf("%.1f Km", km)
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func toDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}
