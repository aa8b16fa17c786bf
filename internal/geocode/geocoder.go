// Package geocode resolves postal addresses to coordinates.
package geocode

import (
	"context"
	"strings"

	"github.com/askwhyharsh/nearcontacts/internal/location"
)

// Geocoder resolves one address. It returns apperrors.ErrNoGeocodeResult when
// the provider has no match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (location.GeoPoint, error)
}

// Normalize collapses whitespace and case so equivalent addresses share a
// cache entry.
func Normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
