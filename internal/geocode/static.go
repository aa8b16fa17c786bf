package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/askwhyharsh/nearcontacts/internal/location"
	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
)

// StaticGeocoder answers from a fixed table. Used for local runs without a
// provider key and in tests.
type StaticGeocoder struct {
	points map[string]location.GeoPoint
}

func NewStaticGeocoder(points map[string]location.GeoPoint) *StaticGeocoder {
	normalized := make(map[string]location.GeoPoint, len(points))
	for addr, p := range points {
		normalized[Normalize(addr)] = p
	}
	return &StaticGeocoder{points: normalized}
}

func (s *StaticGeocoder) Geocode(ctx context.Context, address string) (location.GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return location.GeoPoint{}, err
	}

	p, ok := s.points[Normalize(address)]
	if !ok {
		return location.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, apperrors.ErrNoGeocodeResult)
	}
	return p, nil
}

// LoadStaticGeocoder reads a JSON object mapping addresses to {"lat", "lon"}.
func LoadStaticGeocoder(path string) (*StaticGeocoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geocode table: %w", err)
	}

	var points map[string]location.GeoPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("parse geocode table: %w", err)
	}

	for addr, p := range points {
		if _, err := location.NewGeoPoint(p.Lat, p.Lon); err != nil {
			return nil, fmt.Errorf("geocode table entry %q: %w", addr, err)
		}
	}

	return NewStaticGeocoder(points), nil
}
