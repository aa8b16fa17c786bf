package location

import "github.com/mmcloughlin/geohash"

// DefaultCellPrecision gives cells of roughly 150m x 150m.
const DefaultCellPrecision = 7

// Cell returns the geohash cell containing p.
func Cell(p GeoPoint, precision uint) string {
	if precision == 0 {
		precision = DefaultCellPrecision
	}
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, precision)
}
