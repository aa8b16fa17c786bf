package location

import (
	"encoding/json"
	"sort"
)

// Candidate is a contact whose address has already been resolved to a point.
type Candidate struct {
	ID          string
	DisplayName string
	Address     string
	Location    GeoPoint
}

// Contact is a ranked candidate. Its distance is set only by Rank.
type Contact struct {
	ID          string
	DisplayName string
	Address     string
	Location    GeoPoint

	distanceKm float64
}

// DistanceKm is the distance from the observer used for ranking.
func (c Contact) DistanceKm() float64 {
	return c.distanceKm
}

func (c Contact) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            string   `json:"id"`
		DisplayName   string   `json:"display_name"`
		Address       string   `json:"address"`
		Location      GeoPoint `json:"location"`
		Geohash       string   `json:"geohash"`
		DistanceKm    float64  `json:"distance_km"`
		DistanceLabel string   `json:"distance_label"`
	}{
		ID:            c.ID,
		DisplayName:   c.DisplayName,
		Address:       c.Address,
		Location:      c.Location,
		Geohash:       Cell(c.Location, DefaultCellPrecision),
		DistanceKm:    c.distanceKm,
		DistanceLabel: FormatDistance(c.distanceKm),
	})
}

// Rank computes each candidate's distance from observer and returns them
// nearest first. Candidates at equal distance keep their input order.
func Rank(observer GeoPoint, candidates []Candidate) []Contact {
	ranked := make([]Contact, len(candidates))
	for i, c := range candidates {
		ranked[i] = Contact{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Address:     c.Address,
			Location:    c.Location,
			distanceKm:  Distance(c.Location, observer),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distanceKm < ranked[j].distanceKm
	})

	return ranked
}
