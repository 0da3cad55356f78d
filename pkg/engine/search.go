package engine

import (
	"strings"

	"github.com/kass/go-eco-route/pkg/models"
)

// MaxSearchResults caps the number of gazetteer matches
const MaxSearchResults = 5

// SearchLocations returns gazetteer places whose key or display name contains
// the query, case-insensitively, in gazetteer order
func (e *Engine) SearchLocations(query string) []models.Point {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []models.Point{}
	}

	results := make([]models.Point, 0, MaxSearchResults)
	for _, p := range e.model.Places {
		if strings.Contains(strings.ToLower(p.Key), q) || strings.Contains(strings.ToLower(p.Name), q) {
			results = append(results, p.Point())
			if len(results) == MaxSearchResults {
				break
			}
		}
	}
	return results
}

// LookupPlace returns the place with exactly this key
func (e *Engine) LookupPlace(key string) (models.Point, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, p := range e.model.Places {
		if strings.ToLower(p.Key) == k {
			return p.Point(), true
		}
	}
	return models.Point{}, false
}

// NearestPlaces returns the k gazetteer places closest to loc
func (e *Engine) NearestPlaces(loc models.Location, k int) []models.Point {
	return e.places.NearestNeighbors(loc, k)
}

// PlacesWithin returns the gazetteer places inside box
func (e *Engine) PlacesWithin(box models.BoundingBox) ([]models.Point, error) {
	return e.places.QueryBox(box)
}
