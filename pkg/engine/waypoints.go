package engine

import (
	"math"

	"github.com/kass/go-eco-route/pkg/models"
)

const (
	// InteriorWaypoints is the number of points synthesized between start and end
	InteriorWaypoints = 10
	// Variants is the number of synthesized candidates per request
	Variants = 3

	detourDegrees = 0.006
)

// Waypoints synthesizes a path from start to end. Variant 0 walks a
// Manhattan-style staircase; higher variants bow sideways along a sine arc
// whose side alternates with the variant's parity.
func Waypoints(start, end models.Location, variant int) []models.Location {
	points := make([]models.Location, 0, InteriorWaypoints+2)
	points = append(points, start)

	latDiff := end.Lat - start.Lat
	lngDiff := end.Lng - start.Lng

	for i := 1; i <= InteriorWaypoints; i++ {
		progress := float64(i) / float64(InteriorWaypoints+1)
		prev := points[len(points)-1]

		if variant == 0 {
			if i%2 == 0 {
				points = append(points, models.Location{Lat: start.Lat + latDiff*progress, Lng: prev.Lng})
			} else {
				points = append(points, models.Location{Lat: prev.Lat, Lng: start.Lng + lngDiff*progress})
			}
			continue
		}

		side := -1.0
		if variant%2 == 0 {
			side = 1
		}
		detour := math.Sin(progress*math.Pi) * float64(variant) * detourDegrees * side

		points = append(points, models.Location{
			Lat: start.Lat + latDiff*progress + detour,
			Lng: start.Lng + lngDiff*progress - detour,
		})
	}

	return append(points, end)
}
