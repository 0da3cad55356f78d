// Package geo provides the planar and spherical helpers used by the routing
// engine: haversine distance, linear interpolation between coordinates,
// perpendicular detour points and geohash encoding.
package geo

import (
	"math"

	"github.com/kass/go-eco-route/pkg/models"
)

const (
	// EarthRadiusM is the mean Earth radius in meters
	EarthRadiusM = 6371000.0
	// MetersPerDegree is the approximate length of one degree of latitude
	MetersPerDegree = 111320.0

	minCosLat = 0.1
)

// Distance calculates the Haversine distance between two locations in meters
func Distance(a, b models.Location) float64 {
	lat1Rad := a.Lat * math.Pi / 180.0
	lat2Rad := b.Lat * math.Pi / 180.0

	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// Midpoint returns the coordinate-wise mean of two locations
func Midpoint(a, b models.Location) models.Location {
	return models.Location{
		Lat: (a.Lat + b.Lat) / 2,
		Lng: (a.Lng + b.Lng) / 2,
	}
}

// Interpolate returns the location at fraction t of the way from a to b
func Interpolate(a, b models.Location, t float64) models.Location {
	return models.Location{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// PathLength sums the haversine distances along a polyline
func PathLength(line []models.Location) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += Distance(line[i-1], line[i])
	}
	return total
}

// LatDegrees converts a north-south distance in meters to degrees
func LatDegrees(meters float64) float64 {
	return meters / MetersPerDegree
}

// LngDegrees converts an east-west distance in meters to degrees at the given latitude
func LngDegrees(meters, lat float64) float64 {
	return meters / (MetersPerDegree * cosLat(lat))
}

// PerpendicularOffset returns the midpoint of start-end shifted sideways by
// offsetM meters. Positive offsets go to the left of the travel direction.
func PerpendicularOffset(start, end models.Location, offsetM float64) models.Location {
	mid := Midpoint(start, end)
	c := cosLat(mid.Lat)

	vx := (end.Lng - start.Lng) * MetersPerDegree * c
	vy := (end.Lat - start.Lat) * MetersPerDegree
	norm := math.Hypot(vx, vy)
	if norm < 1 {
		return mid
	}

	px := -vy / norm
	py := vx / norm

	return models.Location{
		Lat: mid.Lat + (py*offsetM)/MetersPerDegree,
		Lng: mid.Lng + (px*offsetM)/(MetersPerDegree*c),
	}
}

func cosLat(lat float64) float64 {
	return math.Max(minCosLat, math.Abs(math.Cos(lat*math.Pi/180)))
}
