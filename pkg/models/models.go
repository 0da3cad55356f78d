package models

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Point represents a named geo point
type Point struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Location Location `json:"location"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location `json:"bottom_left" yaml:"bottom_left"`
	TopRight   Location `json:"top_right" yaml:"top_right"`
}

// Contains reports whether loc lies inside the box, edges included
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.BottomLeft.Lat && loc.Lat <= b.TopRight.Lat &&
		loc.Lng >= b.BottomLeft.Lng && loc.Lng <= b.TopRight.Lng
}

// NewPoint creates an unnamed point at the given coordinates
func NewPoint(lat, lng float64) Point {
	return Point{Location: Location{Lat: lat, Lng: lng}}
}
