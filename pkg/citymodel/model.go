// Package citymodel describes a city's simulated environment: the traffic and
// air-quality influence zones, the named places of its gazetteer, the
// baseline floors and the heatmap sampling grid.
package citymodel

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kass/go-eco-route/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidModel is returned when a city model fails validation
var ErrInvalidModel = errors.New("invalid city model")

//go:embed almaty.yaml
var almatyYAML []byte

// TrafficZone is a circular congestion hotspot
type TrafficZone struct {
	Name           string          `yaml:"name" json:"name"`
	Center         models.Location `yaml:"center" json:"center"`
	RadiusM        float64         `yaml:"radius_m" json:"radius_m"`
	BaseCongestion float64         `yaml:"base_congestion" json:"base_congestion"`
	PeakMultiplier float64         `yaml:"peak_multiplier" json:"peak_multiplier"`
}

// AirZone is a circular pollution hotspot
type AirZone struct {
	Name          string          `yaml:"name" json:"name"`
	Center        models.Location `yaml:"center" json:"center"`
	RadiusM       float64         `yaml:"radius_m" json:"radius_m"`
	BaseAQI       float64         `yaml:"base_aqi" json:"base_aqi"`
	TrafficImpact float64         `yaml:"traffic_impact" json:"traffic_impact"`
}

// Place is a gazetteer entry. Key is the lowercase lookup name.
type Place struct {
	Key      string          `yaml:"key" json:"key"`
	Name     string          `yaml:"name" json:"name"`
	Location models.Location `yaml:"location" json:"location"`
}

// Point converts the place into a routable point
func (p Place) Point() models.Point {
	return models.Point{ID: p.Key, Name: p.Name, Location: p.Location}
}

// Grid is the heatmap sampling lattice
type Grid struct {
	MinLat float64 `yaml:"min_lat" json:"min_lat"`
	MaxLat float64 `yaml:"max_lat" json:"max_lat"`
	MinLng float64 `yaml:"min_lng" json:"min_lng"`
	MaxLng float64 `yaml:"max_lng" json:"max_lng"`
	Step   float64 `yaml:"step" json:"step"`
}

// Rows returns the number of latitude rows, endpoints included
func (g Grid) Rows() int {
	return steps(g.MinLat, g.MaxLat, g.Step)
}

// Cols returns the number of longitude columns, endpoints included
func (g Grid) Cols() int {
	return steps(g.MinLng, g.MaxLng, g.Step)
}

// At returns the location of grid cell (row, col)
func (g Grid) At(row, col int) models.Location {
	return models.Location{
		Lat: g.MinLat + float64(row)*g.Step,
		Lng: g.MinLng + float64(col)*g.Step,
	}
}

func steps(lo, hi, step float64) int {
	if step <= 0 || hi < lo {
		return 0
	}
	// Tolerate float drift so that the upper bound is included
	return int((hi-lo)/step+1e-9) + 1
}

// Model is the full environment of one city
type Model struct {
	City         string        `yaml:"city" json:"city"`
	TrafficFloor float64       `yaml:"traffic_floor" json:"traffic_floor"`
	AirFloor     float64       `yaml:"air_floor" json:"air_floor"`
	PeakHours    []int         `yaml:"peak_hours" json:"peak_hours"`
	TrafficZones []TrafficZone `yaml:"traffic_zones" json:"traffic_zones"`
	AirZones     []AirZone     `yaml:"air_zones" json:"air_zones"`
	Places       []Place       `yaml:"places" json:"places"`
	Heatmap      Grid          `yaml:"heatmap" json:"heatmap"`
}

// IsPeakHour reports whether hour is one of the model's rush hours
func (m *Model) IsPeakHour(hour int) bool {
	for _, h := range m.PeakHours {
		if h == hour {
			return true
		}
	}
	return false
}

// Validate checks the model for values the estimators cannot work with
func (m *Model) Validate() error {
	var problems []string

	if strings.TrimSpace(m.City) == "" {
		problems = append(problems, "city name is empty")
	}
	for _, h := range m.PeakHours {
		if h < 0 || h > 23 {
			problems = append(problems, fmt.Sprintf("peak hour %d out of range", h))
		}
	}
	for i, z := range m.TrafficZones {
		if z.RadiusM <= 0 {
			problems = append(problems, fmt.Sprintf("traffic zone %d (%s): radius must be positive", i, z.Name))
		}
	}
	for i, z := range m.AirZones {
		if z.RadiusM <= 0 {
			problems = append(problems, fmt.Sprintf("air zone %d (%s): radius must be positive", i, z.Name))
		}
	}
	seen := make(map[string]bool, len(m.Places))
	for i, p := range m.Places {
		key := strings.ToLower(strings.TrimSpace(p.Key))
		switch {
		case key == "":
			problems = append(problems, fmt.Sprintf("place %d has no key", i))
		case seen[key]:
			problems = append(problems, fmt.Sprintf("duplicate place key %q", key))
		}
		seen[key] = true
	}
	if m.Heatmap.Step <= 0 {
		problems = append(problems, "heatmap step must be positive")
	}
	if m.Heatmap.MaxLat < m.Heatmap.MinLat || m.Heatmap.MaxLng < m.Heatmap.MinLng {
		problems = append(problems, "heatmap bounds are inverted")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidModel, strings.Join(problems, "; "))
	}
	return nil
}

// Parse decodes and validates a YAML city model
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse city model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a city model from a YAML file
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read city model: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in Almaty model
func Default() *Model {
	m, err := Parse(almatyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded city model is broken: %v", err))
	}
	return m
}

// Marshal encodes the model as YAML
func (m *Model) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode city model: %w", err)
	}
	return data, nil
}
