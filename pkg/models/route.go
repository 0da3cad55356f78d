package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPreference is returned when a preference string is not recognised.
var ErrUnknownPreference = errors.New("unknown route preference")

// Preference selects how congestion, pollution and distance are weighted.
type Preference string

const (
	PreferenceTraffic  Preference = "traffic"
	PreferenceAir      Preference = "air"
	PreferenceBalanced Preference = "balanced"
)

// Preferences lists every supported preference.
var Preferences = []Preference{PreferenceTraffic, PreferenceAir, PreferenceBalanced}

// ParsePreference parses a preference name. An empty string means balanced.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferenceBalanced, nil
	case PreferenceTraffic, PreferenceAir, PreferenceBalanced:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPreference, s)
	}
}

// RouteType marks a route as the recommended one or an alternative.
type RouteType string

const (
	RouteRecommended RouteType = "recommended"
	RouteAlternative RouteType = "alternative"
)

// RouteSource tells whether a route follows a real road network or was synthesized.
type RouteSource string

const (
	SourceRoad     RouteSource = "road"
	SourceFallback RouteSource = "fallback"
)

// HealthRisk is a coarse exposure band derived from the mean AQI.
type HealthRisk string

const (
	HealthRiskLow      HealthRisk = "low"
	HealthRiskModerate HealthRisk = "moderate"
	HealthRiskHigh     HealthRisk = "high"
	HealthRiskVeryHigh HealthRisk = "very_high"
)

// RouteSegment is a straight hop between two locations.
type RouteSegment struct {
	Start          Location `json:"start"`
	End            Location `json:"end"`
	DistanceM      float64  `json:"distance_m"`
	TrafficLevel   int      `json:"traffic_level"`
	AirQuality     int      `json:"air_quality"`
	EstimatedTimeS int      `json:"estimated_time_s"`
}

// Step is one turn-by-turn instruction of a road route.
type Step struct {
	Instruction string `json:"instruction"`
	DistanceM   int    `json:"distance_m"`
	DurationS   int    `json:"duration_s"`
}

// RoadPath is a polyline snapped to a road network, with its instructions.
type RoadPath struct {
	Line  []Location
	Steps []Step
}

// Comparison holds the difference between a route and the fastest route of its set.
type Comparison struct {
	DeltaTimeS       int     `json:"delta_time_s"`
	DeltaAQIExposure float64 `json:"delta_aqi_exposure"`
	DeltaCO2G        float64 `json:"delta_co2_g"`
}

// Route is one scored option between a start and an end point.
type Route struct {
	ID             string         `json:"id"`
	Start          Point          `json:"start"`
	End            Point          `json:"end"`
	Preference     Preference     `json:"preference"`
	Segments       []RouteSegment `json:"segments"`
	TotalDistanceM float64        `json:"total_distance_m"`
	TotalTimeS     int            `json:"total_time_s"`
	AvgTraffic     int            `json:"avg_traffic"`
	AvgAirQuality  int            `json:"avg_air_quality"`
	Score          float64        `json:"score"`
	EcoScore       int            `json:"eco_score"`
	AQIExposure    float64        `json:"aqi_exposure"`
	AQIProfile     []int          `json:"aqi_profile"`
	CO2G           float64        `json:"co2_g"`
	HealthRisk     HealthRisk     `json:"health_risk"`
	VsFastest      Comparison     `json:"compare_fastest"`
	Steps          []Step         `json:"steps,omitempty"`
	Source         RouteSource    `json:"source"`
	Type           RouteType      `json:"type"`
	Explanation    string         `json:"explanation"`
}

// Polyline returns the ordered locations the route passes through.
func (r *Route) Polyline() []Location {
	if len(r.Segments) == 0 {
		return nil
	}
	line := make([]Location, 0, len(r.Segments)+1)
	line = append(line, r.Segments[0].Start)
	for _, s := range r.Segments {
		line = append(line, s.End)
	}
	return line
}

// Forecast is a canned description of expected conditions at a departure time.
type Forecast struct {
	Period         string `json:"period"`
	Traffic        string `json:"traffic"`
	AirQuality     string `json:"air_quality"`
	Recommendation string `json:"recommendation"`
}

// HeatmapSample is one grid cell of a traffic or air-quality heatmap.
type HeatmapSample struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity float64 `json:"intensity"`
	Value     int     `json:"value"`
}
