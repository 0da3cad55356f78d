package engine

import (
	"math"

	"github.com/kass/go-eco-route/pkg/models"
)

const (
	// CO2GramsPerKm is the free-flow emission of an average passenger car
	CO2GramsPerKm = 168.0
	// MaxProfileSamples caps the per-route AQI profile length
	MaxProfileSamples = 120

	distanceScoreDivisor = 200.0
)

// Weights are the score coefficients of one preference
type Weights struct {
	Traffic  float64 `json:"traffic"`
	Air      float64 `json:"air"`
	Distance float64 `json:"distance"`
}

var preferenceWeights = map[models.Preference]Weights{
	models.PreferenceTraffic:  {Traffic: 0.7, Air: 0.2, Distance: 0.1},
	models.PreferenceAir:      {Traffic: 0.2, Air: 0.7, Distance: 0.1},
	models.PreferenceBalanced: {Traffic: 0.4, Air: 0.4, Distance: 0.2},
}

// WeightsFor returns the weights of a preference, balanced for anything unknown
func WeightsFor(pref models.Preference) Weights {
	if w, ok := preferenceWeights[pref]; ok {
		return w
	}
	return preferenceWeights[models.PreferenceBalanced]
}

// HealthRiskBands are the upper AQI bounds of the low, moderate and high bands
var HealthRiskBands = [3]int{50, 100, 150}

// Score combines mean congestion, mean AQI and total distance. Lower is better.
func Score(meanTraffic, meanAQI, distanceM float64, pref models.Preference) float64 {
	w := WeightsFor(pref)
	airScore := math.Min(100, meanAQI)
	distanceScore := math.Min(100, distanceM/distanceScoreDivisor)
	return meanTraffic*w.Traffic + airScore*w.Air + distanceScore*w.Distance
}

// EcoScore maps a score onto 0-100 where higher is greener
func EcoScore(score float64) int {
	return int(math.Round(100 - clamp(score, 0, 100)))
}

// CO2 estimates emitted grams for a trip, with a stop-and-go penalty
func CO2(distanceM float64, avgTraffic int) float64 {
	km := math.Max(0, distanceM/1000)
	return math.Round(km * CO2GramsPerKm * (1 + float64(avgTraffic)/150))
}

// HealthRiskFor bands a mean AQI
func HealthRiskFor(avgAQI int) models.HealthRisk {
	switch {
	case avgAQI < HealthRiskBands[0]:
		return models.HealthRiskLow
	case avgAQI < HealthRiskBands[1]:
		return models.HealthRiskModerate
	case avgAQI < HealthRiskBands[2]:
		return models.HealthRiskHigh
	default:
		return models.HealthRiskVeryHigh
	}
}
