package engine

import (
	"time"

	"github.com/kass/go-eco-route/pkg/models"
)

const (
	PeriodNight   = "night"
	PeriodWeekend = "weekend"
	PeriodPeak    = "peak"
	PeriodNormal  = "normal"
)

var forecasts = map[string]models.Forecast{
	PeriodNight: {
		Period:         PeriodNight,
		Traffic:        "Very light traffic expected",
		AirQuality:     "Better air quality at night",
		Recommendation: "Excellent time to travel with minimal congestion",
	},
	PeriodWeekend: {
		Period:         PeriodWeekend,
		Traffic:        "Moderate weekend traffic",
		AirQuality:     "Generally better air quality",
		Recommendation: "Good conditions, consider avoiding shopping districts",
	},
	PeriodPeak: {
		Period:         PeriodPeak,
		Traffic:        "Heavy rush hour traffic expected",
		AirQuality:     "Higher pollution levels during peak hours",
		Recommendation: "Consider departing 30-60 minutes earlier or later to avoid congestion",
	},
	PeriodNormal: {
		Period:         PeriodNormal,
		Traffic:        "Normal traffic flow",
		AirQuality:     "Moderate air quality",
		Recommendation: "Standard conditions, most routes should be efficient",
	},
}

// Forecast describes expected conditions at a departure time. Night beats
// weekend, which beats rush hour. The hour and weekday are read in the
// departure's own location.
func (e *Engine) Forecast(departure time.Time) models.Forecast {
	return forecasts[e.period(departure)]
}

func (e *Engine) period(t time.Time) string {
	hour := t.Hour()
	switch {
	case hour >= 22 || hour <= 5:
		return PeriodNight
	case t.Weekday() == time.Saturday || t.Weekday() == time.Sunday:
		return PeriodWeekend
	case e.model.IsPeakHour(hour):
		return PeriodPeak
	default:
		return PeriodNormal
	}
}
