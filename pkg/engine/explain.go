package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/kass/go-eco-route/pkg/models"
)

// Explain builds the human readable summary of a ranked route
func Explain(r *models.Route, recommended bool) string {
	parts := make([]string, 0, 3)

	if recommended {
		if r.Source == models.SourceRoad {
			parts = append(parts, "Road-verified recommended route")
		} else {
			parts = append(parts, "Estimated recommended route")
		}
		parts = append(parts, rationale(r))
	} else {
		parts = append(parts, "Alternative route", "different path with varying conditions")
	}

	minutes := int(math.Round(float64(r.TotalTimeS) / 60))
	parts = append(parts, fmt.Sprintf("(%.1f km, ~%d min)", r.TotalDistanceM/1000, minutes))

	return strings.Join(parts, " - ")
}

func rationale(r *models.Route) string {
	switch r.Preference {
	case models.PreferenceAir:
		switch {
		case r.AvgAirQuality < 50:
			return "passes through areas with excellent air quality"
		case r.AvgAirQuality < 80:
			return "avoids major pollution hotspots"
		default:
			return "minimizes exposure to polluted areas"
		}
	case models.PreferenceTraffic:
		switch {
		case r.AvgTraffic < 40:
			return "uses low-traffic roads"
		case r.AvgTraffic < 60:
			return "avoids major congestion points"
		default:
			return "minimizes time in heavy traffic"
		}
	default:
		return "balances clean air and low traffic"
	}
}
