package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/kass/go-eco-route/pkg/rtree"
)

const (
	// MaxTraffic is the upper bound of a congestion level
	MaxTraffic = 100.0
	// MaxAQI is the upper bound of an air-quality index
	MaxAQI = 200.0
	// BaseSpeedKmh is the free-flow speed
	BaseSpeedKmh = 50.0

	trafficSalt = 11
	airSalt     = 29
)

// estimator turns zone tables into point estimates
type estimator struct {
	model   *citymodel.Model
	traffic *rtree.ZoneIndex
	air     *rtree.ZoneIndex
	noise   Noise
}

func newEstimator(model *citymodel.Model, noise Noise) (*estimator, error) {
	traffic := rtree.NewZoneIndex()
	circles := make([]rtree.Circle, len(model.TrafficZones))
	for i, z := range model.TrafficZones {
		circles[i] = rtree.Circle{ID: i, Center: z.Center, RadiusM: z.RadiusM}
	}
	if err := traffic.IndexCircles(circles); err != nil {
		return nil, fmt.Errorf("failed to index traffic zones: %w", err)
	}

	air := rtree.NewZoneIndex()
	circles = make([]rtree.Circle, len(model.AirZones))
	for i, z := range model.AirZones {
		circles[i] = rtree.Circle{ID: i, Center: z.Center, RadiusM: z.RadiusM}
	}
	if err := air.IndexCircles(circles); err != nil {
		return nil, fmt.Errorf("failed to index air zones: %w", err)
	}

	return &estimator{model: model, traffic: traffic, air: air, noise: noise}, nil
}

// trafficAt estimates congestion (0-100) at loc for the hour of at
func (e *estimator) trafficAt(loc models.Location, at time.Time) int {
	level := e.model.TrafficFloor
	peak := e.model.IsPeakHour(at.Hour())

	for _, hit := range e.traffic.Containing(loc) {
		zone := e.model.TrafficZones[hit.ID]
		congestion := zone.BaseCongestion * hit.Falloff()
		if peak {
			congestion *= zone.PeakMultiplier
		}
		level = math.Max(level, congestion)
	}

	level += e.noise.Jitter(at, loc, trafficSalt)
	return int(math.Round(clamp(level, 0, MaxTraffic)))
}

// airQualityAt estimates the AQI (0-200) at loc given the local congestion
func (e *estimator) airQualityAt(loc models.Location, traffic int, at time.Time) int {
	aqi := e.model.AirFloor

	for _, hit := range e.air.Containing(loc) {
		zone := e.model.AirZones[hit.ID]
		aqi = math.Max(aqi, zone.BaseAQI*hit.Falloff()+float64(traffic)*zone.TrafficImpact)
	}

	aqi += e.noise.Jitter(at, loc, airSalt+float64(traffic))
	return int(math.Round(clamp(aqi, 0, MaxAQI)))
}

// travelTime returns the seconds needed to cover distanceM at the given congestion
func travelTime(distanceM float64, traffic int) int {
	speed := BaseSpeedKmh * (1 - float64(traffic)/150)
	return int(math.Round(distanceM / 1000 / speed * 3600))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
