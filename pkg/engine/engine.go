// Package engine implements the eco-routing heuristics: it synthesizes or
// accepts candidate paths between two points, estimates congestion and air
// quality along them from a city model, scores them for a preference and
// picks a recommended route.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/geo"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/kass/go-eco-route/pkg/rtree"
	"go.uber.org/zap"
)

// RoadProvider returns road-network paths between two locations
type RoadProvider interface {
	Routes(ctx context.Context, start, end models.Location) ([]models.RoadPath, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the time source used for rush-hour decisions
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNoise sets the jitter source of the estimators
func WithNoise(n Noise) Option {
	return func(e *Engine) { e.noise = n }
}

// WithRoadProvider enables road-network candidates in ComputeRoutesContext
func WithRoadProvider(p RoadProvider) Option {
	return func(e *Engine) { e.road = p }
}

// WithLogger sets the logger for road provider failures
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Stats counts what the engine has done since it was created
type Stats struct {
	Computed      int64 `json:"computed"`
	RoadResults   int64 `json:"road_results"`
	RoadFailures  int64 `json:"road_failures"`
	FallbackCount int64 `json:"fallback_results"`
}

// Engine scores routes against one city model. It is safe for concurrent use.
type Engine struct {
	model  *citymodel.Model
	est    *estimator
	places *rtree.PlaceIndex
	clock  Clock
	noise  Noise
	road   RoadProvider
	logger *zap.Logger

	computed     atomic.Int64
	roadResults  atomic.Int64
	roadFailures atomic.Int64
	fallbacks    atomic.Int64
}

// New builds an engine for a validated city model
func New(model *citymodel.Model, opts ...Option) (*Engine, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		model:  model,
		clock:  SystemClock,
		noise:  NewUniformNoise(time.Now().UnixNano(), DefaultNoiseAmplitude),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	est, err := newEstimator(model, e.noise)
	if err != nil {
		return nil, err
	}
	e.est = est

	e.places = rtree.NewPlaceIndex()
	points := make([]models.Point, len(model.Places))
	for i, p := range model.Places {
		points[i] = p.Point()
	}
	if err := e.places.IndexPoints(points); err != nil {
		return nil, fmt.Errorf("failed to index places: %w", err)
	}

	e.logger.Info("Engine ready",
		zap.String("city", model.City),
		zap.Int("traffic_zones", len(model.TrafficZones)),
		zap.Int("air_zones", len(model.AirZones)),
		zap.Int64("places", e.places.Count()),
		zap.Bool("road_provider", e.road != nil),
	)
	return e, nil
}

// Model returns the city model the engine was built from
func (e *Engine) Model() *citymodel.Model { return e.model }

// HasRoadProvider reports whether road candidates are enabled
func (e *Engine) HasRoadProvider() bool { return e.road != nil }

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Computed:      e.computed.Load(),
		RoadResults:   e.roadResults.Load(),
		RoadFailures:  e.roadFailures.Load(),
		FallbackCount: e.fallbacks.Load(),
	}
}

// TrafficAt estimates congestion at loc right now
func (e *Engine) TrafficAt(loc models.Location) int {
	return e.est.trafficAt(loc, e.clock.Now())
}

// AirQualityAt estimates the AQI at loc right now
func (e *Engine) AirQualityAt(loc models.Location) int {
	now := e.clock.Now()
	return e.est.airQualityAt(loc, e.est.trafficAt(loc, now), now)
}

// ComputeRoutes scores the three synthesized variants between start and end.
// It never performs I/O and always returns exactly three routes.
func (e *Engine) ComputeRoutes(start, end models.Point, pref models.Preference) []models.Route {
	return e.fallbackRoutes(start, end, pref, e.clock.Now())
}

// ComputeRoutesContext is ComputeRoutes with road-network candidates when a
// provider is configured. Provider failures fall back to synthesized routes.
func (e *Engine) ComputeRoutesContext(ctx context.Context, start, end models.Point, pref models.Preference) []models.Route {
	return e.ComputeRoutesAt(ctx, e.clock.Now(), start, end, pref)
}

// ComputeRoutesAt is ComputeRoutesContext for a given departure time
func (e *Engine) ComputeRoutesAt(ctx context.Context, at time.Time, start, end models.Point, pref models.Preference) []models.Route {
	if e.road != nil {
		if routes := e.roadRoutes(ctx, start, end, pref, at); len(routes) > 0 {
			return routes
		}
	}
	return e.fallbackRoutes(start, end, pref, at)
}

func (e *Engine) fallbackRoutes(start, end models.Point, pref models.Preference, at time.Time) []models.Route {
	routes := make([]models.Route, 0, Variants)
	for v := 0; v < Variants; v++ {
		line := Waypoints(start.Location, end.Location, v)
		id := fmt.Sprintf("route-fallback-%d", v)
		routes = append(routes, e.buildRoute(id, start, end, line, pref, models.SourceFallback, at))
	}

	e.fallbacks.Add(1)
	return e.rank(routes)
}

func (e *Engine) roadRoutes(ctx context.Context, start, end models.Point, pref models.Preference, at time.Time) []models.Route {
	paths, err := e.road.Routes(ctx, start.Location, end.Location)
	if err != nil {
		e.roadFailures.Add(1)
		e.logger.Warn("Road provider failed, using estimated routes", zap.Error(err))
		return nil
	}

	routes := make([]models.Route, 0, len(paths))
	for _, path := range paths {
		if len(path.Line) < 2 {
			continue
		}
		id := fmt.Sprintf("route-road-%d", len(routes))
		r := e.buildRoute(id, start, end, path.Line, pref, models.SourceRoad, at)
		r.Steps = path.Steps
		routes = append(routes, r)
	}
	if len(routes) == 0 {
		return nil
	}

	e.roadResults.Add(1)
	return e.rank(routes)
}

// buildRoute estimates every segment of line and aggregates them
func (e *Engine) buildRoute(id string, start, end models.Point, line []models.Location,
	pref models.Preference, source models.RouteSource, at time.Time) models.Route {

	segments := make([]models.RouteSegment, 0, len(line)-1)
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		mid := geo.Midpoint(a, b)
		dist := geo.Distance(a, b)
		traffic := e.est.trafficAt(mid, at)
		aqi := e.est.airQualityAt(mid, traffic, at)

		segments = append(segments, models.RouteSegment{
			Start:          a,
			End:            b,
			DistanceM:      dist,
			TrafficLevel:   traffic,
			AirQuality:     aqi,
			EstimatedTimeS: travelTime(dist, traffic),
		})
	}

	r := models.Route{
		ID:         id,
		Start:      start,
		End:        end,
		Preference: pref,
		Segments:   segments,
		Source:     source,
		Type:       models.RouteAlternative,
	}

	var trafficSum, aqiSum float64
	for _, s := range segments {
		r.TotalDistanceM += s.DistanceM
		r.TotalTimeS += s.EstimatedTimeS
		trafficSum += float64(s.TrafficLevel)
		aqiSum += float64(s.AirQuality)
		r.AQIExposure += float64(s.AirQuality * s.EstimatedTimeS)
		if len(r.AQIProfile) < MaxProfileSamples {
			r.AQIProfile = append(r.AQIProfile, s.AirQuality)
		}
	}

	var meanTraffic, meanAQI float64
	if n := float64(len(segments)); n > 0 {
		meanTraffic = trafficSum / n
		meanAQI = aqiSum / n
	}

	r.AvgTraffic = int(math.Round(meanTraffic))
	r.AvgAirQuality = int(math.Round(meanAQI))
	r.Score = Score(meanTraffic, meanAQI, r.TotalDistanceM, pref)
	r.EcoScore = EcoScore(r.Score)
	r.CO2G = CO2(r.TotalDistanceM, r.AvgTraffic)
	r.HealthRisk = HealthRiskFor(r.AvgAirQuality)
	return r
}

// rank orders routes by score, marks the best as recommended and fills in
// the comparisons and explanations
func (e *Engine) rank(routes []models.Route) []models.Route {
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Score < routes[j].Score
	})

	fastest := 0
	for i := range routes {
		if routes[i].TotalTimeS < routes[fastest].TotalTimeS {
			fastest = i
		}
	}

	for i := range routes {
		r := &routes[i]
		if i == 0 {
			r.Type = models.RouteRecommended
		}
		r.VsFastest = models.Comparison{
			DeltaTimeS:       r.TotalTimeS - routes[fastest].TotalTimeS,
			DeltaAQIExposure: r.AQIExposure - routes[fastest].AQIExposure,
			DeltaCO2G:        r.CO2G - routes[fastest].CO2G,
		}
		r.Explanation = Explain(r, i == 0)
	}

	e.computed.Add(1)
	if len(routes) > 0 {
		e.logger.Debug("Routes computed",
			zap.String("recommended", routes[0].ID),
			zap.Float64("score", routes[0].Score),
			zap.Int("candidates", len(routes)),
		)
	}
	return routes
}
