package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kass/go-eco-route/internal/cache"
	"github.com/kass/go-eco-route/internal/events"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/kass/go-eco-route/pkg/models"
	"go.uber.org/zap"
)

const (
	ModeEstimated = "estimated"
	ModeRoad      = "road"

	defaultNearest = 5
	maxNearest     = 20
)

// LatLng is a request coordinate with an optional display name
type LatLng struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Name string   `json:"name,omitempty"`
}

func (p LatLng) point(id string) (models.Point, error) {
	if p.Lat == nil || p.Lng == nil {
		return models.Point{}, fmt.Errorf("%s: lat and lng are required", id)
	}
	lat, lng := *p.Lat, *p.Lng
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return models.Point{}, fmt.Errorf("%s: latitude %v out of range", id, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return models.Point{}, fmt.Errorf("%s: longitude %v out of range", id, lng)
	}
	return models.Point{ID: id, Name: p.Name, Location: models.Location{Lat: lat, Lng: lng}}, nil
}

// EcoRequest is the body of POST /api/routing/eco
type EcoRequest struct {
	Start         LatLng     `json:"start"`
	End           LatLng     `json:"end"`
	Profile       string     `json:"profile"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
}

// RoutingResponse is the body returned for a routing request
type RoutingResponse struct {
	Status   string         `json:"status"`
	Mode     string         `json:"mode"`
	Degraded bool           `json:"degraded"`
	Routes   []models.Route `json:"routes"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) ecoRoutes(c *gin.Context) {
	var req EcoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	start, err := req.Start.point("start")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := req.End.point("end")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	pref, err := models.ParsePreference(req.Profile)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var departure time.Time
	if req.DepartureTime != nil {
		departure = *req.DepartureTime
	}
	at := departure
	if at.IsZero() {
		at = s.clock.Now()
	}

	// shared by every waiter on the key, so a departing client must not cut it short
	ctx := context.WithoutCancel(c.Request.Context())
	key := cache.Key(start.Location, end.Location, pref, at)
	requestID := c.GetString(requestIDKey)
	compute := func() (*RoutingResponse, error) {
		began := time.Now()
		routes := s.engine.ComputeRoutesAt(ctx, at, start, end, pref)
		resp := newRoutingResponse(routes, s.engine.HasRoadProvider())
		s.publish(ctx, events.Summarize(requestID, key, resp.Mode, routes, time.Since(began)))
		return resp, nil
	}

	if s.cache == nil {
		resp, _ := compute()
		c.Header("X-Cache", "BYPASS")
		c.JSON(http.StatusOK, resp)
		return
	}

	resp, hit, err := s.cache.GetOrCompute(key, s.cache.TTLFor(departure), compute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, resp)
}

// newRoutingResponse marks the response degraded when road routing was
// enabled but the routes had to be estimated
func newRoutingResponse(routes []models.Route, roadEnabled bool) *RoutingResponse {
	mode := ModeEstimated
	if len(routes) > 0 && routes[0].Source == models.SourceRoad {
		mode = ModeRoad
	}
	return &RoutingResponse{
		Status:   "ok",
		Mode:     mode,
		Degraded: roadEnabled && mode == ModeEstimated,
		Routes:   routes,
	}
}

// publish sends the event without holding up the response
func (s *Server) publish(ctx context.Context, evt events.RoutesComputed) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	go func() {
		defer cancel()
		if err := s.publisher.PublishRoutesComputed(ctx, evt); err != nil {
			s.logger.Error("failed to publish event",
				zap.String("type", events.TypeRoutesComputed),
				zap.Error(err),
			)
		}
	}()
}

func (s *Server) searchLocations(c *gin.Context) {
	results := s.engine.SearchLocations(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "results": results})
}

func (s *Server) nearestPlaces(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		badRequest(c, "invalid lat")
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		badRequest(c, "invalid lng")
		return
	}

	k := defaultNearest
	if raw := c.Query("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil || k <= 0 {
			badRequest(c, "invalid k")
			return
		}
		k = min(k, maxNearest)
	}

	results := s.engine.NearestPlaces(models.Location{Lat: lat, Lng: lng}, k)
	if results == nil {
		results = []models.Point{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "results": results})
}

func (s *Server) forecast(c *gin.Context) {
	departure := s.clock.Now()
	if raw := c.Query("departure_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "departure_time must be RFC3339")
			return
		}
		departure = t
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"departure_time": departure,
		"forecast":       s.engine.Forecast(departure),
	})
}

func (s *Server) heatmap(c *gin.Context) {
	kind, err := engine.ParseHeatmapKind(c.Param("kind"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	samples, err := s.engine.Heatmap(c.Request.Context(), kind)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"kind":    kind,
		"city":    s.engine.Model().City,
		"samples": samples,
	})
}

func (s *Server) routingConfig(c *gin.Context) {
	profiles := make(map[models.Preference]engine.Weights, len(models.Preferences))
	for _, p := range models.Preferences {
		profiles[p] = engine.WeightsFor(p)
	}

	model := s.engine.Model()
	ttl := gin.H{}
	if s.cache != nil {
		short, long := s.cache.TTLs()
		ttl["near_real_time"] = int(short.Seconds())
		ttl["low_volatility"] = int(long.Seconds())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"profiles": profiles,
		"thresholds": gin.H{
			"low":      engine.HealthRiskBands[0],
			"moderate": engine.HealthRiskBands[1],
			"high":     engine.HealthRiskBands[2],
		},
		"ttl_seconds": ttl,
		"city":        model.City,
		"zones": gin.H{
			"traffic": len(model.TrafficZones),
			"air":     len(model.AirZones),
		},
		"places": len(model.Places),
		"feature_flags": gin.H{
			"road_provider": s.engine.HasRoadProvider(),
			"cache":         s.cache != nil,
		},
	})
}

func (s *Server) routingHealth(c *gin.Context) {
	status, road := "ok", "disabled"
	if s.road != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := s.road.Ping(ctx); err != nil {
			s.logger.Warn("Road provider health check failed", zap.Error(err))
			status, road = "degraded", "down"
		} else {
			road = "up"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"providers": gin.H{"osrm": road},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) stats(c *gin.Context) {
	body := gin.H{"status": "ok", "engine": s.engine.Stats()}
	if s.cache != nil {
		body["cache"] = s.cache.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "city": s.engine.Model().City})
}
