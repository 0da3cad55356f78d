package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kass/go-eco-route/internal/cache"
	"github.com/kass/go-eco-route/internal/events"
	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2024-01-15, midday
var offPeak = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

const ecoBody = `{
	"start": {"lat": 43.2567, "lng": 76.9286, "name": "Almaly"},
	"end": {"lat": 43.3526, "lng": 77.0405},
	"profile": "air"
}`

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.RoutesComputed
}

func (p *recordingPublisher) PublishRoutesComputed(_ context.Context, evt events.RoutesComputed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type staticRoads []models.RoadPath

func (r staticRoads) Routes(context.Context, models.Location, models.Location) ([]models.RoadPath, error) {
	return r, nil
}

// contextRoads fails once its context is done
type contextRoads struct {
	paths []models.RoadPath
}

func (r contextRoads) Routes(ctx context.Context, _, _ models.Location) ([]models.RoadPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.paths, nil
}

var testRoads = []models.RoadPath{
	{
		Line:  []models.Location{{Lat: 43.2567, Lng: 76.9286}, {Lat: 43.30, Lng: 76.98}, {Lat: 43.3526, Lng: 77.0405}},
		Steps: []models.Step{{Instruction: "Start on Abay Avenue", DistanceM: 5200, DurationS: 410}},
	},
	{Line: []models.Location{{Lat: 43.2567, Lng: 76.9286}, {Lat: 43.3526, Lng: 77.0405}}},
}

func newTestServer(t *testing.T, engineOpts []engine.Option, opts ...Option) *Server {
	t.Helper()
	engineOpts = append([]engine.Option{
		engine.WithClock(engine.FixedClock(offPeak)),
		engine.WithNoise(engine.NoNoise{}),
	}, engineOpts...)

	eng, err := engine.New(citymodel.Default(), engineOpts...)
	require.NoError(t, err)

	opts = append([]Option{WithClock(engine.FixedClock(offPeak))}, opts...)
	return New(eng, opts...)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","city":"almaty"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestEcoRoutes(t *testing.T) {
	publisher := &recordingPublisher{}
	c := cache.New[*RoutingResponse](cache.DefaultTTL, cache.DefaultLongTTL, cache.DefaultHorizon, time.Minute)
	s := newTestServer(t, nil, WithCache(c), WithPublisher(publisher))

	w := do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	var resp RoutingResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ModeEstimated, resp.Mode)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Routes, 3)

	recommended := 0
	for _, r := range resp.Routes {
		if r.Type == models.RouteRecommended {
			recommended++
		}
		assert.Equal(t, models.PreferenceAir, r.Preference)
		assert.Equal(t, "Almaly", r.Start.Name)
		assert.Equal(t, models.SourceFallback, r.Source)
	}
	assert.Equal(t, 1, recommended)
	assert.Equal(t, models.RouteRecommended, resp.Routes[0].Type)

	w = do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	var cached RoutingResponse
	decode(t, w, &cached)
	assert.Equal(t, resp.Routes[0].ID, cached.Routes[0].ID)

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), s.engine.Stats().Computed)
}

func TestEcoRoutesWithoutCache(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		w := do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "BYPASS", w.Header().Get("X-Cache"))
	}
	assert.Equal(t, int64(2), s.engine.Stats().Computed)
}

func TestEcoRoutesRoadMode(t *testing.T) {
	s := newTestServer(t, []engine.Option{engine.WithRoadProvider(staticRoads(testRoads))})

	w := do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RoutingResponse
	decode(t, w, &resp)
	assert.Equal(t, ModeRoad, resp.Mode)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Routes, 2)
	for _, r := range resp.Routes {
		assert.Equal(t, models.SourceRoad, r.Source)
		if r.ID == "route-road-0" {
			assert.Equal(t, testRoads[0].Steps, r.Steps)
		}
	}
}

func TestEcoRoutesDegraded(t *testing.T) {
	testCases := []struct {
		name     string
		opts     []engine.Option
		degraded bool
	}{
		{"Road provider returns nothing", []engine.Option{engine.WithRoadProvider(contextRoads{})}, true},
		{"Road provider disabled", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, tc.opts)

			w := do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)
			require.Equal(t, http.StatusOK, w.Code)

			var resp RoutingResponse
			decode(t, w, &resp)
			assert.Equal(t, ModeEstimated, resp.Mode)
			assert.Equal(t, tc.degraded, resp.Degraded)
			require.NotEmpty(t, resp.Routes)
			assert.Equal(t, models.SourceFallback, resp.Routes[0].Source)
		})
	}
}

func TestEcoRoutesCancelledClientDoesNotPoisonCache(t *testing.T) {
	c := cache.New[*RoutingResponse](cache.DefaultTTL, cache.DefaultLongTTL, cache.DefaultHorizon, time.Minute)
	s := newTestServer(t, []engine.Option{engine.WithRoadProvider(contextRoads{paths: testRoads})}, WithCache(c))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/routing/eco", bytes.NewReader([]byte(ecoBody))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	var first RoutingResponse
	decode(t, w, &first)
	assert.Equal(t, ModeRoad, first.Mode)

	w = do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	var cached RoutingResponse
	decode(t, w, &cached)
	assert.Equal(t, ModeRoad, cached.Mode)
	assert.False(t, cached.Degraded)
}

func TestEcoRoutesDepartureTime(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"start":{"lat":43.2567,"lng":76.9286},"end":{"lat":43.2022,"lng":76.8933},
		"profile":"traffic","departure_time":"2024-01-15T08:00:00Z"}`
	w := do(t, s, http.MethodPost, "/api/routing/eco", body)
	require.Equal(t, http.StatusOK, w.Code)

	var rush RoutingResponse
	decode(t, w, &rush)

	w = do(t, s, http.MethodPost, "/api/routing/eco",
		`{"start":{"lat":43.2567,"lng":76.9286},"end":{"lat":43.2022,"lng":76.8933},"profile":"traffic"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var midday RoutingResponse
	decode(t, w, &midday)

	scores := make(map[string]float64)
	for _, r := range midday.Routes {
		scores[r.ID] = r.Score
	}
	require.Len(t, rush.Routes, 3)
	for _, r := range rush.Routes {
		assert.Greater(t, r.Score, scores[r.ID], r.ID)
	}
}

func TestEcoRoutesBadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	testCases := []struct {
		name string
		body string
	}{
		{"Malformed JSON", `{"start":`},
		{"Missing end", `{"start":{"lat":43.2,"lng":76.9},"profile":"air"}`},
		{"Missing longitude", `{"start":{"lat":43.2},"end":{"lat":43.3,"lng":77.0}}`},
		{"Latitude out of range", `{"start":{"lat":91,"lng":76.9},"end":{"lat":43.3,"lng":77.0}}`},
		{"Longitude out of range", `{"start":{"lat":43.2,"lng":76.9},"end":{"lat":43.3,"lng":-181}}`},
		{"Unknown profile", `{"start":{"lat":43.2,"lng":76.9},"end":{"lat":43.3,"lng":77.0},"profile":"scenic"}`},
		{"Bad departure time", `{"start":{"lat":43.2,"lng":76.9},"end":{"lat":43.3,"lng":77.0},"departure_time":"soon"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/routing/eco", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body map[string]string
			decode(t, w, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchLocations(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/routing/locations?q=airport", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []models.Point `json:"results"`
	}
	decode(t, w, &body)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Almaty Airport", body.Results[0].Name)

	w = do(t, s, http.MethodGet, "/api/routing/locations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","results":[]}`, w.Body.String())
}

func TestNearestPlaces(t *testing.T) {
	s := newTestServer(t, nil)

	testCases := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"Default k", "lat=43.2567&lng=76.9286", http.StatusOK, 5},
		{"Explicit k", "lat=43.2567&lng=76.9286&k=2", http.StatusOK, 2},
		{"k is capped by the gazetteer", "lat=43.2567&lng=76.9286&k=100", http.StatusOK, 20},
		{"Missing lat", "lng=76.9286", http.StatusBadRequest, 0},
		{"Bad lng", "lat=43.2567&lng=east", http.StatusBadRequest, 0},
		{"Zero k", "lat=43.2567&lng=76.9286&k=0", http.StatusBadRequest, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/routing/places/nearest?"+tc.query, "")
			require.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				return
			}

			var body struct {
				Results []models.Point `json:"results"`
			}
			decode(t, w, &body)
			assert.Len(t, body.Results, tc.count)
		})
	}
}

func TestForecast(t *testing.T) {
	s := newTestServer(t, nil)

	testCases := []struct {
		name   string
		query  string
		status int
		period string
	}{
		{"Clock time", "", http.StatusOK, engine.PeriodNormal},
		{"Rush hour", "?departure_time=2024-01-15T08:00:00Z", http.StatusOK, engine.PeriodPeak},
		{"Offset is respected", "?departure_time=2024-01-15T08:00:00%2B05:00", http.StatusOK, engine.PeriodPeak},
		{"Weekend", "?departure_time=2024-01-20T12:00:00Z", http.StatusOK, engine.PeriodWeekend},
		{"Not RFC3339", "?departure_time=tomorrow", http.StatusBadRequest, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/routing/forecast"+tc.query, "")
			require.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				return
			}

			var body struct {
				Forecast models.Forecast `json:"forecast"`
			}
			decode(t, w, &body)
			assert.Equal(t, tc.period, body.Forecast.Period)
		})
	}
}

func TestHeatmap(t *testing.T) {
	s := newTestServer(t, nil)
	grid := s.engine.Model().Heatmap

	w := do(t, s, http.MethodGet, "/api/routing/heatmap/air", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Kind    string                 `json:"kind"`
		Samples []models.HeatmapSample `json:"samples"`
	}
	decode(t, w, &body)
	assert.Equal(t, "air", body.Kind)
	assert.Len(t, body.Samples, grid.Rows()*grid.Cols())

	w = do(t, s, http.MethodGet, "/api/routing/heatmap/pollen", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutingConfig(t *testing.T) {
	c := cache.New[*RoutingResponse](cache.DefaultTTL, cache.DefaultLongTTL, cache.DefaultHorizon, time.Minute)
	s := newTestServer(t, nil, WithCache(c))

	w := do(t, s, http.MethodGet, "/api/routing/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Profiles   map[string]engine.Weights `json:"profiles"`
		Thresholds map[string]int            `json:"thresholds"`
		TTL        map[string]int            `json:"ttl_seconds"`
		City       string                    `json:"city"`
		Zones      map[string]int            `json:"zones"`
		Places     int                       `json:"places"`
		Flags      map[string]bool           `json:"feature_flags"`
	}
	decode(t, w, &body)

	assert.Equal(t, engine.Weights{Traffic: 0.2, Air: 0.7, Distance: 0.1}, body.Profiles["air"])
	assert.Equal(t, engine.Weights{Traffic: 0.4, Air: 0.4, Distance: 0.2}, body.Profiles["balanced"])
	assert.Equal(t, map[string]int{"low": 50, "moderate": 100, "high": 150}, body.Thresholds)
	assert.Equal(t, map[string]int{"near_real_time": 300, "low_volatility": 900}, body.TTL)
	assert.Equal(t, "almaty", body.City)
	assert.Equal(t, map[string]int{"traffic": 4, "air": 4}, body.Zones)
	assert.Equal(t, 20, body.Places)
	assert.True(t, body.Flags["cache"])
	assert.False(t, body.Flags["road_provider"])
}

func TestRoutingHealth(t *testing.T) {
	testCases := []struct {
		name     string
		opts     []Option
		status   string
		provider string
	}{
		{"No road provider", nil, "ok", "disabled"},
		{"Road provider up", []Option{WithRoadHealth(pingerFunc(func(context.Context) error { return nil }))}, "ok", "up"},
		{"Road provider down", []Option{WithRoadHealth(pingerFunc(func(context.Context) error {
			return errors.New("connection refused")
		}))}, "degraded", "down"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, nil, tc.opts...)

			w := do(t, s, http.MethodGet, "/api/routing/health", "")
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Status    string            `json:"status"`
				Providers map[string]string `json:"providers"`
				Timestamp string            `json:"timestamp"`
			}
			decode(t, w, &body)
			assert.Equal(t, tc.status, body.Status)
			assert.Equal(t, tc.provider, body.Providers["osrm"])
			assert.NotEmpty(t, body.Timestamp)
		})
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/routing/eco", ecoBody)

	w := do(t, s, http.MethodGet, "/api/routing/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Engine engine.Stats `json:"engine"`
	}
	decode(t, w, &body)
	assert.Equal(t, int64(1), body.Engine.Computed)
	assert.Equal(t, int64(1), body.Engine.FallbackCount)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, WithAllowedOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/routing/eco", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/routing/eco", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunShutsDown(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "127.0.0.1:0", time.Second, time.Second, time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
