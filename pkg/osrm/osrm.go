// Package osrm fetches road-network polylines from an OSRM routing server.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kass/go-eco-route/pkg/geo"
	"github.com/kass/go-eco-route/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL is the public OSRM demo server
	DefaultBaseURL = "https://router.project-osrm.org/route/v1/driving"
	DefaultTimeout = 6 * time.Second

	// MaxRoutes caps the number of distinct polylines returned
	MaxRoutes = 3
	// MaxSteps caps the turn instructions kept per route
	MaxSteps = 8

	detourFraction = 0.14
	minDetourM     = 350.0
	maxDetourM     = 1400.0
	hashSamples    = 12
)

// ErrNoRoute is returned when no candidate produced a usable polyline
var ErrNoRoute = errors.New("no road route found")

// Client talks to the OSRM HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	pingPair   [2]models.Location
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds a whole Routes call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPingPair sets the pair of locations Ping routes between
func WithPingPair(a, b models.Location) Option {
	return func(c *Client) { c.pingPair = [2]models.Location{a, b} }
}

// WithLogger sets the logger for skipped candidates
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the given base URL (up to and including the profile)
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		pingPair: [2]models.Location{
			{Lat: 43.2380, Lng: 76.9456},
			{Lat: 43.2022, Lng: 76.8933},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Steps []routeStep `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

type routeStep struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Maneuver struct {
		Type     string `json:"type"`
		Modifier string `json:"modifier"`
	} `json:"maneuver"`
}

// instruction renders an OSRM maneuver as a short English sentence
func instruction(s routeStep) string {
	name := strings.TrimSpace(s.Name)
	kind := strings.ToLower(s.Maneuver.Type)
	if kind == "" {
		kind = "continue"
	}
	modifier := strings.ToLower(s.Maneuver.Modifier)

	onto := func(verb, fallback string) string {
		if name == "" {
			return fallback
		}
		return verb + " onto " + name
	}

	switch kind {
	case "depart", "new name":
		if name == "" {
			return "Start route"
		}
		return "Start on " + name
	case "arrive":
		return "Arrive at destination"
	case "roundabout", "rotary":
		if name == "" {
			return "Take the roundabout"
		}
		return "Take roundabout to " + name
	case "merge", "on ramp", "off ramp":
		if modifier != "" {
			return onto("Merge "+modifier, "Merge "+modifier)
		}
		return onto("Merge", "Merge")
	case "turn":
		if modifier != "" {
			return onto("Turn "+modifier, "Turn "+modifier)
		}
		return onto("Turn", "Turn")
	case "fork":
		if modifier != "" {
			return "Keep " + modifier + " at fork"
		}
		return "Keep at fork"
	}
	if name != "" {
		return "Continue on " + name
	}
	return "Continue"
}

// Candidates returns the via-point lists tried for a trip: the direct path
// and one detour on each side of it.
func Candidates(start, end models.Location) [][]models.Location {
	offset := math.Min(maxDetourM, math.Max(minDetourM, geo.Distance(start, end)*detourFraction))

	return [][]models.Location{
		{start, end},
		{start, geo.PerpendicularOffset(start, end, offset), end},
		{start, geo.PerpendicularOffset(start, end, -offset), end},
	}
}

// Routes fetches every candidate in parallel and returns the distinct
// paths in candidate order. Individual candidate failures are skipped;
// an error is returned only when none succeeded.
func (c *Client) Routes(ctx context.Context, start, end models.Location) ([]models.RoadPath, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	candidates := Candidates(start, end)
	paths := make([]models.RoadPath, len(candidates))
	errs := make([]error, len(candidates))

	var g errgroup.Group
	for i, via := range candidates {
		g.Go(func() error {
			paths[i], errs[i] = c.fetch(ctx, via, true)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var routes []models.RoadPath
	for i, path := range paths {
		if errs[i] != nil {
			c.logger.Debug("Candidate failed", zap.Int("candidate", i), zap.Error(errs[i]))
			continue
		}
		key := shapeHash(path.Line)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		routes = append(routes, path)
		if len(routes) == MaxRoutes {
			break
		}
	}

	if len(routes) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("failed to fetch road routes: %w", err)
		}
		return nil, ErrNoRoute
	}
	return routes, nil
}

// Ping routes between the ping pair and reports whether the server answered
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetch(ctx, c.pingPair[:], false)
	return err
}

func (c *Client) fetch(ctx context.Context, via []models.Location, full bool) (models.RoadPath, error) {
	coords := make([]string, len(via))
	for i, loc := range via {
		coords[i] = fmt.Sprintf("%.6f,%.6f", loc.Lng, loc.Lat)
	}

	overview, steps := "false", "false"
	if full {
		overview, steps = "full", "true"
	}
	url := fmt.Sprintf("%s/%s?overview=%s&geometries=geojson&alternatives=false&steps=%s",
		c.baseURL, strings.Join(coords, ";"), overview, steps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.RoadPath{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RoadPath{}, fmt.Errorf("failed to query osrm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.RoadPath{}, fmt.Errorf("osrm returned status %d", resp.StatusCode)
	}

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.RoadPath{}, fmt.Errorf("failed to decode osrm response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return models.RoadPath{}, fmt.Errorf("%w: %s %s", ErrNoRoute, body.Code, body.Message)
	}
	if !full {
		return models.RoadPath{}, nil
	}

	route := body.Routes[0]
	if len(route.Geometry.Coordinates) < 2 {
		return models.RoadPath{}, fmt.Errorf("%w: geometry has %d points", ErrNoRoute, len(route.Geometry.Coordinates))
	}

	path := models.RoadPath{Line: make([]models.Location, len(route.Geometry.Coordinates))}
	for i, p := range route.Geometry.Coordinates {
		path.Line[i] = models.Location{Lat: p[1], Lng: p[0]}
	}

legs:
	for _, leg := range route.Legs {
		for _, s := range leg.Steps {
			path.Steps = append(path.Steps, models.Step{
				Instruction: instruction(s),
				DistanceM:   int(math.Round(s.Distance)),
				DurationS:   int(math.Round(s.Duration)),
			})
			if len(path.Steps) == MaxSteps {
				break legs
			}
		}
	}
	return path, nil
}

// shapeHash samples about a dozen points of a polyline at four decimals, so
// that candidates snapping onto the same roads compare equal
func shapeHash(line []models.Location) string {
	if len(line) < 2 {
		return ""
	}
	step := max(1, len(line)/hashSamples)

	var sb strings.Builder
	for i := 0; i < len(line); i += step {
		fmt.Fprintf(&sb, "%.4f,%.4f|", line[i].Lat, line[i].Lng)
	}
	if (len(line)-1)%step != 0 {
		last := line[len(line)-1]
		fmt.Fprintf(&sb, "%.4f,%.4f|", last.Lat, last.Lng)
	}
	return sb.String()
}
