package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kass/go-eco-route/internal/config"
	"github.com/kass/go-eco-route/internal/logger"
	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/kass/go-eco-route/pkg/osrm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"log-level": "log_level",
	"city":      "city.model_path",
	"noise":     "noise.kind",
	"seed":      "noise.seed",
	"osrm":      "osrm.enabled",
	"addr":      "server.addr",
	"cache":     "cache.enabled",
	"kafka":     "kafka.enabled",
	"bucket":    "export.bucket",
}

// quietCommands log only warnings unless a level is configured
var quietCommands = map[string]bool{
	"route": true, "search": true, "nearest": true, "within": true,
	"forecast": true, "heatmap": true, "bench": true,
	"push": true, "pull": true, "list": true,
}

type app struct {
	cfgFile string

	cfg    *config.Config
	clock  engine.Clock
	logger *zap.Logger
	roads  *osrm.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ecoroute",
		Short: "Eco-friendly route recommendations for Almaty",
		Long: `Scores alternative routes between two points by traffic congestion,
air quality and distance, and recommends the one that best fits a preference.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "Config file (default ./ecoroute.yaml or $HOME/.ecoroute/ecoroute.yaml)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("city", "", "City model YAML file (default: built-in Almaty model)")
	pf.String("noise", "uniform", "Estimator jitter: uniform, daily or none")
	pf.Int64("seed", 0, "Seed of the uniform jitter (0 picks one from the clock)")
	pf.Bool("osrm", false, "Use OSRM road-network candidates")

	root.AddCommand(
		newRouteCmd(a),
		newSearchCmd(a),
		newNearestCmd(a),
		newWithinCmd(a),
		newForecastCmd(a),
		newHeatmapCmd(a),
		newServeCmd(a),
		newZonesCmd(a),
		newExploreCmd(a),
		newBenchCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	bindings := make([]config.FlagBinding, 0, len(flagKeys))
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			bindings = append(bindings, config.FlagBinding{Key: key, Flag: f})
		}
	}

	cfg, err := config.Load(a.cfgFile, bindings...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.clock = engine.ZonedClock(cfg.Location())

	if cmd.Name() == "explore" && cfg.LogLevel == "" {
		a.logger = zap.NewNop()
		return nil
	}

	level := cfg.LogLevel
	if level == "" && quietCommands[cmd.Name()] {
		level = "warn"
	}
	log, err := logger.NewNamed(cfg.Env, level, "ecoroute")
	if err != nil {
		return err
	}
	a.logger = log
	return nil
}

// loadModel returns the configured city model, or the built-in one
func (a *app) loadModel() (*citymodel.Model, error) {
	if path := a.cfg.City.ModelPath; path != "" {
		return citymodel.Load(path)
	}
	return citymodel.Default(), nil
}

func (a *app) buildEngine() (*engine.Engine, error) {
	model, err := a.loadModel()
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithClock(a.clock),
		engine.WithNoise(noiseFor(a.cfg.Noise)),
		engine.WithLogger(a.logger.Named("engine")),
	}
	if a.cfg.OSRM.Enabled {
		a.roads = osrm.New(a.cfg.OSRM.BaseURL,
			osrm.WithTimeout(a.cfg.OSRM.Timeout),
			osrm.WithLogger(a.logger.Named("osrm")),
		)
		opts = append(opts, engine.WithRoadProvider(a.roads))
	}

	eng, err := engine.New(model, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}
	return eng, nil
}

func noiseFor(c config.NoiseConfig) engine.Noise {
	switch c.Kind {
	case "none":
		return engine.NoNoise{}
	case "daily":
		return engine.DailyNoise{Amplitude: c.Amplitude}
	default:
		seed := c.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return engine.NewUniformNoise(seed, c.Amplitude)
	}
}

// resolvePoint accepts a gazetteer key, a unique search match or "lat,lng"
func resolvePoint(eng *engine.Engine, arg, id string) (models.Point, error) {
	if p, ok := eng.LookupPlace(arg); ok {
		return p, nil
	}

	if loc, ok, err := parseLatLng(arg); ok {
		if err != nil {
			return models.Point{}, fmt.Errorf("%s: %w", id, err)
		}
		return models.Point{ID: id, Location: loc}, nil
	}

	matches := eng.SearchLocations(arg)
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Point{}, fmt.Errorf("%s: unknown place %q, use a place name or lat,lng", id, arg)
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.ID
		}
		return models.Point{}, fmt.Errorf("%s: %q is ambiguous: %s", id, arg, strings.Join(names, ", "))
	}
}

// parseLatLng parses "lat,lng". The boolean reports whether s looked like a
// coordinate pair at all.
func parseLatLng(s string) (models.Location, bool, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return models.Location{}, false, nil
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Location{}, false, nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Location{}, false, nil
	}

	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return models.Location{}, true, fmt.Errorf("latitude %v out of range", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return models.Location{}, true, fmt.Errorf("longitude %v out of range", lng)
	}
	return models.Location{Lat: lat, Lng: lng}, true, nil
}

// parseDeparture accepts RFC3339 or a wall-clock "15:04" on the day of now.
// The result is in the location of now.
func parseDeparture(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(now.Location()), nil
	}
	hm, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("departure %q must be RFC3339 or HH:MM", s)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, now.Location()), nil
}
