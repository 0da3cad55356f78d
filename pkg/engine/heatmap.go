package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/kass/go-eco-route/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownHeatmapKind is returned for heatmap kinds other than traffic and air
var ErrUnknownHeatmapKind = errors.New("unknown heatmap kind")

// HeatmapKind selects the sampled field
type HeatmapKind string

const (
	HeatmapTraffic HeatmapKind = "traffic"
	HeatmapAir     HeatmapKind = "air"

	// trafficThreshold is the congestion a cell must exceed to be reported
	trafficThreshold  = 30
	aqiIntensityScale = 150.0
)

// ParseHeatmapKind validates a heatmap kind name
func ParseHeatmapKind(s string) (HeatmapKind, error) {
	switch k := HeatmapKind(strings.ToLower(strings.TrimSpace(s))); k {
	case HeatmapTraffic, HeatmapAir:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownHeatmapKind, s)
	}
}

// Heatmap samples the estimators over the city grid. Rows are evaluated
// concurrently and returned in grid order, south to north and west to east.
func (e *Engine) Heatmap(ctx context.Context, kind HeatmapKind) ([]models.HeatmapSample, error) {
	if kind != HeatmapTraffic && kind != HeatmapAir {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHeatmapKind, kind)
	}

	grid := e.model.Heatmap
	at := e.clock.Now()
	rows := make([][]models.HeatmapSample, grid.Rows())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for r := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			cols := grid.Cols()
			row := make([]models.HeatmapSample, 0, cols)
			for c := 0; c < cols; c++ {
				loc := grid.At(r, c)
				traffic := e.est.trafficAt(loc, at)

				switch kind {
				case HeatmapTraffic:
					if traffic > trafficThreshold {
						row = append(row, models.HeatmapSample{
							Lat:       loc.Lat,
							Lng:       loc.Lng,
							Intensity: float64(traffic) / MaxTraffic,
							Value:     traffic,
						})
					}
				case HeatmapAir:
					aqi := e.est.airQualityAt(loc, traffic, at)
					row = append(row, models.HeatmapSample{
						Lat:       loc.Lat,
						Lng:       loc.Lng,
						Intensity: math.Min(1, float64(aqi)/aqiIntensityScale),
						Value:     aqi,
					})
				}
			}
			rows[r] = row
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to sample heatmap: %w", err)
	}

	var samples []models.HeatmapSample
	for _, row := range rows {
		samples = append(samples, row...)
	}
	if samples == nil {
		samples = []models.HeatmapSample{}
	}
	return samples, nil
}
