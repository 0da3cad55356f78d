package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/spf13/cobra"
)

type BenchmarkResult struct {
	QueryType     string
	TotalQueries  int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	QueriesPerSec float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
	AvgResults    float64
	Workers       int
}

// benchQuery runs one query and returns the number of results
type benchQuery func(ctx context.Context, r *rand.Rand) int

func newBenchCmd(a *app) *cobra.Command {
	var (
		queryType  string
		numQueries int
		workers    int
		k          int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure routing and lookup throughput",
		Long: `Run random queries against the engine with a pool of workers. Query types:
route (ComputeRoutes between random points of the city grid), nearest (k nearest
places), heatmap (full air-quality grid) and mixed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if numQueries <= 0 || workers <= 0 {
				return fmt.Errorf("queries and workers must be positive")
			}
			eng, err := a.buildEngine()
			if err != nil {
				return err
			}
			query, err := benchQueryFor(eng, queryType, k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running %d %s queries with %d workers...\n", numQueries, queryType, workers)
			result := runBenchmark(cmd.Context(), queryType, query, numQueries, workers)
			printBenchmark(out, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&queryType, "type", "t", "route", "Query type: route, nearest, heatmap, mixed")
	cmd.Flags().IntVarP(&numQueries, "queries", "n", 1000, "Number of queries to run")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Number of concurrent workers")
	cmd.Flags().IntVarP(&k, "neighbors", "k", 5, "Number of nearest places (for nearest queries)")
	return cmd
}

// randomLocation picks a uniform location inside the heatmap grid of the model
func randomLocation(m *citymodel.Model, r *rand.Rand) models.Location {
	g := m.Heatmap
	return models.Location{
		Lat: g.MinLat + r.Float64()*(g.MaxLat-g.MinLat),
		Lng: g.MinLng + r.Float64()*(g.MaxLng-g.MinLng),
	}
}

func benchQueryFor(eng *engine.Engine, queryType string, k int) (benchQuery, error) {
	model := eng.Model()

	route := func(ctx context.Context, r *rand.Rand) int {
		start := models.Point{ID: "start", Location: randomLocation(model, r)}
		end := models.Point{ID: "end", Location: randomLocation(model, r)}
		pref := models.Preferences[r.Intn(len(models.Preferences))]
		return len(eng.ComputeRoutesContext(ctx, start, end, pref))
	}
	nearest := func(_ context.Context, r *rand.Rand) int {
		return len(eng.NearestPlaces(randomLocation(model, r), k))
	}
	heatmap := func(ctx context.Context, _ *rand.Rand) int {
		samples, err := eng.Heatmap(ctx, engine.HeatmapAir)
		if err != nil {
			return 0
		}
		return len(samples)
	}

	switch queryType {
	case "route":
		return route, nil
	case "nearest":
		return nearest, nil
	case "heatmap":
		return heatmap, nil
	case "mixed":
		return func(ctx context.Context, r *rand.Rand) int {
			if r.Intn(2) == 0 {
				return route(ctx, r)
			}
			return nearest(ctx, r)
		}, nil
	default:
		return nil, fmt.Errorf("unknown query type: %s", queryType)
	}
}

func runBenchmark(ctx context.Context, queryType string, query benchQuery, numQueries, workers int) BenchmarkResult {
	var (
		totalResults atomic.Int64
		completed    atomic.Int64
		minDuration  = time.Hour
		maxDuration  time.Duration
		sumDuration  time.Duration
		mu           sync.Mutex
	)

	startTime := time.Now()

	// Worker pool
	queryCh := make(chan int, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))

			for range queryCh {
				if ctx.Err() != nil {
					continue
				}

				queryStart := time.Now()
				n := query(ctx, r)
				queryDuration := time.Since(queryStart)

				totalResults.Add(int64(n))
				completed.Add(1)

				mu.Lock()
				sumDuration += queryDuration
				if queryDuration < minDuration {
					minDuration = queryDuration
				}
				if queryDuration > maxDuration {
					maxDuration = queryDuration
				}
				mu.Unlock()
			}
		}(rand.Int63())
	}

	for i := 0; i < numQueries; i++ {
		queryCh <- i
	}
	close(queryCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	done := int(completed.Load())
	result := BenchmarkResult{
		QueryType:     queryType,
		TotalQueries:  done,
		TotalDuration: totalDuration,
		TotalResults:  totalResults.Load(),
		Workers:       workers,
	}
	if done > 0 {
		result.AvgDuration = sumDuration / time.Duration(done)
		result.QueriesPerSec = float64(done) / totalDuration.Seconds()
		result.MinDuration = minDuration
		result.MaxDuration = maxDuration
		result.AvgResults = float64(result.TotalResults) / float64(done)
	}
	return result
}

func printBenchmark(w io.Writer, result BenchmarkResult) {
	printTitle(w, "Benchmark Results")
	printStat(w, "Query Type", result.QueryType)
	printStat(w, "Total Queries", result.TotalQueries)
	printStat(w, "Total Duration", result.TotalDuration)
	printStat(w, "Average Duration", result.AvgDuration)
	printStat(w, "Queries/Second", fmt.Sprintf("%.2f", result.QueriesPerSec))
	printStat(w, "Min Duration", result.MinDuration)
	printStat(w, "Max Duration", result.MaxDuration)
	printStat(w, "Total Results", result.TotalResults)
	printStat(w, "Avg Results/Query", fmt.Sprintf("%.2f", result.AvgResults))
	printStat(w, "Workers Used", result.Workers)
	printStat(w, "CPU Cores", runtime.NumCPU())
}
