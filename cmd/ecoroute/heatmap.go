package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/kass/go-eco-route/internal/export"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const hotspotCount = 5

func newHeatmapCmd(a *app) *cobra.Command {
	var (
		outDir string
		toS3   bool
	)

	cmd := &cobra.Command{
		Use:   "heatmap <traffic|air>",
		Short: "Sample the city grid and summarize or export the heatmap",
		Long: `Sample the traffic or air-quality estimators over the city grid.
Without --out or --s3 a summary with the worst cells is printed. With --out the
heatmap is written as JSON below a directory, with --s3 to export.bucket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := engine.ParseHeatmapKind(args[0])
			if err != nil {
				return err
			}
			if outDir != "" && toS3 {
				return fmt.Errorf("--out and --s3 are mutually exclusive")
			}

			eng, err := a.buildEngine()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			samples, err := eng.Heatmap(ctx, kind)
			if err != nil {
				return fmt.Errorf("failed to sample heatmap: %w", err)
			}

			model := eng.Model()
			h := &export.Heatmap{
				City:        model.City,
				Kind:        string(kind),
				GeneratedAt: a.clock.Now(),
				Step:        model.Heatmap.Step,
				Samples:     samples,
			}

			out := cmd.OutOrStdout()
			var sink export.Sink
			switch {
			case outDir != "":
				sink = export.FileSink{Dir: outDir}
			case toS3:
				if a.cfg.Export.Bucket == "" {
					return fmt.Errorf("export.bucket is not configured")
				}
				s3Sink, err := export.NewS3Sink(ctx, a.cfg.Export.Region, a.cfg.Export.Bucket, a.cfg.Export.Prefix)
				if err != nil {
					return err
				}
				sink = s3Sink
			default:
				printHeatmapSummary(out, h)
				return nil
			}

			location, err := export.WriteHeatmap(ctx, sink, h)
			if err != nil {
				return err
			}
			a.logger.Info("Heatmap exported",
				zap.String("kind", h.Kind),
				zap.Int("samples", len(h.Samples)),
				zap.String("location", location),
			)
			fmt.Fprintf(out, "%s %d samples written to %s\n", successStyle.Render("✓"), len(h.Samples), location)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write the heatmap JSON below this directory")
	cmd.Flags().BoolVar(&toS3, "s3", false, "Upload the heatmap JSON to the configured S3 bucket")
	cmd.Flags().String("bucket", "", "S3 bucket (overrides export.bucket)")
	return cmd
}

func printHeatmapSummary(w io.Writer, h *export.Heatmap) {
	printTitle(w, fmt.Sprintf("%s %s heatmap", h.City, h.Kind))
	printStat(w, "Cells reported", len(h.Samples))
	printStat(w, "Grid step", fmt.Sprintf("%.3f°", h.Step))
	if len(h.Samples) == 0 {
		return
	}

	hot := make([]models.HeatmapSample, len(h.Samples))
	copy(hot, h.Samples)
	sort.SliceStable(hot, func(i, j int) bool { return hot[i].Value > hot[j].Value })

	var sum int
	for _, s := range h.Samples {
		sum += s.Value
	}
	printStat(w, "Mean value", fmt.Sprintf("%.1f", float64(sum)/float64(len(h.Samples))))

	fmt.Fprintf(w, "\n%s\n", subtitleStyle.Render("Hotspots"))
	for _, s := range hot[:min(hotspotCount, len(hot))] {
		fmt.Fprintf(w, "  %.2f,%.2f  %s\n", s.Lat, s.Lng, statStyle.Render(fmt.Sprint(s.Value)))
	}
}
