package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/kass/go-eco-route/pkg/postgis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newZonesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Store and fetch city models in PostGIS",
		Long: `Push the active city model (--city or the built-in Almaty model) into
PostgreSQL/PostGIS, pull a stored model back as YAML, or list stored cities.
Connection settings come from the postgres section of the configuration.`,
	}
	cmd.AddCommand(newZonesPushCmd(a), newZonesPullCmd(a), newZonesListCmd(a))
	return cmd
}

func (a *app) openZoneStore() (*postgis.ZoneStore, error) {
	p := a.cfg.Postgres
	store, err := postgis.NewZoneStore(p.Host, p.User, p.Password, p.DBName, p.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", p.Host, p.Port, err)
	}
	return store, nil
}

func newZonesPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Save the active city model to PostGIS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := a.loadModel()
			if err != nil {
				return err
			}

			store, err := a.openZoneStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.InitSchema(ctx); err != nil {
				return err
			}
			if err := store.SaveModel(ctx, model); err != nil {
				return err
			}

			a.logger.Info("City model saved",
				zap.String("city", model.City),
				zap.Int("traffic_zones", len(model.TrafficZones)),
				zap.Int("air_zones", len(model.AirZones)),
				zap.Int("places", len(model.Places)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s saved %s (%d traffic zones, %d air zones, %d places)\n",
				successStyle.Render("✓"), model.City,
				len(model.TrafficZones), len(model.AirZones), len(model.Places))
			return nil
		},
	}
}

func newZonesPullCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "pull <city>",
		Short: "Fetch a stored city model as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openZoneStore()
			if err != nil {
				return err
			}
			defer store.Close()

			model, err := store.LoadModel(cmd.Context(), args[0])
			if errors.Is(err, postgis.ErrCityNotFound) {
				return fmt.Errorf("no model stored for %q", args[0])
			}
			if err != nil {
				return err
			}

			data, err := model.Marshal()
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s written to %s\n", successStyle.Render("✓"), model.City, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the YAML to a file instead of stdout")
	return cmd
}

func newZonesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored cities and table statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openZoneStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			cities, err := store.Cities(ctx)
			if err != nil {
				return err
			}
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printTitle(w, "Stored cities")
			if len(cities) == 0 {
				fmt.Fprintln(w, dimStyle.Render("none"))
			}
			for _, c := range cities {
				fmt.Fprintf(w, "  %s\n", statStyle.Render(c))
			}

			keys := make([]string, 0, len(stats))
			for k := range stats {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintln(w)
			for _, k := range keys {
				printStat(w, k, stats[k])
			}
			return nil
		},
	}
}
