package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kass/go-eco-route/pkg/models"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRouteCmd(a *app) *cobra.Command {
	var (
		profile string
		depart  string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "route <from> <to>",
		Short: "Compute and rank routes between two places",
		Long: `Compute three candidate routes between two places and rank them for a
preference. Places are gazetteer names ("mega center") or "lat,lng" pairs.`,
		Example: `  ecoroute route "republic square" "mega center" --profile air
  ecoroute route 43.238,76.9456 airport --depart 08:30`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pref, err := models.ParsePreference(profile)
			if err != nil {
				return err
			}

			eng, err := a.buildEngine()
			if err != nil {
				return err
			}
			start, err := resolvePoint(eng, args[0], "start")
			if err != nil {
				return err
			}
			end, err := resolvePoint(eng, args[1], "end")
			if err != nil {
				return err
			}
			at, err := parseDeparture(depart, a.clock.Now())
			if err != nil {
				return err
			}

			routes := eng.ComputeRoutesAt(cmd.Context(), at, start, end, pref)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, routes)
			}

			printTitle(out, fmt.Sprintf("%s -> %s", displayName(start), displayName(end)))
			fmt.Fprintf(out, "Profile %s, departing %s\n", statStyle.Render(string(pref)), at.Format("Mon 15:04 MST"))
			printRoutes(out, routes)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "balanced", "Preference: traffic, air or balanced")
	cmd.Flags().StringVarP(&depart, "depart", "d", "", "Departure time, RFC3339 or HH:MM today (default now)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print routes as JSON")
	return cmd
}

func displayName(p models.Point) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%.4f,%.4f", p.Location.Lat, p.Location.Lng)
}

func printPlaces(w io.Writer, places []models.Point) {
	if len(places) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no places found"))
		return
	}
	for _, p := range places {
		fmt.Fprintf(w, "%-22s %-32s %s\n",
			statStyle.Render(p.ID), p.Name,
			dimStyle.Render(fmt.Sprintf("%.4f,%.4f", p.Location.Lat, p.Location.Lng)))
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the gazetteer by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.buildEngine()
			if err != nil {
				return err
			}
			results := eng.SearchLocations(strings.Join(args, " "))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			printPlaces(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newNearestCmd(a *app) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "nearest <lat,lng>",
		Short: "List the gazetteer places closest to a coordinate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, ok, err := parseLatLng(args[0])
			if !ok {
				return fmt.Errorf("expected lat,lng, got %q", args[0])
			}
			if err != nil {
				return err
			}
			if k <= 0 {
				return fmt.Errorf("k must be positive")
			}

			eng, err := a.buildEngine()
			if err != nil {
				return err
			}
			printPlaces(cmd.OutOrStdout(), eng.NearestPlaces(loc, k))
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "neighbors", "k", 5, "Number of places to return")
	return cmd
}

func newWithinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "within <minLat,minLng,maxLat,maxLng>",
		Short: "List the gazetteer places inside a bounding box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := parseBox(args[0])
			if err != nil {
				return err
			}
			eng, err := a.buildEngine()
			if err != nil {
				return err
			}
			places, err := eng.PlacesWithin(box)
			if err != nil {
				return err
			}
			printPlaces(cmd.OutOrStdout(), places)
			return nil
		},
	}
}

func parseBox(s string) (models.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.BoundingBox{}, fmt.Errorf("expected minLat,minLng,maxLat,maxLng, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.BoundingBox{}, fmt.Errorf("invalid coordinate %q: %w", p, err)
		}
		v[i] = f
	}
	return models.BoundingBox{
		BottomLeft: models.Location{Lat: v[0], Lng: v[1]},
		TopRight:   models.Location{Lat: v[2], Lng: v[3]},
	}, nil
}

func newForecastCmd(a *app) *cobra.Command {
	var depart string

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Describe expected traffic and air quality at a departure time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.buildEngine()
			if err != nil {
				return err
			}
			at, err := parseDeparture(depart, a.clock.Now())
			if err != nil {
				return err
			}

			f := eng.Forecast(at)
			out := cmd.OutOrStdout()
			printTitle(out, "Forecast for "+at.Format("Mon 02 Jan 15:04 MST"))
			printStat(out, "Period", f.Period)
			printStat(out, "Traffic", f.Traffic)
			printStat(out, "Air quality", f.AirQuality)
			fmt.Fprintf(out, "\n%s\n", infoStyle.Render(f.Recommendation))
			return nil
		},
	}
	cmd.Flags().StringVarP(&depart, "depart", "d", "", "Departure time, RFC3339 or HH:MM today (default now)")
	return cmd
}
