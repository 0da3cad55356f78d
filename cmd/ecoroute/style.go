package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6"))

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

func init() {
	// Disable colors if not in a terminal
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func printTitle(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", titleStyle.Render(title))
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func printStat(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "  %s: %s\n", label, statStyle.Render(fmt.Sprint(value)))
}

func riskStyle(r models.HealthRisk) lipgloss.Style {
	switch r {
	case models.HealthRiskLow:
		return successStyle
	case models.HealthRiskModerate:
		return infoStyle
	default:
		return errorStyle
	}
}

func minutes(seconds int) int {
	return int(math.Round(float64(seconds) / 60))
}

func printRoutes(w io.Writer, routes []models.Route) {
	for i, r := range routes {
		header := fmt.Sprintf("[%d] %s", i+1, r.Type)
		if r.Type == models.RouteRecommended {
			header = successStyle.Render(header)
		} else {
			header = subtitleStyle.Render(header)
		}
		fmt.Fprintf(w, "\n%s %s\n", header, dimStyle.Render(fmt.Sprintf("(%s, %s)", r.ID, r.Source)))

		printStat(w, "Eco score", r.EcoScore)
		printStat(w, "Distance", fmt.Sprintf("%.1f km", r.TotalDistanceM/1000))
		printStat(w, "Time", fmt.Sprintf("~%d min", minutes(r.TotalTimeS)))
		printStat(w, "Traffic", fmt.Sprintf("%d/100", r.AvgTraffic))
		printStat(w, "Air quality", fmt.Sprintf("AQI %d", r.AvgAirQuality))
		printStat(w, "Exposure", fmt.Sprintf("%.0f AQI*s", r.AQIExposure))
		printStat(w, "CO2", fmt.Sprintf("%.0f g", r.CO2G))
		fmt.Fprintf(w, "  Health risk: %s\n", riskStyle(r.HealthRisk).Render(string(r.HealthRisk)))
		fmt.Fprintf(w, "  vs fastest: %+ds, %+.0f AQI*s, %+.0f g CO2\n",
			r.VsFastest.DeltaTimeS, r.VsFastest.DeltaAQIExposure, r.VsFastest.DeltaCO2G)
		fmt.Fprintf(w, "  %s\n", infoStyle.Render(r.Explanation))
	}
}
