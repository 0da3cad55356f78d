package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/spf13/cobra"
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#BD93F9")).
	Padding(0, 1)

func newExploreCmd(a *app) *cobra.Command {
	var (
		profile string
		depart  string
	)

	cmd := &cobra.Command{
		Use:   "explore <from> <to>",
		Short: "Browse routes interactively across preferences and departure times",
		Args:  cobra.ExactArgs(2),
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

			m := newExploreModel(cmd.Context(), eng, start, end, pref, at)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "balanced", "Initial preference: traffic, air or balanced")
	cmd.Flags().StringVarP(&depart, "depart", "d", "", "Initial departure time, RFC3339 or HH:MM today (default now)")
	return cmd
}

type routesMsg struct {
	seq    int
	routes []models.Route
}

type exploreModel struct {
	ctx        context.Context
	eng        *engine.Engine
	start, end models.Point
	pref       int
	at         time.Time

	seq       int
	computing bool
	routes    []models.Route
	table     table.Model
}

func newExploreModel(ctx context.Context, eng *engine.Engine, start, end models.Point, pref models.Preference, at time.Time) exploreModel {
	columns := []table.Column{
		{Title: "#", Width: 2},
		{Title: "Route", Width: 18},
		{Title: "Eco", Width: 4},
		{Title: "km", Width: 6},
		{Title: "min", Width: 4},
		{Title: "Traffic", Width: 7},
		{Title: "AQI", Width: 4},
		{Title: "CO2 g", Width: 6},
		{Title: "Risk", Width: 9},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(engine.Variants+1),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#6272A4")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#282A36")).
		Background(lipgloss.Color("#50FA7B")).
		Bold(false)
	t.SetStyles(s)

	idx := 0
	for i, p := range models.Preferences {
		if p == pref {
			idx = i
		}
	}

	return exploreModel{
		ctx:       ctx,
		eng:       eng,
		start:     start,
		end:       end,
		pref:      idx,
		at:        at,
		computing: true,
		table:     t,
	}
}

func (m exploreModel) preference() models.Preference {
	return models.Preferences[m.pref]
}

// fetch scores the current selection off the UI loop
func (m exploreModel) fetch() tea.Cmd {
	seq, ctx, eng := m.seq, m.ctx, m.eng
	at, start, end, pref := m.at, m.start, m.end, m.preference()
	return func() tea.Msg {
		return routesMsg{seq: seq, routes: eng.ComputeRoutesAt(ctx, at, start, end, pref)}
	}
}

// compute invalidates the routes on screen and fetches new ones
func (m *exploreModel) compute() tea.Cmd {
	m.seq++
	m.computing = true
	return m.fetch()
}

func (m exploreModel) Init() tea.Cmd {
	return m.fetch()
}

func (m exploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "p", "tab":
			m.pref = (m.pref + 1) % len(models.Preferences)
			cmd := m.compute()
			return m, cmd
		case "+", "]":
			m.at = m.at.Add(time.Hour)
			cmd := m.compute()
			return m, cmd
		case "-", "[":
			m.at = m.at.Add(-time.Hour)
			cmd := m.compute()
			return m, cmd
		}

	case routesMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.computing = false
		m.routes = msg.routes
		m.table.SetRows(routeRows(msg.routes))
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func routeRows(routes []models.Route) []table.Row {
	rows := make([]table.Row, len(routes))
	for i, r := range routes {
		rows[i] = table.Row{
			fmt.Sprint(i + 1),
			r.ID,
			fmt.Sprint(r.EcoScore),
			fmt.Sprintf("%.1f", r.TotalDistanceM/1000),
			fmt.Sprint(minutes(r.TotalTimeS)),
			fmt.Sprint(r.AvgTraffic),
			fmt.Sprint(r.AvgAirQuality),
			fmt.Sprintf("%.0f", r.CO2G),
			string(r.HealthRisk),
		}
	}
	return rows
}

func (m exploreModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s eco-routes", m.eng.Model().City)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s  ->  %s\n", statStyle.Render(displayName(m.start)), statStyle.Render(displayName(m.end)))
	fmt.Fprintf(&b, "Profile %s   Departure %s %s\n\n",
		subtitleStyle.Render(string(m.preference())),
		subtitleStyle.Render(m.at.Format("Mon 15:04")),
		dimStyle.Render("("+m.eng.Forecast(m.at).Period+")"),
	)

	b.WriteString(boxStyle.Render(m.table.View()))
	b.WriteString("\n")

	switch {
	case m.computing:
		b.WriteString(dimStyle.Render("computing..."))
	case len(m.routes) > 0:
		cursor := m.table.Cursor()
		if cursor < 0 || cursor >= len(m.routes) {
			cursor = 0
		}
		r := m.routes[cursor]
		b.WriteString(infoStyle.Render(r.Explanation))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("vs fastest: %+ds, %+.0f AQI*s, %+.0f g CO2",
			r.VsFastest.DeltaTimeS, r.VsFastest.DeltaAQIExposure, r.VsFastest.DeltaCO2G)))
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("↑/↓ select • p profile • +/- departure hour • q quit"))
	return b.String()
}
