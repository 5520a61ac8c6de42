// Package report renders solutions and solver progress for the terminal.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/storage"
)

var (
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49"))
)

const (
	DefaultWidth  = 60
	DefaultHeight = 8
)

// Status renders a solver status, green when converged.
func Status(sol *iterate.Solution) string {
	if sol.Success() {
		return okStyle.Render(sol.Status)
	}
	return warnStyle.Render(sol.Status)
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

// Summary renders the outcome of a solve in a bordered panel.
func Summary(meta storage.RunMetadata, sol *iterate.Solution) string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(meta.Problem)) + "\n")
	if meta.ID != "" {
		s.WriteString(row("Run", meta.ID))
	}
	if meta.Transcription != "" {
		s.WriteString(row("Transcription", meta.Transcription))
	}
	if meta.Solver != "" {
		s.WriteString(row("Solver", meta.Solver))
	}
	s.WriteString(row("Mesh points", fmt.Sprintf("%d", sol.NumTimes())))
	s.WriteString(labelStyle.Render("Status") + Status(sol) + "\n")
	s.WriteString(row("Objective", fmt.Sprintf("%.8g", sol.Objective)))
	s.WriteString(row("Iterations", fmt.Sprintf("%d", sol.Iterations)))
	if meta.Elapsed > 0 {
		d := time.Duration(meta.Elapsed * float64(time.Second))
		s.WriteString(row("Elapsed", d.Round(time.Millisecond).String()))
	}

	names := sol.ParameterNames()
	values := sol.Parameters()
	for i, name := range names {
		s.WriteString(row("param "+name, fmt.Sprintf("%.6g", values[i])))
	}

	params := make([]string, 0, len(meta.Params))
	for k := range meta.Params {
		params = append(params, k)
	}
	sort.Strings(params)
	for _, k := range params {
		s.WriteString(row(k, fmt.Sprintf("%g", meta.Params[k])))
	}
	return panelStyle.Render(strings.TrimSuffix(s.String(), "\n"))
}

// Plot draws one labeled column of it against its mesh index, with the
// time span in the caption.
func Plot(it *iterate.Iterate, kind iterate.Kind, label string, width, height int) (string, error) {
	values, err := it.Column(kind, label)
	if err != nil {
		return "", err
	}
	caption := fmt.Sprintf("%s %s, t = %g .. %g", kind, label, it.InitialTime(), it.FinalTime())
	chart := asciigraph.Plot(values,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Precision(3),
		asciigraph.Caption(caption))
	return graphStyle.Render(chart), nil
}

// PlotAll draws every column of the given kinds, or of states and
// controls when none are given.
func PlotAll(it *iterate.Iterate, width, height int, kinds ...iterate.Kind) (string, error) {
	if len(kinds) == 0 {
		kinds = []iterate.Kind{iterate.States, iterate.Controls}
	}
	var charts []string
	for _, k := range kinds {
		for _, label := range it.Names(k) {
			chart, err := Plot(it, k, label, width, height)
			if err != nil {
				return "", err
			}
			charts = append(charts, chart)
		}
	}
	return strings.Join(charts, "\n\n"), nil
}

// logFloor keeps zero residuals plottable on a log scale.
const logFloor = 1e-16

func log10(v float64) float64 {
	return math.Log10(math.Max(math.Abs(v), logFloor))
}

// Convergence plots log10 of primal and dual infeasibility per iteration.
func Convergence(history []nlp.Iteration, width, height int) string {
	if len(history) < 2 {
		return ""
	}
	primal := make([]float64, len(history))
	dual := make([]float64, len(history))
	for i, it := range history {
		primal[i] = log10(it.PrimalInfeasibility)
		dual[i] = log10(it.DualInfeasibility)
	}
	return asciigraph.PlotMany([][]float64{primal, dual},
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Precision(1),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow),
		asciigraph.SeriesLegends("primal", "dual"),
		asciigraph.Caption("log10 infeasibility"))
}
