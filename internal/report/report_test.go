package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/storage"
)

func testSolution(t *testing.T, converged bool) *iterate.Solution {
	t.Helper()
	times := iterate.Linspace(0, 1, 5)
	d := iterate.Data{
		Time:           times,
		StateNames:     []string{"x"},
		ControlNames:   []string{"u"},
		ParameterNames: []string{"mass"},
		Parameters:     []float64{2},
	}
	for _, tm := range times {
		d.States = append(d.States, []float64{tm})
		d.Controls = append(d.Controls, []float64{1})
	}
	it, err := iterate.New(d)
	if err != nil {
		t.Fatal(err)
	}
	status := "converged"
	if !converged {
		status = "max_iterations"
	}
	return &iterate.Solution{Iterate: it, Status: status, Converged: converged, Objective: 1, Iterations: 3}
}

func TestSummary(t *testing.T) {
	meta := storage.RunMetadata{
		Problem:       "min_effort",
		Transcription: "trapezoidal",
		Solver:        "sqp",
		Params:        map[string]float64{"x1": 1},
		Elapsed:       0.25,
	}

	tests := []struct {
		converged bool
		status    string
	}{
		{true, "converged"},
		{false, "max_iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			out := Summary(meta, testSolution(t, tt.converged))
			for _, want := range []string{"MIN_EFFORT", "trapezoidal", "sqp", tt.status, "param mass", "x1", "250ms"} {
				if !strings.Contains(out, want) {
					t.Errorf("summary missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestPlot(t *testing.T) {
	sol := testSolution(t, true)

	out, err := Plot(sol.Iterate, iterate.States, "x", 30, 5)
	if err != nil {
		t.Fatalf("plot failed: %v", err)
	}
	if !strings.Contains(out, "state x") {
		t.Errorf("caption missing:\n%s", out)
	}

	if _, err := Plot(sol.Iterate, iterate.Controls, "thrust", 30, 5); !errors.Is(err, ocp.ErrUnknownLabel) {
		t.Errorf("got %v, want ErrUnknownLabel", err)
	}

	all, err := PlotAll(sol.Iterate, 30, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(all, "state x") || !strings.Contains(all, "control u") {
		t.Errorf("expected a chart per state and control:\n%s", all)
	}
}

func TestConvergence(t *testing.T) {
	if Convergence([]nlp.Iteration{{}}, 30, 5) != "" {
		t.Error("a single iteration should not be plotted")
	}

	history := []nlp.Iteration{
		{PrimalInfeasibility: 1, DualInfeasibility: 10},
		{PrimalInfeasibility: 1e-3, DualInfeasibility: 1e-2},
		{PrimalInfeasibility: 0, DualInfeasibility: 1e-9},
	}
	out := Convergence(history, 30, 5)
	if !strings.Contains(out, "primal") || !strings.Contains(out, "dual") {
		t.Errorf("legend missing:\n%s", out)
	}
}
