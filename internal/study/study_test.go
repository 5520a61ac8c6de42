package study

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/storage"
)

func TestRunMinEffort(t *testing.T) {
	cfg := config.DefaultConfig()

	res, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Solution.Success() {
		t.Fatalf("expected convergence, got %s", res.Solution.Status)
	}
	if math.Abs(res.Solution.Objective-1) > 1e-3 {
		t.Errorf("objective = %v, want 1", res.Solution.Objective)
	}
	if res.Solution.NumTimes() != cfg.MeshPoints {
		t.Errorf("got %d mesh points, want %d", res.Solution.NumTimes(), cfg.MeshPoints)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Solver = "ipopt"

	if _, err := Run(cfg, nil); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}

func TestMakeGuess(t *testing.T) {
	stored := t.TempDir()
	base := config.GetPreset("sliding_mass", "loose")
	res, err := Run(base, nil)
	if err != nil {
		t.Fatal(err)
	}
	runID, err := Save(storage.New(stored), res)
	if err != nil {
		t.Fatal(err)
	}
	csvPath := filepath.Join(stored, runID, "solution.csv")

	tests := []struct {
		guess string
		seed  int64
	}{
		{config.GuessBounds, 0},
		{config.GuessRandom, 7},
		{config.GuessTimeStepping, 0},
		{csvPath, 0},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.guess), func(t *testing.T) {
			cfg := base.Clone()
			cfg.Guess = tt.guess
			cfg.Seed = tt.seed
			d, err := NewDriver(cfg, nil)
			if err != nil {
				t.Fatal(err)
			}

			it, err := MakeGuess(d, cfg)
			if err != nil {
				t.Fatalf("guess failed: %v", err)
			}
			if _, err := d.Transcription().DeconstructIterate(it, true); err != nil {
				t.Errorf("guess does not fit the transcription: %v", err)
			}

			again, err := MakeGuess(d, cfg)
			if err != nil {
				t.Fatal(err)
			}
			if !it.IsNumericallyEqual(again, 0) {
				t.Error("guess is not reproducible")
			}
		})
	}
}

func TestGridPoints(t *testing.T) {
	g := NewGrid(map[string][]float64{"tf": {1, 2, 3}, "x1": {0, 1}})

	if g.Size() != 6 {
		t.Fatalf("size = %d, want 6", g.Size())
	}
	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("got %d points, want 6", len(points))
	}
	if points[0]["tf"] != 1 || points[0]["x1"] != 0 || points[1]["x1"] != 1 || points[5]["tf"] != 3 {
		t.Errorf("unexpected order: %v", points)
	}

	if NewGrid(nil).Size() != 0 || NewGrid(nil).Points() != nil {
		t.Error("an empty grid has no points")
	}
}

func TestGridSweep(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MeshPoints = 10
	cfg.Sweep = map[string][]float64{"x1": {2, 1}}

	points, err := GridSweep(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	for _, p := range points {
		want := p.Params["x1"] * p.Params["x1"]
		if !p.Solution.Success() || math.Abs(p.Solution.Objective-want) > 1e-3 {
			t.Errorf("%s: objective %v (%s), want %v", p.Label(), p.Solution.Objective, p.Solution.Status, want)
		}
		if p.Config.Sweep != nil {
			t.Errorf("%s: point config still carries the sweep", p.Label())
		}
	}

	best, ok := Best(points)
	if !ok || best.Label() != "x1=1" {
		t.Errorf("best = %q, want x1=1", best.Label())
	}
	if cfg.Params != nil {
		t.Error("sweep modified the base config")
	}
}

func TestGridSweepNeedsParameters(t *testing.T) {
	if _, err := GridSweep(context.Background(), config.DefaultConfig(), nil); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}

const batchYAML = `name: smoke
description: two quick solves
studies:
  - name: coarse
    preset: min_effort/coarse
    config:
      num_mesh_points: 12
    save: true
  - config:
      problem: sliding_mass
      num_mesh_points: 15
      params:
        max_speed: 2
`

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	if err := os.WriteFile(path, []byte(batchYAML), 0644); err != nil {
		t.Fatal(err)
	}

	batch, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(batch.Studies) != 2 {
		t.Fatalf("got %d studies, want 2", len(batch.Studies))
	}

	first, err := batch.Studies[0].Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if first.MeshPoints != 12 || first.Problem != "min_effort" {
		t.Errorf("override not applied over preset: %+v", first)
	}

	st := storage.New(filepath.Join(dir, "runs"))
	var steps []Step
	results, err := RunBatch(context.Background(), batch, st, nil, func(s Step) { steps = append(steps, s) })
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(results) != 2 || len(steps) != 2 {
		t.Fatalf("got %d results and %d steps", len(results), len(steps))
	}
	if steps[0].RunID == "" || steps[1].RunID != "" {
		t.Error("only entries marked save should be stored")
	}
	if steps[1].Name != "study 2" {
		t.Errorf("unnamed entry got %q", steps[1].Name)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].MeshPoints != 12 {
		t.Errorf("unexpected stored runs: %+v", runs)
	}
}

func TestRunBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := &Batch{Studies: []Entry{{Name: "a"}}}
	results, err := RunBatch(ctx, batch, nil, nil, nil)
	if !errors.Is(err, context.Canceled) || len(results) != 0 {
		t.Errorf("got %d results, err %v", len(results), err)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"malformed preset", Entry{Preset: "pendulum"}},
		{"unknown preset", Entry{Preset: "pendulum/sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.entry.Resolve(); !errors.Is(err, config.ErrInvalid) {
				t.Errorf("got %v, want ErrInvalid", err)
			}
		})
	}
}
