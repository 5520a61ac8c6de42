package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/san-kum/trajopt/internal/config"
)

func resolveArgs(t *testing.T, argv []string, args ...string) (*config.Config, error) {
	t.Helper()
	var f studyFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.Flags().Parse(argv); err != nil {
		t.Fatalf("parse %v: %v", argv, err)
	}
	return f.resolve(cmd, args)
}

func TestResolveDefaults(t *testing.T) {
	got, err := resolveArgs(t, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Problem != "min_effort" || got.MeshPoints != 20 || got.Solver != "sqp" {
		t.Errorf("got %+v", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.yaml")
	if err := os.WriteFile(path, []byte("num_mesh_points: 25\nsolver: auglag\nparams:\n  mass: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// sliding_mass/tight sets 40 mesh points, max_speed 1.05 and mode 1
	got, err := resolveArgs(t, []string{"--preset", "tight", "--config", path, "--mesh", "12", "--param", "tf=3"}, "sliding_mass")
	if err != nil {
		t.Fatal(err)
	}
	if got.MeshPoints != 12 {
		t.Errorf("flag should win over file and preset: mesh = %d", got.MeshPoints)
	}
	if got.Solver != "auglag" {
		t.Errorf("file should win over preset: solver = %s", got.Solver)
	}
	if got.HessianMode != 1 {
		t.Errorf("preset value lost: mode = %d", got.HessianMode)
	}
	want := map[string]float64{"max_speed": 1.05, "mass": 2, "tf": 3}
	for k, v := range want {
		if got.Params[k] != v {
			t.Errorf("param %s = %g, want %g", k, got.Params[k], v)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		args []string
	}{
		{"preset without problem", []string{"--preset", "tight"}, nil},
		{"unknown preset", []string{"--preset", "nope"}, []string{"sliding_mass"}},
		{"bad param", []string{"--param", "tf"}, nil},
		{"unknown param", []string{"--param", "gravity=9.8"}, []string{"min_effort"}},
		{"bad mesh", []string{"--mesh", "1"}, nil},
		{"missing config", []string{"--config", "/nonexistent/study.yaml"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveArgs(t, tt.argv, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseSweep(t *testing.T) {
	name, values, err := parseSweep("tf=1, 2,3.5")
	if err != nil {
		t.Fatal(err)
	}
	if name != "tf" || len(values) != 3 || values[2] != 3.5 {
		t.Errorf("got %s %v", name, values)
	}
	for _, bad := range []string{"tf", "=1,2", "tf=1,x"} {
		if _, _, err := parseSweep(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}
