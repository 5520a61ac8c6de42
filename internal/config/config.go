package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/problems"
	"github.com/san-kum/trajopt/internal/transcription"
)

const (
	DefaultProblem       = "min_effort"
	DefaultMeshPoints    = 20
	DefaultTranscription = "trapezoidal"
	DefaultSolver        = "sqp"
	DefaultGuess         = GuessBounds
	DefaultIntegrator    = "rk4"
	DefaultOutputDir     = "runs"
)

// Guess sources other than a path to a solution CSV.
const (
	GuessBounds       = "bounds"
	GuessRandom       = "random"
	GuessTimeStepping = "time-stepping"
)

var ErrInvalid = errors.New("config: invalid")

// Config describes one study: a problem, how it is transcribed and how it
// is solved.
type Config struct {
	Problem       string               `yaml:"problem"`
	Params        map[string]float64   `yaml:"params,omitempty"`
	MeshPoints    int                  `yaml:"num_mesh_points"`
	Transcription string               `yaml:"transcription"`
	Solver        string               `yaml:"solver"`
	HessianMode   int                  `yaml:"hessian_sparsity_mode"`
	Guess         string               `yaml:"guess"`
	Integrator    string               `yaml:"integrator"`
	Seed          int64                `yaml:"seed"`
	Verbosity     int                  `yaml:"verbosity"`
	Parallel      bool                 `yaml:"parallel"`
	Settings      SolverConfig         `yaml:"solver_settings"`
	Sweep         map[string][]float64 `yaml:"sweep,omitempty"`
	OutputDir     string               `yaml:"output_dir"`
}

type SolverConfig struct {
	MaxIterations        int     `yaml:"max_iterations"`
	ConvergenceTolerance float64 `yaml:"convergence_tolerance"`
	ConstraintTolerance  float64 `yaml:"constraint_tolerance"`
}

func DefaultConfig() *Config {
	s := nlp.DefaultSettings()
	return &Config{
		Problem:       DefaultProblem,
		MeshPoints:    DefaultMeshPoints,
		Transcription: DefaultTranscription,
		Solver:        DefaultSolver,
		Guess:         DefaultGuess,
		Integrator:    DefaultIntegrator,
		OutputDir:     DefaultOutputDir,
		Settings: SolverConfig{
			MaxIterations:        s.MaxIterations,
			ConvergenceTolerance: s.ConvergenceTolerance,
			ConstraintTolerance:  s.ConstraintTolerance,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of base. Keys missing from the file keep the
// values of base.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// NLP returns the solver settings with the study's verbosity.
func (c *Config) NLP() nlp.Settings {
	return nlp.Settings{
		MaxIterations:        c.Settings.MaxIterations,
		ConvergenceTolerance: c.Settings.ConvergenceTolerance,
		ConstraintTolerance:  c.Settings.ConstraintTolerance,
		Verbosity:            c.Verbosity,
	}
}

// GuessFromFile reports whether Guess names a solution CSV.
func (c *Config) GuessFromFile() bool {
	return strings.HasSuffix(strings.ToLower(c.Guess), ".csv")
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	if c.Sweep != nil {
		out.Sweep = make(map[string][]float64, len(c.Sweep))
		for k, v := range c.Sweep {
			out.Sweep[k] = append([]float64(nil), v...)
		}
	}
	return &out
}

func (c *Config) Validate() error {
	defaults, err := problems.Defaults(c.Problem)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for name := range c.Params {
		if _, ok := defaults[name]; !ok {
			return fmt.Errorf("%w: problem %s has no parameter %q", ErrInvalid, c.Problem, name)
		}
	}
	for name, values := range c.Sweep {
		if _, ok := defaults[name]; !ok {
			return fmt.Errorf("%w: cannot sweep unknown parameter %q", ErrInvalid, name)
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: sweep over %q has no values", ErrInvalid, name)
		}
	}
	if c.MeshPoints < 2 {
		return fmt.Errorf("%w: num_mesh_points must be at least 2, got %d", ErrInvalid, c.MeshPoints)
	}
	if !contains(transcription.Methods(), c.Transcription) {
		return fmt.Errorf("%w: unknown transcription %q (have %s)", ErrInvalid, c.Transcription,
			strings.Join(transcription.Methods(), ", "))
	}
	if !contains(nlp.Available(), c.Solver) {
		return fmt.Errorf("%w: unknown solver %q (have %s)", ErrInvalid, c.Solver, strings.Join(nlp.Available(), ", "))
	}
	if c.HessianMode != 0 && c.HessianMode != 1 {
		return fmt.Errorf("%w: hessian_sparsity_mode must be 0 or 1, got %d", ErrInvalid, c.HessianMode)
	}
	if c.Verbosity != 0 && c.Verbosity != 1 {
		return fmt.Errorf("%w: verbosity must be 0 or 1, got %d", ErrInvalid, c.Verbosity)
	}
	switch {
	case c.Guess == GuessBounds, c.Guess == GuessRandom, c.GuessFromFile():
	case c.Guess == GuessTimeStepping:
		if _, err := integrators.New(c.Integrator); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: guess must be %s, %s, %s or a .csv path, got %q",
			ErrInvalid, GuessBounds, GuessRandom, GuessTimeStepping, c.Guess)
	}
	if c.Settings.MaxIterations <= 0 || c.Settings.ConvergenceTolerance <= 0 || c.Settings.ConstraintTolerance <= 0 {
		return fmt.Errorf("%w: solver settings must be positive", ErrInvalid)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
