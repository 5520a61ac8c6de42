package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/trajopt/internal/config"
)

// studyFlags are the flags shared by every command that builds a study.
type studyFlags struct {
	configFile    string
	preset        string
	params        []string
	meshPoints    int
	transcription string
	solver        string
	hessianMode   int
	guess         string
	integrator    string
	seed          int64
	verbosity     int
	parallel      bool
	maxIter       int
	tol           float64
	constrTol     float64
}

var (
	solveFlags studyFlags
	guessFlags studyFlags
	sweepFlags studyFlags
)

func (f *studyFlags) register(cmd *cobra.Command) {
	d := config.DefaultConfig()
	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML study configuration")
	fl.StringVarP(&f.preset, "preset", "p", "", "named preset for the problem")
	fl.StringArrayVar(&f.params, "param", nil, "problem parameter, e.g. --param tf=2 (repeatable)")
	fl.IntVarP(&f.meshPoints, "mesh", "n", d.MeshPoints, "number of mesh points")
	fl.StringVarP(&f.transcription, "transcription", "t", d.Transcription, "transcription method")
	fl.StringVarP(&f.solver, "solver", "s", d.Solver, "NLP solver")
	fl.IntVar(&f.hessianMode, "hessian-mode", d.HessianMode, "Hessian sparsity mode (0 dense, 1 sparse)")
	fl.StringVarP(&f.guess, "guess", "g", d.Guess, "initial guess: bounds, random, time-stepping or a CSV file")
	fl.StringVar(&f.integrator, "integrator", d.Integrator, "integrator for the time-stepping guess")
	fl.Int64Var(&f.seed, "seed", d.Seed, "random guess seed (0 uses the clock)")
	fl.IntVarP(&f.verbosity, "verbosity", "v", d.Verbosity, "solver verbosity (0 or 1)")
	fl.BoolVar(&f.parallel, "parallel", d.Parallel, "evaluate mesh points in parallel")
	fl.IntVar(&f.maxIter, "max-iter", d.Settings.MaxIterations, "solver iteration limit")
	fl.Float64Var(&f.tol, "tol", d.Settings.ConvergenceTolerance, "convergence tolerance")
	fl.Float64Var(&f.constrTol, "constr-tol", d.Settings.ConstraintTolerance, "constraint tolerance")
}

// resolve builds the study configuration: defaults, then the preset, then
// the config file, then any flag set on the command line.
func (f *studyFlags) resolve(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	problem := ""
	if len(args) > 0 {
		problem = args[0]
	}

	if f.preset != "" {
		if problem == "" {
			return nil, fmt.Errorf("--preset needs a problem argument")
		}
		cfg = config.GetPreset(problem, f.preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q for %s (see: trajopt presets %s)", f.preset, problem, problem)
		}
	}

	if f.configFile != "" {
		var err error
		if cfg, err = config.LoadOver(f.configFile, cfg); err != nil {
			return nil, err
		}
	}
	if problem != "" {
		cfg.Problem = problem
	}

	changed := cmd.Flags().Changed
	if changed("mesh") {
		cfg.MeshPoints = f.meshPoints
	}
	if changed("transcription") {
		cfg.Transcription = f.transcription
	}
	if changed("solver") {
		cfg.Solver = f.solver
	}
	if changed("hessian-mode") {
		cfg.HessianMode = f.hessianMode
	}
	if changed("guess") {
		cfg.Guess = f.guess
	}
	if changed("integrator") {
		cfg.Integrator = f.integrator
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("verbosity") {
		cfg.Verbosity = f.verbosity
	}
	if changed("parallel") {
		cfg.Parallel = f.parallel
	}
	if changed("max-iter") {
		cfg.Settings.MaxIterations = f.maxIter
	}
	if changed("tol") {
		cfg.Settings.ConvergenceTolerance = f.tol
	}
	if changed("constr-tol") {
		cfg.Settings.ConstraintTolerance = f.constrTol
	}

	if len(f.params) > 0 && cfg.Params == nil {
		cfg.Params = map[string]float64{}
	}
	for _, kv := range f.params {
		name, v, err := parseAssignment(kv)
		if err != nil {
			return nil, err
		}
		cfg.Params[name] = v
	}

	return cfg, cfg.Validate()
}

func parseAssignment(kv string) (string, float64, error) {
	name, val, ok := strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("expected name=value, got %q", kv)
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", name, err)
	}
	return name, v, nil
}

// parseSweep reads "name=v1,v2,..." into a parameter grid axis.
func parseSweep(axis string) (string, []float64, error) {
	name, list, ok := strings.Cut(axis, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("expected name=v1,v2,..., got %q", axis)
	}
	var values []float64
	for _, s := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", name, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}
