// Package study turns a configuration into a transcribed problem, a
// guess and a solve, and runs grids and batches of them.
package study

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/dircol"
	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/problems"
	"github.com/san-kum/trajopt/internal/storage"
)

type Result struct {
	Config   *config.Config
	Guess    *iterate.Iterate
	Solution *iterate.Solution
	Elapsed  time.Duration
}

// driverOptions maps the solve-related fields of cfg onto driver options.
// Extra options are applied last.
func driverOptions(cfg *config.Config, log *logrus.Entry, extra []dircol.Option) []dircol.Option {
	opts := []dircol.Option{
		dircol.WithSettings(cfg.NLP()),
		dircol.WithHessianSparsityMode(cfg.HessianMode),
		dircol.WithParallel(cfg.Parallel),
	}
	if log != nil {
		opts = append(opts, dircol.WithLogger(log))
	}
	return append(opts, extra...)
}

// NewDriver validates cfg and builds its problem and driver.
func NewDriver(cfg *config.Config, log *logrus.Entry, opts ...dircol.Option) (*dircol.Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	problem, err := problems.New(cfg.Problem, cfg.Params)
	if err != nil {
		return nil, err
	}
	return newDriver(problem, cfg, log, opts)
}

func newDriver(problem ocp.Problem, cfg *config.Config, log *logrus.Entry, opts []dircol.Option) (*dircol.Driver, error) {
	d, err := dircol.New(problem, cfg.Transcription, cfg.Solver, cfg.MeshPoints, driverOptions(cfg, log, opts)...)
	if err != nil {
		return nil, err
	}
	d.SetVerbosity(cfg.Verbosity)
	return d, nil
}

// MakeGuess builds the starting iterate cfg asks for. A seed of zero draws
// random guesses from the clock.
func MakeGuess(d *dircol.Driver, cfg *config.Config) (*iterate.Iterate, error) {
	switch {
	case cfg.Guess == config.GuessBounds:
		return d.MakeInitialGuessFromBounds()
	case cfg.Guess == config.GuessRandom:
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return d.MakeRandomIterateWithinBounds(rand.New(rand.NewSource(seed)))
	case cfg.Guess == config.GuessTimeStepping:
		integ, err := integrators.New(cfg.Integrator)
		if err != nil {
			return nil, err
		}
		return d.MakeGuessFromSimulation(integ)
	case cfg.GuessFromFile():
		return storage.ReadIterateCSV(cfg.Guess, d.Problem().Variables())
	}
	return nil, fmt.Errorf("%w: guess %q", config.ErrInvalid, cfg.Guess)
}

// Run solves the study described by cfg.
func Run(cfg *config.Config, log *logrus.Entry, opts ...dircol.Option) (*Result, error) {
	d, err := NewDriver(cfg, log, opts...)
	if err != nil {
		return nil, err
	}
	guess, err := MakeGuess(d, cfg)
	if err != nil {
		return nil, fmt.Errorf("guess: %w", err)
	}

	start := time.Now()
	sol, err := d.SolveWithGuess(guess)
	if err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Guess: guess, Solution: sol, Elapsed: time.Since(start)}, nil
}

func (r *Result) Metadata() storage.RunMetadata {
	return storage.RunMetadata{
		Problem:       r.Config.Problem,
		Params:        r.Config.Params,
		Seed:          r.Config.Seed,
		Transcription: r.Config.Transcription,
		Solver:        r.Config.Solver,
		HessianMode:   r.Config.HessianMode,
		Guess:         r.Config.Guess,
		Elapsed:       r.Elapsed.Seconds(),
	}
}

// Save stores the solution under the store's base directory.
func Save(st *storage.Store, r *Result) (string, error) {
	if err := st.Init(); err != nil {
		return "", err
	}
	return st.Save(r.Metadata(), r.Solution)
}
