// Package dircol drives direct collocation solves: it builds guesses,
// hands the transcribed problem to an NLP backend and turns the result
// back into a Solution.
package dircol

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/transcription"
)

type Option func(*Driver)

func WithLogger(log *logrus.Entry) Option {
	return func(d *Driver) { d.log = log }
}

func WithSettings(s nlp.Settings) Option {
	return func(d *Driver) { d.settings = s }
}

func WithObserver(o nlp.Observer) Option {
	return func(d *Driver) { d.settings.Observer = o }
}

func WithHessianSparsityMode(mode int) Option {
	return func(d *Driver) { d.transOpts = append(d.transOpts, transcription.WithHessianSparsityMode(mode)) }
}

func WithParallel(enabled bool) Option {
	return func(d *Driver) { d.transOpts = append(d.transOpts, transcription.WithParallel(enabled)) }
}

// Driver owns one transcription of a problem and the solver used on it.
// It is not safe for concurrent use; run independent drivers instead.
type Driver struct {
	problem  ocp.Problem
	trans    transcription.Transcription
	solver   string
	settings nlp.Settings
	log      *logrus.Entry

	transOpts []transcription.Option
}

// New transcribes problem with method on numMeshPoints uniform points and
// selects the named NLP backend.
func New(problem ocp.Problem, method, solver string, numMeshPoints int, opts ...Option) (*Driver, error) {
	d := &Driver{
		problem:  problem,
		solver:   solver,
		settings: nlp.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.log = logrus.NewEntry(l)
	}
	if _, err := nlp.New(solver, d.settings); err != nil {
		return nil, err
	}

	topts := append([]transcription.Option{transcription.WithLogger(d.log)}, d.transOpts...)
	trans, err := transcription.New(problem, method, numMeshPoints, topts...)
	if err != nil {
		return nil, err
	}
	d.trans = trans
	d.log = d.log.WithFields(logrus.Fields{
		"problem":       problem.Name(),
		"transcription": trans.Method(),
		"solver":        solver,
	})
	return d, nil
}

func (d *Driver) Problem() ocp.Problem { return d.problem }

func (d *Driver) Transcription() transcription.Transcription { return d.trans }

func (d *Driver) Solver() string { return d.solver }

// SetVerbosity forwards a 0/1 switch to the solver's per-iteration log.
func (d *Driver) SetVerbosity(level int) {
	if level > 1 {
		level = 1
	}
	if level < 0 {
		level = 0
	}
	d.settings.Verbosity = level
}

func (d *Driver) Verbosity() int { return d.settings.Verbosity }

func (d *Driver) Settings() nlp.Settings { return d.settings }

func (d *Driver) SetSettings(s nlp.Settings) {
	s.Verbosity = d.settings.Verbosity
	if s.Logger == nil {
		s.Logger = d.settings.Logger
	}
	if s.Observer == nil {
		s.Observer = d.settings.Observer
	}
	d.settings = s
}

func (d *Driver) SetNumMeshPoints(n int) error { return d.trans.SetNumMeshPoints(n) }

func (d *Driver) SetHessianSparsityMode(mode int) error { return d.trans.SetHessianSparsityMode(mode) }

// Solve runs from the bounds guess.
func (d *Driver) Solve() (*iterate.Solution, error) {
	guess, err := d.MakeInitialGuessFromBounds()
	if err != nil {
		return nil, err
	}
	x0, err := d.trans.DeconstructIterate(guess, false)
	if err != nil {
		return nil, err
	}
	return d.solve(x0)
}

// SolveWithGuess resamples guess onto the mesh and solves from it. An empty
// guess is the same as Solve.
func (d *Driver) SolveWithGuess(guess *iterate.Iterate) (*iterate.Solution, error) {
	if guess.Empty() {
		return d.Solve()
	}
	x0, err := d.trans.DeconstructIterate(guess, true)
	if err != nil {
		return nil, fmt.Errorf("initial guess: %w", err)
	}
	return d.solve(x0)
}

func (d *Driver) solve(x0 []float64) (*iterate.Solution, error) {
	settings := d.settings
	if settings.Logger == nil {
		settings.Logger = d.log
	}
	solver, err := nlp.New(d.solver, settings)
	if err != nil {
		return nil, err
	}

	l := d.trans.Layout()
	d.log.WithFields(logrus.Fields{
		"mesh_points": l.NumMeshPoints,
		"variables":   l.NumVariables(),
		"constraints": l.NumConstraints(),
		"hessian":     d.trans.HessianSparsityMode(),
	}).Info("solve started")
	start := time.Now()

	res, err := solver.Solve(d.trans, x0)
	if err != nil {
		d.log.WithError(err).Error("solve failed")
		return nil, err
	}
	it, err := d.trans.ConstructSolution(res.X, res.Multipliers)
	if err != nil {
		return nil, err
	}
	sol := &iterate.Solution{
		Iterate:    it,
		Status:     string(res.Status),
		Converged:  res.Converged,
		Objective:  res.Objective,
		Iterations: res.Iterations,
	}

	entry := d.log.WithFields(logrus.Fields{
		"status":     sol.Status,
		"objective":  sol.Objective,
		"iterations": sol.Iterations,
		"inf_pr":     res.PrimalInfeasibility,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	})
	if sol.Converged {
		entry.Info("solve finished")
	} else {
		entry.Warn("solve did not converge")
	}
	return sol, nil
}

// PrintConstraintValues writes the named constraint residuals at it.
func (d *Driver) PrintConstraintValues(it *iterate.Iterate, w io.Writer) error {
	return d.trans.PrintConstraintValues(it, w)
}
