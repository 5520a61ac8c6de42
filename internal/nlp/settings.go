package nlp

import (
	"io"

	"github.com/sirupsen/logrus"
)

type Settings struct {
	MaxIterations        int     `yaml:"max_iterations"`
	ConvergenceTolerance float64 `yaml:"convergence_tolerance"`
	ConstraintTolerance  float64 `yaml:"constraint_tolerance"`
	Verbosity            int     `yaml:"verbosity"`

	Logger   *logrus.Entry `yaml:"-"`
	Observer Observer      `yaml:"-"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxIterations:        500,
		ConvergenceTolerance: 1e-6,
		ConstraintTolerance:  1e-8,
	}
}

// Iteration is reported to the Observer once per major iteration.
type Iteration struct {
	Number              int
	Objective           float64
	PrimalInfeasibility float64
	DualInfeasibility   float64
	StepNorm            float64
	StepLength          float64
	Penalty             float64
}

type Observer func(Iteration)

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.ConvergenceTolerance <= 0 {
		s.ConvergenceTolerance = d.ConvergenceTolerance
	}
	if s.ConstraintTolerance <= 0 {
		s.ConstraintTolerance = d.ConstraintTolerance
	}
	return s
}

// logger returns the configured entry, or a discarding one. Verbosity 0
// suppresses per-iteration lines.
func (s Settings) logger(backend string) *logrus.Entry {
	entry := s.Logger
	if entry == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		entry = logrus.NewEntry(l)
	}
	return entry.WithField("backend", backend)
}

func (s Settings) report(log *logrus.Entry, it Iteration) {
	if s.Observer != nil {
		s.Observer(it)
	}
	if s.Verbosity <= 0 {
		return
	}
	log.WithFields(logrus.Fields{
		"iter":    it.Number,
		"obj":     it.Objective,
		"inf_pr":  it.PrimalInfeasibility,
		"inf_du":  it.DualInfeasibility,
		"step":    it.StepNorm,
		"alpha":   it.StepLength,
		"penalty": it.Penalty,
	}).Info("iteration")
}
