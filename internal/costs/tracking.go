package costs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
)

// StateTracking integrates sum_i w_i*(x_i - r_i(t))^2, where r is a
// reference iterate interpolated with a monotone cubic. Outside the
// reference span r is held at its end values.
type StateTracking struct {
	Reference *iterate.Iterate
	States    []string
	Weights   []float64

	sel   selection
	fits  []interp.Predictor
	t0    float64
	tf    float64
	first []float64
}

func NewStateTracking(ref *iterate.Iterate, states ...string) *StateTracking {
	return &StateTracking{Reference: ref, States: states}
}

func (s *StateTracking) Name() string { return "state_tracking" }

func (s *StateTracking) Bind(v ocp.Variables) error {
	if s.Reference.Empty() {
		return fmt.Errorf("%w: empty tracking reference", ocp.ErrShapeMismatch)
	}
	sel, err := resolve("state", s.States, s.Weights, v.States)
	if err != nil {
		return err
	}

	times := s.Reference.Time()
	s.t0, s.tf = times[0], times[len(times)-1]
	s.fits = make([]interp.Predictor, len(sel.index))
	s.first = make([]float64, len(sel.index))
	for i, j := range sel.index {
		col, err := s.Reference.State(v.States[j].Name)
		if err != nil {
			return err
		}
		s.first[i] = col[0]
		if len(times) < 2 {
			continue
		}
		pred := &interp.FritschButland{}
		if err := pred.Fit(times, col); err != nil {
			return fmt.Errorf("tracking reference for %q: %w", v.States[j].Name, err)
		}
		s.fits[i] = pred
	}
	s.sel = sel
	return nil
}

func (s *StateTracking) reference(i int, t float64) float64 {
	if s.fits[i] == nil {
		return s.first[i]
	}
	return s.fits[i].Predict(math.Max(s.t0, math.Min(s.tf, t)))
}

func (s *StateTracking) Integrand(in ocp.Input) (float64, error) {
	return s.sel.sumSquares(in.States, func(i int) float64 { return s.reference(i, in.Time) }), nil
}
