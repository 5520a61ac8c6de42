package integrators

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrDiverged = errors.New("integrators: invalid state (NaN/Inf)")

// Derivative writes x'(t) into dx.
type Derivative func(t float64, x, dx []float64) error

type Integrator interface {
	Name() string
	Step(f Derivative, x []float64, t, dt float64) ([]float64, error)
}

// Adaptive integrators also report an error-controlled step size and
// whether the step they took meets the tolerance.
type Adaptive interface {
	Integrator
	StepAdaptive(f Derivative, x []float64, t, dt, tol float64) (xNew []float64, dtNew float64, accepted bool, err error)
}

// StepError locates a failure within an integration.
type StepError struct {
	Time    float64
	Step    int
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error { return e.Wrapped }

var registry = map[string]func() Integrator{
	"euler": func() Integrator { return NewEuler() },
	"rk4":   func() Integrator { return NewRK4() },
	"rk45":  func() Integrator { return NewRK45() },
}

func New(name string) (Integrator, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return ctor(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// maxSubsteps bounds the adaptive substeps taken within one output interval.
const maxSubsteps = 10000

// Integrate returns the states at each of times, starting from x0 at
// times[0]. Fixed-step integrators take one step per interval; adaptive
// ones subdivide each interval until tol is met.
func Integrate(integ Integrator, f Derivative, x0, times []float64, tol float64) ([][]float64, error) {
	if len(times) == 0 {
		return nil, nil
	}
	out := make([][]float64, len(times))
	out[0] = append([]float64(nil), x0...)
	adaptive, isAdaptive := integ.(Adaptive)

	x := out[0]
	trial := 0.0
	for k := 1; k < len(times); k++ {
		t, end := times[k-1], times[k]
		if !isAdaptive {
			next, err := integ.Step(f, x, t, end-t)
			if err != nil {
				return nil, &StepError{Time: t, Step: k - 1, Wrapped: err}
			}
			x = next
		} else {
			if trial <= 0 || trial > end-t {
				trial = end - t
			}
			for sub := 0; t < end; sub++ {
				if sub == maxSubsteps {
					return nil, &StepError{Time: t, Step: k - 1, Wrapped: fmt.Errorf("no convergence after %d substeps", maxSubsteps)}
				}
				dt := math.Min(trial, end-t)
				next, dtNew, accepted, err := adaptive.StepAdaptive(f, x, t, dt, tol)
				if err != nil {
					return nil, &StepError{Time: t, Step: k - 1, Wrapped: err}
				}
				trial = dtNew
				if !accepted {
					continue
				}
				x = next
				if end-(t+dt) <= 1e-12*math.Max(1, math.Abs(end)) {
					t = end
				} else {
					t += dt
				}
			}
		}
		for _, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &StepError{Time: end, Step: k - 1, Wrapped: ErrDiverged}
			}
		}
		out[k] = x
	}
	return out, nil
}
