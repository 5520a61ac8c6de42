package dircol

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
)

// MakeInitialGuessFromBounds places every variable at the midpoint of its
// bounds on the mesh, or at the finite end of half-open bounds, or at zero.
// Initial and final bounds are honored where they overlap the general
// bounds.
func (d *Driver) MakeInitialGuessFromBounds() (*iterate.Iterate, error) {
	return d.trans.ConstructIterate(d.boundsGuess())
}

func (d *Driver) boundsGuess() []float64 {
	xl, xu := d.trans.VariableBounds()
	x := make([]float64, len(xl))
	for i := range x {
		x[i] = ocp.Range(xl[i], xu[i]).Guess()
	}
	return x
}

// MakeRandomIterateWithinBounds draws every variable uniformly within its
// bounds. Half-open bounds are sampled as the finite end plus an
// exponential offset and unbounded variables from a standard normal.
func (d *Driver) MakeRandomIterateWithinBounds(rng *rand.Rand) (*iterate.Iterate, error) {
	xl, xu := d.trans.VariableBounds()
	x := make([]float64, len(xl))
	for i := range x {
		lo, hi := xl[i], xu[i]
		loInf, hiInf := math.IsInf(lo, -1), math.IsInf(hi, 1)
		switch {
		case !loInf && !hiInf:
			x[i] = lo + rng.Float64()*(hi-lo)
		case !loInf:
			x[i] = lo + rng.ExpFloat64()
		case !hiInf:
			x[i] = hi - rng.ExpFloat64()
		default:
			x[i] = rng.NormFloat64()
		}
	}
	return d.trans.ConstructIterate(x)
}

// MakeGuessFromSimulation takes controls, adjuncts and parameters from the
// bounds guess and integrates the dynamics from its initial state, holding
// each mesh point's controls over the following interval. States are
// clamped into their bounds.
func (d *Driver) MakeGuessFromSimulation(integ integrators.Integrator) (*iterate.Iterate, error) {
	x := d.boundsGuess()
	l := d.trans.Layout()
	times := d.trans.MeshTimes()
	xl, xu := d.trans.VariableBounds()

	ns := l.NumStates
	state := make([]float64, ns)
	for i := range state {
		state[i] = x[l.StateIndex(0, i)]
	}
	params := make([]float64, l.NumParameters)
	for i := range params {
		params[i] = x[l.ParameterIndex(i)]
	}

	for k := 0; k+1 < l.NumMeshPoints; k++ {
		in := ocp.Input{
			MeshIndex:  k,
			Controls:   make([]float64, l.NumControls),
			Adjuncts:   make([]float64, l.NumAdjuncts),
			Parameters: params,
		}
		for i := range in.Controls {
			in.Controls[i] = x[l.ControlIndex(k, i)]
		}
		for i := range in.Adjuncts {
			in.Adjuncts[i] = x[l.AdjunctIndex(k, i)]
		}
		f := func(t float64, s, ds []float64) error {
			at := in
			at.Time = t
			at.States = s
			return d.simulateDynamics(at, ds)
		}
		xs, err := integrators.Integrate(integ, f, state, times[k:k+2], 1e-8)
		if err != nil {
			return nil, err
		}
		state = xs[1]
		for i := 0; i < ns; i++ {
			idx := l.StateIndex(k+1, i)
			x[idx] = math.Max(xl[idx], math.Min(xu[idx], state[i]))
		}
	}
	return d.trans.ConstructIterate(x)
}

// simulateDynamics evaluates the dynamics for the simulation guess. Errors
// and panics from the problem both come back as evaluation errors located
// at the mesh interval being integrated.
func (d *Driver) simulateDynamics(in ocp.Input, deriv []float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ocp.NewEvaluationError("dynamics", in, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := d.problem.Dynamics(in, deriv); err != nil {
		return ocp.NewEvaluationError("dynamics", in, err)
	}
	return nil
}
