package transcription

import (
	"math"
	"math/rand"

	"github.com/san-kum/trajopt/internal/ocp"
)

// fixture is a Problem assembled from plain funcs. Nil funcs contribute
// nothing.
type fixture struct {
	name string
	vars ocp.Variables
	dyn  func(in ocp.Input, d []float64) error
	cost func(in ocp.Input) (float64, error)
	end  func(in ocp.Input) (float64, error)
	path func(in ocp.Input, r []float64) error
}

func (f *fixture) Name() string { return f.name }
func (f *fixture) Variables() ocp.Variables { return f.vars }

func (f *fixture) Dynamics(in ocp.Input, d []float64) error {
	if f.dyn == nil {
		for i := range d {
			d[i] = 0
		}
		return nil
	}
	return f.dyn(in, d)
}

func (f *fixture) IntegralCost(in ocp.Input) (float64, error) {
	if f.cost == nil {
		return 0, nil
	}
	return f.cost(in)
}

func (f *fixture) EndpointCost(in ocp.Input) (float64, error) {
	if f.end == nil {
		return 0, nil
	}
	return f.end(in)
}

func (f *fixture) PathConstraints(in ocp.Input, r []float64) error {
	if f.path == nil {
		return nil
	}
	return f.path(in, r)
}

// minEffort is x' = u with cost u^2 and x going from 0 to 1.
func minEffort() *fixture {
	return &fixture{
		name: "min_effort",
		vars: ocp.Variables{
			InitialTime: 0,
			FinalTime:   1,
			States: []ocp.Variable{{
				Name:    "x",
				Bounds:  ocp.Range(-10, 10),
				Initial: ptr(ocp.Fixed(0)),
				Final:   ptr(ocp.Fixed(1)),
			}},
			Controls: []ocp.Variable{{Name: "u", Bounds: ocp.Range(-10, 10)}},
		},
		dyn: func(in ocp.Input, d []float64) error {
			d[0] = in.Controls[0]
			return nil
		},
		cost: func(in ocp.Input) (float64, error) {
			u := in.Controls[0]
			return u * u, nil
		},
	}
}

// swing exercises every variable kind: a damped pendulum with a mass
// parameter, an adjunct, a path constraint, an endpoint cost and a final
// bound that lies outside the general bounds.
func swing() *fixture {
	return &fixture{
		name: "swing",
		vars: ocp.Variables{
			InitialTime: 0,
			FinalTime:   2,
			States: []ocp.Variable{
				{Name: "q", Bounds: ocp.Range(-4, 4), Initial: ptr(ocp.Fixed(0))},
				{Name: "w", Bounds: ocp.Range(-1, 1), Final: ptr(ocp.Fixed(3))},
			},
			Controls:        []ocp.Variable{{Name: "tau", Bounds: ocp.Range(-2, 2)}},
			Adjuncts:        []ocp.Variable{{Name: "slack", Bounds: ocp.Range(0, 5)}},
			Parameters:      []ocp.Variable{{Name: "mass", Bounds: ocp.Range(0.5, 2)}},
			PathConstraints: []ocp.Constraint{{Name: "power", Bounds: ocp.Range(-3, 3)}},
		},
		dyn: func(in ocp.Input, d []float64) error {
			q, w := in.States[0], in.States[1]
			m := in.Parameters[0]
			d[0] = w
			d[1] = in.Controls[0]/m - math.Sin(q) - 0.1*w*in.Adjuncts[0]
			return nil
		},
		cost: func(in ocp.Input) (float64, error) {
			tau, s := in.Controls[0], in.Adjuncts[0]
			return tau*tau + 0.5*s*s + in.Parameters[0]*in.States[0]*in.States[0], nil
		},
		end: func(in ocp.Input) (float64, error) {
			return math.Cos(in.States[0]) * in.Parameters[0], nil
		},
		path: func(in ocp.Input, r []float64) error {
			r[0] = in.Controls[0] * in.States[1]
			return nil
		},
	}
}

func ptr(b ocp.Bounds) *ocp.Bounds { return &b }

func randomPoint(rng *rand.Rand, c *Collocation) []float64 {
	xl, xu := c.VariableBounds()
	x := make([]float64, len(xl))
	for i := range x {
		lo, hi := math.Max(xl[i], -3), math.Min(xu[i], 3)
		x[i] = lo + rng.Float64()*(hi-lo)
	}
	return x
}
