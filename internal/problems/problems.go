package problems

import (
	"math"

	"github.com/san-kum/trajopt/internal/costs"
	"github.com/san-kum/trajopt/internal/ocp"
)

func MinEffort(p Params) (*ocp.Model, error) {
	return ocp.NewBuilder("min_effort").
		SetTimeBounds(0, p.get("tf", 1)).
		AddState("x", ocp.Unbounded(), ocp.Initial(ocp.Fixed(p.get("x0", 0))), ocp.Final(ocp.Fixed(p.get("x1", 1)))).
		AddControl("u", ocp.Unbounded()).
		SetDynamics(func(in ocp.Input, d []float64) error {
			d[0] = in.Controls[0]
			return nil
		}).
		AddIntegralCost(1, costs.NewControlEffort()).
		Build()
}

// SlidingMass moves a point mass over a distance in fixed time, starting
// and ending at rest. The mass is a fixed parameter.
func SlidingMass(p Params) (*ocp.Model, error) {
	dist := p.get("distance", 1)
	vmax := p.get("max_speed", 1.2)
	fmax := p.get("max_force", 50)
	reach := 5 * math.Max(1, math.Abs(dist))
	return ocp.NewBuilder("sliding_mass").
		SetTimeBounds(0, p.get("tf", 1)).
		AddState("position", ocp.Range(-reach, reach), ocp.Initial(ocp.Fixed(0)), ocp.Final(ocp.Fixed(dist))).
		AddState("speed", ocp.Range(-10*vmax, 10*vmax), ocp.Initial(ocp.Fixed(0)), ocp.Final(ocp.Fixed(0))).
		AddControl("force", ocp.Range(-fmax, fmax)).
		AddParameter("mass", ocp.Fixed(p.get("mass", 1))).
		AddPathConstraint("speed_limit", ocp.Range(-vmax, vmax)).
		SetDynamics(func(in ocp.Input, d []float64) error {
			d[0] = in.States[1]
			d[1] = in.Controls[0] / in.Parameters[0]
			return nil
		}).
		SetPathConstraints(func(in ocp.Input, r []float64) error {
			r[0] = in.States[1]
			return nil
		}).
		AddIntegralCost(1, costs.NewControlEffort()).
		Build()
}

// Pendulum swings a damped pendulum from hanging down to upright.
func Pendulum(p Params) (*ocp.Model, error) {
	m := p.get("mass", 1)
	l := p.get("length", 1)
	b := p.get("damping", 0.1)
	g := p.get("gravity", 9.81)
	tmax := p.get("max_torque", 10)
	return ocp.NewBuilder("pendulum").
		SetTimeBounds(0, p.get("tf", 3)).
		AddState("theta", ocp.Range(-2*math.Pi, 2*math.Pi), ocp.Initial(ocp.Fixed(0)), ocp.Final(ocp.Fixed(math.Pi))).
		AddState("omega", ocp.Range(-20, 20), ocp.Initial(ocp.Fixed(0)), ocp.Final(ocp.Fixed(0))).
		AddControl("torque", ocp.Range(-tmax, tmax)).
		SetDynamics(func(in ocp.Input, d []float64) error {
			theta, omega := in.States[0], in.States[1]
			d[0] = omega
			d[1] = (-b*omega - m*g*l*math.Sin(theta) + in.Controls[0]) / (m * l * l)
			return nil
		}).
		AddIntegralCost(1, costs.NewControlEffort()).
		Build()
}

// Infeasible asks x to end at target while its bounds stop at upper.
func Infeasible(p Params) (*ocp.Model, error) {
	return ocp.NewBuilder("infeasible").
		AddState("x", ocp.Range(0, p.get("upper", 0.5)), ocp.Initial(ocp.Fixed(0)), ocp.Final(ocp.Fixed(p.get("target", 1)))).
		AddControl("u", ocp.Range(-10, 10)).
		SetDynamics(func(in ocp.Input, d []float64) error {
			d[0] = in.Controls[0]
			return nil
		}).
		AddIntegralCost(1, costs.NewControlEffort()).
		Build()
}
