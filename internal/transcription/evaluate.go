package transcription

import (
	"errors"
	"fmt"

	"github.com/san-kum/trajopt/internal/ocp"
)

// loadBlock copies point k and the parameters of x into z.
func (c *Collocation) loadBlock(x []float64, k int, z []float64) {
	ps := c.layout.PointSize()
	copy(z[:ps], x[k*ps:(k+1)*ps])
	copy(z[ps:], x[c.layout.NumMeshPoints*ps:])
}

// input views block z as the problem input at point k.
func (c *Collocation) input(k int, z []float64) ocp.Input {
	l := c.layout
	ns, nc, ps, nb := l.NumStates, l.NumControls, l.PointSize(), len(z)
	return ocp.Input{
		MeshIndex:  k,
		Time:       c.times[k],
		States:     z[0:ns:ns],
		Controls:   z[ns : ns+nc : ns+nc],
		Adjuncts:   z[ns+nc : ps : ps],
		Parameters: z[ps:nb:nb],
	}
}

func wrapEvaluation(callback string, in ocp.Input, err error) error {
	var evalErr *ocp.EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	return ocp.NewEvaluationError(callback, in, err)
}

func recoverEvaluation(callback string, in ocp.Input, err *error) {
	if r := recover(); r != nil {
		*err = ocp.NewEvaluationError(callback, in, fmt.Errorf("panic: %v", r))
	}
}

func (c *Collocation) callDynamics(in ocp.Input, deriv []float64) (err error) {
	defer recoverEvaluation("dynamics", in, &err)
	if err := c.problem.Dynamics(in, deriv); err != nil {
		return wrapEvaluation("dynamics", in, err)
	}
	return nil
}

func (c *Collocation) callIntegral(in ocp.Input) (v float64, err error) {
	defer recoverEvaluation("integral cost", in, &err)
	v, err = c.problem.IntegralCost(in)
	if err != nil {
		return 0, wrapEvaluation("integral cost", in, err)
	}
	return v, nil
}

func (c *Collocation) callEndpoint(in ocp.Input) (v float64, err error) {
	defer recoverEvaluation("endpoint cost", in, &err)
	v, err = c.problem.EndpointCost(in)
	if err != nil {
		return 0, wrapEvaluation("endpoint cost", in, err)
	}
	return v, nil
}

func (c *Collocation) callPath(in ocp.Input, res []float64) (err error) {
	if len(res) == 0 {
		return nil
	}
	defer recoverEvaluation("path constraints", in, &err)
	if err := c.problem.PathConstraints(in, res); err != nil {
		return wrapEvaluation("path constraints", in, err)
	}
	return nil
}

// forEachPoint calls fn for every mesh point with a scratch block holding
// that point's variables and the parameters. fn must not retain z. The
// first error in mesh order is returned.
func (c *Collocation) forEachPoint(x []float64, fn func(k int, z []float64) error) error {
	n := c.layout.NumMeshPoints
	errs := make([]error, n)
	run := func(start, end int) {
		z := c.pool.get()
		defer c.pool.put(z)
		for k := start; k < end; k++ {
			c.loadBlock(x, k, z)
			errs[k] = fn(k, z)
		}
	}
	if c.parallel {
		ocp.ParallelFor(n, 4, run)
	} else {
		run(0, n)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// pointObjective is the objective contribution of point k: the quadrature
// weight times the integrand, plus the endpoint cost at the last point.
func (c *Collocation) pointObjective(k int, z []float64) (float64, error) {
	in := c.input(k, z)
	l, err := c.callIntegral(in)
	if err != nil {
		return 0, err
	}
	v := c.weights[k] * l
	if k == c.layout.NumMeshPoints-1 {
		e, err := c.callEndpoint(in)
		if err != nil {
			return 0, err
		}
		v += e
	}
	return v, nil
}

// pointOutputs evaluates dynamics and path residuals at point k.
func (c *Collocation) pointOutputs(k int, z, deriv, path []float64) error {
	in := c.input(k, z)
	if err := c.callDynamics(in, deriv); err != nil {
		return err
	}
	return c.callPath(in, path)
}

func (c *Collocation) checkLength(x []float64) error {
	if len(x) != c.layout.NumVariables() {
		return fmt.Errorf("%w: vector has %d entries, layout needs %d",
			ocp.ErrShapeMismatch, len(x), c.layout.NumVariables())
	}
	return nil
}

// checkOutput rejects an output buffer whose length is not want.
func checkOutput(name string, buf []float64, want int) error {
	if len(buf) != want {
		return fmt.Errorf("%w: %s buffer has %d entries, needs %d",
			ocp.ErrShapeMismatch, name, len(buf), want)
	}
	return nil
}

func (c *Collocation) Objective(x []float64) (float64, error) {
	if err := c.checkLength(x); err != nil {
		return 0, err
	}
	vals := make([]float64, c.layout.NumMeshPoints)
	err := c.forEachPoint(x, func(k int, z []float64) error {
		v, err := c.pointObjective(k, z)
		vals[k] = v
		return err
	})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, v := range vals {
		total += v
	}
	return total, nil
}

// outputs evaluates dynamics and path residuals at every point.
func (c *Collocation) outputs(x []float64) (derivs, path []float64, err error) {
	l := c.layout
	ns, npc := l.NumStates, l.NumPathConstraints
	derivs = make([]float64, l.NumMeshPoints*ns)
	path = make([]float64, l.NumMeshPoints*npc)
	err = c.forEachPoint(x, func(k int, z []float64) error {
		return c.pointOutputs(k, z, derivs[k*ns:(k+1)*ns], path[k*npc:(k+1)*npc])
	})
	return derivs, path, err
}

func (c *Collocation) Constraints(x, out []float64) error {
	if err := c.checkLength(x); err != nil {
		return err
	}
	if err := checkOutput("constraint", out, c.layout.NumConstraints()); err != nil {
		return err
	}
	derivs, path, err := c.outputs(x)
	if err != nil {
		return err
	}

	l := c.layout
	ns, npc := l.NumStates, l.NumPathConstraints
	a, b := c.scheme.Left, c.scheme.Right
	for k := 0; k+1 < l.NumMeshPoints; k++ {
		h := c.steps[k]
		for i := 0; i < ns; i++ {
			fk, fk1 := derivs[k*ns+i], derivs[(k+1)*ns+i]
			out[l.DefectRow(k, i)] = x[l.StateIndex(k+1, i)] - x[l.StateIndex(k, i)] - h*(a*fk+b*fk1)
		}
	}
	for k := 0; k < l.NumMeshPoints; k++ {
		for j := 0; j < npc; j++ {
			out[l.PathRow(k, j)] = path[k*npc+j]
		}
	}
	for bi, row := range c.boundary {
		out[l.BoundaryRow(bi)] = x[row.index]
	}
	return nil
}
