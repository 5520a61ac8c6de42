package transcription

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// pointMultipliers maps constraint multipliers onto the per-point
// dynamics and path outputs. Each defect row touches f at both of its ends.
func (c *Collocation) pointMultipliers(lambda []float64) (mu, nu []float64) {
	l := c.layout
	n, ns, npc := l.NumMeshPoints, l.NumStates, l.NumPathConstraints
	a, b := c.scheme.Left, c.scheme.Right
	mu = make([]float64, n*ns)
	nu = make([]float64, n*npc)
	for k := 0; k < n; k++ {
		for i := 0; i < ns; i++ {
			var m float64
			if k > 0 {
				m -= c.steps[k-1] * b * lambda[l.DefectRow(k-1, i)]
			}
			if k < n-1 {
				m -= c.steps[k] * a * lambda[l.DefectRow(k, i)]
			}
			mu[k*ns+i] = m
		}
		for j := 0; j < npc; j++ {
			nu[k*npc+j] = lambda[l.PathRow(k, j)]
		}
	}
	return mu, nu
}

// pointLagrangian returns a closure over the point-k share of the
// Lagrangian. The closure owns its scratch buffers and is not safe for
// concurrent use.
func (c *Collocation) pointLagrangian(k int, sigma float64, mu, nu []float64) func(z []float64) (float64, error) {
	deriv := make([]float64, len(mu))
	path := make([]float64, len(nu))
	return func(z []float64) (float64, error) {
		var v float64
		if sigma != 0 {
			obj, err := c.pointObjective(k, z)
			if err != nil {
				return 0, err
			}
			v = sigma * obj
		}
		if err := c.pointOutputs(k, z, deriv, path); err != nil {
			return 0, err
		}
		for i, m := range mu {
			v += m * deriv[i]
		}
		for j, w := range nu {
			v += w * path[j]
		}
		return v, nil
	}
}

// Hessian writes the lower triangle of the Lagrangian Hessian in the order
// of HessianStructure. Point blocks are summed in mesh order so shared
// parameter entries are reproducible.
func (c *Collocation) Hessian(x []float64, sigma float64, lambda, values []float64) error {
	if err := c.checkLength(x); err != nil {
		return err
	}
	hs := c.structure()
	if err := checkOutput("multiplier", lambda, c.layout.NumConstraints()); err != nil {
		return err
	}
	if err := checkOutput("hessian", values, len(hs.rows)); err != nil {
		return err
	}
	l := c.layout
	ns, npc := l.NumStates, l.NumPathConstraints
	mu, nu := c.pointMultipliers(lambda)

	blocks := make([][]float64, l.NumMeshPoints)
	err := c.forEachPoint(x, func(k int, z []float64) error {
		lag := &scalar{fn: c.pointLagrangian(k, sigma, mu[k*ns:(k+1)*ns], nu[k*npc:(k+1)*npc])}
		if hs.mode == DetectedHessian {
			blocks[k] = maskedHessian(lag.eval, z, hs.entries)
			return lag.err
		}
		var h mat.SymDense
		fd.Hessian(&h, lag.eval, z, hessianSettings)
		vals := make([]float64, len(hs.entries))
		for e, en := range hs.entries {
			vals[e] = h.At(en.row, en.col)
		}
		blocks[k] = vals
		return lag.err
	})
	if err != nil {
		return err
	}

	for i := range values {
		values[i] = 0
	}
	for k, vals := range blocks {
		for e, v := range vals {
			values[hs.slots[k][e]] += v
		}
	}
	return nil
}
