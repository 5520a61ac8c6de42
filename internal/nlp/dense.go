package nlp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// dense wraps a Problem and expands its triplet derivatives into gonum
// matrices. It also owns the bound checks shared by the backends.
type dense struct {
	p       Problem
	backend string
	n, m    int

	xl, xu []float64
	cl, cu []float64

	jr, jc []int
	hr, hc []int
	jvals  []float64
	hvals  []float64
}

func newDense(p Problem, backend string, x0 []float64) (*dense, error) {
	d := &dense{p: p, backend: backend, n: p.NumVariables(), m: p.NumConstraints()}
	if d.n <= 0 {
		return nil, backendErrorf(backend, "problem has %d variables", d.n)
	}
	if len(x0) != d.n {
		return nil, backendErrorf(backend, "starting point has %d entries, want %d", len(x0), d.n)
	}

	d.xl, d.xu = p.VariableBounds()
	d.cl, d.cu = p.ConstraintBounds()
	if len(d.xl) != d.n || len(d.xu) != d.n || len(d.cl) != d.m || len(d.cu) != d.m {
		return nil, backendErrorf(backend, "bound vectors do not match problem dimensions")
	}
	for i := range d.xl {
		if !(d.xl[i] <= d.xu[i]) {
			return nil, backendErrorf(backend, "variable %d has bounds [%g, %g]", i, d.xl[i], d.xu[i])
		}
	}
	for i := range d.cl {
		if !(d.cl[i] <= d.cu[i]) {
			return nil, backendErrorf(backend, "constraint %d has bounds [%g, %g]", i, d.cl[i], d.cu[i])
		}
	}

	if err := p.Prepare(x0); err != nil {
		return nil, err
	}

	d.jr, d.jc = p.JacobianStructure()
	d.hr, d.hc = p.HessianStructure()
	if len(d.jr) != len(d.jc) || len(d.hr) != len(d.hc) {
		return nil, backendErrorf(backend, "derivative structure rows and columns differ in length")
	}
	for k := range d.jr {
		if d.jr[k] < 0 || d.jr[k] >= d.m || d.jc[k] < 0 || d.jc[k] >= d.n {
			return nil, backendErrorf(backend, "jacobian entry (%d, %d) out of range", d.jr[k], d.jc[k])
		}
	}
	for k := range d.hr {
		if d.hr[k] < 0 || d.hr[k] >= d.n || d.hc[k] < 0 || d.hc[k] >= d.n || d.hc[k] > d.hr[k] {
			return nil, backendErrorf(backend, "hessian entry (%d, %d) not in the lower triangle", d.hr[k], d.hc[k])
		}
	}
	d.jvals = make([]float64, len(d.jr))
	d.hvals = make([]float64, len(d.hr))
	return d, nil
}

// jacobian returns the m x n constraint Jacobian, or nil when m is zero.
func (d *dense) jacobian(x []float64) (*mat.Dense, error) {
	if d.m == 0 {
		return nil, nil
	}
	if err := d.p.Jacobian(x, d.jvals); err != nil {
		return nil, err
	}
	j := mat.NewDense(d.m, d.n, nil)
	for k, v := range d.jvals {
		j.Set(d.jr[k], d.jc[k], j.At(d.jr[k], d.jc[k])+v)
	}
	return j, nil
}

func (d *dense) hessian(x []float64, sigma float64, lambda []float64) (*mat.SymDense, error) {
	if err := d.p.Hessian(x, sigma, lambda, d.hvals); err != nil {
		return nil, err
	}
	h := mat.NewSymDense(d.n, nil)
	for k, v := range d.hvals {
		h.SetSym(d.hr[k], d.hc[k], h.At(d.hr[k], d.hc[k])+v)
	}
	return h, nil
}

func normInf(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
