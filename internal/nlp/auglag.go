package nlp

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	alMaxOuter      = 60
	alInitPenalty   = 10
	alMaxPenalty    = 1e10
	alPenaltyGrowth = 10
)

// AugLag is a Powell-Hestenes-Rockafellar augmented Lagrangian backend.
// Equality rows carry quadratic penalties; inequality rows and variable
// bounds carry one-sided PHR terms. Fixed variables are eliminated and each
// subproblem is minimised with gonum's Newton method.
type AugLag struct {
	settings Settings
}

func NewAugLag(s Settings) *AugLag {
	return &AugLag{settings: s.withDefaults()}
}

func (a *AugLag) Name() string { return "auglag" }

// alSide is one inequality g <= 0 with g = sign*(value - bound).
type alSide struct {
	row   int // constraint row, or -1 for a variable bound
	index int // variable index when row < 0
	sign  float64
	bound float64
	mu    float64
}

type alProblem struct {
	d      *dense
	free   []int
	x      []float64
	lambda []float64
	sides  []alSide
	rho    float64
	err    error
}

func (al *alProblem) expand(v []float64) []float64 {
	x := append([]float64(nil), al.x...)
	for k, i := range al.free {
		x[i] = v[k]
	}
	return x
}

func (al *alProblem) sideValue(s alSide, x, c []float64) float64 {
	if s.row >= 0 {
		return s.sign * (c[s.row] - s.bound)
	}
	return s.sign * (x[s.index] - s.bound)
}

// weights returns the first-order multipliers of the augmented terms: y
// for constraint rows and z for variables.
func (al *alProblem) weights(x, c []float64) (y, z []float64, active []bool) {
	d := al.d
	y = make([]float64, d.m)
	z = make([]float64, d.n)
	active = make([]bool, len(al.sides))
	for r := 0; r < d.m; r++ {
		if d.cl[r] == d.cu[r] {
			y[r] = al.lambda[r] + al.rho*(c[r]-d.cl[r])
		}
	}
	for k, s := range al.sides {
		t := s.mu + al.rho*al.sideValue(s, x, c)
		if t <= 0 {
			continue
		}
		active[k] = true
		if s.row >= 0 {
			y[s.row] += s.sign * t
		} else {
			z[s.index] += s.sign * t
		}
	}
	return y, z, active
}

func (al *alProblem) value(x []float64) (float64, []float64, error) {
	d := al.d
	f, err := d.p.Objective(x)
	if err != nil {
		return 0, nil, err
	}
	c := make([]float64, d.m)
	if d.m > 0 {
		if err := d.p.Constraints(x, c); err != nil {
			return 0, nil, err
		}
	}
	for r := 0; r < d.m; r++ {
		if d.cl[r] == d.cu[r] {
			h := c[r] - d.cl[r]
			f += al.lambda[r]*h + 0.5*al.rho*h*h
		}
	}
	for _, s := range al.sides {
		t := math.Max(0, s.mu+al.rho*al.sideValue(s, x, c))
		f += (t*t - s.mu*s.mu) / (2 * al.rho)
	}
	return f, c, nil
}

func (al *alProblem) fail(err error) {
	if al.err == nil {
		al.err = err
	}
}

func (al *alProblem) problem() optimize.Problem {
	d := al.d
	return optimize.Problem{
		Func: func(v []float64) float64 {
			f, _, err := al.value(al.expand(v))
			if err != nil {
				al.fail(err)
				return math.NaN()
			}
			return f
		},
		Grad: func(grad, v []float64) {
			x := al.expand(v)
			g := make([]float64, d.n)
			c := make([]float64, d.m)
			if err := d.p.Gradient(x, g); err != nil {
				al.fail(err)
				return
			}
			if d.m > 0 {
				if err := d.p.Constraints(x, c); err != nil {
					al.fail(err)
					return
				}
			}
			y, z, _ := al.weights(x, c)
			if j, err := d.jacobian(x); err != nil {
				al.fail(err)
				return
			} else if j != nil {
				var jty mat.VecDense
				jty.MulVec(j.T(), mat.NewVecDense(d.m, y))
				for i := range g {
					g[i] += jty.AtVec(i)
				}
			}
			for k, i := range al.free {
				grad[k] = g[i] + z[i]
			}
		},
		Hess: func(hess *mat.SymDense, v []float64) {
			x := al.expand(v)
			c := make([]float64, d.m)
			if d.m > 0 {
				if err := d.p.Constraints(x, c); err != nil {
					al.fail(err)
					return
				}
			}
			y, _, active := al.weights(x, c)
			w, err := d.hessian(x, 1, y)
			if err != nil {
				al.fail(err)
				return
			}
			j, err := d.jacobian(x)
			if err != nil {
				al.fail(err)
				return
			}

			penalised := make([]bool, d.m)
			for r := 0; r < d.m; r++ {
				penalised[r] = d.cl[r] == d.cu[r]
			}
			diag := make([]float64, d.n)
			for k, s := range al.sides {
				if !active[k] {
					continue
				}
				if s.row >= 0 {
					penalised[s.row] = true
				} else {
					diag[s.index] += al.rho
				}
			}

			nf := len(al.free)
			out := mat.NewSymDense(nf, nil)
			for a := 0; a < nf; a++ {
				ia := al.free[a]
				for b := a; b < nf; b++ {
					ib := al.free[b]
					v := w.At(ia, ib)
					for r := 0; r < d.m; r++ {
						if penalised[r] {
							v += al.rho * j.At(r, ia) * j.At(r, ib)
						}
					}
					if a == b {
						v += diag[ia]
					}
					out.SetSym(a, b, v)
				}
			}
			hess.CopySym(out)
		},
		Status: func() (optimize.Status, error) {
			if al.err != nil {
				return optimize.Failure, al.err
			}
			return optimize.NotTerminated, nil
		},
	}
}

// violation returns the largest constraint or bound violation at x.
func (al *alProblem) violation(x, c []float64) float64 {
	d := al.d
	var v float64
	for r := 0; r < d.m; r++ {
		v = math.Max(v, math.Max(d.cl[r]-c[r], c[r]-d.cu[r]))
	}
	for i := range x {
		v = math.Max(v, math.Max(d.xl[i]-x[i], x[i]-d.xu[i]))
	}
	return v
}

func (a *AugLag) Solve(p Problem, x0 []float64) (*Result, error) {
	log := a.settings.logger("auglag")
	d, err := newDense(p, "auglag", x0)
	if err != nil {
		return nil, err
	}

	al := &alProblem{d: d, lambda: make([]float64, d.m), rho: alInitPenalty}
	al.x = make([]float64, d.n)
	for i := range al.x {
		al.x[i] = clamp(x0[i], d.xl[i], d.xu[i])
		if d.xl[i] != d.xu[i] {
			al.free = append(al.free, i)
			if !math.IsInf(d.xl[i], -1) {
				al.sides = append(al.sides, alSide{row: -1, index: i, sign: -1, bound: d.xl[i]})
			}
			if !math.IsInf(d.xu[i], 1) {
				al.sides = append(al.sides, alSide{row: -1, index: i, sign: 1, bound: d.xu[i]})
			}
		}
	}
	for r := 0; r < d.m; r++ {
		if d.cl[r] == d.cu[r] {
			continue
		}
		if !math.IsInf(d.cl[r], -1) {
			al.sides = append(al.sides, alSide{row: r, sign: -1, bound: d.cl[r]})
		}
		if !math.IsInf(d.cu[r], 1) {
			al.sides = append(al.sides, alSide{row: r, sign: 1, bound: d.cu[r]})
		}
	}

	res := &Result{Status: StatusMaxIterations}
	prevViolation := math.Inf(1)
	x := append([]float64(nil), al.x...)

	for outer := 0; outer < alMaxOuter && res.Iterations < a.settings.MaxIterations; outer++ {
		if len(al.free) > 0 {
			v0 := make([]float64, len(al.free))
			for k, i := range al.free {
				v0[k] = al.x[i]
			}
			settings := &optimize.Settings{
				GradientThreshold: 0.1 * a.settings.ConvergenceTolerance,
				MajorIterations:   a.settings.MaxIterations - res.Iterations,
				Converger:         &optimize.FunctionConverge{Absolute: 1e-14, Relative: 1e-14, Iterations: 20},
			}
			out, err := optimize.Minimize(al.problem(), v0, settings, &optimize.Newton{})
			if al.err != nil {
				return nil, al.err
			}
			if out == nil {
				return nil, &BackendError{Backend: "auglag", Wrapped: err}
			}
			if err != nil {
				log.WithError(err).Debug("subproblem ended early")
			}
			res.Iterations += out.MajorIterations
			if finite(out.X) {
				x = al.expand(out.X)
			}
		}

		f, c, err := al.value(x)
		if err != nil {
			return nil, err
		}
		viol := al.violation(x, c)

		_, z, _ := al.weights(x, c)
		y := make([]float64, d.m)
		for r := 0; r < d.m; r++ {
			if d.cl[r] == d.cu[r] {
				y[r] = al.lambda[r] + al.rho*(c[r]-d.cl[r])
			}
		}
		for k := range al.sides {
			s := &al.sides[k]
			s.mu = math.Max(0, s.mu+al.rho*al.sideValue(*s, x, c))
			if s.row >= 0 {
				y[s.row] += s.sign * s.mu
			}
		}
		copy(al.lambda, y)
		al.x = x

		dual, err := a.lagrangianResidual(d, al, x, z)
		if err != nil {
			return nil, err
		}
		res.PrimalInfeasibility = viol
		res.DualInfeasibility = dual
		a.settings.report(log, Iteration{
			Number:              outer,
			Objective:           f,
			PrimalInfeasibility: viol,
			DualInfeasibility:   dual,
			Penalty:             al.rho,
		})

		if viol <= a.settings.ConstraintTolerance && dual <= a.settings.ConvergenceTolerance*math.Max(1, normInf(al.lambda)/100) {
			res.Status = StatusConverged
			res.Converged = true
			break
		}
		if viol > 0.25*prevViolation && al.rho < alMaxPenalty {
			al.rho *= alPenaltyGrowth
		}
		prevViolation = viol
	}

	for i := range x {
		x[i] = clamp(x[i], d.xl[i], d.xu[i])
	}
	obj, err := p.Objective(x)
	if err != nil {
		return nil, err
	}
	res.X = x
	res.Objective = obj
	res.Multipliers = append([]float64(nil), al.lambda...)
	log.WithFields(logrus.Fields{
		"status":     res.Status,
		"iterations": res.Iterations,
		"objective":  obj,
		"penalty":    al.rho,
	}).Debug("finished")
	return res, nil
}

// lagrangianResidual is the infinity norm of the gradient of the ordinary
// Lagrangian over the free variables.
func (a *AugLag) lagrangianResidual(d *dense, al *alProblem, x, z []float64) (float64, error) {
	g := make([]float64, d.n)
	if err := d.p.Gradient(x, g); err != nil {
		return 0, err
	}
	j, err := d.jacobian(x)
	if err != nil {
		return 0, err
	}
	if j != nil {
		var jty mat.VecDense
		jty.MulVec(j.T(), mat.NewVecDense(d.m, al.lambda))
		for i := range g {
			g[i] += jty.AtVec(i)
		}
	}
	var m float64
	for _, i := range al.free {
		m = math.Max(m, math.Abs(g[i]+z[i]))
	}
	return m, nil
}
