package nlp

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	sqpArmijo        = 1e-4
	sqpMaxBacktracks = 40
	sqpPrimalReg     = 1e-8
	sqpDualReg       = 1e-10
	sqpMaxRegRetries = 20
)

// SQP is an active-set sequential quadratic programming backend. Inequality
// constraints become equalities on bounded slack variables; variables
// pressed against a bound by the Lagrangian gradient are held there, and
// the remaining KKT system is solved densely each iteration.
type SQP struct {
	settings Settings
}

func NewSQP(s Settings) *SQP {
	return &SQP{settings: s.withDefaults()}
}

func (s *SQP) Name() string { return "sqp" }

// sqpSpace is the extended variable space: x followed by one slack per
// inequality row.
type sqpSpace struct {
	d       *dense
	size    int
	slackOf []int
	lower   []float64
	upper   []float64
}

type sqpPoint struct {
	w []float64
	f float64
	c []float64
	h []float64
	g []float64
	j *mat.Dense
}

func newSQPSpace(d *dense) *sqpSpace {
	sp := &sqpSpace{d: d, slackOf: make([]int, d.m)}
	sp.lower = append([]float64(nil), d.xl...)
	sp.upper = append([]float64(nil), d.xu...)
	next := d.n
	for r := 0; r < d.m; r++ {
		if d.cl[r] == d.cu[r] {
			sp.slackOf[r] = -1
			continue
		}
		sp.slackOf[r] = next
		sp.lower = append(sp.lower, d.cl[r])
		sp.upper = append(sp.upper, d.cu[r])
		next++
	}
	sp.size = next
	return sp
}

// jac is the derivative of residual r with respect to extended variable col.
func (sp *sqpSpace) jac(pt *sqpPoint, r, col int) float64 {
	if col < sp.d.n {
		return pt.j.At(r, col)
	}
	if sp.slackOf[r] == col {
		return -1
	}
	return 0
}

func (sp *sqpSpace) evalPrimal(w []float64) (*sqpPoint, error) {
	d := sp.d
	pt := &sqpPoint{w: w, c: make([]float64, d.m), h: make([]float64, d.m)}
	var err error
	if pt.f, err = d.p.Objective(w[:d.n]); err != nil {
		return nil, err
	}
	if d.m > 0 {
		if err := d.p.Constraints(w[:d.n], pt.c); err != nil {
			return nil, err
		}
	}
	for r := range pt.h {
		if k := sp.slackOf[r]; k >= 0 {
			pt.h[r] = pt.c[r] - w[k]
		} else {
			pt.h[r] = pt.c[r] - d.cl[r]
		}
	}
	return pt, nil
}

func (sp *sqpSpace) evalDerivatives(pt *sqpPoint) error {
	d := sp.d
	pt.g = make([]float64, sp.size)
	if err := d.p.Gradient(pt.w[:d.n], pt.g[:d.n]); err != nil {
		return err
	}
	var err error
	pt.j, err = d.jacobian(pt.w[:d.n])
	return err
}

// lagrangianGradient returns g + J'lambda over the extended space.
func (sp *sqpSpace) lagrangianGradient(pt *sqpPoint, lambda []float64) []float64 {
	r := append([]float64(nil), pt.g...)
	for row := 0; row < sp.d.m; row++ {
		if lambda[row] == 0 {
			continue
		}
		for col := 0; col < sp.d.n; col++ {
			r[col] += lambda[row] * pt.j.At(row, col)
		}
		if k := sp.slackOf[row]; k >= 0 {
			r[k] -= lambda[row]
		}
	}
	return r
}

// classify marks fixed variables and variables held at a bound because
// the Lagrangian gradient points out of the feasible box.
func (sp *sqpSpace) classify(w, grad []float64) []bool {
	held := make([]bool, sp.size)
	for i := range held {
		switch {
		case sp.lower[i] == sp.upper[i]:
			held[i] = true
		case w[i] <= sp.lower[i] && grad[i] > 0:
			held[i] = true
		case w[i] >= sp.upper[i] && grad[i] < 0:
			held[i] = true
		}
	}
	return held
}

func dualInfeasibility(grad []float64, held []bool) float64 {
	var m float64
	for i, g := range grad {
		if !held[i] {
			m = math.Max(m, math.Abs(g))
		}
	}
	return m
}

// solveKKT solves the equality-constrained QP over the free variables. Rows
// with no free column cannot be influenced by the step and keep a zero
// multiplier.
func (sp *sqpSpace) solveKKT(pt *sqpPoint, hess *mat.SymDense, held []bool) (step, lambda []float64, ok bool) {
	d := sp.d
	var free []int
	for i, h := range held {
		if !h {
			free = append(free, i)
		}
	}
	var rows []int
	for r := 0; r < d.m; r++ {
		for _, col := range free {
			if sp.jac(pt, r, col) != 0 {
				rows = append(rows, r)
				break
			}
		}
	}

	step = make([]float64, sp.size)
	lambda = make([]float64, d.m)
	nf, mr := len(free), len(rows)
	if nf == 0 {
		return step, lambda, true
	}

	whess := func(a, b int) float64 {
		if a >= d.n || b >= d.n {
			return 0
		}
		return hess.At(a, b)
	}

	size := nf + mr
	rhs := mat.NewVecDense(size, nil)
	for a, col := range free {
		rhs.SetVec(a, -pt.g[col])
	}
	for b, r := range rows {
		rhs.SetVec(nf+b, -pt.h[r])
	}

	delta := sqpPrimalReg
	for attempt := 0; attempt < sqpMaxRegRetries; attempt++ {
		k := mat.NewDense(size, size, nil)
		for a, ca := range free {
			for b, cb := range free {
				k.Set(a, b, whess(ca, cb))
			}
			k.Set(a, a, k.At(a, a)+delta)
		}
		for b, r := range rows {
			for a, col := range free {
				v := sp.jac(pt, r, col)
				k.Set(nf+b, a, v)
				k.Set(a, nf+b, v)
			}
			k.Set(nf+b, nf+b, -sqpDualReg)
		}

		var sol mat.VecDense
		if err := sol.SolveVec(k, rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return nil, nil, false
			}
		}
		raw := sol.RawVector().Data
		if !finite(raw) {
			return nil, nil, false
		}

		var curv, norm2 float64
		for a, ca := range free {
			for b, cb := range free {
				curv += raw[a] * whess(ca, cb) * raw[b]
			}
			norm2 += raw[a] * raw[a]
		}
		if curv+delta*norm2 < -1e-12*norm2 {
			delta = math.Max(1e-4, 10*delta)
			continue
		}

		for a, col := range free {
			step[col] = raw[a]
		}
		for b, r := range rows {
			lambda[r] = raw[nf+b]
		}
		return step, lambda, true
	}
	return nil, nil, false
}

func (sp *sqpSpace) project(w, step []float64, alpha float64) []float64 {
	out := make([]float64, len(w))
	for i := range w {
		out[i] = clamp(w[i]+alpha*step[i], sp.lower[i], sp.upper[i])
	}
	return out
}

func (s *SQP) Solve(p Problem, x0 []float64) (*Result, error) {
	log := s.settings.logger("sqp")
	d, err := newDense(p, "sqp", x0)
	if err != nil {
		return nil, err
	}
	sp := newSQPSpace(d)

	w := make([]float64, sp.size)
	for i := 0; i < d.n; i++ {
		w[i] = clamp(x0[i], d.xl[i], d.xu[i])
	}
	if d.m > 0 {
		c := make([]float64, d.m)
		if err := p.Constraints(w[:d.n], c); err != nil {
			return nil, err
		}
		for r, k := range sp.slackOf {
			if k >= 0 {
				w[k] = clamp(c[r], d.cl[r], d.cu[r])
			}
		}
	}

	pt, err := sp.evalPrimal(w)
	if err != nil {
		return nil, err
	}
	if err := sp.evalDerivatives(pt); err != nil {
		return nil, err
	}

	lambda := make([]float64, d.m)
	rho := 1.0
	res := &Result{Status: StatusMaxIterations}

	log.WithFields(logrus.Fields{"variables": d.n, "constraints": d.m, "slacks": sp.size - d.n}).Debug("starting")

	for iter := 0; ; iter++ {
		grad := sp.lagrangianGradient(pt, lambda)
		held := sp.classify(pt.w, grad)
		res.PrimalInfeasibility = normInf(pt.h)
		res.DualInfeasibility = dualInfeasibility(grad, held)
		res.Iterations = iter

		dualScale := math.Max(1, normInf(lambda)/100)
		if res.PrimalInfeasibility <= s.settings.ConstraintTolerance &&
			res.DualInfeasibility <= s.settings.ConvergenceTolerance*dualScale {
			res.Status = StatusConverged
			res.Converged = true
			s.settings.report(log, Iteration{Number: iter, Objective: pt.f,
				PrimalInfeasibility: res.PrimalInfeasibility, DualInfeasibility: res.DualInfeasibility, Penalty: rho})
			break
		}
		if iter >= s.settings.MaxIterations {
			break
		}

		hess, err := d.hessian(pt.w[:d.n], 1, lambda)
		if err != nil {
			return nil, err
		}
		step, newLambda, ok := sp.solveKKT(pt, hess, held)
		if !ok {
			res.Status = StatusNumericalFailure
			break
		}

		rho = math.Max(rho, 1.1*normInf(newLambda)+1)
		hNorm := floats.Norm(pt.h, 1)
		merit := pt.f + rho*hNorm
		slope := floats.Dot(pt.g, step) - rho*hNorm
		stepNorm := normInf(step)

		var next *sqpPoint
		alpha := 1.0
		if stepNorm <= 1e-14*(1+normInf(pt.w)) {
			next, err = sp.evalPrimal(sp.project(pt.w, step, 1))
			if err != nil {
				return nil, err
			}
		} else {
			for bt := 0; bt < sqpMaxBacktracks; bt++ {
				trial, err := sp.evalPrimal(sp.project(pt.w, step, alpha))
				if err != nil {
					return nil, err
				}
				tm := trial.f + rho*floats.Norm(trial.h, 1)
				accept := tm < merit
				if slope < 0 {
					accept = tm <= merit+sqpArmijo*alpha*slope
				}
				if accept && !math.IsNaN(tm) {
					next = trial
					break
				}
				alpha *= 0.5
			}
		}

		s.settings.report(log, Iteration{
			Number:              iter,
			Objective:           pt.f,
			PrimalInfeasibility: res.PrimalInfeasibility,
			DualInfeasibility:   res.DualInfeasibility,
			StepNorm:            stepNorm,
			StepLength:          alpha,
			Penalty:             rho,
		})

		if next == nil {
			res.Status = StatusStalled
			res.Iterations = iter + 1
			break
		}
		if err := sp.evalDerivatives(next); err != nil {
			return nil, err
		}
		pt = next
		lambda = newLambda
	}

	res.X = append([]float64(nil), pt.w[:d.n]...)
	res.Objective = pt.f
	res.Multipliers = lambda
	log.WithFields(logrus.Fields{
		"status":     res.Status,
		"iterations": res.Iterations,
		"objective":  res.Objective,
	}).Debug("finished")
	return res, nil
}
