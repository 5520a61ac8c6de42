package nlp

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/trajopt/internal/ocp"
)

// denseProblem is a small NLP with exact derivatives and dense structure.
type denseProblem struct {
	n, m   int
	xl, xu []float64
	cl, cu []float64
	f      func(x []float64) float64
	grad   func(x, g []float64)
	cons   func(x, c []float64)
	jac    func(x []float64) [][]float64
	// hessian of sigma*f + lambda'c, lower triangle as a dense matrix
	hess func(x []float64, sigma float64, lambda []float64) [][]float64
	fail error
}

func (p *denseProblem) NumVariables() int                          { return p.n }
func (p *denseProblem) NumConstraints() int                        { return p.m }
func (p *denseProblem) VariableBounds() (lower, upper []float64)   { return p.xl, p.xu }
func (p *denseProblem) ConstraintBounds() (lower, upper []float64) { return p.cl, p.cu }
func (p *denseProblem) Prepare(x0 []float64) error                 { return nil }

func (p *denseProblem) Objective(x []float64) (float64, error) {
	if p.fail != nil {
		return 0, p.fail
	}
	return p.f(x), nil
}

func (p *denseProblem) Gradient(x, grad []float64) error {
	p.grad(x, grad)
	return nil
}

func (p *denseProblem) Constraints(x, c []float64) error {
	if p.cons != nil {
		p.cons(x, c)
	}
	return nil
}

func (p *denseProblem) JacobianStructure() (rows, cols []int) {
	for r := 0; r < p.m; r++ {
		for c := 0; c < p.n; c++ {
			rows = append(rows, r)
			cols = append(cols, c)
		}
	}
	return rows, cols
}

func (p *denseProblem) Jacobian(x, values []float64) error {
	j := p.jac(x)
	k := 0
	for r := 0; r < p.m; r++ {
		for c := 0; c < p.n; c++ {
			values[k] = j[r][c]
			k++
		}
	}
	return nil
}

func (p *denseProblem) HessianStructure() (rows, cols []int) {
	for r := 0; r < p.n; r++ {
		for c := 0; c <= r; c++ {
			rows = append(rows, r)
			cols = append(cols, c)
		}
	}
	return rows, cols
}

func (p *denseProblem) Hessian(x []float64, sigma float64, lambda, values []float64) error {
	h := p.hess(x, sigma, lambda)
	k := 0
	for r := 0; r < p.n; r++ {
		for c := 0; c <= r; c++ {
			values[k] = h[r][c]
			k++
		}
	}
	return nil
}

func inf() float64 { return math.Inf(1) }

// min (x0-1)^2 + (x1-2)^2 s.t. x0 + x1 = 1; optimum (0, 1), f = 2.
func equalityProblem() *denseProblem {
	return &denseProblem{
		n: 2, m: 1,
		xl: []float64{-inf(), -inf()}, xu: []float64{inf(), inf()},
		cl: []float64{1}, cu: []float64{1},
		f: func(x []float64) float64 { return sq(x[0]-1) + sq(x[1]-2) },
		grad: func(x, g []float64) {
			g[0] = 2 * (x[0] - 1)
			g[1] = 2 * (x[1] - 2)
		},
		cons: func(x, c []float64) { c[0] = x[0] + x[1] },
		jac:  func(x []float64) [][]float64 { return [][]float64{{1, 1}} },
		hess: func(x []float64, sigma float64, lambda []float64) [][]float64 {
			return [][]float64{{2 * sigma, 0}, {0, 2 * sigma}}
		},
	}
}

// min x0^2 + x1^2 s.t. x0 + x1 >= 1 and 0 <= x <= 0.8; optimum (0.5, 0.5).
func inequalityProblem() *denseProblem {
	return &denseProblem{
		n: 2, m: 1,
		xl: []float64{0, 0}, xu: []float64{0.8, 0.8},
		cl: []float64{1}, cu: []float64{inf()},
		f: func(x []float64) float64 { return sq(x[0]) + sq(x[1]) },
		grad: func(x, g []float64) {
			g[0] = 2 * x[0]
			g[1] = 2 * x[1]
		},
		cons: func(x, c []float64) { c[0] = x[0] + x[1] },
		jac:  func(x []float64) [][]float64 { return [][]float64{{1, 1}} },
		hess: func(x []float64, sigma float64, lambda []float64) [][]float64 {
			return [][]float64{{2 * sigma, 0}, {0, 2 * sigma}}
		},
	}
}

// min (x-3)^2 with 0 <= x <= 1; optimum at the upper bound.
func boundProblem() *denseProblem {
	return &denseProblem{
		n: 1, m: 0,
		xl: []float64{0}, xu: []float64{1},
		f:    func(x []float64) float64 { return sq(x[0] - 3) },
		grad: func(x, g []float64) { g[0] = 2 * (x[0] - 3) },
		jac:  func(x []float64) [][]float64 { return nil },
		hess: func(x []float64, sigma float64, lambda []float64) [][]float64 {
			return [][]float64{{2 * sigma}}
		},
	}
}

// Rosenbrock with the constraint x0^2 + x1^2 = 1.5.
func circleProblem() *denseProblem {
	return &denseProblem{
		n: 2, m: 1,
		xl: []float64{-inf(), -inf()}, xu: []float64{inf(), inf()},
		cl: []float64{1.5}, cu: []float64{1.5},
		f: func(x []float64) float64 { return sq(1-x[0]) + 100*sq(x[1]-x[0]*x[0]) },
		grad: func(x, g []float64) {
			g[0] = -2*(1-x[0]) - 400*x[0]*(x[1]-x[0]*x[0])
			g[1] = 200 * (x[1] - x[0]*x[0])
		},
		cons: func(x, c []float64) { c[0] = x[0]*x[0] + x[1]*x[1] },
		jac:  func(x []float64) [][]float64 { return [][]float64{{2 * x[0], 2 * x[1]}} },
		hess: func(x []float64, sigma float64, lambda []float64) [][]float64 {
			h00 := sigma*(2-400*x[1]+1200*x[0]*x[0]) + 2*lambda[0]
			h10 := sigma * (-400 * x[0])
			h11 := sigma*200 + 2*lambda[0]
			return [][]float64{{h00, 0}, {h10, h11}}
		},
	}
}

func sq(v float64) float64 { return v * v }

func TestSolversConverge(t *testing.T) {
	tests := []struct {
		name    string
		problem func() *denseProblem
		x0      []float64
		want    []float64
		tol     float64
	}{
		{"equality", equalityProblem, []float64{5, -3}, []float64{0, 1}, 1e-5},
		{"inequality", inequalityProblem, []float64{0.1, 0.7}, []float64{0.5, 0.5}, 1e-4},
		{"active bound", boundProblem, []float64{0.2}, []float64{1}, 1e-5},
		{"nonlinear equality", circleProblem, []float64{1, 0.5}, []float64{0.9072, 0.8228}, 1e-3},
	}

	for _, backend := range Available() {
		for _, tt := range tests {
			t.Run(backend+"/"+tt.name, func(t *testing.T) {
				s := DefaultSettings()
				s.ConstraintTolerance = 1e-7
				solver, err := New(backend, s)
				if err != nil {
					t.Fatal(err)
				}
				res, err := solver.Solve(tt.problem(), tt.x0)
				if err != nil {
					t.Fatalf("Solve: %v", err)
				}
				if !res.Converged {
					t.Fatalf("not converged: status %s after %d iterations (inf_pr %g, inf_du %g)",
						res.Status, res.Iterations, res.PrimalInfeasibility, res.DualInfeasibility)
				}
				for i := range tt.want {
					if math.Abs(res.X[i]-tt.want[i]) > tt.tol {
						t.Errorf("x[%d] = %.6f, want %.6f", i, res.X[i], tt.want[i])
					}
				}
			})
		}
	}
}

func TestSQPMultiplierSign(t *testing.T) {
	res, err := NewSQP(DefaultSettings()).Solve(equalityProblem(), []float64{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	// grad f + lambda * grad c = 0 at (0, 1): -2 + lambda = 0.
	if math.Abs(res.Multipliers[0]-2) > 1e-6 {
		t.Errorf("lambda = %v, want 2", res.Multipliers[0])
	}
	if math.Abs(res.Objective-2) > 1e-9 {
		t.Errorf("objective = %v, want 2", res.Objective)
	}
}

func TestSolversReportInfeasibility(t *testing.T) {
	for _, backend := range Available() {
		t.Run(backend, func(t *testing.T) {
			p := boundProblem()
			p.m = 1
			p.cl, p.cu = []float64{2}, []float64{2}
			p.cons = func(x, c []float64) { c[0] = x[0] }
			p.jac = func(x []float64) [][]float64 { return [][]float64{{1}} }

			s := DefaultSettings()
			s.MaxIterations = 50
			solver, _ := New(backend, s)
			res, err := solver.Solve(p, []float64{0.5})
			if err != nil {
				t.Fatalf("infeasible problem should not error: %v", err)
			}
			if res.Converged {
				t.Fatal("infeasible problem reported as converged")
			}
			if res.X[0] < 0 || res.X[0] > 1 {
				t.Errorf("returned point %v violates variable bounds", res.X[0])
			}
		})
	}
}

func TestSolversPropagateEvaluationErrors(t *testing.T) {
	cause := ocp.NewEvaluationError("dynamics", ocp.Input{MeshIndex: 2}, errors.New("nan state"))
	for _, backend := range Available() {
		t.Run(backend, func(t *testing.T) {
			p := equalityProblem()
			p.fail = cause
			solver, _ := New(backend, DefaultSettings())
			_, err := solver.Solve(p, []float64{0, 0})
			if !errors.Is(err, ocp.ErrProblemEvaluation) {
				t.Errorf("error = %v, want ErrProblemEvaluation", err)
			}
		})
	}
}

func TestSolversRejectBadInput(t *testing.T) {
	for _, backend := range Available() {
		t.Run(backend, func(t *testing.T) {
			solver, _ := New(backend, DefaultSettings())
			_, err := solver.Solve(equalityProblem(), []float64{1})
			if !errors.Is(err, ocp.ErrSolverBackend) {
				t.Errorf("error = %v, want ErrSolverBackend", err)
			}
			var be *BackendError
			if !errors.As(err, &be) || be.Backend != backend {
				t.Errorf("expected BackendError from %s, got %v", backend, err)
			}
		})
	}
}

func TestObserverAndRegistry(t *testing.T) {
	var seen []Iteration
	s := DefaultSettings()
	s.Observer = func(it Iteration) { seen = append(seen, it) }
	if _, err := NewSQP(s).Solve(equalityProblem(), []float64{3, 3}); err != nil {
		t.Fatal(err)
	}
	if len(seen) == 0 {
		t.Error("observer was never called")
	}

	if _, err := New("ipopt", s); err == nil {
		t.Error("expected error for unknown backend")
	}
}

// countingHessian records the Lagrangian Hessian requests a backend makes.
type countingHessian struct {
	*denseProblem
	calls   int
	lambdas [][]float64
}

func (p *countingHessian) Hessian(x []float64, sigma float64, lambda, values []float64) error {
	p.calls++
	p.lambdas = append(p.lambdas, append([]float64(nil), lambda...))
	return p.denseProblem.Hessian(x, sigma, lambda, values)
}

func TestSolversUseExactHessian(t *testing.T) {
	for _, backend := range Available() {
		t.Run(backend, func(t *testing.T) {
			p := &countingHessian{denseProblem: circleProblem()}
			solver, _ := New(backend, DefaultSettings())
			res, err := solver.Solve(p, []float64{1, 0.5})
			if err != nil {
				t.Fatal(err)
			}
			if !res.Converged {
				t.Fatalf("not converged: %s", res.Status)
			}
			if p.calls == 0 {
				t.Fatal("backend never asked the problem for its Hessian")
			}
			// the constraint curvature only enters through nonzero multipliers
			curved := false
			for _, l := range p.lambdas {
				if len(l) != p.m {
					t.Fatalf("lambda has %d entries, want %d", len(l), p.m)
				}
				if l[0] != 0 {
					curved = true
				}
			}
			if !curved {
				t.Error("Hessian was only requested with zero multipliers")
			}
		})
	}
}
