package dircol

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/trajopt/internal/costs"
	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/problems"
	"github.com/san-kum/trajopt/internal/transcription"
)

func mustProblem(name string, params map[string]float64) ocp.Problem {
	p, err := problems.New(name, params)
	Expect(err).NotTo(HaveOccurred())
	return p
}

func column(it *iterate.Iterate, kind iterate.Kind, label string) []float64 {
	col, err := it.Column(kind, label)
	Expect(err).NotTo(HaveOccurred())
	return col
}

var _ = Describe("Driver", func() {
	Describe("construction", func() {
		It("rejects unknown solvers and methods", func() {
			_, err := New(mustProblem("min_effort", nil), "trapezoidal", "ipopt", 10)
			Expect(err).To(MatchError(ContainSubstring("unknown solver")))
			_, err = New(mustProblem("min_effort", nil), "radau", "sqp", 10)
			Expect(err).To(MatchError(ContainSubstring("unknown transcription method")))
		})

		It("clamps verbosity to a 0/1 switch", func() {
			d, err := New(mustProblem("min_effort", nil), "trapezoidal", "sqp", 5)
			Expect(err).NotTo(HaveOccurred())
			d.SetVerbosity(3)
			Expect(d.Verbosity()).To(Equal(1))
			d.SetVerbosity(-1)
			Expect(d.Verbosity()).To(Equal(0))
		})
	})

	Describe("guesses", func() {
		It("places the bounds guess within every bound", func() {
			for _, name := range []string{"sliding_mass", "pendulum"} {
				d, err := New(mustProblem(name, nil), "trapezoidal", "sqp", 15)
				Expect(err).NotTo(HaveOccurred())
				guess, err := d.MakeInitialGuessFromBounds()
				Expect(err).NotTo(HaveOccurred())

				vars := d.Problem().Variables()
				for _, v := range vars.States {
					for _, val := range column(guess, iterate.States, v.Name) {
						Expect(v.Bounds.Contains(val)).To(BeTrue(), "%s %s=%v outside %v", name, v.Name, val, v.Bounds)
					}
				}
				for _, v := range vars.Controls {
					for _, val := range column(guess, iterate.Controls, v.Name) {
						Expect(v.Bounds.Contains(val)).To(BeTrue(), "%s %s=%v outside %v", name, v.Name, val, v.Bounds)
					}
				}
				for _, v := range vars.Parameters {
					val, err := guess.Parameter(v.Name)
					Expect(err).NotTo(HaveOccurred())
					Expect(v.Bounds.Contains(val)).To(BeTrue())
				}

				x, err := d.Transcription().DeconstructIterate(guess, false)
				Expect(err).NotTo(HaveOccurred())
				xl, xu := d.Transcription().VariableBounds()
				for i := range x {
					Expect(x[i]).To(BeNumerically(">=", xl[i]))
					Expect(x[i]).To(BeNumerically("<=", xu[i]))
				}
			}
		})

		It("round-trips random iterates exactly", func() {
			d, err := New(mustProblem("sliding_mass", nil), "euler", "sqp", 12)
			Expect(err).NotTo(HaveOccurred())
			rng := rand.New(rand.NewSource(42))
			for trial := 0; trial < 5; trial++ {
				it, err := d.MakeRandomIterateWithinBounds(rng)
				Expect(err).NotTo(HaveOccurred())
				x, err := d.Transcription().DeconstructIterate(it, false)
				Expect(err).NotTo(HaveOccurred())
				back, err := d.Transcription().ConstructIterate(x)
				Expect(err).NotTo(HaveOccurred())
				x2, err := d.Transcription().DeconstructIterate(back, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(x2).To(Equal(x))
			}
		})

		It("integrates the dynamics for a time-stepping guess", func() {
			m, err := ocp.NewBuilder("drift").
				SetTimeBounds(0, 2).
				AddState("x", ocp.Unbounded(), ocp.Initial(ocp.Fixed(1))).
				AddControl("u", ocp.Range(0.5, 0.5)).
				SetDynamics(func(in ocp.Input, dx []float64) error {
					dx[0] = in.Controls[0]
					return nil
				}).
				AddIntegralCost(1, costs.NewControlEffort()).
				Build()
			Expect(err).NotTo(HaveOccurred())

			d, err := New(m, "trapezoidal", "sqp", 9)
			Expect(err).NotTo(HaveOccurred())
			for _, name := range integrators.Names() {
				integ, err := integrators.New(name)
				Expect(err).NotTo(HaveOccurred())
				guess, err := d.MakeGuessFromSimulation(integ)
				Expect(err).NotTo(HaveOccurred())
				x := column(guess, iterate.States, "x")
				for k, t := range guess.Time() {
					Expect(x[k]).To(BeNumerically("~", 1+0.5*t, 1e-9), name)
				}
			}
		})
	})

	Describe("solving", func() {
		DescribeTable("minimum control effort converges to the closed form",
			func(method, solver string) {
				d, err := New(mustProblem("min_effort", nil), method, solver, 20,
					WithSettings(nlp.Settings{ConstraintTolerance: 1e-7}))
				Expect(err).NotTo(HaveOccurred())
				sol, err := d.Solve()
				Expect(err).NotTo(HaveOccurred())
				Expect(sol.Success()).To(BeTrue(), sol.Status)
				Expect(sol.Objective).To(BeNumerically("~", 1, 1e-3))

				x := column(sol.Iterate, iterate.States, "x")
				u := column(sol.Iterate, iterate.Controls, "u")
				for k, t := range sol.Time() {
					Expect(x[k]).To(BeNumerically("~", t, 1e-3))
					// Backward Euler never uses the first control.
					if method == "euler" && k == 0 {
						continue
					}
					Expect(u[k]).To(BeNumerically("~", 1, 1e-3))
				}
				Expect(sol.Names(iterate.Multipliers)).To(Equal([]string{"defect_x"}))
			},
			Entry("trapezoidal with sqp", "trapezoidal", "sqp"),
			Entry("euler with sqp", "euler", "sqp"),
			Entry("trapezoidal with auglag", "trapezoidal", "auglag"),
		)

		It("gives the same trajectory in both Hessian sparsity modes", func() {
			for _, name := range []string{"min_effort", "sliding_mass"} {
				var sols []*iterate.Solution
				for _, mode := range []int{transcription.DenseHessian, transcription.DetectedHessian} {
					d, err := New(mustProblem(name, nil), "trapezoidal", "sqp", 25, WithHessianSparsityMode(mode))
					Expect(err).NotTo(HaveOccurred())
					sol, err := d.Solve()
					Expect(err).NotTo(HaveOccurred())
					Expect(sol.Success()).To(BeTrue(), "%s mode %d: %s", name, mode, sol.Status)
					sols = append(sols, sol)
				}
				rms, err := sols[0].CompareRMS(sols[1].Iterate, iterate.Selection{})
				Expect(err).NotTo(HaveOccurred())
				Expect(rms).To(BeNumerically("<", 1e-5), name)
				Expect(sols[0].Objective).To(BeNumerically("~", sols[1].Objective, 1e-5))
			}
		})

		It("respects the speed limit path constraint", func() {
			d, err := New(mustProblem("sliding_mass", nil), "trapezoidal", "sqp", 30)
			Expect(err).NotTo(HaveOccurred())
			sol, err := d.Solve()
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.Success()).To(BeTrue(), sol.Status)
			for _, v := range column(sol.Iterate, iterate.States, "speed") {
				Expect(math.Abs(v)).To(BeNumerically("<=", 1.2+1e-6))
			}
			pos := column(sol.Iterate, iterate.States, "position")
			Expect(pos[len(pos)-1]).To(BeNumerically("~", 1, 1e-8))
		})

		It("resamples a guess on a different grid", func() {
			d, err := New(mustProblem("min_effort", nil), "trapezoidal", "sqp", 20)
			Expect(err).NotTo(HaveOccurred())
			coarse, err := iterate.New(iterate.Data{
				Time:         []float64{0, 0.5, 1},
				StateNames:   []string{"x"},
				ControlNames: []string{"u"},
				States:       [][]float64{{0}, {0.5}, {1}},
				Controls:     [][]float64{{1}, {1}, {1}},
			})
			Expect(err).NotTo(HaveOccurred())
			sol, err := d.SolveWithGuess(coarse)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.Success()).To(BeTrue())
			Expect(sol.NumTimes()).To(Equal(20))
			Expect(sol.Objective).To(BeNumerically("~", 1, 1e-6))
		})

		It("treats an empty guess like Solve", func() {
			d, err := New(mustProblem("min_effort", nil), "trapezoidal", "sqp", 10)
			Expect(err).NotTo(HaveOccurred())
			a, err := d.Solve()
			Expect(err).NotTo(HaveOccurred())
			b, err := d.SolveWithGuess(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.IsNumericallyEqual(b, 0)).To(BeTrue())
		})
	})

	Describe("failures", func() {
		It("reports an infeasible problem as not converged", func() {
			d, err := New(mustProblem("infeasible", nil), "trapezoidal", "sqp", 10,
				WithSettings(nlp.Settings{MaxIterations: 50}))
			Expect(err).NotTo(HaveOccurred())
			sol, err := d.Solve()
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.Success()).To(BeFalse())
			Expect(sol.Status).NotTo(Equal(string(nlp.StatusConverged)))

			var buf bytes.Buffer
			Expect(d.PrintConstraintValues(sol.Iterate, &buf)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("final bound: x"))

			x, err := d.Transcription().DeconstructIterate(sol.Iterate, false)
			Expect(err).NotTo(HaveOccurred())
			values, err := d.Transcription().ConstraintValues(x)
			Expect(err).NotTo(HaveOccurred())
			var named bool
			for _, v := range values {
				if v.Name != "" && v.Violation > 0 {
					named = true
				}
			}
			Expect(named).To(BeTrue())
		})

		It("propagates problem callback errors with their mesh point", func() {
			boom := errors.New("singular")
			m, err := ocp.NewBuilder("fragile").
				AddState("x", ocp.Unbounded(), ocp.Initial(ocp.Fixed(0))).
				AddControl("u", ocp.Range(-1, 1)).
				SetDynamics(func(in ocp.Input, dx []float64) error {
					if in.MeshIndex == 3 {
						return boom
					}
					dx[0] = in.Controls[0]
					return nil
				}).
				AddIntegralCost(1, costs.NewControlEffort()).
				Build()
			Expect(err).NotTo(HaveOccurred())

			for _, solver := range nlp.Available() {
				d, err := New(m, "trapezoidal", solver, 6)
				Expect(err).NotTo(HaveOccurred())
				_, err = d.Solve()
				Expect(err).To(MatchError(ocp.ErrProblemEvaluation))
				Expect(errors.Is(err, boom)).To(BeTrue())
				var evalErr *ocp.EvaluationError
				Expect(errors.As(err, &evalErr)).To(BeTrue())
				Expect(evalErr.MeshIndex).To(Equal(3))
				Expect(evalErr.Time).To(BeNumerically("~", 0.6, 1e-12))
			}
		})

		It("turns a panic during the time-stepping guess into an evaluation error", func() {
			m, err := ocp.NewBuilder("table").
				AddState("x", ocp.Unbounded(), ocp.Initial(ocp.Fixed(0))).
				AddControl("u", ocp.Range(-1, 1)).
				SetDynamics(func(in ocp.Input, dx []float64) error {
					gains := []float64{1, 1}
					dx[0] = gains[in.MeshIndex] * in.Controls[0]
					return nil
				}).
				AddIntegralCost(1, costs.NewControlEffort()).
				Build()
			Expect(err).NotTo(HaveOccurred())

			d, err := New(m, "trapezoidal", "sqp", 6)
			Expect(err).NotTo(HaveOccurred())
			for _, name := range integrators.Names() {
				integ, err := integrators.New(name)
				Expect(err).NotTo(HaveOccurred())
				var guess *iterate.Iterate
				Expect(func() { guess, err = d.MakeGuessFromSimulation(integ) }).NotTo(Panic())
				Expect(guess).To(BeNil())
				Expect(err).To(MatchError(ocp.ErrProblemEvaluation), name)
				var evalErr *ocp.EvaluationError
				Expect(errors.As(err, &evalErr)).To(BeTrue())
				Expect(evalErr.Callback).To(Equal("dynamics"))
				Expect(evalErr.MeshIndex).To(Equal(2))
				Expect(evalErr.Time).To(BeNumerically("~", 0.4, 1e-12))
				Expect(evalErr.Error()).To(ContainSubstring("panic"))
			}
		})
	})

	Describe("Sweep", func() {
		It("solves independent cases concurrently in order", func() {
			var cases []Case
			for _, target := range []float64{1, 2, 3} {
				cases = append(cases, Case{
					Name:    "target",
					Problem: mustProblem("min_effort", map[string]float64{"x1": target}),
				})
			}
			sols, err := Sweep(context.Background(), cases, "trapezoidal", "sqp", 15)
			Expect(err).NotTo(HaveOccurred())
			Expect(sols).To(HaveLen(3))
			for i, sol := range sols {
				target := float64(i + 1)
				Expect(sol.Success()).To(BeTrue())
				Expect(sol.Objective).To(BeNumerically("~", target*target, 1e-6))
			}
		})

		It("skips cases once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := Sweep(ctx, []Case{{Problem: mustProblem("min_effort", nil)}}, "trapezoidal", "sqp", 5)
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
