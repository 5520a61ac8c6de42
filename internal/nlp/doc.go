// Package nlp is the adapter between a transcribed optimal control problem
// and a nonlinear programming backend.
//
// A [Problem] exposes a flat variable vector with bounds, a constraint
// vector with bounds, and callbacks for the objective, constraints and
// sparse first and second derivatives in triplet form. Two backends solve
// it:
//
//   - "sqp": an active-set sequential quadratic programming method with an
//     l1 merit line search, solving dense KKT systems with gonum/mat
//   - "auglag": a bound-constrained augmented Lagrangian method whose inner
//     problems are solved by gonum/optimize's Newton method
//
// Failing to converge is reported through [Result.Converged] and
// [Result.Status]. Errors are reserved for problem callback failures and
// for backends that cannot run at all.
package nlp
