// Package ocp defines the continuous-time optimal control problem consumed by
// the transcription engine.
//
// A problem is described by:
//
//   - [Variables]: states, controls, adjuncts, parameters and path
//     constraints, each with bounds and (for states and controls) optional
//     initial and final bounds
//   - [Problem]: callbacks for dynamics, the integral cost integrand, the
//     endpoint cost and path constraint residuals, evaluated at an [Input]
//   - [Builder]: a Problem assembled from Go funcs and weighted cost terms
//
// # Example
//
//	b := ocp.NewBuilder("min_effort").SetTimeBounds(0, 1)
//	b.AddState("x", ocp.Unbounded(), ocp.Initial(ocp.Fixed(0)), ocp.Final(ocp.Fixed(1)))
//	b.AddControl("u", ocp.Unbounded())
//	b.SetDynamics(func(in ocp.Input, deriv []float64) error {
//		deriv[0] = in.Controls[0]
//		return nil
//	})
//
// # Thread Safety
//
// The engine treats a Problem as read-only during a solve. Callbacks may be
// invoked concurrently for different mesh points when parallel derivative
// evaluation is enabled, so implementations must not mutate shared state.
package ocp
