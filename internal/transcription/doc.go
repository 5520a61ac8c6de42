// Package transcription converts an optimal control problem into a
// nonlinear program by direct collocation.
//
// # Flat vector layout
//
// The NLP variable vector is mesh-point major. For N mesh points, point k
// occupies
//
//	x[k*P : (k+1)*P] = [states_k, controls_k, adjuncts_k]
//
// with P = NumStates + NumControls + NumAdjuncts, and the time-invariant
// parameters follow at x[N*P:].
//
// # Constraint layout
//
// Defects come first, interval-major: row k*NumStates+i enforces
//
//	x[k+1,i] - x[k,i] - h_k*(a*f_i(k) + b*f_i(k+1)) = 0
//
// where (a, b) are the [Scheme] weights. Path constraints follow, point
// major, then one boundary row per initial or final bound that could not
// be folded into the variable box because it does not overlap the
// variable's general bounds.
//
// # Derivatives
//
// First and second derivatives are taken by central finite differences on
// per-point blocks [point variables, parameters]. The Jacobian structure
// treats every point block as dense. The Hessian structure follows the
// sparsity mode: mode 0 is dense per block; mode 1 is detected once from
// the starting point and cached per mesh.
package transcription
