// Package iterate holds named, time-indexed trajectory bundles.
//
// An [Iterate] pairs a strictly increasing time grid with state, control
// and adjunct trajectories (one column per label), a time-invariant
// parameter vector and, for solutions, Lagrange multiplier columns. Iterates
// are immutable: [Iterate.Resample] and [Iterate.ResampleTo] return new
// values interpolated with a monotone cubic spline.
//
// A [Solution] is an Iterate annotated with the solver outcome.
package iterate
