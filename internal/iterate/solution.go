package iterate

// Solution is the outcome of a solve. Non-convergence is reported through
// Converged and Status, never as an error.
type Solution struct {
	*Iterate
	Status     string
	Converged  bool
	Objective  float64
	Iterations int
}

// Success reports whether the solver converged.
func (s *Solution) Success() bool {
	return s != nil && s.Converged
}

// IsNumericallyEqual compares the trajectories, convergence flag and
// objective of two solutions. Iteration counts are not compared.
func (s *Solution) IsNumericallyEqual(other *Solution, tol float64) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Converged != other.Converged || !closeSlices([]float64{s.Objective}, []float64{other.Objective}, tol) {
		return false
	}
	return s.Iterate.IsNumericallyEqual(other.Iterate, tol)
}
