package nlp

// Problem is a nonlinear program
//
//	minimize f(x) subject to xl <= x <= xu, cl <= c(x) <= cu.
//
// Jacobian and Hessian values are written in the order given by the
// matching structure. The Hessian is of the Lagrangian
// sigma*f(x) + lambda'c(x) and only its lower triangle is reported.
// Repeated structure entries are summed.
type Problem interface {
	NumVariables() int
	NumConstraints() int
	VariableBounds() (lower, upper []float64)
	ConstraintBounds() (lower, upper []float64)

	// Prepare is called once with the starting point before any derivative
	// structure is requested.
	Prepare(x0 []float64) error

	Objective(x []float64) (float64, error)
	Gradient(x, grad []float64) error
	Constraints(x, c []float64) error

	JacobianStructure() (rows, cols []int)
	Jacobian(x, values []float64) error
	HessianStructure() (rows, cols []int)
	Hessian(x []float64, sigma float64, lambda, values []float64) error
}
