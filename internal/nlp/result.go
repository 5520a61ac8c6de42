package nlp

type Status string

const (
	StatusConverged        Status = "converged"
	StatusMaxIterations    Status = "max_iterations"
	StatusStalled          Status = "line_search_failed"
	StatusNumericalFailure Status = "numerical_failure"
)

// Result is the final point of a run, converged or not.
type Result struct {
	X           []float64
	Objective   float64
	Multipliers []float64
	Iterations  int
	Status      Status
	Converged   bool

	PrimalInfeasibility float64
	DualInfeasibility   float64
}
