package ocp

// Input is the point at which a problem callback is evaluated. The slices
// are views into engine buffers and are only valid during the call.
type Input struct {
	MeshIndex  int
	Time       float64
	States     []float64
	Controls   []float64
	Adjuncts   []float64
	Parameters []float64
}

// Problem is a continuous-time optimal control problem.
//
// Dynamics writes dx/dt into deriv (len NumStates). PathConstraints writes
// one residual per declared path constraint into residuals. EndpointCost is
// evaluated once, at the final mesh point.
type Problem interface {
	Name() string
	Variables() Variables
	Dynamics(in Input, deriv []float64) error
	IntegralCost(in Input) (float64, error)
	EndpointCost(final Input) (float64, error)
	PathConstraints(in Input, residuals []float64) error
}

// IntegralTerm is a named contribution to the integral cost.
type IntegralTerm interface {
	Name() string
	Integrand(in Input) (float64, error)
}

// EndpointTerm is a named contribution to the endpoint cost.
type EndpointTerm interface {
	Name() string
	Endpoint(final Input) (float64, error)
}
