package ocp

import (
	"errors"
	"fmt"
)

// Domain errors for transcription and solve operations.
var (
	// ErrShapeMismatch indicates trajectory data whose dimensions disagree.
	ErrShapeMismatch = errors.New("ocp: shape mismatch")

	// ErrUnknownLabel indicates a lookup of a name that is not present.
	ErrUnknownLabel = errors.New("ocp: unknown label")

	// ErrOutOfRange indicates a resampling time outside the trajectory span.
	ErrOutOfRange = errors.New("ocp: time outside trajectory span")

	// ErrMeshMismatch indicates an iterate whose time grid is not the active mesh.
	ErrMeshMismatch = errors.New("ocp: time grid does not match the active mesh")

	// ErrProblemEvaluation indicates a problem callback failed.
	ErrProblemEvaluation = errors.New("ocp: problem evaluation failed")

	// ErrSolverBackend indicates the NLP backend could not run.
	ErrSolverBackend = errors.New("ocp: solver backend failed")

	// ErrInvalidBounds indicates a lower bound above its upper bound or a NaN bound.
	ErrInvalidBounds = errors.New("ocp: invalid bounds")

	// ErrInvalidMesh indicates a mesh with fewer than two points or
	// non-increasing times.
	ErrInvalidMesh = errors.New("ocp: invalid mesh")

	// ErrInvalidTime indicates a time horizon that is empty or not finite.
	ErrInvalidTime = errors.New("ocp: invalid time horizon")
)

// EvaluationError carries the point at which a problem callback failed.
type EvaluationError struct {
	Callback   string
	MeshIndex  int
	Time       float64
	States     []float64
	Controls   []float64
	Adjuncts   []float64
	Parameters []float64
	Wrapped    error
}

// NewEvaluationError snapshots in so the error stays valid after the
// engine reuses its buffers.
func NewEvaluationError(callback string, in Input, err error) *EvaluationError {
	return &EvaluationError{
		Callback:   callback,
		MeshIndex:  in.MeshIndex,
		Time:       in.Time,
		States:     append([]float64(nil), in.States...),
		Controls:   append([]float64(nil), in.Controls...),
		Adjuncts:   append([]float64(nil), in.Adjuncts...),
		Parameters: append([]float64(nil), in.Parameters...),
		Wrapped:    err,
	}
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("ocp: %s failed at mesh point %d (t=%g, states=%v, controls=%v): %v",
		e.Callback, e.MeshIndex, e.Time, e.States, e.Controls, e.Wrapped)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{ErrProblemEvaluation, e.Wrapped}
}
