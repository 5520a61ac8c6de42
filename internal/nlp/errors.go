package nlp

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/ocp"
)

// BackendError reports a backend that could not run. It matches
// ocp.ErrSolverBackend.
type BackendError struct {
	Backend string
	Wrapped error
}

func backendErrorf(backend, format string, args ...any) *BackendError {
	return &BackendError{Backend: backend, Wrapped: fmt.Errorf(format, args...)}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("nlp: %s backend: %v", e.Backend, e.Wrapped)
}

func (e *BackendError) Unwrap() []error {
	return []error{ocp.ErrSolverBackend, e.Wrapped}
}
