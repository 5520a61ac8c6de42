package transcription

import "fmt"

// Scheme holds the interval weights used by both the defect and the
// quadrature: an interval of width h contributes h*(Left*v_k + Right*v_k+1).
type Scheme struct {
	Name  string
	Left  float64
	Right float64
}

var (
	Trapezoidal   = Scheme{Name: "trapezoidal", Left: 0.5, Right: 0.5}
	BackwardEuler = Scheme{Name: "euler", Left: 0, Right: 1}
)

var schemes = map[string]Scheme{
	Trapezoidal.Name:   Trapezoidal,
	BackwardEuler.Name: BackwardEuler,
}

func SchemeFor(method string) (Scheme, error) {
	s, ok := schemes[method]
	if !ok {
		return Scheme{}, fmt.Errorf("unknown transcription method: %s", method)
	}
	return s, nil
}

func Methods() []string {
	return []string{Trapezoidal.Name, BackwardEuler.Name}
}
