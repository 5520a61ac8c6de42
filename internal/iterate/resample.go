package iterate

import (
	"fmt"

	"gonum.org/v1/gonum/interp"

	"github.com/san-kum/trajopt/internal/ocp"
)

// Method selects the interpolant used for resampling.
type Method int

const (
	// Monotone is the Fritsch-Butland monotone piecewise cubic.
	Monotone Method = iota
	// Linear is piecewise linear interpolation.
	Linear
)

func (m Method) String() string {
	if m == Linear {
		return "linear"
	}
	return "monotone"
}

// ParseMethod maps "linear" and "monotone" (or "") to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "monotone", "cubic":
		return Monotone, nil
	case "linear":
		return Linear, nil
	}
	return Monotone, fmt.Errorf("unknown interpolation method: %s", s)
}

// Resample returns it sampled at n evenly spaced times over its span.
func (it *Iterate) Resample(n int) (*Iterate, error) {
	if it.Empty() {
		return nil, fmt.Errorf("%w: cannot resample an empty iterate", ocp.ErrShapeMismatch)
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ocp.ErrInvalidMesh, n)
	}
	return it.ResampleTo(Linspace(it.InitialTime(), it.FinalTime(), n))
}

// ResampleTo returns it sampled at times using monotone cubic interpolation.
func (it *Iterate) ResampleTo(times []float64) (*Iterate, error) {
	return it.ResampleWith(times, Monotone)
}

// ResampleWith returns it sampled at times. Times must be strictly
// increasing and lie within the span of it; there is no extrapolation.
// Parameters are carried over unchanged.
func (it *Iterate) ResampleWith(times []float64, method Method) (*Iterate, error) {
	if it.Empty() {
		return nil, fmt.Errorf("%w: cannot resample an empty iterate", ocp.ErrShapeMismatch)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no target times", ocp.ErrInvalidMesh)
	}
	t0, tf := it.InitialTime(), it.FinalTime()
	for i, t := range times {
		if i > 0 && t <= times[i-1] {
			return nil, fmt.Errorf("%w: target times not strictly increasing at index %d", ocp.ErrInvalidMesh, i)
		}
		if t < t0 || t > tf {
			return nil, fmt.Errorf("%w: %g not in [%g, %g]", ocp.ErrOutOfRange, t, t0, tf)
		}
	}

	out := &Iterate{
		time:       append([]float64(nil), times...),
		paramNames: append([]string(nil), it.paramNames...),
		parameters: append([]float64(nil), it.parameters...),
	}
	for k, src := range it.tables {
		dst := table{names: append([]string(nil), src.names...), rows: len(times)}
		dst.data = make([]float64, len(times)*src.cols())
		for j := 0; j < src.cols(); j++ {
			col, err := sample(method, it.time, src.column(j), times)
			if err != nil {
				return nil, err
			}
			for i, v := range col {
				dst.data[i*src.cols()+j] = v
			}
		}
		out.tables[k] = dst
	}
	return out, nil
}

func sample(method Method, xs, ys, at []float64) ([]float64, error) {
	out := make([]float64, len(at))
	if len(xs) == 1 {
		for i := range out {
			out[i] = ys[0]
		}
		return out, nil
	}

	var p interp.FittablePredictor
	switch method {
	case Linear:
		p = &interp.PiecewiseLinear{}
	default:
		p = &interp.FritschButland{}
	}
	if err := p.Fit(xs, ys); err != nil {
		return nil, err
	}
	for i, t := range at {
		out[i] = p.Predict(t)
	}
	return out, nil
}

// Linspace returns n evenly spaced values from a to b inclusive. The last
// value is exactly b.
func Linspace(a, b float64, n int) []float64 {
	if n == 1 {
		return []float64{a}
	}
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + float64(i)*step
	}
	out[n-1] = b
	return out
}
