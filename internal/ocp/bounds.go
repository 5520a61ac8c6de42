package ocp

import (
	"fmt"
	"math"
)

// Bounds is a closed interval. Infinite endpoints mean unbounded.
type Bounds struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

func Range(lower, upper float64) Bounds {
	return Bounds{Lower: lower, Upper: upper}
}

func Fixed(v float64) Bounds {
	return Bounds{Lower: v, Upper: v}
}

func Unbounded() Bounds {
	return Bounds{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

func (b Bounds) IsFixed() bool {
	return b.Lower == b.Upper
}

func (b Bounds) IsFinite() bool {
	return !math.IsInf(b.Lower, 0) && !math.IsInf(b.Upper, 0)
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Clamp returns the point of b nearest to v.
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Lower, math.Min(b.Upper, v))
}

// Violation is the distance from v to b, zero inside.
func (b Bounds) Violation(v float64) float64 {
	if v < b.Lower {
		return b.Lower - v
	}
	if v > b.Upper {
		return v - b.Upper
	}
	return 0
}

// Guess returns the midpoint of finite bounds, the finite endpoint of
// half-open bounds, and zero for unbounded variables.
func (b Bounds) Guess() float64 {
	loInf := math.IsInf(b.Lower, -1)
	hiInf := math.IsInf(b.Upper, 1)
	switch {
	case !loInf && !hiInf:
		return 0.5 * (b.Lower + b.Upper)
	case !loInf:
		return b.Lower
	case !hiInf:
		return b.Upper
	}
	return 0
}

// Intersect returns the overlap of b and o. ok is false when they are
// disjoint.
func (b Bounds) Intersect(o Bounds) (Bounds, bool) {
	r := Bounds{Lower: math.Max(b.Lower, o.Lower), Upper: math.Min(b.Upper, o.Upper)}
	return r, r.Lower <= r.Upper
}

func (b Bounds) Validate() error {
	if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
		return fmt.Errorf("%w: NaN endpoint", ErrInvalidBounds)
	}
	if b.Lower > b.Upper {
		return fmt.Errorf("%w: lower %g exceeds upper %g", ErrInvalidBounds, b.Lower, b.Upper)
	}
	if math.IsInf(b.Lower, 1) || math.IsInf(b.Upper, -1) {
		return fmt.Errorf("%w: [%g, %g] is empty", ErrInvalidBounds, b.Lower, b.Upper)
	}
	return nil
}

func (b Bounds) String() string {
	if b.IsFixed() {
		return fmt.Sprintf("= %g", b.Lower)
	}
	return fmt.Sprintf("[%g, %g]", b.Lower, b.Upper)
}
