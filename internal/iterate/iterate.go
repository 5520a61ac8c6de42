package iterate

import (
	"fmt"
	"math"

	"github.com/san-kum/trajopt/internal/ocp"
)

// Kind selects one family of columns.
type Kind int

const (
	States Kind = iota
	Controls
	Adjuncts
	Multipliers
)

func (k Kind) String() string {
	switch k {
	case States:
		return "state"
	case Controls:
		return "control"
	case Adjuncts:
		return "adjunct"
	case Multipliers:
		return "multiplier"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Data is the raw content of an Iterate. Trajectories are indexed
// [time][label].
type Data struct {
	Time            []float64
	StateNames      []string
	ControlNames    []string
	AdjunctNames    []string
	ParameterNames  []string
	MultiplierNames []string
	States          [][]float64
	Controls        [][]float64
	Adjuncts        [][]float64
	Parameters      []float64
	Multipliers     [][]float64
}

// Iterate is an immutable trajectory bundle.
type Iterate struct {
	time       []float64
	tables     [4]table
	paramNames []string
	parameters []float64
}

// New validates d and copies it into an Iterate.
func New(d Data) (*Iterate, error) {
	n := len(d.Time)
	for i, t := range d.Time {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: time[%d] = %g", ocp.ErrShapeMismatch, i, t)
		}
		if i > 0 && t <= d.Time[i-1] {
			return nil, fmt.Errorf("%w: time not strictly increasing at index %d", ocp.ErrShapeMismatch, i)
		}
	}

	it := &Iterate{time: append([]float64(nil), d.Time...)}

	inputs := [4]struct {
		names []string
		rows  [][]float64
	}{
		States:      {d.StateNames, d.States},
		Controls:    {d.ControlNames, d.Controls},
		Adjuncts:    {d.AdjunctNames, d.Adjuncts},
		Multipliers: {d.MultiplierNames, d.Multipliers},
	}
	for k, in := range inputs {
		tb, err := newTable(Kind(k).String(), in.names, in.rows, n)
		if err != nil {
			return nil, err
		}
		it.tables[k] = tb
	}

	if err := checkUnique("parameter", d.ParameterNames); err != nil {
		return nil, err
	}
	if len(d.Parameters) != len(d.ParameterNames) {
		return nil, fmt.Errorf("%w: %d parameter values for %d names",
			ocp.ErrShapeMismatch, len(d.Parameters), len(d.ParameterNames))
	}
	it.paramNames = append([]string(nil), d.ParameterNames...)
	it.parameters = append([]float64(nil), d.Parameters...)
	return it, nil
}

// Empty reports whether it has no time points. A nil Iterate is empty.
func (it *Iterate) Empty() bool {
	return it == nil || len(it.time) == 0
}

func (it *Iterate) NumTimes() int { return len(it.time) }

func (it *Iterate) Time() []float64 { return append([]float64(nil), it.time...) }

func (it *Iterate) InitialTime() float64 { return it.time[0] }

func (it *Iterate) FinalTime() float64 { return it.time[len(it.time)-1] }

func (it *Iterate) Names(k Kind) []string { return append([]string(nil), it.tables[k].names...) }

func (it *Iterate) StateNames() []string     { return it.Names(States) }
func (it *Iterate) ControlNames() []string   { return it.Names(Controls) }
func (it *Iterate) AdjunctNames() []string   { return it.Names(Adjuncts) }
func (it *Iterate) ParameterNames() []string { return append([]string(nil), it.paramNames...) }

// Row returns a copy of the values of kind k at time index i.
func (it *Iterate) Row(k Kind, i int) []float64 { return it.tables[k].row(i) }

// At returns the value of column j of kind k at time index i.
func (it *Iterate) At(k Kind, i, j int) float64 { return it.tables[k].at(i, j) }

// Column returns a copy of the labeled column of kind k.
func (it *Iterate) Column(k Kind, label string) ([]float64, error) {
	j := it.tables[k].index(label)
	if j < 0 {
		return nil, fmt.Errorf("%w: %s %q", ocp.ErrUnknownLabel, k, label)
	}
	return it.tables[k].column(j), nil
}

func (it *Iterate) State(label string) ([]float64, error)      { return it.Column(States, label) }
func (it *Iterate) Control(label string) ([]float64, error)    { return it.Column(Controls, label) }
func (it *Iterate) Adjunct(label string) ([]float64, error)    { return it.Column(Adjuncts, label) }
func (it *Iterate) Multiplier(label string) ([]float64, error) { return it.Column(Multipliers, label) }

func (it *Iterate) Parameters() []float64 { return append([]float64(nil), it.parameters...) }

func (it *Iterate) Parameter(label string) (float64, error) {
	for j, n := range it.paramNames {
		if n == label {
			return it.parameters[j], nil
		}
	}
	return 0, fmt.Errorf("%w: parameter %q", ocp.ErrUnknownLabel, label)
}

// Data returns a deep copy of the content of it.
func (it *Iterate) Data() Data {
	return Data{
		Time:            it.Time(),
		StateNames:      it.Names(States),
		ControlNames:    it.Names(Controls),
		AdjunctNames:    it.Names(Adjuncts),
		ParameterNames:  it.ParameterNames(),
		MultiplierNames: it.Names(Multipliers),
		States:          it.tables[States].matrix(),
		Controls:        it.tables[Controls].matrix(),
		Adjuncts:        it.tables[Adjuncts].matrix(),
		Parameters:      it.Parameters(),
		Multipliers:     it.tables[Multipliers].matrix(),
	}
}

// IsNumericallyEqual reports whether it and other have the same labels and
// time grid and every value agrees within tol, relative to magnitude
// above one.
func (it *Iterate) IsNumericallyEqual(other *Iterate, tol float64) bool {
	if it.Empty() || other.Empty() {
		return it.Empty() && other.Empty()
	}
	if !equalStrings(it.paramNames, other.paramNames) || !closeSlices(it.time, other.time, tol) ||
		!closeSlices(it.parameters, other.parameters, tol) {
		return false
	}
	for k := range it.tables {
		a, b := it.tables[k], other.tables[k]
		if !equalStrings(a.names, b.names) || !closeSlices(a.data, b.data, tol) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func closeSlices(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		scale := math.Max(1, math.Max(math.Abs(a[i]), math.Abs(b[i])))
		if !(math.Abs(a[i]-b[i]) <= tol*scale) {
			return false
		}
	}
	return true
}
