package iterate

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/trajopt/internal/ocp"
)

// Selection restricts a comparison to a subset of labels. A nil field
// selects every label of that kind; an empty non-nil slice selects none.
type Selection struct {
	States     []string
	Controls   []string
	Adjuncts   []string
	Parameters []string
}

// CompareRMS returns the root-mean-square deviation between it and other
// over the selected labels. Both iterates are interpolated onto the union of
// their times within the overlap of their spans. Each column's squared error
// is averaged over time by trapezoidal integration, then averaged across
// columns.
//
// A nil selection field compares the union of both iterates' labels of that
// kind. A label present in only one iterate is compared against zeros, so
// the result does not depend on which iterate is the receiver. A selected
// label that neither iterate has is ErrUnknownLabel.
func (it *Iterate) CompareRMS(other *Iterate, sel Selection) (float64, error) {
	if it.Empty() || other.Empty() {
		return 0, fmt.Errorf("%w: cannot compare empty iterates", ocp.ErrShapeMismatch)
	}

	shared := overlap(it.time, other.time)
	if len(shared) == 0 {
		return 0, fmt.Errorf("%w: time spans do not overlap", ocp.ErrOutOfRange)
	}

	self, err := it.ResampleTo(shared)
	if err != nil {
		return 0, err
	}
	ref, err := other.ResampleTo(shared)
	if err != nil {
		return 0, err
	}

	var sumSq float64
	var ncols int
	groups := []struct {
		kind   Kind
		labels []string
	}{
		{States, sel.States},
		{Controls, sel.Controls},
		{Adjuncts, sel.Adjuncts},
	}
	for _, g := range groups {
		labels := g.labels
		if labels == nil {
			labels = unionLabels(it.tables[g.kind].names, other.tables[g.kind].names)
		}
		for _, label := range labels {
			a, aok := columnOrZeros(self, g.kind, label)
			b, bok := columnOrZeros(ref, g.kind, label)
			if !aok && !bok {
				return 0, fmt.Errorf("%w: %s %q", ocp.ErrUnknownLabel, g.kind, label)
			}
			sq := make([]float64, len(shared))
			for i := range sq {
				d := a[i] - b[i]
				sq[i] = d * d
			}
			sumSq += timeAverage(shared, sq)
			ncols++
		}
	}

	params := sel.Parameters
	if params == nil {
		params = unionLabels(it.paramNames, other.paramNames)
	}
	for _, label := range params {
		a, aerr := it.Parameter(label)
		b, berr := other.Parameter(label)
		if aerr != nil && berr != nil {
			return 0, aerr
		}
		sumSq += (a - b) * (a - b)
		ncols++
	}

	if ncols == 0 {
		return 0, nil
	}
	return math.Sqrt(sumSq / float64(ncols)), nil
}

// columnOrZeros returns the column of label, or zeros and false when it has
// no such column.
func columnOrZeros(it *Iterate, k Kind, label string) ([]float64, bool) {
	col, err := it.Column(k, label)
	if err != nil {
		return make([]float64, it.NumTimes()), false
	}
	return col, true
}

func unionLabels(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, l := range append(append([]string(nil), a...), b...) {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// overlap merges two increasing time grids and keeps the times that lie in
// both spans.
func overlap(a, b []float64) []float64 {
	lo := math.Max(a[0], b[0])
	hi := math.Min(a[len(a)-1], b[len(b)-1])
	var out []float64
	for _, grid := range [][]float64{a, b} {
		for _, t := range grid {
			if t >= lo && t <= hi {
				out = append(out, t)
			}
		}
	}
	sort.Float64s(out)
	n := 0
	for i, t := range out {
		if i == 0 || t != out[n-1] {
			out[n] = t
			n++
		}
	}
	return out[:n]
}

func timeAverage(t, v []float64) float64 {
	if len(t) == 1 {
		return v[0]
	}
	var integral float64
	for i := 0; i+1 < len(t); i++ {
		integral += 0.5 * (t[i+1] - t[i]) * (v[i] + v[i+1])
	}
	return integral / (t[len(t)-1] - t[0])
}
