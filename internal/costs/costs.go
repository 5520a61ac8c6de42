// Package costs provides reusable integral and endpoint cost terms for
// problems assembled with ocp.Builder.
package costs

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/ocp"
)

// selection maps labels onto positions in a list of variables, with one
// weight per label. Nil labels select every variable.
type selection struct {
	index   []int
	weights []float64
}

func resolve(kind string, labels []string, weights []float64, vars []ocp.Variable) (selection, error) {
	if labels == nil {
		labels = make([]string, len(vars))
		for i, v := range vars {
			labels[i] = v.Name
		}
	}
	if weights != nil && len(weights) != len(labels) {
		return selection{}, fmt.Errorf("%w: %d weights for %d %ss",
			ocp.ErrShapeMismatch, len(weights), len(labels), kind)
	}

	sel := selection{index: make([]int, len(labels)), weights: make([]float64, len(labels))}
	for i, label := range labels {
		sel.index[i] = -1
		for j, v := range vars {
			if v.Name == label {
				sel.index[i] = j
				break
			}
		}
		if sel.index[i] < 0 {
			return selection{}, fmt.Errorf("%w: %s %q", ocp.ErrUnknownLabel, kind, label)
		}
		sel.weights[i] = 1
		if weights != nil {
			sel.weights[i] = weights[i]
		}
	}
	return sel, nil
}

// sumSquares is sum_i w_i*(v[index_i] - ref_i)^2; ref may be nil.
func (s selection) sumSquares(v []float64, ref func(i int) float64) float64 {
	var total float64
	for i, j := range s.index {
		d := v[j]
		if ref != nil {
			d -= ref(i)
		}
		total += s.weights[i] * d * d
	}
	return total
}
