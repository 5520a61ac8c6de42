package costs

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/ocp"
)

// FinalTarget penalizes sum_i w_i*(x_i(tf) - target_i)^2.
type FinalTarget struct {
	States  []string
	Targets []float64
	Weights []float64

	sel selection
}

func NewFinalTarget(states []string, targets []float64) *FinalTarget {
	return &FinalTarget{States: states, Targets: targets}
}

func (f *FinalTarget) Name() string { return "final_target" }

func (f *FinalTarget) Bind(v ocp.Variables) error {
	if len(f.Targets) != len(f.States) {
		return fmt.Errorf("%w: %d targets for %d states", ocp.ErrShapeMismatch, len(f.Targets), len(f.States))
	}
	sel, err := resolve("state", f.States, f.Weights, v.States)
	if err != nil {
		return err
	}
	f.sel = sel
	return nil
}

func (f *FinalTarget) Endpoint(final ocp.Input) (float64, error) {
	return f.sel.sumSquares(final.States, func(i int) float64 { return f.Targets[i] }), nil
}
