package costs

import "github.com/san-kum/trajopt/internal/ocp"

// ControlEffort integrates sum_i w_i*u_i^2.
type ControlEffort struct {
	Controls []string
	Weights  []float64

	sel selection
}

func NewControlEffort(controls ...string) *ControlEffort {
	return &ControlEffort{Controls: controls}
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Bind(v ocp.Variables) error {
	sel, err := resolve("control", c.Controls, c.Weights, v.Controls)
	if err != nil {
		return err
	}
	c.sel = sel
	return nil
}

func (c *ControlEffort) Integrand(in ocp.Input) (float64, error) {
	return c.sel.sumSquares(in.Controls, nil), nil
}
