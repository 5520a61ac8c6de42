package transcription

import (
	"fmt"
	"math"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
)

// meshTolerance is the relative tolerance used when matching an iterate's
// time grid against the mesh.
const meshTolerance = 1e-12

// ConstructIterate unpacks a flat vector into an Iterate on the mesh.
func (c *Collocation) ConstructIterate(x []float64) (*iterate.Iterate, error) {
	if err := c.checkLength(x); err != nil {
		return nil, err
	}
	return iterate.New(c.iterateData(x))
}

// ConstructSolution is ConstructIterate plus multiplier columns: one
// defect_<state> column per state, whose last row is zero, and one
// path_<name> column per path constraint.
func (c *Collocation) ConstructSolution(x, lambda []float64) (*iterate.Iterate, error) {
	if err := c.checkLength(x); err != nil {
		return nil, err
	}
	l := c.layout
	if len(lambda) != l.NumConstraints() {
		return nil, fmt.Errorf("%w: %d multipliers for %d constraints",
			ocp.ErrShapeMismatch, len(lambda), l.NumConstraints())
	}

	d := c.iterateData(x)
	ns, npc := l.NumStates, l.NumPathConstraints
	for _, name := range d.StateNames {
		d.MultiplierNames = append(d.MultiplierNames, "defect_"+name)
	}
	for _, pc := range c.vars.PathConstraints {
		d.MultiplierNames = append(d.MultiplierNames, "path_"+pc.Name)
	}
	d.Multipliers = make([][]float64, l.NumMeshPoints)
	for k := range d.Multipliers {
		row := make([]float64, ns+npc)
		if k+1 < l.NumMeshPoints {
			for i := 0; i < ns; i++ {
				row[i] = lambda[l.DefectRow(k, i)]
			}
		}
		for j := 0; j < npc; j++ {
			row[ns+j] = lambda[l.PathRow(k, j)]
		}
		d.Multipliers[k] = row
	}
	return iterate.New(d)
}

func (c *Collocation) iterateData(x []float64) iterate.Data {
	l := c.layout
	v := c.vars
	d := iterate.Data{
		Time:           append([]float64(nil), c.times...),
		StateNames:     v.StateNames(),
		ControlNames:   v.ControlNames(),
		AdjunctNames:   v.AdjunctNames(),
		ParameterNames: v.ParameterNames(),
		States:         make([][]float64, l.NumMeshPoints),
		Controls:       make([][]float64, l.NumMeshPoints),
		Adjuncts:       make([][]float64, l.NumMeshPoints),
		Parameters:     make([]float64, l.NumParameters),
	}
	for k := 0; k < l.NumMeshPoints; k++ {
		d.States[k] = make([]float64, l.NumStates)
		for i := range d.States[k] {
			d.States[k][i] = x[l.StateIndex(k, i)]
		}
		d.Controls[k] = make([]float64, l.NumControls)
		for i := range d.Controls[k] {
			d.Controls[k][i] = x[l.ControlIndex(k, i)]
		}
		d.Adjuncts[k] = make([]float64, l.NumAdjuncts)
		for i := range d.Adjuncts[k] {
			d.Adjuncts[k][i] = x[l.AdjunctIndex(k, i)]
		}
	}
	for i := range d.Parameters {
		d.Parameters[i] = x[l.ParameterIndex(i)]
	}
	return d
}

// DeconstructIterate packs it into a flat vector on the mesh. Labels are
// matched by name; extra labels in it are ignored. Unless interpolate is
// set, the time grid of it must equal the mesh.
func (c *Collocation) DeconstructIterate(it *iterate.Iterate, interpolate bool) ([]float64, error) {
	if it.Empty() {
		return nil, fmt.Errorf("%w: cannot deconstruct an empty iterate", ocp.ErrShapeMismatch)
	}
	if err := c.checkLabels(it); err != nil {
		return nil, err
	}
	if !c.onMesh(it.Time()) {
		if !interpolate {
			return nil, fmt.Errorf("%w: iterate has %d times on [%g, %g], mesh has %d on [%g, %g]",
				ocp.ErrMeshMismatch, it.NumTimes(), it.InitialTime(), it.FinalTime(),
				len(c.times), c.times[0], c.times[len(c.times)-1])
		}
		var err error
		if it, err = it.ResampleTo(c.times); err != nil {
			return nil, err
		}
	}

	l := c.layout
	x := make([]float64, l.NumVariables())
	kinds := []struct {
		kind  iterate.Kind
		vars  []ocp.Variable
		index func(k, i int) int
	}{
		{iterate.States, c.vars.States, l.StateIndex},
		{iterate.Controls, c.vars.Controls, l.ControlIndex},
		{iterate.Adjuncts, c.vars.Adjuncts, l.AdjunctIndex},
	}
	for _, kd := range kinds {
		for i, v := range kd.vars {
			col, err := it.Column(kd.kind, v.Name)
			if err != nil {
				return nil, err
			}
			for k, val := range col {
				x[kd.index(k, i)] = val
			}
		}
	}
	for i, p := range c.vars.Parameters {
		val, err := it.Parameter(p.Name)
		if err != nil {
			return nil, err
		}
		x[l.ParameterIndex(i)] = val
	}
	return x, nil
}

func (c *Collocation) checkLabels(it *iterate.Iterate) error {
	check := func(kind iterate.Kind, vars []ocp.Variable) error {
		for _, v := range vars {
			if _, err := it.Column(kind, v.Name); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(iterate.States, c.vars.States); err != nil {
		return err
	}
	if err := check(iterate.Controls, c.vars.Controls); err != nil {
		return err
	}
	if err := check(iterate.Adjuncts, c.vars.Adjuncts); err != nil {
		return err
	}
	for _, p := range c.vars.Parameters {
		if _, err := it.Parameter(p.Name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collocation) onMesh(times []float64) bool {
	if len(times) != len(c.times) {
		return false
	}
	for i, t := range times {
		m := c.times[i]
		scale := math.Max(1, math.Max(math.Abs(t), math.Abs(m)))
		if math.Abs(t-m) > meshTolerance*scale {
			return false
		}
	}
	return true
}
