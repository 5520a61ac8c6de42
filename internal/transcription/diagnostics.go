package transcription

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
)

const (
	KindDefect   = "defect"
	KindPath     = "path"
	KindBoundary = "boundary"
)

// boundTolerance decides when a variable counts as sitting on a bound.
const boundTolerance = 1e-9

// ConstraintValue is one entry of the constraint vector with the name of
// what it constrains.
type ConstraintValue struct {
	Index     int
	Kind      string
	Name      string
	Label     string
	MeshIndex int
	Time      float64
	Value     float64
	Lower     float64
	Upper     float64
	Violation float64
}

// ConstraintValues evaluates the constraints at x and labels every row.
func (c *Collocation) ConstraintValues(x []float64) ([]ConstraintValue, error) {
	l := c.layout
	vals := make([]float64, l.NumConstraints())
	if err := c.Constraints(x, vals); err != nil {
		return nil, err
	}

	out := make([]ConstraintValue, 0, len(vals))
	add := func(row int, kind, name, label string, k int) {
		b := ocp.Range(c.cl[row], c.cu[row])
		out = append(out, ConstraintValue{
			Index:     row,
			Kind:      kind,
			Name:      name,
			Label:     label,
			MeshIndex: k,
			Time:      c.times[k],
			Value:     vals[row],
			Lower:     b.Lower,
			Upper:     b.Upper,
			Violation: b.Violation(vals[row]),
		})
	}
	for k := 0; k+1 < l.NumMeshPoints; k++ {
		for i, s := range c.vars.States {
			add(l.DefectRow(k, i), KindDefect, s.Name,
				fmt.Sprintf("defect: state %s at mesh %d", s.Name, k), k)
		}
	}
	for k := 0; k < l.NumMeshPoints; k++ {
		for j, pc := range c.vars.PathConstraints {
			add(l.PathRow(k, j), KindPath, pc.Name,
				fmt.Sprintf("path constraint: %s at mesh %d", pc.Name, k), k)
		}
	}
	for b, row := range c.boundary {
		add(l.BoundaryRow(b), KindBoundary, row.variable,
			fmt.Sprintf("%s bound: %s", row.kind, row.variable), row.point)
	}
	return out, nil
}

// PrintConstraintValues writes a readable breakdown of the constraint
// residuals at it, which is resampled onto the mesh when needed.
func (c *Collocation) PrintConstraintValues(it *iterate.Iterate, w io.Writer) error {
	x, err := c.DeconstructIterate(it, true)
	if err != nil {
		return err
	}
	values, err := c.ConstraintValues(x)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Constraint values: %s (%s, %d mesh points)\n",
		c.problem.Name(), c.scheme.Name, c.layout.NumMeshPoints)

	var total float64
	for _, v := range values {
		total += v.Violation
	}

	c.printDefects(tw, values)
	c.printPath(tw, values)
	printBoundary(tw, values)
	c.printActiveBounds(tw, x)

	fmt.Fprintf(tw, "\nTotal violation:\t%.6e\n", total)
	return tw.Flush()
}

type worst struct {
	value ConstraintValue
	seen  bool
}

func (c *Collocation) printDefects(w io.Writer, values []ConstraintValue) {
	if c.layout.NumDefects() == 0 {
		return
	}
	byState := make(map[string]*worst)
	for _, v := range values {
		if v.Kind != KindDefect {
			continue
		}
		cur := byState[v.Name]
		if cur == nil {
			cur = &worst{}
			byState[v.Name] = cur
		}
		if !cur.seen || math.Abs(v.Value) > math.Abs(cur.value.Value) {
			cur.value, cur.seen = v, true
		}
	}
	fmt.Fprintln(w, "\nDefects (largest residual per state):")
	fmt.Fprintln(w, "STATE\tMAX |DEFECT|\tMESH\tTIME")
	for _, s := range c.vars.States {
		if cur := byState[s.Name]; cur != nil {
			fmt.Fprintf(w, "%s\t%.6e\t%d\t%.6g\n",
				s.Name, math.Abs(cur.value.Value), cur.value.MeshIndex, cur.value.Time)
		}
	}
}

func (c *Collocation) printPath(w io.Writer, values []ConstraintValue) {
	if len(c.vars.PathConstraints) == 0 {
		return
	}
	byName := make(map[string]*worst)
	for _, v := range values {
		if v.Kind != KindPath {
			continue
		}
		cur := byName[v.Name]
		if cur == nil {
			cur = &worst{}
			byName[v.Name] = cur
		}
		if !cur.seen || v.Violation > cur.value.Violation {
			cur.value, cur.seen = v, true
		}
	}
	fmt.Fprintln(w, "\nPath constraints (largest violation per constraint):")
	fmt.Fprintln(w, "NAME\tVIOLATION\tVALUE\tBOUNDS\tMESH\tTIME")
	for _, pc := range c.vars.PathConstraints {
		if cur := byName[pc.Name]; cur != nil {
			v := cur.value
			fmt.Fprintf(w, "%s\t%.6e\t%.6g\t%s\t%d\t%.6g\n",
				pc.Name, v.Violation, v.Value, ocp.Range(v.Lower, v.Upper), v.MeshIndex, v.Time)
		}
	}
}

func printBoundary(w io.Writer, values []ConstraintValue) {
	header := false
	for _, v := range values {
		if v.Kind != KindBoundary {
			continue
		}
		if !header {
			fmt.Fprintln(w, "\nBoundary constraints:")
			fmt.Fprintln(w, "CONSTRAINT\tVALUE\tBOUNDS\tVIOLATION")
			header = true
		}
		fmt.Fprintf(w, "%s\t%.6g\t%s\t%.6e\n", v.Label, v.Value, ocp.Range(v.Lower, v.Upper), v.Violation)
	}
}

type boundCount struct {
	kind, name            string
	lower, upper, outside int
}

// printActiveBounds lists variables resting on or beyond a non-fixed bound.
func (c *Collocation) printActiveBounds(w io.Writer, x []float64) {
	l := c.layout
	var counts []*boundCount
	tally := func(kind, name string, idxs []int) {
		bc := &boundCount{kind: kind, name: name}
		for _, idx := range idxs {
			lo, hi := c.xl[idx], c.xu[idx]
			if lo == hi {
				continue
			}
			v := x[idx]
			switch {
			case v < lo-boundTolerance*math.Max(1, math.Abs(lo)) || v > hi+boundTolerance*math.Max(1, math.Abs(hi)):
				bc.outside++
			case v <= lo+boundTolerance*math.Max(1, math.Abs(lo)):
				bc.lower++
			case v >= hi-boundTolerance*math.Max(1, math.Abs(hi)):
				bc.upper++
			}
		}
		if bc.lower+bc.upper+bc.outside > 0 {
			counts = append(counts, bc)
		}
	}
	perPoint := func(index func(k, i int) int, i int) []int {
		idxs := make([]int, l.NumMeshPoints)
		for k := range idxs {
			idxs[k] = index(k, i)
		}
		return idxs
	}
	for i, v := range c.vars.States {
		tally("state", v.Name, perPoint(l.StateIndex, i))
	}
	for i, v := range c.vars.Controls {
		tally("control", v.Name, perPoint(l.ControlIndex, i))
	}
	for i, v := range c.vars.Adjuncts {
		tally("adjunct", v.Name, perPoint(l.AdjunctIndex, i))
	}
	for i, v := range c.vars.Parameters {
		tally("parameter", v.Name, []int{l.ParameterIndex(i)})
	}

	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w, "\nVariables at bounds (points):")
	fmt.Fprintln(w, "KIND\tNAME\tAT LOWER\tAT UPPER\tOUTSIDE")
	for _, bc := range counts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", bc.kind, bc.name, bc.lower, bc.upper, bc.outside)
	}
}
