package transcription

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

var (
	gradientSettings = &fd.Settings{Formula: fd.Central}
	jacobianSettings = &fd.JacobianSettings{Formula: fd.Central}
	hessianSettings  = &fd.Settings{Formula: fd.Central}
)

// scalar adapts a fallible block function to the fd signature. The first
// error is kept and NaN is returned from then on.
type scalar struct {
	fn  func(z []float64) (float64, error)
	err error
}

func (s *scalar) eval(z []float64) float64 {
	if s.err != nil {
		return math.NaN()
	}
	v, err := s.fn(z)
	if err != nil {
		s.err = err
		return math.NaN()
	}
	return v
}

func (c *Collocation) Gradient(x, grad []float64) error {
	if err := c.checkLength(x); err != nil {
		return err
	}
	if err := checkOutput("gradient", grad, c.layout.NumVariables()); err != nil {
		return err
	}
	blocks := make([][]float64, c.layout.NumMeshPoints)
	err := c.forEachPoint(x, func(k int, z []float64) error {
		s := &scalar{fn: func(y []float64) (float64, error) { return c.pointObjective(k, y) }}
		blocks[k] = fd.Gradient(nil, s.eval, z, gradientSettings)
		return s.err
	})
	if err != nil {
		return err
	}

	for i := range grad {
		grad[i] = 0
	}
	for k, g := range blocks {
		for local, v := range g {
			grad[c.layout.global(k, local)] += v
		}
	}
	return nil
}

func (c *Collocation) setupJacobianStructure() {
	l := c.layout
	ps, np := l.PointSize(), l.NumParameters
	rows := make([]int, 0, l.NumDefects()*(2*ps+np)+l.NumPathRows()*(ps+np)+l.NumBoundary)
	cols := make([]int, 0, cap(rows))

	for k := 0; k+1 < l.NumMeshPoints; k++ {
		for i := 0; i < l.NumStates; i++ {
			r := l.DefectRow(k, i)
			for local := 0; local < ps; local++ {
				rows = append(rows, r)
				cols = append(cols, l.global(k, local))
			}
			for local := 0; local < ps; local++ {
				rows = append(rows, r)
				cols = append(cols, l.global(k+1, local))
			}
			for p := 0; p < np; p++ {
				rows = append(rows, r)
				cols = append(cols, l.ParameterIndex(p))
			}
		}
	}
	for k := 0; k < l.NumMeshPoints; k++ {
		for j := 0; j < l.NumPathConstraints; j++ {
			r := l.PathRow(k, j)
			for local := 0; local < ps+np; local++ {
				rows = append(rows, r)
				cols = append(cols, l.global(k, local))
			}
		}
	}
	for b, row := range c.boundary {
		rows = append(rows, l.BoundaryRow(b))
		cols = append(cols, row.index)
	}
	c.jacRows, c.jacCols = rows, cols
}

func (c *Collocation) JacobianStructure() (rows, cols []int) {
	return append([]int(nil), c.jacRows...), append([]int(nil), c.jacCols...)
}

// pointJacobians returns, per mesh point, the Jacobian of
// [dynamics; path residuals] with respect to the point block.
func (c *Collocation) pointJacobians(x []float64) ([]*mat.Dense, error) {
	l := c.layout
	ns, npc, nb := l.NumStates, l.NumPathConstraints, l.BlockSize()
	blocks := make([]*mat.Dense, l.NumMeshPoints)
	err := c.forEachPoint(x, func(k int, z []float64) error {
		var evalErr error
		f := func(y, zz []float64) {
			if evalErr != nil {
				for i := range y {
					y[i] = math.NaN()
				}
				return
			}
			if err := c.pointOutputs(k, zz, y[:ns], y[ns:]); err != nil {
				evalErr = err
			}
		}
		blocks[k] = mat.NewDense(ns+npc, nb, nil)
		fd.Jacobian(blocks[k], f, z, jacobianSettings)
		return evalErr
	})
	return blocks, err
}

func (c *Collocation) Jacobian(x, values []float64) error {
	if err := c.checkLength(x); err != nil {
		return err
	}
	if err := checkOutput("jacobian", values, len(c.jacRows)); err != nil {
		return err
	}
	blocks, err := c.pointJacobians(x)
	if err != nil {
		return err
	}

	l := c.layout
	ps, np := l.PointSize(), l.NumParameters
	a, b := c.scheme.Left, c.scheme.Right
	n := 0
	for k := 0; k+1 < l.NumMeshPoints; k++ {
		h := c.steps[k]
		jk, jk1 := blocks[k], blocks[k+1]
		for i := 0; i < l.NumStates; i++ {
			for local := 0; local < ps; local++ {
				v := -h * a * jk.At(i, local)
				if local == i {
					v--
				}
				values[n] = v
				n++
			}
			for local := 0; local < ps; local++ {
				v := -h * b * jk1.At(i, local)
				if local == i {
					v++
				}
				values[n] = v
				n++
			}
			for p := 0; p < np; p++ {
				values[n] = -h * (a*jk.At(i, ps+p) + b*jk1.At(i, ps+p))
				n++
			}
		}
	}
	for k := 0; k < l.NumMeshPoints; k++ {
		for j := 0; j < l.NumPathConstraints; j++ {
			for local := 0; local < ps+np; local++ {
				values[n] = blocks[k].At(l.NumStates+j, local)
				n++
			}
		}
	}
	for range c.boundary {
		values[n] = 1
		n++
	}
	return nil
}
