package iterate

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/ocp"
)

// table is a row-major matrix with labeled columns. It allows zero columns,
// which gonum's mat.Dense does not.
type table struct {
	names []string
	rows  int
	data  []float64
}

func newTable(kind string, names []string, rows [][]float64, nrows int) (table, error) {
	if err := checkUnique(kind, names); err != nil {
		return table{}, err
	}
	ncols := len(names)
	if len(rows) != nrows && !(len(rows) == 0 && ncols == 0) {
		return table{}, fmt.Errorf("%w: %s trajectory has %d rows, time has %d",
			ocp.ErrShapeMismatch, kind, len(rows), nrows)
	}
	t := table{names: append([]string(nil), names...), rows: nrows, data: make([]float64, nrows*ncols)}
	for i, row := range rows {
		if len(row) != ncols {
			return table{}, fmt.Errorf("%w: %s row %d has %d columns, want %d",
				ocp.ErrShapeMismatch, kind, i, len(row), ncols)
		}
		copy(t.data[i*ncols:], row)
	}
	return t, nil
}

func checkUnique(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return fmt.Errorf("%w: duplicate %s label %q", ocp.ErrShapeMismatch, kind, n)
		}
		seen[n] = true
	}
	return nil
}

func (t table) cols() int { return len(t.names) }

func (t table) at(i, j int) float64 { return t.data[i*len(t.names)+j] }

func (t table) index(label string) int {
	for j, n := range t.names {
		if n == label {
			return j
		}
	}
	return -1
}

func (t table) row(i int) []float64 {
	c := len(t.names)
	return append([]float64(nil), t.data[i*c:(i+1)*c]...)
}

func (t table) column(j int) []float64 {
	out := make([]float64, t.rows)
	for i := range out {
		out[i] = t.at(i, j)
	}
	return out
}

func (t table) matrix() [][]float64 {
	out := make([][]float64, t.rows)
	for i := range out {
		out[i] = t.row(i)
	}
	return out
}
