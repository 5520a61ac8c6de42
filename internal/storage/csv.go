package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
)

// Columns lists the trajectory labels of a solution.csv by kind, in
// column order.
type Columns struct {
	States      []string `json:"states"`
	Controls    []string `json:"controls"`
	Adjuncts    []string `json:"adjuncts,omitempty"`
	Multipliers []string `json:"multipliers,omitempty"`
}

func ColumnsOf(it *iterate.Iterate) Columns {
	return Columns{
		States:      it.Names(iterate.States),
		Controls:    it.Names(iterate.Controls),
		Adjuncts:    it.Names(iterate.Adjuncts),
		Multipliers: it.Names(iterate.Multipliers),
	}
}

func (c Columns) byKind() [4][]string {
	return [4][]string{
		iterate.States:      c.States,
		iterate.Controls:    c.Controls,
		iterate.Adjuncts:    c.Adjuncts,
		iterate.Multipliers: c.Multipliers,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes one row per time point: time, states, controls,
// adjuncts, then multipliers. Values use the shortest representation that
// parses back to the same float64.
func WriteCSV(out io.Writer, it *iterate.Iterate) error {
	if it.Empty() {
		return fmt.Errorf("%w: cannot write an empty iterate", ocp.ErrShapeMismatch)
	}
	w := csv.NewWriter(out)
	cols := ColumnsOf(it).byKind()

	header := []string{"time"}
	for _, names := range cols {
		header = append(header, names...)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	times := it.Time()
	row := make([]string, len(header))
	for i, t := range times {
		row = row[:0]
		row = append(row, formatFloat(t))
		for k := range cols {
			for _, v := range it.Row(iterate.Kind(k), i) {
				row = append(row, formatFloat(v))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

type table struct {
	header []string
	index  map[string]int
	rows   [][]float64
}

func readTable(in io.Reader) (*table, error) {
	r := csv.NewReader(in)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header", ocp.ErrShapeMismatch)
	}
	header := records[0]
	if header[0] != "time" {
		return nil, fmt.Errorf("%w: first column is %q, want time", ocp.ErrShapeMismatch, header[0])
	}

	tb := &table{header: header, index: make(map[string]int, len(header))}
	for j, name := range header {
		if _, dup := tb.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ocp.ErrShapeMismatch, name)
		}
		tb.index[name] = j
	}
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, header[j], err)
			}
			row[j] = v
		}
		tb.rows = append(tb.rows, row)
	}
	return tb, nil
}

func (tb *table) column(name string) []float64 {
	j := tb.index[name]
	out := make([]float64, len(tb.rows))
	for i, row := range tb.rows {
		out[i] = row[j]
	}
	return out
}

func (tb *table) iterate(cols Columns, paramNames []string, params []float64) (*iterate.Iterate, error) {
	byKind := cols.byKind()
	var values [4][][]float64
	for k, names := range byKind {
		idx := make([]int, len(names))
		for j, name := range names {
			c, ok := tb.index[name]
			if !ok {
				return nil, fmt.Errorf("%w: missing %s column %q", ocp.ErrShapeMismatch, iterate.Kind(k), name)
			}
			idx[j] = c
		}
		rows := make([][]float64, len(tb.rows))
		for i, row := range tb.rows {
			rows[i] = make([]float64, len(idx))
			for j, c := range idx {
				rows[i][j] = row[c]
			}
		}
		values[k] = rows
	}

	return iterate.New(iterate.Data{
		Time:            tb.column("time"),
		StateNames:      byKind[iterate.States],
		ControlNames:    byKind[iterate.Controls],
		AdjunctNames:    byKind[iterate.Adjuncts],
		MultiplierNames: byKind[iterate.Multipliers],
		ParameterNames:  paramNames,
		States:          values[iterate.States],
		Controls:        values[iterate.Controls],
		Adjuncts:        values[iterate.Adjuncts],
		Multipliers:     values[iterate.Multipliers],
		Parameters:      params,
	})
}

// ReadCSV reads a file written by WriteCSV. Columns not named in cols are
// ignored.
func ReadCSV(in io.Reader, cols Columns, paramNames []string, params []float64) (*iterate.Iterate, error) {
	tb, err := readTable(in)
	if err != nil {
		return nil, err
	}
	return tb.iterate(cols, paramNames, params)
}

// ReadIterateCSV reads a trajectory file for use as a guess for a problem
// with vars. Columns are matched to the problem's states, controls and
// adjuncts by name; others are ignored. Parameters come from a
// metadata.json next to the file when there is one, else from the
// parameter bounds.
func ReadIterateCSV(path string, vars ocp.Variables) (*iterate.Iterate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tb, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	present := func(names []string) []string {
		var out []string
		for _, n := range names {
			if _, ok := tb.index[n]; ok {
				out = append(out, n)
			}
		}
		return out
	}
	cols := Columns{
		States:   present(vars.StateNames()),
		Controls: present(vars.ControlNames()),
		Adjuncts: present(vars.AdjunctNames()),
	}

	paramNames := vars.ParameterNames()
	params := make([]float64, len(vars.Parameters))
	for i, p := range vars.Parameters {
		params[i] = p.Bounds.Guess()
	}
	meta, err := readMetadata(filepath.Join(filepath.Dir(path), metadataFile))
	switch {
	case err == nil:
		for i, name := range paramNames {
			for j, stored := range meta.ParameterNames {
				if stored == name && j < len(meta.Parameters) {
					params[i] = meta.Parameters[j]
				}
			}
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	it, err := tb.iterate(cols, paramNames, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return it, nil
}
