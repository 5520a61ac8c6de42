package study

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/dircol"
	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/problems"
)

// Grid enumerates every combination of parameter values.
type Grid struct {
	paramNames []string
	ranges     [][]float64
}

// NewGrid orders the parameters by name so enumeration is reproducible.
func NewGrid(sweep map[string][]float64) *Grid {
	g := &Grid{}
	for name := range sweep {
		g.paramNames = append(g.paramNames, name)
	}
	sort.Strings(g.paramNames)
	for _, name := range g.paramNames {
		g.ranges = append(g.ranges, sweep[name])
	}
	return g
}

func (g *Grid) Size() int {
	if len(g.paramNames) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Points lists the grid with the last parameter varying fastest.
func (g *Grid) Points() []map[string]float64 {
	var out []map[string]float64
	if len(g.paramNames) > 0 {
		g.collect(0, map[string]float64{}, &out)
	}
	return out
}

func (g *Grid) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.collect(depth+1, newParams, out)
	}
}

// Point is one solved grid point. Params holds only the swept values.
type Point struct {
	Params   map[string]float64
	Config   *config.Config
	Solution *iterate.Solution
}

// Label names a point by its swept values, e.g. "max_speed=1.1 tf=2".
func (p Point) Label() string {
	names := make([]string, 0, len(p.Params))
	for k := range p.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%g", k, p.Params[k])
	}
	return strings.Join(parts, " ")
}

// GridSweep solves cfg once per point of cfg.Sweep, concurrently. Every
// point gets its own problem instance and transcription.
func GridSweep(ctx context.Context, cfg *config.Config, log *logrus.Entry, opts ...dircol.Option) ([]Point, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid := NewGrid(cfg.Sweep)
	if grid.Size() == 0 {
		return nil, fmt.Errorf("%w: no sweep parameters", config.ErrInvalid)
	}

	points := make([]Point, 0, grid.Size())
	cases := make([]dircol.Case, 0, grid.Size())
	for _, swept := range grid.Points() {
		pc := cfg.Clone()
		pc.Sweep = nil
		if pc.Params == nil {
			pc.Params = map[string]float64{}
		}
		for k, v := range swept {
			pc.Params[k] = v
		}

		p := Point{Params: swept, Config: pc}
		c, err := pointCase(pc, p.Label(), log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Label(), err)
		}
		points = append(points, p)
		cases = append(cases, c)
	}

	sols, err := dircol.Sweep(ctx, cases, cfg.Transcription, cfg.Solver, cfg.MeshPoints, driverOptions(cfg, log, opts)...)
	for i := range points {
		points[i].Solution = sols[i]
	}
	return points, err
}

// pointCase builds the problem and guess for one grid point. The bounds
// guess is left to the sweep itself.
func pointCase(cfg *config.Config, name string, log *logrus.Entry) (dircol.Case, error) {
	problem, err := problems.New(cfg.Problem, cfg.Params)
	if err != nil {
		return dircol.Case{}, err
	}
	c := dircol.Case{Name: name, Problem: problem}
	if cfg.Guess == config.GuessBounds {
		return c, nil
	}
	d, err := newDriver(problem, cfg, log, nil)
	if err != nil {
		return dircol.Case{}, err
	}
	c.Guess, err = MakeGuess(d, cfg)
	return c, err
}

// Best returns the converged point with the lowest objective.
func Best(points []Point) (Point, bool) {
	best := math.Inf(1)
	var out Point
	found := false
	for _, p := range points {
		if !p.Solution.Success() {
			continue
		}
		if p.Solution.Objective < best {
			best = p.Solution.Objective
			out = p
			found = true
		}
	}
	return out, found
}
