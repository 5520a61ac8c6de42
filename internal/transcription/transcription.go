package transcription

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/ocp"
)

// Transcription is the contract between a driver, a problem and an NLP
// backend.
type Transcription interface {
	nlp.Problem

	Method() string
	Layout() Layout
	MeshTimes() []float64
	SetMesh(fractions []float64) error
	SetNumMeshPoints(n int) error
	SetHessianSparsityMode(mode int) error
	HessianSparsityMode() int

	ConstructIterate(x []float64) (*iterate.Iterate, error)
	ConstructSolution(x, lambda []float64) (*iterate.Iterate, error)
	DeconstructIterate(it *iterate.Iterate, interpolate bool) ([]float64, error)

	ConstraintValues(x []float64) ([]ConstraintValue, error)
	PrintConstraintValues(it *iterate.Iterate, w io.Writer) error
}

const (
	DenseHessian    = 0
	DetectedHessian = 1
)

type Option func(*Collocation)

func WithLogger(log *logrus.Entry) Option {
	return func(c *Collocation) { c.log = log }
}

// WithParallel evaluates per-point derivative blocks concurrently.
func WithParallel(enabled bool) Option {
	return func(c *Collocation) { c.parallel = enabled }
}

func WithHessianSparsityMode(mode int) Option {
	return func(c *Collocation) { c.hessianMode = mode }
}

// WithMesh sets the mesh as fractions of the time horizon.
func WithMesh(fractions []float64) Option {
	return func(c *Collocation) { c.mesh = append([]float64(nil), fractions...) }
}

// boundaryRow enforces an initial or final bound that does not overlap the
// variable's general bounds.
type boundaryRow struct {
	kind     string
	variable string
	point    int
	index    int
	bounds   ocp.Bounds
}

var _ Transcription = (*Collocation)(nil)

// Collocation implements Transcription for single-interval schemes.
type Collocation struct {
	problem ocp.Problem
	vars    ocp.Variables
	scheme  Scheme
	log     *logrus.Entry

	parallel    bool
	hessianMode int

	mesh    []float64
	times   []float64
	steps   []float64
	weights []float64
	layout  Layout
	meshGen uint64

	xl, xu   []float64
	cl, cu   []float64
	boundary []boundaryRow

	jacRows, jacCols []int

	cache  *sparsityCache
	active *hessianStructure
	pool   *blockPool
}

// New transcribes problem with the given method on numMeshPoints uniform
// points, unless WithMesh overrides the mesh.
func New(problem ocp.Problem, method string, numMeshPoints int, opts ...Option) (*Collocation, error) {
	scheme, err := SchemeFor(method)
	if err != nil {
		return nil, err
	}
	vars := problem.Variables()
	if err := vars.Validate(); err != nil {
		return nil, fmt.Errorf("problem %q: %w", problem.Name(), err)
	}

	c := &Collocation{
		problem: problem,
		vars:    vars,
		scheme:  scheme,
		cache:   newSparsityCache(),
	}
	if numMeshPoints >= 1 {
		c.mesh = iterate.Linspace(0, 1, numMeshPoints)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = logrus.NewEntry(l)
	}
	c.log = c.log.WithFields(logrus.Fields{"problem": problem.Name(), "transcription": scheme.Name})

	if err := c.SetHessianSparsityMode(c.hessianMode); err != nil {
		return nil, err
	}
	if err := c.SetMesh(c.mesh); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collocation) Method() string { return c.scheme.Name }

func (c *Collocation) Layout() Layout { return c.layout }

func (c *Collocation) Problem() ocp.Problem { return c.problem }

func (c *Collocation) MeshTimes() []float64 { return append([]float64(nil), c.times...) }

func (c *Collocation) MeshFractions() []float64 { return append([]float64(nil), c.mesh...) }

func (c *Collocation) SetNumMeshPoints(n int) error {
	if n < 2 {
		return fmt.Errorf("%w: need at least 2 mesh points, got %d", ocp.ErrInvalidMesh, n)
	}
	return c.SetMesh(iterate.Linspace(0, 1, n))
}

// SetMesh replaces the mesh. Fractions must start at 0, end at 1 and be
// strictly increasing. Cached sparsity patterns are discarded.
func (c *Collocation) SetMesh(fractions []float64) error {
	if len(fractions) < 2 {
		return fmt.Errorf("%w: need at least 2 mesh points, got %d", ocp.ErrInvalidMesh, len(fractions))
	}
	if fractions[0] != 0 || fractions[len(fractions)-1] != 1 {
		return fmt.Errorf("%w: mesh must span [0, 1], got [%g, %g]",
			ocp.ErrInvalidMesh, fractions[0], fractions[len(fractions)-1])
	}
	for i := 1; i < len(fractions); i++ {
		if !(fractions[i] > fractions[i-1]) {
			return fmt.Errorf("%w: mesh not strictly increasing at index %d", ocp.ErrInvalidMesh, i)
		}
	}

	c.mesh = append([]float64(nil), fractions...)
	c.meshGen++
	c.cache.invalidate(c.meshGen)
	c.active = nil
	c.setup()
	c.log.WithFields(logrus.Fields{
		"mesh_points": c.layout.NumMeshPoints,
		"variables":   c.layout.NumVariables(),
		"constraints": c.layout.NumConstraints(),
	}).Debug("mesh set")
	return nil
}

func (c *Collocation) SetHessianSparsityMode(mode int) error {
	if mode != DenseHessian && mode != DetectedHessian {
		return fmt.Errorf("unknown hessian sparsity mode: %d", mode)
	}
	if mode != c.hessianMode {
		c.active = nil
	}
	c.hessianMode = mode
	return nil
}

func (c *Collocation) HessianSparsityMode() int { return c.hessianMode }

func (c *Collocation) setup() {
	v := c.vars
	n := len(c.mesh)
	t0, tf := v.InitialTime, v.FinalTime

	c.times = make([]float64, n)
	for k, f := range c.mesh {
		c.times[k] = t0 + f*(tf-t0)
	}
	c.times[n-1] = tf

	c.steps = make([]float64, n-1)
	for k := range c.steps {
		c.steps[k] = c.times[k+1] - c.times[k]
	}
	c.weights = make([]float64, n)
	for k := range c.weights {
		if k < n-1 {
			c.weights[k] += c.scheme.Left * c.steps[k]
		}
		if k > 0 {
			c.weights[k] += c.scheme.Right * c.steps[k-1]
		}
	}

	c.layout = Layout{
		NumMeshPoints:      n,
		NumStates:          v.NumStates(),
		NumControls:        v.NumControls(),
		NumAdjuncts:        v.NumAdjuncts(),
		NumParameters:      v.NumParameters(),
		NumPathConstraints: v.NumPathConstraints(),
	}
	c.setupBounds()
	c.layout.NumBoundary = len(c.boundary)
	c.setupConstraintBounds()
	c.setupJacobianStructure()
	c.pool = newBlockPool(c.layout.BlockSize())
}

func (c *Collocation) setupBounds() {
	l := c.layout
	nv := l.NumVariables()
	c.xl = make([]float64, nv)
	c.xu = make([]float64, nv)
	c.boundary = c.boundary[:0]

	last := l.NumMeshPoints - 1
	for k := 0; k <= last; k++ {
		for i, s := range c.vars.States {
			c.setPointBounds(k, last, l.StateIndex(k, i), s)
		}
		for i, u := range c.vars.Controls {
			c.setPointBounds(k, last, l.ControlIndex(k, i), u)
		}
		for i, a := range c.vars.Adjuncts {
			idx := l.AdjunctIndex(k, i)
			c.xl[idx], c.xu[idx] = a.Bounds.Lower, a.Bounds.Upper
		}
	}
	for i, p := range c.vars.Parameters {
		idx := l.ParameterIndex(i)
		c.xl[idx], c.xu[idx] = p.Bounds.Lower, p.Bounds.Upper
	}
}

func (c *Collocation) setPointBounds(k, last, idx int, v ocp.Variable) {
	b := v.Bounds
	var end *ocp.Bounds
	kind := ""
	switch {
	case k == 0 && v.Initial != nil:
		end, kind = v.Initial, "initial"
	case k == last && v.Final != nil:
		end, kind = v.Final, "final"
	}
	if end != nil {
		if both, ok := b.Intersect(*end); ok {
			b = both
		} else {
			c.boundary = append(c.boundary, boundaryRow{
				kind: kind, variable: v.Name, point: k, index: idx, bounds: *end,
			})
		}
	}
	c.xl[idx], c.xu[idx] = b.Lower, b.Upper
}

func (c *Collocation) setupConstraintBounds() {
	l := c.layout
	m := l.NumConstraints()
	c.cl = make([]float64, m)
	c.cu = make([]float64, m)
	for k := 0; k < l.NumMeshPoints; k++ {
		for j, pc := range c.vars.PathConstraints {
			r := l.PathRow(k, j)
			c.cl[r], c.cu[r] = pc.Bounds.Lower, pc.Bounds.Upper
		}
	}
	for b, row := range c.boundary {
		r := l.BoundaryRow(b)
		c.cl[r], c.cu[r] = row.bounds.Lower, row.bounds.Upper
	}
}

func (c *Collocation) NumVariables() int { return c.layout.NumVariables() }

func (c *Collocation) NumConstraints() int { return c.layout.NumConstraints() }

func (c *Collocation) VariableBounds() (lower, upper []float64) {
	return append([]float64(nil), c.xl...), append([]float64(nil), c.xu...)
}

func (c *Collocation) ConstraintBounds() (lower, upper []float64) {
	return append([]float64(nil), c.cl...), append([]float64(nil), c.cu...)
}
