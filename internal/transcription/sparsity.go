package transcription

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// sparsityThreshold separates structural nonzeros from finite-difference
// noise, relative to the magnitude of the sampled function.
const sparsityThreshold = 1e-7

// detectionOffset scales the second point sparsity detection samples.
const detectionOffset = 0.1

// entry is a lower-triangle position (row >= col) within a point block.
type entry struct {
	row, col int
}

func densePattern(nb int) []entry {
	out := make([]entry, 0, nb*(nb+1)/2)
	for r := 0; r < nb; r++ {
		for c := 0; c <= r; c++ {
			out = append(out, entry{row: r, col: c})
		}
	}
	return out
}

type cacheKey struct {
	mesh uint64
	mode int
}

// sparsityCache holds block patterns keyed by mesh generation and mode.
// Changing the mesh discards every entry.
type sparsityCache struct {
	mu       sync.Mutex
	gen      uint64
	patterns map[cacheKey][]entry
}

func newSparsityCache() *sparsityCache {
	return &sparsityCache{patterns: make(map[cacheKey][]entry)}
}

func (sc *sparsityCache) invalidate(gen uint64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gen = gen
	sc.patterns = make(map[cacheKey][]entry)
}

func (sc *sparsityCache) lookup(key cacheKey) ([]entry, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if key.mesh != sc.gen {
		return nil, false
	}
	p, ok := sc.patterns[key]
	return p, ok
}

func (sc *sparsityCache) store(key cacheKey, p []entry) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if key.mesh == sc.gen {
		sc.patterns[key] = p
	}
}

// hessianStructure expands a block pattern over the mesh. slots[k][e] is
// the value position of pattern entry e at point k; parameter entries are
// shared by every point.
type hessianStructure struct {
	mode    int
	entries []entry
	rows    []int
	cols    []int
	slots   [][]int
}

func (c *Collocation) buildHessianStructure(mode int, entries []entry) *hessianStructure {
	l := c.layout
	hs := &hessianStructure{mode: mode, entries: entries, slots: make([][]int, l.NumMeshPoints)}
	index := make(map[[2]int]int)
	for k := 0; k < l.NumMeshPoints; k++ {
		hs.slots[k] = make([]int, len(entries))
		for e, en := range entries {
			key := [2]int{l.global(k, en.row), l.global(k, en.col)}
			slot, ok := index[key]
			if !ok {
				slot = len(hs.rows)
				index[key] = slot
				hs.rows = append(hs.rows, key[0])
				hs.cols = append(hs.cols, key[1])
			}
			hs.slots[k][e] = slot
		}
	}
	return hs
}

// Prepare fixes the Hessian structure for the current mesh and mode,
// detecting it around x0 in mode 1 unless a cached pattern exists.
func (c *Collocation) Prepare(x0 []float64) error {
	if err := c.checkLength(x0); err != nil {
		return err
	}
	key := cacheKey{mesh: c.meshGen, mode: c.hessianMode}
	entries, cached := c.cache.lookup(key)
	if !cached {
		if c.hessianMode == DetectedHessian {
			var err error
			if entries, err = c.detectPattern(x0); err != nil {
				return err
			}
		} else {
			entries = densePattern(c.layout.BlockSize())
		}
		c.cache.store(key, entries)
	}
	c.active = c.buildHessianStructure(c.hessianMode, entries)
	c.log.WithFields(logrus.Fields{
		"mode":          c.hessianMode,
		"cached":        cached,
		"block_entries": len(entries),
		"hessian_nnz":   len(c.active.rows),
		"jacobian_nnz":  len(c.jacRows),
	}).Debug("sparsity prepared")
	return nil
}

func (c *Collocation) structure() *hessianStructure {
	if c.active == nil {
		c.active = c.buildHessianStructure(DenseHessian, densePattern(c.layout.BlockSize()))
	}
	return c.active
}

func (c *Collocation) HessianStructure() (rows, cols []int) {
	hs := c.structure()
	return append([]int(nil), hs.rows...), append([]int(nil), hs.cols...)
}

// detectionFunctions returns every scalar function whose curvature can
// reach the Lagrangian at point k.
func (c *Collocation) detectionFunctions(k int) []func(z []float64) (float64, error) {
	l := c.layout
	ns, npc := l.NumStates, l.NumPathConstraints
	fns := []func(z []float64) (float64, error){
		func(z []float64) (float64, error) { return c.callIntegral(c.input(k, z)) },
	}
	if k == l.NumMeshPoints-1 {
		fns = append(fns, func(z []float64) (float64, error) { return c.callEndpoint(c.input(k, z)) })
	}
	for i := 0; i < ns; i++ {
		i := i // per-iteration copy (Go 1.22+ loopvar semantics under go 1.21)
		fns = append(fns, func(z []float64) (float64, error) {
			deriv := make([]float64, ns)
			err := c.callDynamics(c.input(k, z), deriv)
			return deriv[i], err
		})
	}
	for j := 0; j < npc; j++ {
		j := j // per-iteration copy (Go 1.22+ loopvar semantics under go 1.21)
		fns = append(fns, func(z []float64) (float64, error) {
			res := make([]float64, npc)
			err := c.callPath(c.input(k, z), res)
			return res[j], err
		})
	}
	return fns
}

// detectPattern samples the Hessian of every contributing function at x0
// and at a nearby in-bounds point, and keeps the union of entries above
// noise level at either. The second sample catches entries that vanish at
// the guess only, such as a bilinear term with one factor at zero.
func (c *Collocation) detectPattern(x0 []float64) ([]entry, error) {
	nb := c.layout.BlockSize()
	mark := make([]bool, nb*nb)
	for _, x := range [][]float64{x0, c.perturbed(x0)} {
		if err := c.markPattern(x, mark); err != nil {
			return nil, err
		}
	}

	var entries []entry
	for r := 0; r < nb; r++ {
		for col := 0; col <= r; col++ {
			if mark[r*nb+col] {
				entries = append(entries, entry{row: r, col: col})
			}
		}
	}
	return entries, nil
}

// perturbed moves every variable of x by a deterministic offset of uneven
// size, stepping back inside when the offset leaves the variable bounds.
// Fixed variables stay where they are.
func (c *Collocation) perturbed(x []float64) []float64 {
	xl, xu := c.VariableBounds()
	out := make([]float64, len(x))
	for i, v := range x {
		frac := math.Mod(float64(i+1)*0.6180339887498949, 1)
		delta := detectionOffset * (0.5 + frac) * math.Max(1, math.Abs(v))
		switch {
		case v+delta <= xu[i]:
			out[i] = v + delta
		case v-delta >= xl[i]:
			out[i] = v - delta
		default:
			out[i] = math.Max(xl[i], math.Min(xu[i], v+delta))
		}
	}
	return out
}

// markPattern sets mark for every block entry whose Hessian magnitude is
// above noise level at x.
func (c *Collocation) markPattern(x []float64, mark []bool) error {
	nb := c.layout.BlockSize()
	var mu sync.Mutex

	return c.forEachPoint(x, func(k int, z []float64) error {
		local := make([]bool, nb*nb)
		for _, fn := range c.detectionFunctions(k) {
			s := &scalar{fn: fn}
			v0 := s.eval(z)
			var h mat.SymDense
			fd.Hessian(&h, s.eval, z, hessianSettings)
			if s.err != nil {
				return s.err
			}
			tol := sparsityThreshold * math.Max(1, math.Abs(v0))
			for r := 0; r < nb; r++ {
				for col := 0; col <= r; col++ {
					if !(math.Abs(h.At(r, col)) <= tol) {
						local[r*nb+col] = true
					}
				}
			}
		}
		mu.Lock()
		for i, m := range local {
			mark[i] = mark[i] || m
		}
		mu.Unlock()
		return nil
	})
}

// maskedHessian evaluates only the given entries with the same stencil,
// step and summation order as fd.Hessian with the central formula, so the
// values match a dense evaluation exactly.
func maskedHessian(f func([]float64) float64, x []float64, entries []entry) []float64 {
	stencil := hessianSettings.Formula.Stencil
	step := math.Sqrt(hessianSettings.Formula.Step)
	is2 := 1 / (step * step)
	xCopy := make([]float64, len(x))
	out := make([]float64, len(entries))
	for e, en := range entries {
		i, j := en.col, en.row
		var hess float64
		for _, pti := range stencil {
			for _, ptj := range stencil {
				copy(xCopy, x)
				xCopy[i] += pti.Loc * step
				xCopy[j] += ptj.Loc * step
				v := f(xCopy)
				hess += v * pti.Coeff * ptj.Coeff * is2
			}
		}
		out[e] = hess
	}
	return out
}
