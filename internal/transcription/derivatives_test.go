package transcription

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/ocp"
)

// wholeGradient differentiates the full objective without any block
// decomposition.
func wholeGradient(t *testing.T, c *Collocation, x []float64) []float64 {
	t.Helper()
	return fd.Gradient(nil, func(y []float64) float64 {
		v, err := c.Objective(y)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}, x, &fd.Settings{Formula: fd.Central})
}

func TestGradientMatchesWholeVector(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			c, err := New(swing(), method, 6)
			if err != nil {
				t.Fatal(err)
			}
			x := randomPoint(rand.New(rand.NewSource(1)), c)
			grad := make([]float64, c.NumVariables())
			if err := c.Gradient(x, grad); err != nil {
				t.Fatal(err)
			}
			want := wholeGradient(t, c, x)
			if d := maxDiff(mat.NewVecDense(len(grad), grad), mat.NewVecDense(len(want), want)); d > 1e-6 {
				t.Errorf("gradient differs by %v", d)
			}
		})
	}
}

func TestGradientAnalytic(t *testing.T) {
	c, err := New(minEffort(), "trapezoidal", 5)
	if err != nil {
		t.Fatal(err)
	}
	x := randomPoint(rand.New(rand.NewSource(2)), c)
	grad := make([]float64, c.NumVariables())
	if err := c.Gradient(x, grad); err != nil {
		t.Fatal(err)
	}
	l := c.Layout()
	for k := 0; k < l.NumMeshPoints; k++ {
		u := x[l.ControlIndex(k, 0)]
		want := 2 * c.weights[k] * u
		if got := grad[l.ControlIndex(k, 0)]; abs(got-want) > 1e-8 {
			t.Errorf("dJ/du[%d] = %v, want %v", k, got, want)
		}
		if got := grad[l.StateIndex(k, 0)]; got != 0 {
			t.Errorf("dJ/dx[%d] = %v, want 0", k, got)
		}
	}
}

func TestJacobianMatchesWholeVector(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			c, err := New(swing(), method, 5)
			if err != nil {
				t.Fatal(err)
			}
			x := randomPoint(rand.New(rand.NewSource(4)), c)
			rows, cols := c.JacobianStructure()
			values := make([]float64, len(rows))
			if err := c.Jacobian(x, values); err != nil {
				t.Fatal(err)
			}
			m, n := c.NumConstraints(), c.NumVariables()
			got := dense(m, n, rows, cols, values, false)

			want := mat.NewDense(m, n, nil)
			fd.Jacobian(want, func(y, z []float64) {
				if err := c.Constraints(z, y); err != nil {
					t.Fatal(err)
				}
			}, x, &fd.JacobianSettings{Formula: fd.Central})
			if d := maxDiff(got, want); d > 1e-6 {
				t.Errorf("jacobian differs by %v", d)
			}
		})
	}
}

func TestJacobianStructureIsUnique(t *testing.T) {
	c, err := New(swing(), "trapezoidal", 7)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := c.JacobianStructure()
	seen := make(map[[2]int]bool)
	for i := range rows {
		key := [2]int{rows[i], cols[i]}
		if seen[key] {
			t.Fatalf("duplicate jacobian entry %v", key)
		}
		seen[key] = true
	}
}

// lagrangian is sigma*f + lambda'c over the whole vector.
func lagrangian(t *testing.T, c *Collocation, sigma float64, lambda []float64) func([]float64) float64 {
	cons := make([]float64, c.NumConstraints())
	return func(y []float64) float64 {
		f, err := c.Objective(y)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Constraints(y, cons); err != nil {
			t.Fatal(err)
		}
		v := sigma * f
		for i, l := range lambda {
			v += l * cons[i]
		}
		return v
	}
}

func TestHessianMatchesWholeVector(t *testing.T) {
	for _, mode := range []int{DenseHessian, DetectedHessian} {
		c, err := New(swing(), "trapezoidal", 4, WithHessianSparsityMode(mode))
		if err != nil {
			t.Fatal(err)
		}
		rng := rand.New(rand.NewSource(8))
		x := randomPoint(rng, c)
		lambda := make([]float64, c.NumConstraints())
		for i := range lambda {
			lambda[i] = rng.NormFloat64()
		}
		if err := c.Prepare(x); err != nil {
			t.Fatal(err)
		}
		rows, cols := c.HessianStructure()
		values := make([]float64, len(rows))
		if err := c.Hessian(x, 0.7, lambda, values); err != nil {
			t.Fatal(err)
		}
		n := c.NumVariables()
		got := dense(n, n, rows, cols, values, true)

		var want mat.SymDense
		fd.Hessian(&want, lagrangian(t, c, 0.7, lambda), x, &fd.Settings{Formula: fd.Central})
		if d := maxDiff(got, &want); d > 1e-4 {
			t.Errorf("mode %d: hessian differs by %v", mode, d)
		}
	}
}

func TestHessianModesAgree(t *testing.T) {
	build := func(mode int) (*Collocation, []float64, []float64) {
		c, err := New(swing(), "euler", 6, WithHessianSparsityMode(mode))
		if err != nil {
			t.Fatal(err)
		}
		rng := rand.New(rand.NewSource(9))
		x := randomPoint(rng, c)
		lambda := make([]float64, c.NumConstraints())
		for i := range lambda {
			lambda[i] = rng.NormFloat64()
		}
		if err := c.Prepare(x); err != nil {
			t.Fatal(err)
		}
		return c, x, lambda
	}
	denseC, x, lambda := build(DenseHessian)
	sparseC, _, _ := build(DetectedHessian)

	dr, dc := denseC.HessianStructure()
	sr, sc := sparseC.HessianStructure()
	if len(sr) >= len(dr) {
		t.Fatalf("detected structure has %d entries, dense has %d", len(sr), len(dr))
	}
	dv := make([]float64, len(dr))
	sv := make([]float64, len(sr))
	if err := denseC.Hessian(x, 1, lambda, dv); err != nil {
		t.Fatal(err)
	}
	if err := sparseC.Hessian(x, 1, lambda, sv); err != nil {
		t.Fatal(err)
	}

	byPos := make(map[[2]int]float64, len(dr))
	for i := range dr {
		byPos[[2]int{dr[i], dc[i]}] = dv[i]
	}
	kept := make(map[[2]int]bool, len(sr))
	for i := range sr {
		key := [2]int{sr[i], sc[i]}
		kept[key] = true
		want, ok := byPos[key]
		if !ok {
			t.Fatalf("detected entry %v missing from dense structure", key)
		}
		if abs(sv[i]-want) > 1e-12*max(1, abs(want)) {
			t.Errorf("entry %v: detected %v, dense %v", key, sv[i], want)
		}
	}
	for key, v := range byPos {
		if !kept[key] && abs(v) > 1e-5 {
			t.Errorf("dropped entry %v has value %v", key, v)
		}
	}
}

func TestDetectedPatternMinEffort(t *testing.T) {
	c, err := New(minEffort(), "trapezoidal", 5, WithHessianSparsityMode(DetectedHessian))
	if err != nil {
		t.Fatal(err)
	}
	x := randomPoint(rand.New(rand.NewSource(6)), c)
	if err := c.Prepare(x); err != nil {
		t.Fatal(err)
	}
	// Only u*u is curved.
	if len(c.active.entries) != 1 || c.active.entries[0] != (entry{row: 1, col: 1}) {
		t.Errorf("block pattern = %v, want [{1 1}]", c.active.entries)
	}
	rows, cols := c.HessianStructure()
	if len(rows) != 5 {
		t.Fatalf("got %d entries, want 5", len(rows))
	}
	l := c.Layout()
	for k := range rows {
		if rows[k] != l.ControlIndex(k, 0) || cols[k] != rows[k] {
			t.Errorf("entry %d = (%d, %d)", k, rows[k], cols[k])
		}
	}
}

func TestDetectedPatternSurvivesZeroGuess(t *testing.T) {
	p := minEffort()
	// every second derivative of x^2 u^2 vanishes where x = u = 0
	p.cost = func(in ocp.Input) (float64, error) {
		x, u := in.States[0], in.Controls[0]
		return x * x * u * u, nil
	}
	c, err := New(p, "trapezoidal", 5, WithHessianSparsityMode(DetectedHessian))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Prepare(make([]float64, c.NumVariables())); err != nil {
		t.Fatal(err)
	}

	want := []entry{{row: 0, col: 0}, {row: 1, col: 0}, {row: 1, col: 1}}
	if len(c.active.entries) != len(want) {
		t.Fatalf("block pattern = %v, want %v", c.active.entries, want)
	}
	for i, e := range want {
		if c.active.entries[i] != e {
			t.Errorf("block entry %d = %v, want %v", i, c.active.entries[i], e)
		}
	}
}

func TestPerturbedStaysInBounds(t *testing.T) {
	c, err := New(swing(), "trapezoidal", 4)
	if err != nil {
		t.Fatal(err)
	}
	xl, xu := c.VariableBounds()
	x := make([]float64, len(xl))
	copy(x, xu)
	got := c.perturbed(x)
	for i := range got {
		if got[i] < xl[i] || got[i] > xu[i] {
			t.Errorf("variable %d = %v, outside [%v, %v]", i, got[i], xl[i], xu[i])
		}
		if xl[i] < xu[i] && got[i] == x[i] {
			t.Errorf("free variable %d did not move", i)
		}
		if xl[i] == xu[i] && got[i] != x[i] {
			t.Errorf("fixed variable %d moved to %v", i, got[i])
		}
	}
}

func TestSparsityCacheFollowsMesh(t *testing.T) {
	c, err := New(minEffort(), "trapezoidal", 5, WithHessianSparsityMode(DetectedHessian))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Prepare(make([]float64, c.NumVariables())); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.cache.lookup(cacheKey{mesh: c.meshGen, mode: DetectedHessian}); !ok {
		t.Fatal("pattern not cached after Prepare")
	}

	stale := c.meshGen
	if err := c.SetNumMeshPoints(8); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.cache.lookup(cacheKey{mesh: stale, mode: DetectedHessian}); ok {
		t.Error("stale pattern survived a mesh change")
	}
	rows, _ := c.HessianStructure()
	if want := 8 * 3; len(rows) != want {
		t.Errorf("unprepared structure has %d entries, want dense %d", len(rows), want)
	}

	if err := c.Prepare(make([]float64, c.NumVariables())); err != nil {
		t.Fatal(err)
	}
	rows, _ = c.HessianStructure()
	if len(rows) != 8 {
		t.Errorf("prepared structure has %d entries, want 8", len(rows))
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	serial, err := New(swing(), "trapezoidal", 40, WithHessianSparsityMode(DetectedHessian))
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := New(swing(), "trapezoidal", 40, WithHessianSparsityMode(DetectedHessian), WithParallel(true))
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(12))
	x := randomPoint(rng, serial)
	lambda := make([]float64, serial.NumConstraints())
	for i := range lambda {
		lambda[i] = rng.NormFloat64()
	}

	eval := func(c *Collocation) [][]float64 {
		if err := c.Prepare(x); err != nil {
			t.Fatal(err)
		}
		grad := make([]float64, c.NumVariables())
		cons := make([]float64, c.NumConstraints())
		jac := make([]float64, len(c.jacRows))
		rows, _ := c.HessianStructure()
		hess := make([]float64, len(rows))
		for _, err := range []error{
			c.Gradient(x, grad),
			c.Constraints(x, cons),
			c.Jacobian(x, jac),
			c.Hessian(x, 1, lambda, hess),
		} {
			if err != nil {
				t.Fatal(err)
			}
		}
		return [][]float64{grad, cons, jac, hess}
	}
	a, b := eval(serial), eval(parallel)
	for i := range a {
		if len(a[i]) != len(b[i]) {
			t.Fatalf("output %d: lengths %d and %d", i, len(a[i]), len(b[i]))
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("output %d entry %d: serial %v, parallel %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func BenchmarkJacobian(b *testing.B) {
	c, err := New(swing(), "trapezoidal", 200)
	if err != nil {
		b.Fatal(err)
	}
	x := randomPoint(rand.New(rand.NewSource(1)), c)
	values := make([]float64, len(c.jacRows))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Jacobian(x, values); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHessian(b *testing.B) {
	for _, mode := range []int{DenseHessian, DetectedHessian} {
		c, err := New(swing(), "trapezoidal", 200, WithHessianSparsityMode(mode))
		if err != nil {
			b.Fatal(err)
		}
		x := randomPoint(rand.New(rand.NewSource(1)), c)
		if err := c.Prepare(x); err != nil {
			b.Fatal(err)
		}
		rows, _ := c.HessianStructure()
		values := make([]float64, len(rows))
		lambda := make([]float64, c.NumConstraints())
		b.Run(map[int]string{DenseHessian: "dense", DetectedHessian: "detected"}[mode], func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if err := c.Hessian(x, 1, lambda, values); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
