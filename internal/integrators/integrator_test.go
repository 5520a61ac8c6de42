package integrators

import (
	"errors"
	"math"
	"testing"
)

func oscillator(t float64, x, dx []float64) error {
	dx[0] = x[1]
	dx[1] = -x[0]
	return nil
}

func TestStepAccuracy(t *testing.T) {
	tests := []struct {
		name string
		tol  float64
	}{
		{"euler", 1e-2},
		{"rk4", 1e-4},
		{"rk45", 1e-4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integ, err := New(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			x := []float64{1, 0}
			dt := 0.01
			for i := 0; i < 100; i++ {
				if x, err = integ.Step(oscillator, x, float64(i)*dt, dt); err != nil {
					t.Fatal(err)
				}
			}
			if math.Abs(x[0]-math.Cos(1)) > tt.tol {
				t.Errorf("position: got %.6f, expected %.6f", x[0], math.Cos(1))
			}
			if math.Abs(x[1]+math.Sin(1)) > tt.tol {
				t.Errorf("velocity: got %.6f, expected %.6f", x[1], -math.Sin(1))
			}
		})
	}
}

func TestRK45AdaptiveStep(t *testing.T) {
	integ := NewRK45()
	x, dtNew, _, err := integ.StepAdaptive(oscillator, []float64{1, 0}, 0, 0.1, 1e-8)
	if err != nil {
		t.Fatalf("StepAdaptive returned error: %v", err)
	}
	if len(x) != 2 || dtNew <= 0 {
		t.Errorf("got x=%v dt=%v", x, dtNew)
	}

	_, next, accepted, _ := integ.StepAdaptive(oscillator, []float64{1, 0}, 0, 2, 1e-12)
	if accepted || next >= 2 {
		t.Errorf("large step accepted=%v, next dt=%v", accepted, next)
	}
}

func TestIntegrateHitsOutputTimes(t *testing.T) {
	fine := make([]float64, 51)
	for i := range fine {
		fine[i] = 0.05 * float64(i)
	}
	tests := []struct {
		name  string
		times []float64
		tol   float64
	}{
		{"euler", []float64{0, 0.001, 0.002}, 1e-5},
		{"rk4", fine, 1e-5},
		{"rk45", []float64{0, 0.3, 1, 2.5}, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integ, err := New(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			xs, err := Integrate(integ, oscillator, []float64{1, 0}, tt.times, 1e-9)
			if err != nil {
				t.Fatal(err)
			}
			if len(xs) != len(tt.times) {
				t.Fatalf("got %d states, want %d", len(xs), len(tt.times))
			}
			for k, tk := range tt.times {
				if math.Abs(xs[k][0]-math.Cos(tk)) > tt.tol {
					t.Errorf("x(%v) = %v, want %v", tk, xs[k][0], math.Cos(tk))
				}
			}
		})
	}
}

func TestIntegrateErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := func(t float64, x, dx []float64) error {
		if t > 0.5 {
			return boom
		}
		dx[0] = 1
		return nil
	}
	_, err := Integrate(NewRK4(), failing, []float64{0}, []float64{0, 0.5, 1}, 0)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if stepErr.Step != 1 {
		t.Errorf("failing step = %d, want 1", stepErr.Step)
	}

	blowup := func(t float64, x, dx []float64) error {
		dx[0] = math.Inf(1)
		return nil
	}
	if _, err := Integrate(NewEuler(), blowup, []float64{0}, []float64{0, 1}, 0); !errors.Is(err, ErrDiverged) {
		t.Errorf("got %v, want ErrDiverged", err)
	}

	if _, err := New("verlet"); err == nil {
		t.Error("expected unknown integrator error")
	}
}

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	x := []float64{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x, _ = integrator.Step(oscillator, x, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	x := []float64{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x, _ = integrator.Step(oscillator, x, 0, 0.01)
	}
}

func BenchmarkRK45(b *testing.B) {
	integrator := NewRK45()
	x := []float64{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x, _ = integrator.Step(oscillator, x, 0, 0.01)
	}
}
