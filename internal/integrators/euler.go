package integrators

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(f Derivative, x []float64, t, dt float64) ([]float64, error) {
	dx := make([]float64, len(x))
	if err := f(t, x, dx); err != nil {
		return nil, err
	}
	result := make([]float64, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result, nil
}
