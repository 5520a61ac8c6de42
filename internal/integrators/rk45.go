package integrators

import "math"

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
	tol      float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		tol:      1e-6,
	}
}

func (r *RK45) Name() string { return "rk45" }

func (r *RK45) Step(f Derivative, x []float64, t, dt float64) ([]float64, error) {
	newX, _, _, err := r.StepAdaptive(f, x, t, dt, r.tol)
	return newX, err
}

func (r *RK45) StepAdaptive(f Derivative, x []float64, t, dt, tol float64) ([]float64, float64, bool, error) {
	if tol <= 0 {
		tol = r.tol
	}
	n := len(x)
	k := make([][]float64, 7)
	for i := range k {
		k[i] = make([]float64, n)
	}
	stage := make([]float64, n)

	if err := f(t, x, k[0]); err != nil {
		return nil, 0, false, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*b21*k[0][i]
	}
	if err := f(t+a2*dt, stage, k[1]); err != nil {
		return nil, 0, false, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(b31*k[0][i]+b32*k[1][i])
	}
	if err := f(t+a3*dt, stage, k[2]); err != nil {
		return nil, 0, false, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(b41*k[0][i]+b42*k[1][i]+b43*k[2][i])
	}
	if err := f(t+a4*dt, stage, k[3]); err != nil {
		return nil, 0, false, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(b51*k[0][i]+b52*k[1][i]+b53*k[2][i]+b54*k[3][i])
	}
	if err := f(t+a5*dt, stage, k[4]); err != nil {
		return nil, 0, false, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(b61*k[0][i]+b62*k[1][i]+b63*k[2][i]+b64*k[3][i]+b65*k[4][i])
	}
	if err := f(t+dt, stage, k[5]); err != nil {
		return nil, 0, false, err
	}

	xNew := make([]float64, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k[0][i]+c3*k[2][i]+c4*k[3][i]+c5*k[4][i]+c6*k[5][i])
	}

	if err := f(t+dt, xNew, k[6]); err != nil {
		return nil, 0, false, err
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*k[0][i] + dc3*k[2][i] + dc4*k[3][i] + dc5*k[4][i] + dc6*k[5][i] + dc7*k[6][i])
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}

	errRatio := errMax / tol

	var dtNew float64
	if errRatio > 1 {
		scale := math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
		dtNew = dt * scale
	} else {
		if errRatio > 0 {
			scale := math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
			dtNew = dt * scale
		} else {
			dtNew = dt * r.maxScale
		}
	}

	return xNew, dtNew, errRatio <= 1, nil
}
