package transcription

// Layout maps structured quantities to flat vector positions.
type Layout struct {
	NumMeshPoints      int
	NumStates          int
	NumControls        int
	NumAdjuncts        int
	NumParameters      int
	NumPathConstraints int
	NumBoundary        int
}

// PointSize is the number of variables at one mesh point.
func (l Layout) PointSize() int { return l.NumStates + l.NumControls + l.NumAdjuncts }

// BlockSize is the length of a derivative block: one point plus parameters.
func (l Layout) BlockSize() int { return l.PointSize() + l.NumParameters }

func (l Layout) NumVariables() int { return l.NumMeshPoints*l.PointSize() + l.NumParameters }

func (l Layout) NumDefects() int { return (l.NumMeshPoints - 1) * l.NumStates }

func (l Layout) NumPathRows() int { return l.NumMeshPoints * l.NumPathConstraints }

func (l Layout) NumConstraints() int { return l.NumDefects() + l.NumPathRows() + l.NumBoundary }

func (l Layout) StateIndex(k, i int) int { return k*l.PointSize() + i }

func (l Layout) ControlIndex(k, i int) int { return k*l.PointSize() + l.NumStates + i }

func (l Layout) AdjunctIndex(k, i int) int {
	return k*l.PointSize() + l.NumStates + l.NumControls + i
}

func (l Layout) ParameterIndex(i int) int { return l.NumMeshPoints*l.PointSize() + i }

func (l Layout) DefectRow(k, i int) int { return k*l.NumStates + i }

func (l Layout) PathRow(k, j int) int { return l.NumDefects() + k*l.NumPathConstraints + j }

func (l Layout) BoundaryRow(b int) int { return l.NumDefects() + l.NumPathRows() + b }

// global maps a block-local index at point k to a flat index.
func (l Layout) global(k, local int) int {
	ps := l.PointSize()
	if local < ps {
		return k*ps + local
	}
	return l.NumMeshPoints*ps + local - ps
}
