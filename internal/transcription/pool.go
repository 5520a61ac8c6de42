package transcription

import "sync"

// blockPool recycles per-point scratch blocks across derivative
// evaluations and worker goroutines.
type blockPool struct {
	pool sync.Pool
	size int
}

func newBlockPool(size int) *blockPool {
	return &blockPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]float64, size)
			},
		},
	}
}

func (p *blockPool) get() []float64 {
	return p.pool.Get().([]float64)
}

func (p *blockPool) put(b []float64) {
	if len(b) == p.size {
		p.pool.Put(b)
	}
}
