package dircol

import (
	"context"
	"runtime"
	"sync"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/ocp"
)

// Case is one independent solve within a sweep.
type Case struct {
	Name    string
	Problem ocp.Problem
	Guess   *iterate.Iterate
}

// Sweep solves every case on its own Driver and transcription, at most
// GOMAXPROCS at a time. Cases not yet started when ctx is done are skipped
// with ctx's error. Results are in case order; the first error in case
// order is returned.
func Sweep(ctx context.Context, cases []Case, method, solver string, numMeshPoints int, opts ...Option) ([]*iterate.Solution, error) {
	results := make([]*iterate.Solution, len(cases))
	errs := make([]error, len(cases))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))

	var wg sync.WaitGroup
	for i := range cases {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			c := cases[idx]
			d, err := New(c.Problem, method, solver, numMeshPoints, opts...)
			if err != nil {
				errs[idx] = err
				return
			}
			if c.Name != "" {
				d.log = d.log.WithField("case", c.Name)
			}
			results[idx], errs[idx] = d.SolveWithGuess(c.Guess)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
