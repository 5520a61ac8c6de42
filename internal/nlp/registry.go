package nlp

import (
	"fmt"
	"sort"
)

// Solver runs a backend on a Problem from a starting point.
type Solver interface {
	Name() string
	Solve(p Problem, x0 []float64) (*Result, error)
}

var backends = map[string]func(Settings) Solver{
	"sqp":    func(s Settings) Solver { return NewSQP(s) },
	"auglag": func(s Settings) Solver { return NewAugLag(s) },
}

func New(name string, s Settings) (Solver, error) {
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
	return ctor(s), nil
}

func Available() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
