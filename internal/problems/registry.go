// Package problems holds named example optimal control problems.
package problems

import (
	"fmt"
	"sort"

	"github.com/san-kum/trajopt/internal/ocp"
)

// Params overrides a problem's default constants by name.
type Params map[string]float64

func (p Params) get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

type entry struct {
	description string
	defaults    Params
	build       func(Params) (*ocp.Model, error)
}

var registry = map[string]entry{
	"min_effort": {
		description: "x' = u from x0 to x1 minimizing the integral of u^2",
		defaults:    Params{"x0": 0, "x1": 1, "tf": 1},
		build:       MinEffort,
	},
	"sliding_mass": {
		description: "rest-to-rest move of a mass with a speed limit",
		defaults:    Params{"mass": 1, "distance": 1, "tf": 1, "max_speed": 1.2, "max_force": 50},
		build:       SlidingMass,
	},
	"pendulum": {
		description: "damped pendulum swing-up with bounded torque",
		defaults:    Params{"mass": 1, "length": 1, "damping": 0.1, "gravity": 9.81, "tf": 3, "max_torque": 10},
		build:       Pendulum,
	},
	"infeasible": {
		description: "x' = u with a final value outside the state bounds",
		defaults:    Params{"upper": 0.5, "target": 1},
		build:       Infeasible,
	},
}

func New(name string, params map[string]float64) (*ocp.Model, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	for k := range params {
		if _, known := e.defaults[k]; !known {
			return nil, fmt.Errorf("problem %s: unknown parameter %q", name, k)
		}
	}
	return e.build(Params(params))
}

func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Describe(name string) (string, error) {
	e, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("unknown problem: %s", name)
	}
	return e.description, nil
}

// Defaults returns a copy of a problem's parameter defaults.
func Defaults(name string) (Params, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	out := make(Params, len(e.defaults))
	for k, v := range e.defaults {
		out[k] = v
	}
	return out, nil
}
