package ocp

import (
	"fmt"
	"math"
)

// Variable describes one optimization variable. Initial and Final are only
// meaningful for states and controls.
type Variable struct {
	Name    string
	Bounds  Bounds
	Initial *Bounds
	Final   *Bounds
}

// Constraint is a path constraint equation with its admissible range.
type Constraint struct {
	Name   string
	Bounds Bounds
}

// Variables is the static description of a problem.
type Variables struct {
	InitialTime     float64
	FinalTime       float64
	States          []Variable
	Controls        []Variable
	Adjuncts        []Variable
	Parameters      []Variable
	PathConstraints []Constraint
}

// VariableOption sets boundary bounds on a state or control.
type VariableOption func(*Variable)

func Initial(b Bounds) VariableOption {
	return func(v *Variable) { v.Initial = &b }
}

func Final(b Bounds) VariableOption {
	return func(v *Variable) { v.Final = &b }
}

func (v Variables) NumStates() int          { return len(v.States) }
func (v Variables) NumControls() int        { return len(v.Controls) }
func (v Variables) NumAdjuncts() int        { return len(v.Adjuncts) }
func (v Variables) NumParameters() int      { return len(v.Parameters) }
func (v Variables) NumPathConstraints() int { return len(v.PathConstraints) }

func (v Variables) StateNames() []string     { return names(v.States) }
func (v Variables) ControlNames() []string   { return names(v.Controls) }
func (v Variables) AdjunctNames() []string   { return names(v.Adjuncts) }
func (v Variables) ParameterNames() []string { return names(v.Parameters) }

func (v Variables) PathConstraintNames() []string {
	out := make([]string, len(v.PathConstraints))
	for i, c := range v.PathConstraints {
		out[i] = c.Name
	}
	return out
}

func names(vars []Variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Name
	}
	return out
}

// Validate checks the time horizon, bounds and name uniqueness.
func (v Variables) Validate() error {
	if math.IsNaN(v.InitialTime) || math.IsInf(v.InitialTime, 0) ||
		math.IsNaN(v.FinalTime) || math.IsInf(v.FinalTime, 0) {
		return fmt.Errorf("%w: [%g, %g]", ErrInvalidTime, v.InitialTime, v.FinalTime)
	}
	if v.FinalTime <= v.InitialTime {
		return fmt.Errorf("%w: final time %g not after initial time %g", ErrInvalidTime, v.FinalTime, v.InitialTime)
	}
	if len(v.States) == 0 {
		return fmt.Errorf("%w: problem has no states", ErrShapeMismatch)
	}

	groups := []struct {
		kind string
		vars []Variable
	}{
		{"state", v.States},
		{"control", v.Controls},
		{"adjunct", v.Adjuncts},
		{"parameter", v.Parameters},
	}
	for _, g := range groups {
		seen := make(map[string]bool, len(g.vars))
		for _, vv := range g.vars {
			if vv.Name == "" {
				return fmt.Errorf("%w: empty %s name", ErrShapeMismatch, g.kind)
			}
			if seen[vv.Name] {
				return fmt.Errorf("%w: duplicate %s %q", ErrShapeMismatch, g.kind, vv.Name)
			}
			seen[vv.Name] = true
			if err := vv.Bounds.Validate(); err != nil {
				return fmt.Errorf("%s %q: %w", g.kind, vv.Name, err)
			}
			if vv.Initial != nil {
				if err := vv.Initial.Validate(); err != nil {
					return fmt.Errorf("%s %q initial: %w", g.kind, vv.Name, err)
				}
			}
			if vv.Final != nil {
				if err := vv.Final.Validate(); err != nil {
					return fmt.Errorf("%s %q final: %w", g.kind, vv.Name, err)
				}
			}
		}
	}

	seen := make(map[string]bool, len(v.PathConstraints))
	for _, c := range v.PathConstraints {
		if c.Name == "" || seen[c.Name] {
			return fmt.Errorf("%w: path constraint name %q empty or duplicated", ErrShapeMismatch, c.Name)
		}
		seen[c.Name] = true
		if err := c.Bounds.Validate(); err != nil {
			return fmt.Errorf("path constraint %q: %w", c.Name, err)
		}
	}
	return nil
}
