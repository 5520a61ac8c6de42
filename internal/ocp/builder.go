package ocp

import (
	"errors"
	"fmt"
)

type DynamicsFunc func(in Input, deriv []float64) error

type PathFunc func(in Input, residuals []float64) error

// Binder is implemented by cost terms that resolve variable names to
// positions before the first evaluation.
type Binder interface {
	Bind(v Variables) error
}

type weightedIntegral struct {
	weight float64
	term   IntegralTerm
}

type weightedEndpoint struct {
	weight float64
	term   EndpointTerm
}

// Builder assembles a Problem from funcs and cost terms.
type Builder struct {
	name     string
	vars     Variables
	dynamics DynamicsFunc
	path     PathFunc
	integral []weightedIntegral
	endpoint []weightedEndpoint
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name, vars: Variables{InitialTime: 0, FinalTime: 1}}
}

func (b *Builder) SetTimeBounds(t0, tf float64) *Builder {
	b.vars.InitialTime = t0
	b.vars.FinalTime = tf
	return b
}

func (b *Builder) AddState(name string, bounds Bounds, opts ...VariableOption) *Builder {
	b.vars.States = append(b.vars.States, newVariable(name, bounds, opts))
	return b
}

func (b *Builder) AddControl(name string, bounds Bounds, opts ...VariableOption) *Builder {
	b.vars.Controls = append(b.vars.Controls, newVariable(name, bounds, opts))
	return b
}

func (b *Builder) AddAdjunct(name string, bounds Bounds) *Builder {
	b.vars.Adjuncts = append(b.vars.Adjuncts, Variable{Name: name, Bounds: bounds})
	return b
}

func (b *Builder) AddParameter(name string, bounds Bounds) *Builder {
	b.vars.Parameters = append(b.vars.Parameters, Variable{Name: name, Bounds: bounds})
	return b
}

func (b *Builder) AddPathConstraint(name string, bounds Bounds) *Builder {
	b.vars.PathConstraints = append(b.vars.PathConstraints, Constraint{Name: name, Bounds: bounds})
	return b
}

func (b *Builder) SetDynamics(fn DynamicsFunc) *Builder {
	b.dynamics = fn
	return b
}

func (b *Builder) SetPathConstraints(fn PathFunc) *Builder {
	b.path = fn
	return b
}

func (b *Builder) AddIntegralCost(weight float64, term IntegralTerm) *Builder {
	b.integral = append(b.integral, weightedIntegral{weight: weight, term: term})
	return b
}

func (b *Builder) AddEndpointCost(weight float64, term EndpointTerm) *Builder {
	b.endpoint = append(b.endpoint, weightedEndpoint{weight: weight, term: term})
	return b
}

func newVariable(name string, bounds Bounds, opts []VariableOption) Variable {
	v := Variable{Name: name, Bounds: bounds}
	for _, opt := range opts {
		opt(&v)
	}
	return v
}

// Build validates the description, binds cost terms and returns an
// immutable Model.
func (b *Builder) Build() (*Model, error) {
	if err := b.vars.Validate(); err != nil {
		return nil, fmt.Errorf("problem %q: %w", b.name, err)
	}
	if len(b.vars.PathConstraints) > 0 && b.path == nil {
		return nil, fmt.Errorf("problem %q: %d path constraints declared without a path function",
			b.name, len(b.vars.PathConstraints))
	}

	m := &Model{
		name:     b.name,
		vars:     copyVariables(b.vars),
		dynamics: b.dynamics,
		path:     b.path,
		integral: append([]weightedIntegral(nil), b.integral...),
		endpoint: append([]weightedEndpoint(nil), b.endpoint...),
	}

	var errs []error
	for _, w := range m.integral {
		if binder, ok := w.term.(Binder); ok {
			if err := binder.Bind(m.vars); err != nil {
				errs = append(errs, fmt.Errorf("integral cost %q: %w", w.term.Name(), err))
			}
		}
	}
	for _, w := range m.endpoint {
		if binder, ok := w.term.(Binder); ok {
			if err := binder.Bind(m.vars); err != nil {
				errs = append(errs, fmt.Errorf("endpoint cost %q: %w", w.term.Name(), err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("problem %q: %w", b.name, err)
	}
	return m, nil
}

func copyVariables(v Variables) Variables {
	out := v
	out.States = copyVars(v.States)
	out.Controls = copyVars(v.Controls)
	out.Adjuncts = copyVars(v.Adjuncts)
	out.Parameters = copyVars(v.Parameters)
	out.PathConstraints = append([]Constraint(nil), v.PathConstraints...)
	return out
}

func copyVars(vars []Variable) []Variable {
	out := make([]Variable, len(vars))
	for i, v := range vars {
		out[i] = Variable{Name: v.Name, Bounds: v.Bounds}
		if v.Initial != nil {
			b := *v.Initial
			out[i].Initial = &b
		}
		if v.Final != nil {
			b := *v.Final
			out[i].Final = &b
		}
	}
	return out
}

// Model is a Problem produced by Builder.Build. A nil dynamics func means
// every state derivative is zero.
type Model struct {
	name     string
	vars     Variables
	dynamics DynamicsFunc
	path     PathFunc
	integral []weightedIntegral
	endpoint []weightedEndpoint
}

func (m *Model) Name() string { return m.name }

func (m *Model) Variables() Variables { return copyVariables(m.vars) }

func (m *Model) Dynamics(in Input, deriv []float64) error {
	if m.dynamics == nil {
		for i := range deriv {
			deriv[i] = 0
		}
		return nil
	}
	return m.dynamics(in, deriv)
}

func (m *Model) IntegralCost(in Input) (float64, error) {
	var total float64
	for _, w := range m.integral {
		v, err := w.term.Integrand(in)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", w.term.Name(), err)
		}
		total += w.weight * v
	}
	return total, nil
}

func (m *Model) EndpointCost(final Input) (float64, error) {
	var total float64
	for _, w := range m.endpoint {
		v, err := w.term.Endpoint(final)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", w.term.Name(), err)
		}
		total += w.weight * v
	}
	return total, nil
}

func (m *Model) PathConstraints(in Input, residuals []float64) error {
	if m.path == nil {
		return nil
	}
	return m.path(in, residuals)
}

// CostTerms lists the names of the integral and endpoint terms in
// evaluation order.
func (m *Model) CostTerms() []string {
	out := make([]string, 0, len(m.integral)+len(m.endpoint))
	for _, w := range m.integral {
		out = append(out, w.term.Name())
	}
	for _, w := range m.endpoint {
		out = append(out, w.term.Name())
	}
	return out
}
