// Package resolver orders container specs so that every container starts after
// the containers it links to or mounts volumes from.
package resolver

import (
	"fmt"

	"github.com/melih/lighthouse-up/internal/core/domain"
)

// ExternalFunc reports whether a dependency outside the given specs is already
// satisfied, e.g. by a container that is running outside the batch.
type ExternalFunc func(name string) (bool, error)

// Option configures Resolve.
type Option func(*resolver)

// WithExternal allows dependencies that are satisfied outside the batch.
func WithExternal(fn ExternalFunc) Option {
	return func(r *resolver) { r.external = fn }
}

type color int

const (
	white color = iota
	grey
	black
)

type resolver struct {
	specs    []domain.ContainerSpec
	index    map[string]int
	color    []color
	stack    []int
	order    []domain.ContainerSpec
	external ExternalFunc
}

// Resolve returns specs in a safe start order. Independent specs keep their
// declaration order. A dependency cycle yields *domain.CycleError, and a
// reference that nothing provides yields *domain.UnresolvedDependencyError.
func Resolve(specs []domain.ContainerSpec, opts ...Option) ([]domain.ContainerSpec, error) {
	r := &resolver{
		specs: specs,
		index: make(map[string]int, len(specs)*2),
		color: make([]color, len(specs)),
		order: make([]domain.ContainerSpec, 0, len(specs)),
	}
	for _, opt := range opts {
		opt(r)
	}
	for i, spec := range specs {
		if _, ok := r.index[spec.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate container name %q", domain.ErrInvalidSpec, spec.Name)
		}
		r.index[spec.Name] = i
	}
	for i, spec := range specs {
		if spec.Alias == "" || spec.Alias == spec.Name {
			continue
		}
		if _, ok := r.index[spec.Alias]; ok {
			return nil, fmt.Errorf("%w: alias %q clashes with another container", domain.ErrInvalidSpec, spec.Alias)
		}
		r.index[spec.Alias] = i
	}

	for i := range specs {
		if err := r.visit(i); err != nil {
			return nil, err
		}
	}
	return r.order, nil
}

// visit walks dependencies first and appends a spec once all of them are
// placed. The finish order over depends-on edges equals the reverse post-order
// over start-before edges.
func (r *resolver) visit(i int) error {
	switch r.color[i] {
	case black:
		return nil
	case grey:
		return r.cycleFrom(i)
	}
	r.color[i] = grey
	r.stack = append(r.stack, i)

	spec := r.specs[i]
	for _, dep := range spec.Dependencies() {
		j, ok := r.index[dep]
		if !ok {
			if err := r.checkExternal(spec.Name, dep); err != nil {
				return err
			}
			continue
		}
		if err := r.visit(j); err != nil {
			return err
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	r.color[i] = black
	r.order = append(r.order, spec)
	return nil
}

func (r *resolver) cycleFrom(i int) error {
	var names []string
	for k := len(r.stack) - 1; k >= 0; k-- {
		if r.stack[k] == i {
			for _, idx := range r.stack[k:] {
				names = append(names, r.specs[idx].Name)
			}
			break
		}
	}
	return &domain.CycleError{Names: names}
}

func (r *resolver) checkExternal(name, dep string) error {
	if r.external != nil {
		ok, err := r.external(dep)
		if err != nil {
			return fmt.Errorf("%s: look up dependency %q: %w", name, dep, err)
		}
		if ok {
			return nil
		}
	}
	return &domain.UnresolvedDependencyError{Name: name, Dependency: dep}
}
