// Package helpers implements the Helper Registry (spec section: every
// piece of generated C that is not specific to one class or function --
// allocation, ARC bookkeeping, collection bodies, try/catch scaffolding --
// lives in a named category here, so the Emitter can emit exactly the
// categories a given translation unit's IR actually needs, each inlined
// once regardless of how many call sites require it, keeping the output
// self-contained with no external runtime library).
package helpers

import (
	"sort"
	"strings"
)

// Category is one named block of reusable generated C, plus the other
// categories it depends on (e.g. "arc.cycle" depends on "arc").
type Category struct {
	Name    string
	Depends []string
	Source  string
}

// Registry holds every known helper category.
type Registry struct {
	categories map[string]Category
}

// NewRegistry builds the registry with every built-in helper category
// wired up.
func NewRegistry() *Registry {
	r := &Registry{categories: map[string]Category{}}
	for _, c := range builtins() {
		r.categories[c.Name] = c
	}
	return r
}

// Register adds or replaces a category in r.
func (r *Registry) Register(c Category) {
	r.categories[c.Name] = c
}

// Resolve returns the full transitive closure of requested category names,
// in dependency order (a category always appears after everything it
// depends on), with duplicates removed.
func (r *Registry) Resolve(requested []string) ([]string, error) {
	var order []string
	visiting := map[string]bool{}
	done := map[string]bool{}

	var visit func(name string) error
	visit = func(name string) error {
		if done[name] {
			return nil
		}
		if visiting[name] {
			return &CycleError{Category: name}
		}
		c, ok := r.categories[name]
		if !ok {
			return &UnknownCategoryError{Category: name}
		}
		visiting[name] = true
		deps := append([]string(nil), c.Depends...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		done[name] = true
		order = append(order, name)
		return nil
	}

	names := append([]string(nil), requested...)
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Render concatenates the C source of each named category, in the order
// given (callers should pass Resolve's output for a dependency-correct
// emission order), separated by a blank line.
func (r *Registry) Render(names []string) string {
	var sb strings.Builder
	for i, name := range names {
		c, ok := r.categories[name]
		if !ok {
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.Source)
		sb.WriteString("\n")
	}
	return sb.String()
}

// UnknownCategoryError reports a request for a category the registry does
// not know.
type UnknownCategoryError struct{ Category string }

func (e *UnknownCategoryError) Error() string { return "helpers: unknown category " + e.Category }

// CycleError reports a dependency cycle discovered while resolving.
type CycleError struct{ Category string }

func (e *CycleError) Error() string {
	return "helpers: dependency cycle involving category " + e.Category
}
