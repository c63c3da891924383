package helpers

import (
	"strings"
	"testing"
)

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	r := NewRegistry()
	order, err := r.Resolve([]string{"arc.cycle"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	idx := map[string]int{}
	for i, n := range order {
		idx[n] = i
	}
	if idx["alloc"] >= idx["arc"] || idx["arc"] >= idx["arc.cycle"] {
		t.Fatalf("expected alloc < arc < arc.cycle, got %v", order)
	}
}

func TestResolveDeduplicatesSharedDependencies(t *testing.T) {
	r := NewRegistry()
	order, err := r.Resolve([]string{"strops", "fstring", "collection.vector"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	seen := map[string]int{}
	for _, n := range order {
		seen[n]++
	}
	for name, count := range seen {
		if count != 1 {
			t.Fatalf("category %q appears %d times, want 1", name, count)
		}
	}
	if seen["alloc"] == 0 {
		t.Fatal("expected alloc to be pulled in transitively")
	}
}

func TestResolveUnknownCategory(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve([]string{"nope"}); err == nil {
		t.Fatal("expected an UnknownCategoryError")
	}
}

func TestRenderConcatenatesInOrder(t *testing.T) {
	r := NewRegistry()
	order, err := r.Resolve([]string{"intdiv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out := r.Render(order)
	if !strings.Contains(out, "btrc_idiv") {
		t.Fatalf("Render output missing btrc_idiv: %q", out)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	r := NewRegistry()
	r.Register(Category{Name: "x", Depends: []string{"y"}})
	r.Register(Category{Name: "y", Depends: []string{"x"}})
	if _, err := r.Resolve([]string{"x"}); err == nil {
		t.Fatal("expected a CycleError")
	}
}
