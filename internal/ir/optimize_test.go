package ir

import "testing"

func fn(name string, instrs ...Instr) *Function {
	return &Function{Name: name, Blocks: []*Block{{Label: "entry", Instrs: instrs}}}
}

func hasFunc(m *Module, name string) bool {
	for _, f := range m.Functions {
		if f.Name == name {
			return true
		}
	}
	return false
}

func TestOptimizeDropsUnreachableFunctions(t *testing.T) {
	m := &Module{
		EntryPoint: "main",
		Functions: []*Function{
			fn("main", &Call{Func: "used"}),
			fn("used"),
			fn("dead"),
		},
	}
	out := Optimize(m)
	if !hasFunc(out, "main") || !hasFunc(out, "used") {
		t.Fatalf("expected main and used to survive: %+v", out.Functions)
	}
	if hasFunc(out, "dead") {
		t.Fatal("expected dead to be eliminated")
	}
}

func TestOptimizeTransitiveCallChain(t *testing.T) {
	m := &Module{
		EntryPoint: "main",
		Functions: []*Function{
			fn("main", &Call{Func: "a"}),
			fn("a", &Call{Func: "b"}),
			fn("b"),
			fn("c"),
		},
	}
	out := Optimize(m)
	for _, want := range []string{"main", "a", "b"} {
		if !hasFunc(out, want) {
			t.Fatalf("expected %s to survive", want)
		}
	}
	if hasFunc(out, "c") {
		t.Fatal("expected c to be eliminated")
	}
}

func TestOptimizeKeepsConstructedClassMethods(t *testing.T) {
	m := &Module{
		EntryPoint: "main",
		Functions: []*Function{
			fn("main", &New{Dest: "d", TypeName: "Dog"}),
			fn("Dog_speak"),
			fn("Cat_speak"),
		},
		Structs: []*StructLayout{{Name: "Dog"}},
	}
	out := Optimize(m)
	if !hasFunc(out, "Dog_speak") {
		t.Fatal("expected Dog_speak to survive since Dog is constructed")
	}
	if hasFunc(out, "Cat_speak") {
		t.Fatal("expected Cat_speak to be eliminated since Cat is never constructed")
	}
}

func TestOptimizeKeepsFieldTypeStructs(t *testing.T) {
	m := &Module{
		EntryPoint: "main",
		Functions: []*Function{
			fn("main", &New{Dest: "d", TypeName: "Box"}),
		},
		Structs: []*StructLayout{
			{Name: "Box", Fields: []Param{{Name: "v", Type: &TNamed{Name: "Vector_int"}}}},
			{Name: "Vector_int"},
			{Name: "Unrelated"},
		},
	}
	out := Optimize(m)
	names := map[string]bool{}
	for _, s := range out.Structs {
		names[s.Name] = true
	}
	if !names["Box"] || !names["Vector_int"] {
		t.Fatalf("expected Box and Vector_int to survive: %v", names)
	}
	if names["Unrelated"] {
		t.Fatal("expected Unrelated struct to be eliminated")
	}
}
