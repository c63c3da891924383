package emit

import (
	"strings"
	"testing"

	"github.com/btrc-lang/btrc/internal/ir"
)

func TestEmitHelloWorld(t *testing.T) {
	m := &ir.Module{
		EntryPoint: "main",
		Functions: []*ir.Function{
			{
				Name: "main",
				Ret:  &ir.TInt{},
				Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{
					&ir.Call{Func: "printf", Args: []ir.Value{&ir.ValueConstString{V: "hello, world\n"}}},
					&ir.Ret{Value: &ir.ValueConstInt{V: 0}},
				}}},
				HelperDeps: []string{"alloc"},
			},
		},
	}
	out, err := Emit(m, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "static long main(void) {") {
		t.Fatalf("output missing main signature:\n%s", out)
	}
	if !strings.Contains(out, `printf("hello, world\n");`) {
		t.Fatalf("output missing printf call:\n%s", out)
	}
	if !strings.Contains(out, "btrc_alloc") {
		t.Fatalf("output missing requested helper category:\n%s", out)
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	m := &ir.Module{
		Functions: []*ir.Function{
			{Name: "b", Ret: &ir.TVoid{}, Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{&ir.Ret{}}}}},
			{Name: "a", Ret: &ir.TVoid{}, Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{&ir.Ret{}}}}},
		},
	}
	out1, err := Emit(m, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	out2, err := Emit(m, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if out1 != out2 {
		t.Fatal("expected two emissions of the same module to be identical")
	}
	if strings.Index(out1, "static void a(void)") > strings.Index(out1, "static void b(void)") {
		t.Fatal("expected functions to be emitted in sorted name order")
	}
}

func TestEmitStructWithVTable(t *testing.T) {
	m := &ir.Module{
		Structs: []*ir.StructLayout{
			{Name: "Dog", VTableName: "Dog_vtable", Fields: []ir.Param{{Name: "age", Type: &ir.TInt{}}}},
		},
	}
	out, err := Emit(m, Options{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "const struct Dog_vtable *vtable;") {
		t.Fatalf("output missing vtable pointer field:\n%s", out)
	}
}
