package irgen

import (
	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/sema"
)

// lowerGCMarkFuncs generates one <Class>_gc_mark function per class the
// analyzer found capable of forming a reference cycle (spec section 4.5:
// "classes detected ... to be capable of forming reference cycles emit
// trial-deletion cycle-collection helpers; non-cyclable classes pay zero
// overhead"). Each mark function recurses into every reference-typed field,
// letting btrc_gc_collect_cycles walk an arbitrary object graph without the
// helper registry needing per-class knowledge.
func (g *Generator) lowerGCMarkFuncs() {
	if !g.res.UsesKeep {
		return
	}
	for name := range g.res.CyclableClasses {
		ci, ok := g.res.Classes[name]
		if !ok {
			continue
		}
		fn := gcMarkFunc(name, ci, g.res)
		g.functions[fn.Name] = fn
	}
}

// emitRelease releases v, following up with a cycle-collecting mark pass
// when ty is a class the analyzer found capable of forming a reference
// cycle — the only place btrc_gc_collect_cycles is ever invoked from. A
// release that hands the refcount to zero frees the object outright, same
// as for any non-cyclable class; btrc_release_maybe_cyclic itself decides
// whether that happened before touching the freed memory.
func (b *fb) emitRelease(v ir.Value, ty ast.Type) {
	if nt, ok := ty.(*ast.NamedType); ok && b.res.CyclableClasses[nt.Name] {
		b.addHelper("arc.cycle")
		b.emit(&ir.Call{Func: "btrc_release_maybe_cyclic", Args: []ir.Value{v}})
		return
	}
	b.emit(&ir.Release{V: v})
}

// gcMarkFunc builds:
//
//	static void Name_gc_mark(btrc_object *obj, int mark) {
//	    Name *self = (Name *)obj;
//	    btrc_gc_mark((btrc_object *)self->field, mark);   // per reference field
//	}
func gcMarkFunc(name string, ci *sema.ClassInfo, res *sema.Result) *ir.Function {
	objPtr := &ir.TPtr{Elem: &ir.TNamed{Name: "btrc_object"}}
	selfPtr := &ir.TPtr{Elem: &ir.TNamed{Name: name}}

	instrs := []ir.Instr{
		&ir.UnOp{Dest: "self", Type: selfPtr, Op: "(" + name + " *)", Operand: &ir.ValueTemp{Name: "obj"}},
	}

	fieldType := map[string]ast.Type{}
	var order []string
	for c := ci; c != nil; c = c.Base {
		for _, f := range c.Decl.Fields {
			if _, seen := fieldType[f.Name]; !seen {
				order = append(order, f.Name)
			}
			fieldType[f.Name] = f.Type
		}
	}
	for _, fname := range order {
		ty := fieldType[fname]
		if !isReferenceType(ty, res) {
			continue
		}
		fieldPtr := lowerType(ty)
		loadDest := fname + "_val"
		castDest := fname + "_obj"
		instrs = append(instrs,
			&ir.FieldAddr{Dest: fname + "_addr", Base: &ir.ValueTemp{Name: "self"}, Field: fname, Type: fieldPtr},
			&ir.Load{Dest: loadDest, Type: fieldPtr, Addr: &ir.ValueTemp{Name: fname + "_addr"}},
			&ir.UnOp{Dest: castDest, Type: objPtr, Op: "(btrc_object *)", Operand: &ir.ValueTemp{Name: loadDest}},
			&ir.Call{Func: "btrc_gc_mark", Args: []ir.Value{&ir.ValueTemp{Name: castDest}, &ir.ValueTemp{Name: "mark"}}},
		)
	}
	instrs = append(instrs, &ir.Ret{})

	return &ir.Function{
		Name: name + "_gc_mark",
		Ret:  &ir.TVoid{},
		Params: []ir.Param{
			{Name: "obj", Type: objPtr},
			{Name: "mark", Type: &ir.TInt{}},
		},
		HelperDeps: []string{"arc.cycle"},
		Blocks:     []*ir.Block{{Label: "entry", Instrs: instrs}},
	}
}
