package irgen

import (
	"fmt"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/sema"
)

// allImplementedInterfaces collects every interface ci or one of its
// ancestors declares "implements" for, deduplicated by name, since a
// subclass's own generated struct is a flat layout carrying every ancestor
// field directly (sema's layoutFields) rather than an embedded base
// sub-object — the interface dispatch field needs the same treatment, or a
// subclass of an implementing class would silently lose its parent's
// interface field.
func allImplementedInterfaces(ci *sema.ClassInfo) []*ast.InterfaceDecl {
	seen := map[string]bool{}
	var out []*ast.InterfaceDecl
	for c := ci; c != nil; c = c.Base {
		for _, iface := range c.Interfaces {
			if !seen[iface.Name] {
				seen[iface.Name] = true
				out = append(out, iface)
			}
		}
	}
	return out
}

// interfaceFieldName is the struct field an implementing class carries for
// one implemented interface: a vtable pointer field distinct from the
// class's own "vtable" field, one per interface (spec section 4.5:
// "for each implemented interface, a separate vtable-pointer field in the
// struct, laid out so a pointer to the interface field is a valid pointer
// to a view of the object's vtable for that interface").
func interfaceFieldName(iface string) string { return iface + "_vtable" }

func interfaceVTableStructName(iface string) string { return iface + "_vtable" }

func interfaceVTablePtrType(iface string) ir.Type {
	return &ir.TRaw{Text: "const struct " + interfaceVTableStructName(iface) + " *"}
}

func interfaceInstanceName(class, iface string) string {
	return class + "_" + iface + "_vtable_instance"
}

// lowerInterfaceDispatch wires ci's implemented interfaces: for each one it
// ensures the interface's own single-field "view" struct exists (the type a
// pointer to ci's interface field is reinterpreted as) and builds a vtable
// instance whose slots are thunks that recover ci's real instance pointer
// before forwarding into the class's own overriding method. The interface
// field itself is added to ci's StructLayout by lowerClassLayout, since
// that's where every other field of the struct is assembled.
func (g *Generator) lowerInterfaceDispatch(ci *sema.ClassInfo) {
	for _, iface := range allImplementedInterfaces(ci) {
		g.ensureInterfaceView(iface)
		g.lowerInterfaceInstance(ci, iface)
	}
}

// ensureInterfaceView declares, once per interface no matter how many
// classes implement it, the tiny struct an interface-typed value points at:
// a single "vtable" field, so an existing VCall (which always dispatches
// through a field literally named "vtable") reads the right table without
// any change to VCall's own lowering or rendering.
func (g *Generator) ensureInterfaceView(iface *ast.InterfaceDecl) {
	if _, ok := g.structs[iface.Name]; ok {
		return
	}
	g.structs[iface.Name] = &ir.StructLayout{
		Name:   iface.Name,
		Fields: []ir.Param{{Name: "vtable", Type: interfaceVTablePtrType(iface.Name)}},
	}
}

// lowerInterfaceInstance builds ci's vtable instance for iface: one thunk
// function per interface method, each recovering ci's real object pointer
// from the interface field's own address via offsetof, then forwarding into
// ci's (possibly inherited) override. Several classes implementing the same
// interface all declare a VTable with the same struct Name and distinct
// InstanceName, so the struct type is emitted once and each class still
// gets its own instance (emit.Emit dedups by Name).
func (g *Generator) lowerInterfaceInstance(ci *sema.ClassInfo, iface *ast.InterfaceDecl) {
	className := ci.Decl.Name
	slots := make([]ir.VTableSlot, 0, len(iface.Methods))
	for _, want := range iface.Methods {
		owner, decl := vtableSlotOwner(ci, want.Name)
		if owner == nil {
			continue // sema already reported the missing method
		}
		thunkName := className + "_" + iface.Name + "_" + want.Name + "_thunk"
		g.functions[thunkName] = interfaceThunk(thunkName, className, iface.Name, owner.Decl.Name+"_"+want.Name, decl)
		params := make([]ir.Type, len(decl.Params))
		for i, p := range decl.Params {
			params[i] = lowerType(p.Type)
		}
		slots = append(slots, ir.VTableSlot{Method: want.Name, Func: thunkName, Ret: lowerType(decl.Ret), Params: params})
	}
	instanceName := interfaceInstanceName(className, iface.Name)
	g.vtables[instanceName] = &ir.VTable{
		Name:         interfaceVTableStructName(iface.Name),
		InstanceName: instanceName,
		Slots:        slots,
	}
}

// interfaceThunk builds:
//
//	static Ret Class_Iface_method_thunk(void *self, ...params) {
//	    Class *obj = (Class *)((char *)self - offsetof(Class, Iface_vtable));
//	    return Class_method(obj, ...params);
//	}
//
// self here is always the address of the caller's interface field
// (&obj->Iface_vtable), not obj itself — VCall passes its receiver as both
// the struct to dispatch through and the leading argument, and the
// receiver an interface call dispatches through is the interface field's
// own address, per interfaceFieldName's doc comment. offsetof recovers the
// enclosing object without this generator ever computing a byte offset
// itself; the C compiler does that once it lays out Class for real.
func interfaceThunk(thunkName, className, ifaceName, targetFunc string, decl *ast.FuncDecl) *ir.Function {
	classPtr := &ir.TPtr{Elem: &ir.TNamed{Name: className}}
	fieldName := interfaceFieldName(ifaceName)

	instrs := []ir.Instr{
		&ir.UnOp{
			Dest: "obj", Type: classPtr,
			Op:      "(" + className + " *)",
			Operand: &ir.ValueRaw{Text: fmt.Sprintf("((char *)self - offsetof(%s, %s))", className, fieldName)},
		},
	}

	params := []ir.Param{{Name: "self", Type: &ir.TPtr{Elem: &ir.TVoid{}}}}
	args := []ir.Value{&ir.ValueTemp{Name: "obj"}}
	for i, p := range decl.Params {
		pname := fmt.Sprintf("p%d", i)
		params = append(params, ir.Param{Name: pname, Type: lowerType(p.Type)})
		args = append(args, &ir.ValueTemp{Name: pname})
	}

	retType := lowerType(decl.Ret)
	if isVoidReturn(decl.Ret) {
		instrs = append(instrs, &ir.Call{Func: targetFunc, Args: args}, &ir.Ret{})
	} else {
		instrs = append(instrs,
			&ir.Call{Dest: "ret", Type: retType, Func: targetFunc, Args: args},
			&ir.Ret{Value: &ir.ValueTemp{Name: "ret"}},
		)
	}

	return &ir.Function{
		Name:   thunkName,
		Ret:    retType,
		Params: params,
		Blocks: []*ir.Block{{Label: "entry", Instrs: instrs}},
	}
}

func isVoidReturn(t ast.Type) bool {
	pt, ok := t.(*ast.PrimitiveType)
	return ok && pt.Kind == ast.TVoid
}

// classImplements reports whether ci or any of its ancestors declares
// "implements" for the interface named ifaceName.
func classImplements(ci *sema.ClassInfo, ifaceName string) bool {
	for c := ci; c != nil; c = c.Base {
		for _, f := range c.Interfaces {
			if f.Name == ifaceName {
				return true
			}
		}
	}
	return false
}

// coerceForInterface upcasts v from a concrete class to an interface view
// when toTy names an interface fromTy's class implements; every other
// combination returns v unchanged. This is the one place a class-typed
// value crossing into an interface-typed slot (a var's declared type, a
// parameter, an assignment target) gets turned into a genuine interface
// pointer rather than staying a same-bits class pointer that would dispatch
// through the wrong vtable field.
func (b *fb) coerceForInterface(v ir.Value, fromTy, toTy ast.Type) ir.Value {
	toName, ok := toTy.(*ast.NamedType)
	if !ok {
		return v
	}
	iface, ok := b.res.Interfaces[toName.Name]
	if !ok {
		return v
	}
	fromName, ok := fromTy.(*ast.NamedType)
	if !ok || fromName.Name == toName.Name {
		return v
	}
	ci, ok := b.res.Classes[fromName.Name]
	if !ok || !classImplements(ci, iface.Name) {
		return v
	}
	return b.lowerInterfaceUpcast(v, iface.Name)
}

// lowerInterfaceUpcast turns obj (a pointer to a class implementing iface)
// into a pointer to iface's view struct: the address of obj's own
// Iface_vtable field, reinterpreted as Iface*. Both have the same layout at
// that address (a single leading vtable pointer), which is exactly what
// lets an existing VCall dispatch through it unmodified.
func (b *fb) lowerInterfaceUpcast(obj ir.Value, ifaceName string) ir.Value {
	addr := b.g.newTemp()
	b.emit(&ir.FieldAddr{Dest: addr, Base: obj, Field: interfaceFieldName(ifaceName), Type: interfaceVTablePtrType(ifaceName)})
	cast := b.g.newTemp()
	ifacePtr := &ir.TPtr{Elem: &ir.TNamed{Name: ifaceName}}
	b.emit(&ir.UnOp{Dest: cast, Type: ifacePtr, Op: "(" + ifaceName + " *)", Operand: &ir.ValueTemp{Name: addr}})
	return &ir.ValueTemp{Name: cast}
}
