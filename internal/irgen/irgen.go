// Package irgen is the IR Generator (spec section 4.5): it lowers a checked
// ast.File plus its sema.Result into an ir.Module, one function per free
// function and per class method, one struct layout per class and struct,
// and one concrete function/struct family per recorded generic
// Instantiation (monomorphization). Control flow lowers to labeled blocks
// and explicit branches; ARC-managed assignments emit Retain/Release pairs;
// "new" lowers to allocation plus a constructor call; try/throw lowers to
// the trycatch helper category's push/pop/longjmp protocol.
package irgen

import (
	"fmt"
	"sort"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/sema"
)

// Generator holds all state accumulated while lowering one translation
// unit.
type Generator struct {
	res *sema.Result

	structs   map[string]*ir.StructLayout
	vtables   map[string]*ir.VTable
	functions map[string]*ir.Function
	globals   []*ir.Global

	tmp   int
	label int
}

// Generate lowers f (already checked against res) to an ir.Module.
func Generate(f *ast.File, res *sema.Result) *ir.Module {
	g := &Generator{
		res:       res,
		structs:   map[string]*ir.StructLayout{},
		vtables:   map[string]*ir.VTable{},
		functions: map[string]*ir.Function{},
	}

	for _, ci := range sortedClasses(res.Classes) {
		g.lowerClassLayout(ci)
	}
	for _, ci := range sortedClasses(res.Classes) {
		g.lowerInterfaceDispatch(ci)
	}
	for name, sd := range res.Structs {
		g.structs[name] = &ir.StructLayout{Name: name, Fields: g.structFields(sd)}
	}

	for _, d := range f.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			if d.Body != nil && len(d.TypeParams) == 0 {
				g.lowerFunc(d.Name, d, nil, "")
			}
		case *ast.ClassDecl:
			if len(d.TypeParams) == 0 {
				g.lowerClass(d)
			}
		case *ast.GlobalVarDecl:
			g.globals = append(g.globals, &ir.Global{Name: d.Name, Type: lowerType(d.Type), Init: g.constInitOrNil(d.Init)})
		}
	}

	for _, inst := range res.Instantiations {
		g.lowerInstantiation(inst)
	}

	g.lowerGCMarkFuncs()

	m := &ir.Module{
		Structs:    sortedStructSlice(g.structs),
		VTables:    sortedVTableSlice(g.vtables),
		Globals:    g.globals,
		Functions:  sortedFuncSlice(g.functions),
		EntryPoint: "main",
	}
	return m
}

func sortedClasses(m map[string]*sema.ClassInfo) []*sema.ClassInfo {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*sema.ClassInfo, len(names))
	for i, n := range names {
		out[i] = m[n]
	}
	return out
}

func sortedStructSlice(m map[string]*ir.StructLayout) []*ir.StructLayout {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*ir.StructLayout, len(names))
	for i, n := range names {
		out[i] = m[n]
	}
	return out
}

func sortedVTableSlice(m map[string]*ir.VTable) []*ir.VTable {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*ir.VTable, len(names))
	for i, n := range names {
		out[i] = m[n]
	}
	return out
}

func sortedFuncSlice(m map[string]*ir.Function) []*ir.Function {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*ir.Function, len(names))
	for i, n := range names {
		out[i] = m[n]
	}
	return out
}

// --- classes ---------------------------------------------------------------

func (g *Generator) lowerClassLayout(ci *sema.ClassInfo) {
	name := ci.Decl.Name
	fields := make([]ir.Param, 0, len(ci.FieldOrder))
	fieldType := map[string]ast.Type{}
	for c := ci; c != nil; c = c.Base {
		for _, f := range c.Decl.Fields {
			fieldType[f.Name] = f.Type
		}
	}
	for _, fname := range ci.FieldOrder {
		fields = append(fields, ir.Param{Name: fname, Type: lowerType(fieldType[fname])})
	}
	vtable := ""
	if len(ci.VTable) > 0 {
		vtable = name + "_vtable"
		g.vtables[name] = buildVTable(vtable, ci)
	}
	for _, iface := range allImplementedInterfaces(ci) {
		fields = append(fields, ir.Param{Name: interfaceFieldName(iface.Name), Type: interfaceVTablePtrType(iface.Name)})
	}
	g.structs[name] = &ir.StructLayout{Name: name, Fields: fields, VTableName: vtable, HasHeader: g.res.UsesKeep}
}

// buildVTable resolves each dispatch slot to the nearest class in the
// inheritance chain (starting at ci itself) that actually declares that
// method, so an overridden slot binds to the subclass body and an
// inherited one binds to the ancestor's.
func buildVTable(name string, ci *sema.ClassInfo) *ir.VTable {
	slots := make([]ir.VTableSlot, 0, len(ci.VTable))
	for _, mname := range ci.VTable {
		owner, m := vtableSlotOwner(ci, mname)
		if owner == nil {
			continue
		}
		params := make([]ir.Type, len(m.Params))
		for i, p := range m.Params {
			params[i] = lowerType(p.Type)
		}
		slots = append(slots, ir.VTableSlot{
			Method: mname,
			Func:   owner.Decl.Name + "_" + mname,
			Ret:    lowerType(m.Ret),
			Params: params,
		})
	}
	return &ir.VTable{Name: name, Slots: slots}
}

func vtableSlotOwner(ci *sema.ClassInfo, method string) (*sema.ClassInfo, *ast.FuncDecl) {
	for c := ci; c != nil; c = c.Base {
		for _, m := range c.Decl.Methods {
			if m.Name == method {
				return c, m
			}
		}
	}
	return nil, nil
}

func (g *Generator) structFields(sd *ast.StructDecl) []ir.Param {
	out := make([]ir.Param, 0, len(sd.Fields))
	for _, f := range sd.Fields {
		out = append(out, ir.Param{Name: f.Name, Type: lowerType(f.Type)})
	}
	return out
}

func (g *Generator) lowerClass(cd *ast.ClassDecl) {
	self := &ast.NamedType{Name: cd.Name}
	for _, ctor := range cd.Ctors {
		g.lowerFunc(cd.Name+"_"+ctor.Name, ctor, self, cd.Name)
	}
	if cd.Dtor != nil {
		g.lowerFunc(cd.Name+"_dtor", cd.Dtor, self, cd.Name)
	}
	for _, m := range cd.Methods {
		if m.Body != nil {
			g.lowerFunc(cd.Name+"_"+m.Name, m, self, cd.Name)
		}
	}
	for _, p := range cd.Properties {
		if p.Getter != nil {
			g.lowerAccessor(cd.Name+"_get_"+p.Name, p.Getter, self, cd.Name, nil, p.Type)
		}
		if p.Setter != nil {
			valueParam := ast.Param{Name: "value", Type: p.Type}
			g.lowerAccessor(cd.Name+"_set_"+p.Name, p.Setter, self, cd.Name, []ast.Param{valueParam}, &ast.PrimitiveType{Kind: ast.TVoid})
		}
	}
}

func (g *Generator) lowerAccessor(name string, body *ast.BlockStmt, selfType ast.Type, className string, extra []ast.Param, ret ast.Type) {
	fn := &ast.FuncDecl{Name: name, Params: extra, Ret: ret, Body: body}
	g.lowerFunc(name, fn, selfType, className)
}

// --- generics ----------------------------------------------------------

// lowerInstantiation lowers one monomorphized generic class: it clones the
// generic ClassDecl's methods with each occurrence of a type parameter
// replaced by its concrete type argument, then lowers the result exactly
// like an ordinary class, giving every instantiation its own struct layout
// and function family named after the mangled instance (e.g. Vector_int).
func (g *Generator) lowerInstantiation(inst sema.Instantiation) {
	if g.lowerBuiltinInstantiation(inst) {
		return
	}
	ci, ok := g.res.Classes[inst.GenericName]
	if !ok {
		return
	}
	subst := map[string]ast.Type{}
	for i, tp := range ci.Decl.TypeParams {
		if i < len(inst.TypeArgs) {
			subst[tp] = inst.TypeArgs[i]
		}
	}
	mono := substClassDecl(ci.Decl, inst.MangledName, subst)
	g.lowerClassLayout(&sema.ClassInfo{Decl: mono, Base: ci.Base, FieldOrder: monoFieldOrder(ci, subst, mono), VTable: ci.VTable})
	g.lowerClass(mono)
}

func monoFieldOrder(ci *sema.ClassInfo, subst map[string]ast.Type, mono *ast.ClassDecl) []string {
	var order []string
	if ci.Base != nil {
		order = append(order, ci.Base.FieldOrder...)
	}
	for _, f := range mono.Fields {
		order = append(order, f.Name)
	}
	return order
}

func substClassDecl(cd *ast.ClassDecl, newName string, subst map[string]ast.Type) *ast.ClassDecl {
	out := &ast.ClassDecl{
		Pos: cd.Pos, Name: newName, Extends: cd.Extends, Implements: cd.Implements,
	}
	for _, f := range cd.Fields {
		out.Fields = append(out.Fields, &ast.FieldDecl{Pos: f.Pos, Name: f.Name, Type: substType(f.Type, subst), Init: f.Init, IsPublic: f.IsPublic, IsStatic: f.IsStatic, ARCPolicy: f.ARCPolicy})
	}
	for _, m := range cd.Methods {
		out.Methods = append(out.Methods, substFuncDecl(m, subst))
	}
	for _, c := range cd.Ctors {
		out.Ctors = append(out.Ctors, substFuncDecl(c, subst))
	}
	if cd.Dtor != nil {
		out.Dtor = substFuncDecl(cd.Dtor, subst)
	}
	return out
}

func substFuncDecl(fn *ast.FuncDecl, subst map[string]ast.Type) *ast.FuncDecl {
	out := &ast.FuncDecl{Pos: fn.Pos, Name: fn.Name, Ret: substType(fn.Ret, subst), Body: fn.Body, IsStatic: fn.IsStatic, IsGPU: fn.IsGPU}
	for _, p := range fn.Params {
		out.Params = append(out.Params, ast.Param{Pos: p.Pos, Name: p.Name, Type: substType(p.Type, subst), ARCPolicy: p.ARCPolicy})
	}
	return out
}

func substType(t ast.Type, subst map[string]ast.Type) ast.Type {
	if t == nil {
		return nil
	}
	switch t := t.(type) {
	case *ast.NamedType:
		if repl, ok := subst[t.Name]; ok && len(t.Args) == 0 {
			return repl
		}
		args := make([]ast.Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = substType(a, subst)
		}
		return &ast.NamedType{Name: t.Name, Args: args}
	case *ast.PointerType:
		return &ast.PointerType{Elem: substType(t.Elem, subst)}
	case *ast.NullableType:
		return &ast.NullableType{Elem: substType(t.Elem, subst)}
	default:
		return t
	}
}

// --- shared temp/label allocation ----------------------------------------

func (g *Generator) newTemp() string {
	g.tmp++
	return fmt.Sprintf("t%d", g.tmp)
}

func (g *Generator) newLabel(prefix string) string {
	g.label++
	return fmt.Sprintf("%s%d", prefix, g.label)
}

func (g *Generator) freshLambdaName() string {
	g.tmp++
	return fmt.Sprintf("lambda_%d", g.tmp)
}

func (g *Generator) constInitOrNil(e ast.Expr) ir.Value {
	if e == nil {
		return nil
	}
	switch e := e.(type) {
	case *ast.IntLit:
		return &ir.ValueConstInt{V: e.Value}
	case *ast.FloatLit:
		return &ir.ValueConstFloat{V: e.Value}
	case *ast.BoolLit:
		return &ir.ValueConstBool{V: e.Value}
	case *ast.StringLit:
		return &ir.ValueConstString{V: e.Value}
	case *ast.NullLit:
		return &ir.ValueNull{}
	default:
		return nil
	}
}

func lowerType(t ast.Type) ir.Type {
	if t == nil {
		return &ir.TVoid{}
	}
	switch t := t.(type) {
	case *ast.PrimitiveType:
		switch t.Kind {
		case ast.TInt:
			return &ir.TInt{}
		case ast.TFloat:
			return &ir.TFloat{}
		case ast.TDouble:
			return &ir.TDouble{}
		case ast.TChar:
			return &ir.TChar{}
		case ast.TBool:
			return &ir.TBool{}
		case ast.TString:
			// btrc_string is a small by-value struct (data pointer + length),
			// matching every strops/fstring helper that takes and returns it
			// by value (btrc_string_concat, btrc_string_from_cstr, ...) — not
			// a pointer to one.
			return &ir.TNamed{Name: "btrc_string"}
		default:
			return &ir.TVoid{}
		}
	case *ast.NamedType:
		name := t.Name
		if len(t.Args) > 0 {
			name = mangleNamed(t)
		}
		return &ir.TPtr{Elem: &ir.TNamed{Name: name}}
	case *ast.PointerType:
		return &ir.TPtr{Elem: lowerType(t.Elem)}
	case *ast.NullableType:
		return lowerType(t.Elem)
	case *ast.FuncType:
		return &ir.TPtr{Elem: &ir.TVoid{}}
	case *ast.TupleType:
		return &ir.TPtr{Elem: &ir.TVoid{}}
	default:
		return &ir.TVoid{}
	}
}

func mangleNamed(t *ast.NamedType) string {
	s := t.Name
	for _, a := range t.Args {
		switch a := a.(type) {
		case *ast.PrimitiveType:
			s += "_" + a.Kind.String()
		case *ast.NamedType:
			s += "_" + mangleNamed(a)
		default:
			s += "_t"
		}
	}
	return s
}

// isReferenceType reports whether t denotes a heap-allocated, ARC-managed
// value (a class instance), as opposed to a scalar or struct.
func isReferenceType(t ast.Type, res *sema.Result) bool {
	nt, ok := t.(*ast.NamedType)
	if !ok {
		return false
	}
	_, ok = res.Classes[nt.Name]
	return ok
}
