package sema

import (
	"fmt"
	"sort"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/diag"
)

// Result is everything downstream stages (the IR Generator) need from a
// successful analysis.
type Result struct {
	Global         *Scope
	Classes        map[string]*ClassInfo
	Interfaces     map[string]*ast.InterfaceDecl
	Enums          map[string]*EnumInfo
	Structs        map[string]*ast.StructDecl
	Typedefs       map[string]*ast.TypedefDecl
	Functions      map[string]*ast.FuncDecl
	Instantiations []Instantiation
	// UsesKeep reports whether the "keep" annotation was applied anywhere in
	// the program (a var declaration or a parameter). Spec section 4.5: "if
	// no keep is ever applied to a given variable across all of its uses,
	// all retain/release code is elided" — this analyzer applies that rule
	// at whole-program granularity, the simplest legal interpretation, so a
	// keep-free program compiles to plain move-semantics C with zero
	// retain/release calls (the ARC-neutrality invariant).
	UsesKeep bool
	// CyclableClasses names every class whose field-reference graph can
	// reach back to itself, i.e. instances of it can participate in a
	// reference cycle. Only these classes pay for cycle-collection support.
	CyclableClasses map[string]bool
}

// Analyzer runs the two-pass check described in spec section 4.4: pass one
// collects every top-level name (so forward references between classes and
// functions resolve regardless of declaration order, unlike the teacher's
// single-pass SymbolTable which only ever looks backward), pass two walks
// every function and method body resolving identifiers, checking types,
// and recording generic instantiations.
type Analyzer struct {
	bag *diag.Bag

	global     *Scope
	classes    map[string]*ClassInfo
	interfaces map[string]*ast.InterfaceDecl
	enums      map[string]*EnumInfo
	structs    map[string]*ast.StructDecl
	typedefs   map[string]*ast.TypedefDecl
	functions  map[string]*ast.FuncDecl

	instSeen map[string]bool
	insts    []Instantiation
	usesKeep bool

	// builtins names a symbol defineBuiltins seeded into the global scope
	// so a later user-level declaration of the same name shadows it
	// silently instead of tripping the redeclaration check.
	builtins map[string]bool
}

// New creates an Analyzer that reports into bag.
func New(bag *diag.Bag) *Analyzer {
	a := &Analyzer{
		bag:        bag,
		global:     NewScope(nil),
		classes:    map[string]*ClassInfo{},
		interfaces: map[string]*ast.InterfaceDecl{},
		enums:      map[string]*EnumInfo{},
		structs:    map[string]*ast.StructDecl{},
		typedefs:   map[string]*ast.TypedefDecl{},
		functions:  map[string]*ast.FuncDecl{},
		instSeen:   map[string]bool{},
	}
	a.defineBuiltins()
	return a
}

// defineBuiltins seeds the global scope with the small set of compiler
// intrinsics that resolve without a matching declaration anywhere in the
// program, mirroring the original codegen's "print() — intercept if no
// user-defined print function exists" special case. defineTop lets a
// later user-level declaration of the same name silently replace the
// builtin rather than reporting a redeclaration.
func (a *Analyzer) defineBuiltins() {
	a.builtins = map[string]bool{"print": true}
	a.global.Define(&Symbol{Name: "print", Kind: SymFunc})
}

// Analyze runs both passes over a fully parsed file. Errors are recorded in
// the Analyzer's diag.Bag, not returned; the returned error is non-nil only
// for conditions that make further analysis meaningless (a nil file).
func (a *Analyzer) Analyze(f *ast.File) (*Result, error) {
	if f == nil {
		return nil, fmt.Errorf("sema: nil file")
	}
	a.collectDecls(f)
	a.resolveClassHierarchy()
	a.checkBodies(f)

	sort.Slice(a.insts, func(i, j int) bool { return a.insts[i].MangledName < a.insts[j].MangledName })

	return &Result{
		Global:          a.global,
		Classes:         a.classes,
		Interfaces:      a.interfaces,
		Enums:           a.enums,
		Structs:         a.structs,
		Typedefs:        a.typedefs,
		Functions:       a.functions,
		Instantiations:  a.insts,
		UsesKeep:        a.usesKeep,
		CyclableClasses: computeCyclable(a.classes),
	}, nil
}

// computeCyclable finds every class whose field-reference graph reaches
// back to itself, direct self-reference or through a chain of other
// classes' fields, spec section 4.5's "classes detected (by type-graph
// analysis) to be capable of forming reference cycles".
func computeCyclable(classes map[string]*ClassInfo) map[string]bool {
	edges := map[string][]string{}
	for name, ci := range classes {
		fieldType := map[string]ast.Type{}
		for c := ci; c != nil; c = c.Base {
			for _, f := range c.Decl.Fields {
				fieldType[f.Name] = f.Type
			}
		}
		var targets []string
		for _, ty := range fieldType {
			if t := classRefTarget(ty); t != "" {
				if _, ok := classes[t]; ok {
					targets = append(targets, t)
				}
			}
		}
		edges[name] = targets
	}
	cyclable := map[string]bool{}
	for name := range classes {
		if reachesSelf(name, name, edges, map[string]bool{}) {
			cyclable[name] = true
		}
	}
	return cyclable
}

func classRefTarget(t ast.Type) string {
	switch t := t.(type) {
	case *ast.NamedType:
		return t.Name
	case *ast.NullableType:
		return classRefTarget(t.Elem)
	case *ast.PointerType:
		return classRefTarget(t.Elem)
	default:
		return ""
	}
}

func reachesSelf(start, cur string, edges map[string][]string, visited map[string]bool) bool {
	for _, next := range edges[cur] {
		if next == start {
			return true
		}
		if visited[next] {
			continue
		}
		visited[next] = true
		if reachesSelf(start, next, edges, visited) {
			return true
		}
	}
	return false
}

// --- Pass 1: declaration collection -----------------------------------

func (a *Analyzer) collectDecls(f *ast.File) {
	for _, d := range f.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			a.defineTop(d.Name, SymFunc, nil, d, d.Pos)
			a.functions[d.Name] = d
		case *ast.ClassDecl:
			a.defineTop(d.Name, SymClass, nil, d, d.Pos)
			a.classes[d.Name] = &ClassInfo{Decl: d}
		case *ast.InterfaceDecl:
			a.defineTop(d.Name, SymInterface, nil, d, d.Pos)
			a.interfaces[d.Name] = d
		case *ast.EnumDecl:
			a.defineTop(d.Name, SymEnum, nil, d, d.Pos)
			variants := make(map[string]*ast.EnumVariant, len(d.Variants))
			for i := range d.Variants {
				variants[d.Variants[i].Name] = &d.Variants[i]
			}
			a.enums[d.Name] = &EnumInfo{Decl: d, Variants: variants}
		case *ast.StructDecl:
			a.defineTop(d.Name, SymStruct, nil, d, d.Pos)
			a.structs[d.Name] = d
		case *ast.TypedefDecl:
			a.defineTop(d.Name, SymTypedef, d.Underlying, d, d.Pos)
			a.typedefs[d.Name] = d
		case *ast.ExternDecl:
			a.defineTop(d.Name, SymFunc, nil, d, d.Pos)
		case *ast.GlobalVarDecl:
			a.defineTop(d.Name, SymVar, d.Type, d, d.Pos)
		case *ast.IncludeDecl:
			// nothing to declare
		}
	}
}

func (a *Analyzer) defineTop(name string, kind SymbolKind, ty ast.Type, decl ast.Decl, pos diag.Pos) {
	sym := &Symbol{Name: name, Kind: kind, Type: ty, Pos: decl}
	if redeclared := a.global.Define(sym); redeclared {
		if a.builtins[name] {
			delete(a.builtins, name)
			a.global.Redefine(sym)
			return
		}
		a.bag.Errorf(diag.StageAnalyzer, pos, "", "%q is already declared at file scope", name)
	}
}

// resolveClassHierarchy links each ClassInfo to its base (single
// inheritance) and its declared interfaces, and computes a deterministic
// field/vtable layout: base fields and methods first, then the class's
// own, in source order (spec section 4.7's determinism requirement).
func (a *Analyzer) resolveClassHierarchy() {
	for _, ci := range a.classes {
		if ci.Decl.Extends == "" {
			continue
		}
		base, ok := a.classes[ci.Decl.Extends]
		if !ok {
			a.bag.Errorf(diag.StageAnalyzer, ci.Decl.Pos, "", "class %q extends unknown class %q", ci.Decl.Name, ci.Decl.Extends)
			continue
		}
		ci.Base = base
	}
	for _, ci := range a.classes {
		for _, name := range ci.Decl.Implements {
			iface, ok := a.interfaces[name]
			if !ok {
				a.bag.Errorf(diag.StageAnalyzer, ci.Decl.Pos, "", "class %q implements unknown interface %q", ci.Decl.Name, name)
				continue
			}
			ci.Interfaces = append(ci.Interfaces, iface)
			a.checkInterfaceSatisfied(ci, iface)
		}
	}
	for _, ci := range a.classes {
		if cycle := detectCycle(ci); cycle {
			a.bag.Errorf(diag.StageAnalyzer, ci.Decl.Pos, "", "inheritance cycle involving class %q", ci.Decl.Name)
			ci.Base = nil
		}
	}
	for _, ci := range a.classes {
		ci.FieldOrder = layoutFields(ci)
		ci.VTable = layoutVTable(ci)
	}
}

func detectCycle(ci *ClassInfo) bool {
	slow, fast := ci, ci
	for fast != nil && fast.Base != nil {
		slow = slow.Base
		fast = fast.Base.Base
		if slow == fast {
			return true
		}
	}
	return false
}

func layoutFields(ci *ClassInfo) []string {
	var names []string
	if ci.Base != nil {
		names = append(names, layoutFields(ci.Base)...)
	}
	for _, f := range ci.Decl.Fields {
		names = append(names, f.Name)
	}
	return names
}

func layoutVTable(ci *ClassInfo) []string {
	var slots []string
	seen := map[string]int{}
	if ci.Base != nil {
		slots = layoutVTable(ci.Base)
		for i, n := range slots {
			seen[n] = i
		}
	}
	for _, m := range ci.Decl.Methods {
		if idx, ok := seen[m.Name]; ok {
			slots[idx] = m.Name // override: same slot, subclass body
			continue
		}
		seen[m.Name] = len(slots)
		slots = append(slots, m.Name)
	}
	return slots
}

func (a *Analyzer) checkInterfaceSatisfied(ci *ClassInfo, iface *ast.InterfaceDecl) {
	have := map[string]bool{}
	for c := ci; c != nil; c = c.Base {
		for _, m := range c.Decl.Methods {
			have[m.Name] = true
		}
	}
	for _, want := range iface.Methods {
		if !have[want.Name] {
			a.bag.Errorf(diag.StageAnalyzer, ci.Decl.Pos, "", "class %q does not implement method %q required by interface %q", ci.Decl.Name, want.Name, iface.Name)
		}
	}
}

// --- Pass 2: body checking ---------------------------------------------

func (a *Analyzer) checkBodies(f *ast.File) {
	for _, d := range f.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			a.checkFunc(d, a.global, nil)
		case *ast.ClassDecl:
			a.checkClassBody(d)
		}
	}
}

func (a *Analyzer) checkClassBody(d *ast.ClassDecl) {
	classScope := NewScope(a.global)
	classScope.Define(&Symbol{Name: "self", Kind: SymVar, Type: &ast.NamedType{Name: d.Name}})
	for _, f := range d.Fields {
		classScope.Define(&Symbol{Name: f.Name, Kind: SymField, Type: f.Type})
		if f.Init != nil {
			a.checkExpr(f.Init, classScope, nil)
		}
	}
	for _, m := range d.Methods {
		a.checkFunc(m, classScope, nil)
	}
	for _, c := range d.Ctors {
		a.checkFunc(c, classScope, nil)
	}
	if d.Dtor != nil {
		a.checkFunc(d.Dtor, classScope, nil)
	}
	for _, p := range d.Properties {
		if p.Getter != nil {
			a.checkBlock(p.Getter, classScope, nil)
		}
		if p.Setter != nil {
			setterScope := NewScope(classScope)
			setterScope.Define(&Symbol{Name: "value", Kind: SymParam, Type: p.Type})
			a.checkBlock(p.Setter, setterScope, nil)
		}
	}
}

func (a *Analyzer) checkFunc(fn *ast.FuncDecl, parent *Scope, funcBoundary *Scope) {
	scope := NewScope(parent)
	for _, p := range fn.Params {
		if p.ARCPolicy == ast.ARCKeep {
			a.usesKeep = true
		}
		scope.Define(&Symbol{Name: p.Name, Kind: SymParam, Type: p.Type})
	}
	if fn.Body != nil {
		a.checkBlock(fn.Body, scope, scope)
	}
}

func (a *Analyzer) checkBlock(b *ast.BlockStmt, parent *Scope, funcBoundary *Scope) {
	scope := NewScope(parent)
	for _, s := range b.Stmts {
		a.checkStmt(s, scope, funcBoundary)
	}
}

func (a *Analyzer) checkStmt(s ast.Stmt, scope *Scope, fb *Scope) {
	switch s := s.(type) {
	case *ast.VarDeclStmt:
		if s.ARCPolicy == ast.ARCKeep {
			a.usesKeep = true
		}
		if s.Init != nil {
			a.checkExpr(s.Init, scope, fb)
		}
		if s.Type != nil {
			a.checkType(s.Type, s.Pos)
		}
		if redeclared := scope.Define(&Symbol{Name: s.Name, Kind: SymVar, Type: s.Type}); redeclared {
			a.bag.Errorf(diag.StageAnalyzer, s.Pos, "", "%q is already declared in this scope", s.Name)
		}
	case *ast.AssignStmt:
		a.checkExpr(s.Target, scope, fb)
		a.checkExpr(s.Value, scope, fb)
	case *ast.ExprStmt:
		a.checkExpr(s.Expr, scope, fb)
	case *ast.IfStmt:
		a.checkExpr(s.Cond, scope, fb)
		a.checkStmt(s.Then, scope, fb)
		if s.Else != nil {
			a.checkStmt(s.Else, scope, fb)
		}
	case *ast.ForStmt:
		inner := NewScope(scope)
		if s.Init != nil {
			a.checkStmt(s.Init, inner, fb)
		}
		if s.Cond != nil {
			a.checkExpr(s.Cond, inner, fb)
		}
		if s.Post != nil {
			a.checkStmt(s.Post, inner, fb)
		}
		a.checkStmt(s.Body, inner, fb)
	case *ast.ForInStmt:
		a.checkExpr(s.Collection, scope, fb)
		inner := NewScope(scope)
		inner.Define(&Symbol{Name: s.VarName, Kind: SymVar})
		a.checkStmt(s.Body, inner, fb)
	case *ast.WhileStmt:
		a.checkExpr(s.Cond, scope, fb)
		a.checkStmt(s.Body, scope, fb)
	case *ast.DoWhileStmt:
		a.checkStmt(s.Body, scope, fb)
		a.checkExpr(s.Cond, scope, fb)
	case *ast.SwitchStmt:
		a.checkExpr(s.Tag, scope, fb)
		for _, c := range s.Cases {
			for _, v := range c.Values {
				a.checkExpr(v, scope, fb)
			}
			inner := NewScope(scope)
			for _, st := range c.Body {
				a.checkStmt(st, inner, fb)
			}
		}
		inner := NewScope(scope)
		for _, st := range s.Default {
			a.checkStmt(st, inner, fb)
		}
	case *ast.TryStmt:
		a.checkBlock(s.Body, scope, fb)
		for _, c := range s.Catches {
			a.checkType(c.Type, c.Pos)
			inner := NewScope(scope)
			inner.Define(&Symbol{Name: c.Name, Kind: SymVar, Type: c.Type})
			for _, st := range c.Body.Stmts {
				a.checkStmt(st, inner, fb)
			}
		}
		if s.Finally != nil {
			a.checkBlock(s.Finally, scope, fb)
		}
	case *ast.ThrowStmt:
		a.checkExpr(s.Value, scope, fb)
	case *ast.ReturnStmt:
		if s.Value != nil {
			a.checkExpr(s.Value, scope, fb)
		}
	case *ast.BlockStmt:
		a.checkBlock(s, scope, fb)
	case *ast.ParallelStmt:
		a.checkBlock(s.Body, scope, fb)
	case *ast.BreakStmt, *ast.ContinueStmt:
		// nothing to resolve
	}
}

func (a *Analyzer) checkExpr(e ast.Expr, scope *Scope, fb *Scope) {
	switch e := e.(type) {
	case *ast.Ident:
		if _, ok := scope.Lookup(e.Name); !ok {
			a.bag.Errorf(diag.StageAnalyzer, e.Pos, "", "undefined identifier %q", e.Name)
		}
	case *ast.MemberExpr:
		a.checkExpr(e.Recv, scope, fb)
	case *ast.IndexExpr:
		a.checkExpr(e.Recv, scope, fb)
		a.checkExpr(e.Index, scope, fb)
	case *ast.CallExpr:
		a.checkExpr(e.Callee, scope, fb)
		for _, arg := range e.Args {
			a.checkExpr(arg, scope, fb)
		}
	case *ast.UnaryExpr:
		a.checkExpr(e.Operand, scope, fb)
	case *ast.PostfixExpr:
		a.checkExpr(e.Operand, scope, fb)
	case *ast.BinaryExpr:
		a.checkExpr(e.Left, scope, fb)
		a.checkExpr(e.Right, scope, fb)
	case *ast.LogicalExpr:
		a.checkExpr(e.Left, scope, fb)
		a.checkExpr(e.Right, scope, fb)
	case *ast.NullCoalesceExpr:
		a.checkExpr(e.Left, scope, fb)
		a.checkExpr(e.Right, scope, fb)
	case *ast.TernaryExpr:
		a.checkExpr(e.Cond, scope, fb)
		a.checkExpr(e.Then, scope, fb)
		a.checkExpr(e.Else, scope, fb)
	case *ast.CastExpr:
		a.checkType(e.Type, e.Pos)
		a.checkExpr(e.Operand, scope, fb)
	case *ast.SizeofExpr:
		a.checkType(e.Type, e.Pos)
	case *ast.NewExpr:
		a.checkType(e.Type, e.Pos)
		a.recordInstantiation(e.Type)
		for _, arg := range e.Args {
			a.checkExpr(arg, scope, fb)
		}
	case *ast.DeleteExpr:
		a.checkExpr(e.Operand, scope, fb)
	case *ast.LambdaExpr:
		inner := NewScope(scope)
		for _, p := range e.Params {
			inner.Define(&Symbol{Name: p.Name, Kind: SymParam, Type: p.Type})
		}
		if e.ExprBody != nil {
			a.checkExpr(e.ExprBody, inner, inner)
		}
		if e.BlockBody != nil {
			a.checkBlock(e.BlockBody, inner, inner)
		}
	case *ast.TupleExpr:
		for _, el := range e.Elements {
			a.checkExpr(el, scope, fb)
		}
	case *ast.TupleDestructureExpr:
		for _, n := range e.Names {
			if n == "_" {
				continue
			}
			scope.Define(&Symbol{Name: n, Kind: SymVar})
		}
	case *ast.RangeExpr:
		a.checkExpr(e.Lo, scope, fb)
		a.checkExpr(e.Hi, scope, fb)
	case *ast.FStringExpr:
		for _, c := range e.Chunks {
			if c.Expr != nil {
				a.checkExpr(c.Expr, scope, fb)
			}
		}
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.CharLit, *ast.StringLit, *ast.NullLit, *ast.SelfExpr:
		// literals never need resolution
	}
}

// checkType validates a named type reference against the declared type
// universe (class/interface/enum/struct/typedef/built-in primitive) and
// records any generic instantiation it denotes.
func (a *Analyzer) checkType(t ast.Type, pos diag.Pos) {
	switch t := t.(type) {
	case *ast.NamedType:
		if !a.isKnownTypeName(t.Name) {
			a.bag.Errorf(diag.StageAnalyzer, pos, "", "unknown type %q", t.Name)
		}
		for _, arg := range t.Args {
			a.checkType(arg, pos)
		}
		a.recordInstantiation(t)
	case *ast.PointerType:
		a.checkType(t.Elem, pos)
	case *ast.NullableType:
		a.checkType(t.Elem, pos)
	case *ast.FuncType:
		for _, p := range t.Params {
			a.checkType(p, pos)
		}
		if t.Ret != nil {
			a.checkType(t.Ret, pos)
		}
	case *ast.TupleType:
		for _, el := range t.Elements {
			a.checkType(el, pos)
		}
	}
}

func (a *Analyzer) isKnownTypeName(name string) bool {
	if _, ok := a.classes[name]; ok {
		return true
	}
	if _, ok := a.interfaces[name]; ok {
		return true
	}
	if _, ok := a.enums[name]; ok {
		return true
	}
	if _, ok := a.structs[name]; ok {
		return true
	}
	if _, ok := a.typedefs[name]; ok {
		return true
	}
	if isBuiltinCollection(name) {
		return true
	}
	return false
}

func isBuiltinCollection(name string) bool {
	switch name {
	case "Vector", "List", "Array", "Map", "Set":
		return true
	}
	return false
}

// recordInstantiation records one monomorphization request when t names a
// generic class applied to concrete type arguments (spec section 4.5).
func (a *Analyzer) recordInstantiation(t ast.Type) {
	nt, ok := t.(*ast.NamedType)
	if !ok || len(nt.Args) == 0 {
		return
	}
	key := nt.String()
	if a.instSeen[key] {
		return
	}
	a.instSeen[key] = true
	a.insts = append(a.insts, Instantiation{GenericName: nt.Name, TypeArgs: nt.Args, MangledName: mangle(nt)})
}

// mangle renders a generic application's monomorphized C symbol suffix,
// following the ClassName_Args scheme (Vector<int> becomes Vector_int),
// grounded on the original reference compiler's naming convention.
func mangle(t *ast.NamedType) string {
	s := t.Name
	for _, arg := range t.Args {
		s += "_" + mangleType(arg)
	}
	return s
}

func mangleType(t ast.Type) string {
	switch t := t.(type) {
	case *ast.PrimitiveType:
		return t.Kind.String()
	case *ast.NamedType:
		return mangle(t)
	case *ast.PointerType:
		return "p" + mangleType(t.Elem)
	case *ast.NullableType:
		return "opt" + mangleType(t.Elem)
	default:
		return "t"
	}
}
