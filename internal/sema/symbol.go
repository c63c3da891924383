package sema

import "github.com/btrc-lang/btrc/internal/ast"

// SymbolKind classifies what a Symbol names.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymParam
	SymFunc
	SymClass
	SymInterface
	SymEnum
	SymStruct
	SymTypedef
	SymField
	SymTypeParam
)

// Symbol is one resolved declaration: a variable, function, class, etc.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Type  ast.Type // resolved type, nil for SymClass/SymInterface/SymEnum/SymStruct themselves
	Pos   ast.Decl // originating declaration, for cross-referencing during codegen; may be nil for params/locals
	Const bool
}

// ClassInfo records everything the Analyzer determines about one class:
// its resolved base, the interfaces it structurally satisfies, its field
// layout order (needed by the Emitter for deterministic struct layout,
// spec section 4.7), and its vtable's method set.
type ClassInfo struct {
	Decl       *ast.ClassDecl
	Base       *ClassInfo // nil if no "extends"
	Interfaces []*ast.InterfaceDecl
	FieldOrder []string // declaration order, base fields first
	VTable     []string // method names in dispatch-slot order
}

// EnumInfo records a resolved enum's variants.
type EnumInfo struct {
	Decl     *ast.EnumDecl
	Variants map[string]*ast.EnumVariant
}

// Instantiation identifies one concrete monomorphization of a generic
// class or function: the generic's name, its resolved type arguments, and
// the mangled C name of the application, e.g. "Vector_int" for Vector<int>.
// The IR Generator consumes
// the set of Instantiations the Analyzer collects to know exactly which
// concrete bodies to emit (spec section 4.5's monomorphization).
type Instantiation struct {
	GenericName string
	TypeArgs    []ast.Type
	MangledName string
}
