package ast

import (
	"testing"

	"github.com/btrc-lang/btrc/internal/diag"
)

func TestNodesImplementTaggedUnions(t *testing.T) {
	var _ Decl = &FuncDecl{}
	var _ Decl = &ClassDecl{}
	var _ Stmt = &IfStmt{}
	var _ Stmt = &ForInStmt{}
	var _ Expr = &BinaryExpr{}
	var _ Expr = &LambdaExpr{}
	var _ Type = &NamedType{}
	var _ Type = &TupleType{}
}

func TestNamedTypeStringWithGenericArgs(t *testing.T) {
	ty := &NamedType{Name: "Vector", Args: []Type{&PrimitiveType{Kind: TInt}}}
	if got, want := ty.String(), "Vector<int>"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestFuncTypeString(t *testing.T) {
	ty := &FuncType{Params: []Type{&PrimitiveType{Kind: TInt}}, Ret: &PrimitiveType{Kind: TBool}}
	if got, want := ty.String(), "(int) -> bool"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestNodesCarryPosition(t *testing.T) {
	pos := diag.Pos{Line: 3, Col: 4, File: "x.btrc"}
	n := &ReturnStmt{Pos: pos}
	if n.Position() != pos {
		t.Fatalf("Position() = %+v, want %+v", n.Position(), pos)
	}
}
