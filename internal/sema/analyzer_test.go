package sema

import (
	"testing"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/diag"
)

func pos() diag.Pos { return diag.Pos{Line: 1, Col: 1, File: "t.btrc"} }

func TestForwardReferenceResolves(t *testing.T) {
	f := &ast.File{Decls: []ast.Decl{
		&ast.FuncDecl{Pos: pos(), Name: "main", Body: &ast.BlockStmt{Pos: pos(), Stmts: []ast.Stmt{
			&ast.ExprStmt{Pos: pos(), Expr: &ast.CallExpr{Pos: pos(), Callee: &ast.Ident{Pos: pos(), Name: "helper"}}},
		}}},
		&ast.FuncDecl{Pos: pos(), Name: "helper", Body: &ast.BlockStmt{Pos: pos()}},
	}}
	bag := diag.NewBag()
	res, err := New(bag).Analyze(f)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	if _, ok := res.Functions["helper"]; !ok {
		t.Fatal("expected helper to be recorded")
	}
}

func TestUndefinedIdentifierReported(t *testing.T) {
	f := &ast.File{Decls: []ast.Decl{
		&ast.FuncDecl{Pos: pos(), Name: "main", Body: &ast.BlockStmt{Pos: pos(), Stmts: []ast.Stmt{
			&ast.ExprStmt{Pos: pos(), Expr: &ast.Ident{Pos: pos(), Name: "nope"}},
		}}},
	}}
	bag := diag.NewBag()
	New(bag).Analyze(f)
	if !bag.HasErrors() {
		t.Fatal("expected an undefined identifier diagnostic")
	}
}

func TestDuplicateTopLevelDeclReported(t *testing.T) {
	f := &ast.File{Decls: []ast.Decl{
		&ast.FuncDecl{Pos: pos(), Name: "dup"},
		&ast.FuncDecl{Pos: pos(), Name: "dup"},
	}}
	bag := diag.NewBag()
	New(bag).Analyze(f)
	if !bag.HasErrors() {
		t.Fatal("expected a redeclaration diagnostic")
	}
}

func TestClassHierarchyFieldAndVTableOrder(t *testing.T) {
	base := &ast.ClassDecl{Pos: pos(), Name: "Animal",
		Fields:  []*ast.FieldDecl{{Pos: pos(), Name: "age", Type: &ast.PrimitiveType{Kind: ast.TInt}}},
		Methods: []*ast.FuncDecl{{Pos: pos(), Name: "speak"}},
	}
	derived := &ast.ClassDecl{Pos: pos(), Name: "Dog", Extends: "Animal",
		Fields:  []*ast.FieldDecl{{Pos: pos(), Name: "breed", Type: &ast.PrimitiveType{Kind: ast.TString}}},
		Methods: []*ast.FuncDecl{{Pos: pos(), Name: "speak"}, {Pos: pos(), Name: "fetch"}},
	}
	f := &ast.File{Decls: []ast.Decl{base, derived}}
	bag := diag.NewBag()
	res, err := New(bag).Analyze(f)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	dog := res.Classes["Dog"]
	if len(dog.FieldOrder) != 2 || dog.FieldOrder[0] != "age" || dog.FieldOrder[1] != "breed" {
		t.Fatalf("FieldOrder = %v, want [age breed]", dog.FieldOrder)
	}
	if len(dog.VTable) != 2 || dog.VTable[0] != "speak" || dog.VTable[1] != "fetch" {
		t.Fatalf("VTable = %v, want [speak fetch]", dog.VTable)
	}
}

func TestInterfaceNotSatisfiedReported(t *testing.T) {
	iface := &ast.InterfaceDecl{Pos: pos(), Name: "Speaker", Methods: []*ast.FuncDecl{{Pos: pos(), Name: "speak"}}}
	cls := &ast.ClassDecl{Pos: pos(), Name: "Rock", Implements: []string{"Speaker"}}
	f := &ast.File{Decls: []ast.Decl{iface, cls}}
	bag := diag.NewBag()
	New(bag).Analyze(f)
	if !bag.HasErrors() {
		t.Fatal("expected an unsatisfied-interface diagnostic")
	}
}

func TestGenericInstantiationRecorded(t *testing.T) {
	f := &ast.File{Decls: []ast.Decl{
		&ast.FuncDecl{Pos: pos(), Name: "main", Body: &ast.BlockStmt{Pos: pos(), Stmts: []ast.Stmt{
			&ast.VarDeclStmt{Pos: pos(), Name: "v",
				Type: &ast.NamedType{Name: "Vector", Args: []ast.Type{&ast.PrimitiveType{Kind: ast.TInt}}},
				Init: &ast.NewExpr{Pos: pos(), Type: &ast.NamedType{Name: "Vector", Args: []ast.Type{&ast.PrimitiveType{Kind: ast.TInt}}}},
			},
		}}},
	}}
	bag := diag.NewBag()
	res, err := New(bag).Analyze(f)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	if len(res.Instantiations) != 1 || res.Instantiations[0].MangledName != "Vector_int" {
		t.Fatalf("Instantiations = %+v, want one Vector_int", res.Instantiations)
	}
}
