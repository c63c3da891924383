package parser

import (
	"testing"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/diag"
	"github.com/btrc-lang/btrc/internal/grammar"
	"github.com/btrc-lang/btrc/internal/lexer"
)

func mustGrammar(t *testing.T) *grammar.Info {
	t.Helper()
	g, err := grammar.Load(grammar.DefaultGrammarPath)
	if err != nil {
		t.Fatalf("grammar.Load: %v", err)
	}
	return g
}

func parseSrc(t *testing.T, src string) (*ast.File, *diag.Bag) {
	t.Helper()
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := lexer.Lex(src, g, bag, "test.btrc")
	f := ParseFile(toks, bag, "test.btrc", g)
	return f, bag
}

func parseExprSrc(t *testing.T, src string) ast.Expr {
	t.Helper()
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := lexer.Lex(src, g, bag, "test.btrc")
	p := New(toks, bag, "test.btrc", g)
	e := p.parseExpr()
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	return e
}

func TestParseFuncDeclWithBody(t *testing.T) {
	f, bag := parseSrc(t, `int add(int a, int b) { return a + b; }`)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	if len(f.Decls) != 1 {
		t.Fatalf("expected 1 decl, got %d", len(f.Decls))
	}
	fn, ok := f.Decls[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("expected *ast.FuncDecl, got %T", f.Decls[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Fatalf("unexpected func decl: %+v", fn)
	}
	ret, ok := fn.Body.Stmts[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected return stmt, got %T", fn.Body.Stmts[0])
	}
	bin, ok := ret.Value.(*ast.BinaryExpr)
	if !ok || bin.Op != ast.BinAdd {
		t.Fatalf("expected a+b binary expr, got %+v", ret.Value)
	}
}

func TestParseExprPrecedence(t *testing.T) {
	e := parseExprSrc(t, "1 + 2 * 3")
	bin, ok := e.(*ast.BinaryExpr)
	if !ok || bin.Op != ast.BinAdd {
		t.Fatalf("expected top-level '+', got %+v", e)
	}
	right, ok := bin.Right.(*ast.BinaryExpr)
	if !ok || right.Op != ast.BinMul {
		t.Fatalf("expected '*' nested under '+', got %+v", bin.Right)
	}
}

func TestParseGenericArgsVsLessThan(t *testing.T) {
	e := parseExprSrc(t, "a < b")
	bin, ok := e.(*ast.BinaryExpr)
	if !ok || bin.Op != ast.BinLt {
		t.Fatalf("expected '<' comparison, got %+v", e)
	}

	f, bag := parseSrc(t, `Vector<int> v;`)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	vd, ok := f.Decls[0].(*ast.GlobalVarDecl)
	if !ok {
		t.Fatalf("expected global var decl, got %T", f.Decls[0])
	}
	nt, ok := vd.Type.(*ast.NamedType)
	if !ok || nt.Name != "Vector" || len(nt.Args) != 1 {
		t.Fatalf("expected Vector<int> named type, got %+v", vd.Type)
	}
}

func TestParseCastVsGrouping(t *testing.T) {
	e := parseExprSrc(t, "(int) x")
	cast, ok := e.(*ast.CastExpr)
	if !ok {
		t.Fatalf("expected cast expr, got %+v", e)
	}
	if _, ok := cast.Type.(*ast.PrimitiveType); !ok {
		t.Fatalf("expected primitive cast type, got %+v", cast.Type)
	}

	e2 := parseExprSrc(t, "(a + b) * c")
	bin, ok := e2.(*ast.BinaryExpr)
	if !ok || bin.Op != ast.BinMul {
		t.Fatalf("expected top-level '*' from grouped '(a+b)*c', got %+v", e2)
	}
}

func TestParseCStyleForVsForIn(t *testing.T) {
	f, bag := parseSrc(t, `void f() { for (int i = 0; i < 10; i++) { } }`)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	fn := f.Decls[0].(*ast.FuncDecl)
	forStmt, ok := fn.Body.Stmts[0].(*ast.ForStmt)
	if !ok {
		t.Fatalf("expected ForStmt, got %T", fn.Body.Stmts[0])
	}
	if _, ok := forStmt.Init.(*ast.VarDeclStmt); !ok {
		t.Fatalf("expected var decl init, got %T", forStmt.Init)
	}

	f2, bag2 := parseSrc(t, `void f() { for (x in xs) { } }`)
	if bag2.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag2.Summary())
	}
	fn2 := f2.Decls[0].(*ast.FuncDecl)
	forIn, ok := fn2.Body.Stmts[0].(*ast.ForInStmt)
	if !ok {
		t.Fatalf("expected ForInStmt, got %T", fn2.Body.Stmts[0])
	}
	if forIn.VarName != "x" {
		t.Fatalf("unexpected loop var: %q", forIn.VarName)
	}
}

func TestParseTupleTypeVsGrouping(t *testing.T) {
	f, bag := parseSrc(t, `(int, bool) pair;`)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	vd := f.Decls[0].(*ast.GlobalVarDecl)
	if _, ok := vd.Type.(*ast.TupleType); !ok {
		t.Fatalf("expected tuple type, got %+v", vd.Type)
	}

	e := parseExprSrc(t, "(a, b, c)")
	tup, ok := e.(*ast.TupleExpr)
	if !ok || len(tup.Elements) != 3 {
		t.Fatalf("expected 3-element tuple literal, got %+v", e)
	}
}

func TestParseLambdaForms(t *testing.T) {
	e1 := parseExprSrc(t, "(x) => x + 1")
	l1, ok := e1.(*ast.LambdaExpr)
	if !ok || l1.ExprBody == nil {
		t.Fatalf("expected arrow-expr lambda, got %+v", e1)
	}

	e2 := parseExprSrc(t, "(int x) => { return x; }")
	l2, ok := e2.(*ast.LambdaExpr)
	if !ok || l2.BlockBody == nil {
		t.Fatalf("expected arrow-block lambda, got %+v", e2)
	}

	e3 := parseExprSrc(t, "function(int x) -> int { return x; }")
	l3, ok := e3.(*ast.LambdaExpr)
	if !ok || l3.BlockBody == nil || l3.Ret == nil {
		t.Fatalf("expected verbose lambda with explicit return type, got %+v", e3)
	}
}

func TestParseClassDeclWithInheritance(t *testing.T) {
	src := `
class Dog extends Animal implements Speaker {
    int age;
    Dog(int age) { self.age = age; }
    string speak() { return "woof"; }
}
`
	f, bag := parseSrc(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	cd, ok := f.Decls[0].(*ast.ClassDecl)
	if !ok {
		t.Fatalf("expected class decl, got %T", f.Decls[0])
	}
	if cd.Extends != "Animal" || len(cd.Implements) != 1 || cd.Implements[0] != "Speaker" {
		t.Fatalf("unexpected inheritance clauses: %+v", cd)
	}
	if len(cd.Fields) != 1 || len(cd.Ctors) != 1 || len(cd.Methods) != 1 {
		t.Fatalf("unexpected class body: fields=%d ctors=%d methods=%d", len(cd.Fields), len(cd.Ctors), len(cd.Methods))
	}
}

func TestParseFStringEmbeddedExpr(t *testing.T) {
	e := parseExprSrc(t, `f"hello {name}, total={a + b:.2f}"`)
	fs, ok := e.(*ast.FStringExpr)
	if !ok {
		t.Fatalf("expected f-string expr, got %+v", e)
	}
	var sawIdent, sawFormatted bool
	for _, c := range fs.Chunks {
		if id, ok := c.Expr.(*ast.Ident); ok && id.Name == "name" {
			sawIdent = true
		}
		if c.Expr != nil && c.FormatSpec == ".2f" {
			sawFormatted = true
		}
	}
	if !sawIdent {
		t.Fatalf("expected an embedded 'name' identifier chunk, got %+v", fs.Chunks)
	}
	if !sawFormatted {
		t.Fatalf("expected a chunk with format spec '.2f', got %+v", fs.Chunks)
	}
}

func TestParseTryCatchFinally(t *testing.T) {
	src := `void f() {
    try {
        throw x;
    } catch (Error e) {
        return;
    } finally {
        cleanup();
    }
}`
	f, bag := parseSrc(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	fn := f.Decls[0].(*ast.FuncDecl)
	ts, ok := fn.Body.Stmts[0].(*ast.TryStmt)
	if !ok {
		t.Fatalf("expected try stmt, got %T", fn.Body.Stmts[0])
	}
	if len(ts.Catches) != 1 || ts.Finally == nil {
		t.Fatalf("unexpected try stmt shape: %+v", ts)
	}
}

func TestParseSwitchStmt(t *testing.T) {
	src := `void f(int x) {
    switch (x) {
    case 1:
    case 2:
        return;
    default:
        return;
    }
}`
	f, bag := parseSrc(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", bag.Summary())
	}
	fn := f.Decls[0].(*ast.FuncDecl)
	sw, ok := fn.Body.Stmts[0].(*ast.SwitchStmt)
	if !ok {
		t.Fatalf("expected switch stmt, got %T", fn.Body.Stmts[0])
	}
	if len(sw.Cases) != 1 || len(sw.Cases[0].Values) != 2 {
		t.Fatalf("expected one fallthrough-grouped case with 2 labels, got %+v", sw.Cases)
	}
	if sw.Default == nil {
		t.Fatal("expected a default case")
	}
}

func TestParseSyntaxErrorRecovers(t *testing.T) {
	src := `int a = ; int b = 2;`
	f, bag := parseSrc(t, src)
	if !bag.HasErrors() {
		t.Fatal("expected a diagnostic for the malformed first declaration")
	}
	found := false
	for _, d := range f.Decls {
		if gv, ok := d.(*ast.GlobalVarDecl); ok && gv.Name == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected parser to recover and still parse 'b', got decls: %+v", f.Decls)
	}
}
