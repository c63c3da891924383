package asdlgen

import "testing"

const sample = `
module btrc {
    expr = IntLit(string text, int value)
         | BinaryExpr(binaryOp op, expr left, expr right)
    stmt = BlockStmt(stmt* stmts)
    decl = FuncDecl(identifier name, block? body)
}
`

func TestParseModule(t *testing.T) {
	mod, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if mod.Name != "btrc" {
		t.Fatalf("Name = %q, want btrc", mod.Name)
	}
	if len(mod.Types) != 3 {
		t.Fatalf("len(Types) = %d, want 3", len(mod.Types))
	}
	exprType := mod.Types[0]
	if exprType.Name != "expr" || len(exprType.Constructors) != 2 {
		t.Fatalf("expr type = %+v", exprType)
	}
	binary := exprType.Constructors[1]
	if binary.Name != "BinaryExpr" || len(binary.Fields) != 3 {
		t.Fatalf("BinaryExpr fields = %+v", binary.Fields)
	}
}

func TestParseSeqAndOptFields(t *testing.T) {
	mod, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	block := mod.Types[1].Constructors[0]
	if !block.Fields[0].Seq {
		t.Fatalf("stmts field should be a sequence: %+v", block.Fields[0])
	}
	fn := mod.Types[2].Constructors[0]
	if !fn.Fields[1].Opt {
		t.Fatalf("body field should be optional: %+v", fn.Fields[1])
	}
}

func TestParseRejectsMissingBrace(t *testing.T) {
	if _, err := Parse("module btrc { expr = IntLit(int value)"); err == nil {
		t.Fatal("expected an error for an unterminated module body")
	}
}

func TestGoFieldType(t *testing.T) {
	builtins := map[string]string{"identifier": "string", "expr": "Expr", "int": "int64"}
	got := GoFieldType(Field{Type: "expr", Seq: true}, builtins)
	if got != "[]Expr" {
		t.Fatalf("GoFieldType(seq expr) = %q, want []Expr", got)
	}
	got = GoFieldType(Field{Type: "identifier"}, builtins)
	if got != "string" {
		t.Fatalf("GoFieldType(identifier) = %q, want string", got)
	}
}
