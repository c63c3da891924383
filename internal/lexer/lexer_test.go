package lexer

import (
	"testing"

	"github.com/btrc-lang/btrc/internal/diag"
	"github.com/btrc-lang/btrc/internal/grammar"
	"github.com/btrc-lang/btrc/internal/token"
)

func mustGrammar(t *testing.T) *grammar.Info {
	t.Helper()
	g, err := grammar.Load(grammar.DefaultGrammarPath)
	if err != nil {
		t.Fatalf("grammar.Load: %v", err)
	}
	return g
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, 0, len(toks))
	for _, tok := range toks {
		out = append(out, tok.Kind)
	}
	return out
}

func eqKinds(a, b []token.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLexKeywordsAndIdents(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := Lex("class Foo extends Bar { }", g, bag, "t.btrc")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	want := []token.Kind{
		token.KW_CLASS, token.IDENT, token.KW_EXTENDS, token.IDENT,
		token.LBRACE, token.RBRACE, token.EOF,
	}
	if got := kinds(toks); !eqKinds(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestLexIntegerLiterals(t *testing.T) {
	g := mustGrammar(t)
	tests := []struct {
		src  string
		want string
	}{
		{"0", "0"},
		{"42", "42"},
		{"0x1F", "0x1F"},
		{"0b1010", "0b1010"},
		{"0o17", "0o17"},
	}
	for _, tt := range tests {
		bag := diag.NewBag()
		toks := Lex(tt.src, g, bag, "t.btrc")
		if bag.HasErrors() {
			t.Fatalf("%q: unexpected errors: %s", tt.src, bag.Summary())
		}
		if len(toks) != 2 || toks[0].Kind != token.INT_LIT || toks[0].Lexeme != tt.want {
			t.Fatalf("Lex(%q) = %v, want single INT_LIT %q", tt.src, toks, tt.want)
		}
	}
}

func TestLexFloatLiterals(t *testing.T) {
	g := mustGrammar(t)
	for _, src := range []string{"3.14", ".5", "5.", "1e10", "1.5e-3", "2f", "2.0f"} {
		bag := diag.NewBag()
		toks := Lex(src, g, bag, "t.btrc")
		if bag.HasErrors() {
			t.Fatalf("%q: unexpected errors: %s", src, bag.Summary())
		}
		if len(toks) < 1 || toks[0].Kind != token.FLOAT_LIT {
			t.Fatalf("Lex(%q) = %v, want leading FLOAT_LIT", src, toks)
		}
	}
}

func TestLexStringAndCharLiterals(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := Lex(`"hi\n" 'a' '\''`, g, bag, "t.btrc")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	if toks[0].Kind != token.STRING_LIT || toks[0].Lexeme != "hi\n" {
		t.Fatalf("string literal = %+v", toks[0])
	}
	if toks[1].Kind != token.CHAR_LIT || toks[1].Lexeme != "a" {
		t.Fatalf("char literal = %+v", toks[1])
	}
	if toks[2].Kind != token.CHAR_LIT || toks[2].Lexeme != "'" {
		t.Fatalf("escaped char literal = %+v", toks[2])
	}
}

func TestLexFString(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := Lex(`f"hello {name}, you are {age + 1}"`, g, bag, "t.btrc")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	if toks[0].Kind != token.FSTRING_LIT {
		t.Fatalf("kind = %v, want FSTRING_LIT", toks[0].Kind)
	}
	want := `hello {name}, you are {age + 1}`
	if toks[0].Lexeme != want {
		t.Fatalf("lexeme = %q, want %q", toks[0].Lexeme, want)
	}
}

func TestLexOperatorsLongestMatch(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := Lex("a <<= b ?. c ?? d", g, bag, "t.btrc")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	want := []token.Kind{
		token.IDENT, token.SHL_ASSIGN, token.IDENT, token.QUESTION_DOT,
		token.IDENT, token.NULL_COALESCE, token.IDENT, token.EOF,
	}
	if got := kinds(toks); !eqKinds(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestLexCommentsAreSkipped(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := Lex("a // trailing\nb /* block */ c", g, bag, "t.btrc")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %s", bag.Summary())
	}
	want := []token.Kind{token.IDENT, token.IDENT, token.IDENT, token.EOF}
	if got := kinds(toks); !eqKinds(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestLexUnterminatedStringRecordsDiagnostic(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	Lex("\"unterminated", g, bag, "t.btrc")
	if !bag.HasErrors() {
		t.Fatal("expected a diagnostic for an unterminated string literal")
	}
}

func TestLexIllegalCharacterRecoversAndContinues(t *testing.T) {
	g := mustGrammar(t)
	bag := diag.NewBag()
	toks := Lex("a $ b", g, bag, "t.btrc")
	if !bag.HasErrors() {
		t.Fatal("expected a diagnostic for '$'")
	}
	want := []token.Kind{token.IDENT, token.ILLEGAL, token.IDENT, token.EOF}
	if got := kinds(toks); !eqKinds(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}
