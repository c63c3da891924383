// Package asdlgen parses a Zephyr-style ASDL module description, mirroring
// the tokenizer and recursive-descent parser structure of the original
// project's ASDL tool: field/constructor/type/module records built from a
// regex-split token stream. GoFieldType and RenderDoc map single fields and
// constructors to Go spellings; the package does not render whole node
// definitions. It is used only by tools/asdlgen/cmd; it is never imported
// by the compiler itself.
package asdlgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Field is one field of a Constructor: its ASDL type name, its Go field
// name, and whether it is a sequence (*) or optional (?).
type Field struct {
	Type string
	Name string
	Seq  bool
	Opt  bool
}

// Constructor is one variant of a sum type.
type Constructor struct {
	Name   string
	Fields []Field
}

// Type is one ASDL type definition: a sum of one or more constructors.
type Type struct {
	Name         string
	Constructors []Constructor
}

// Module is the parsed top-level ASDL module.
type Module struct {
	Name  string
	Types []Type
}

var tokenRE = regexp.MustCompile(`--[^\n]*|[a-zA-Z_][a-zA-Z0-9_]*|[{}()|,=?*]`)

func tokenize(src string) []string {
	var toks []string
	for _, m := range tokenRE.FindAllString(src, -1) {
		if strings.HasPrefix(m, "--") {
			continue
		}
		toks = append(toks, m)
	}
	return toks
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *parser) advance() string {
	tok := p.toks[p.pos]
	p.pos++
	return tok
}

func (p *parser) expect(want string) error {
	if p.pos >= len(p.toks) {
		return errors.Errorf("asdl: expected %q, got end of input", want)
	}
	got := p.advance()
	if got != want {
		return errors.Errorf("asdl: expected %q, got %q at token %d", want, got, p.pos-1)
	}
	return nil
}

// Parse parses ASDL source into a Module.
func Parse(src string) (*Module, error) {
	p := &parser{toks: tokenize(src)}
	if err := p.expect("module"); err != nil {
		return nil, err
	}
	if p.pos >= len(p.toks) {
		return nil, errors.New("asdl: expected module name")
	}
	name := p.advance()
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var types []Type
	for p.peek() != "}" && p.peek() != "" {
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		types = append(types, *ty)
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return &Module{Name: name, Types: types}, nil
}

func (p *parser) parseType() (*Type, error) {
	if p.pos >= len(p.toks) {
		return nil, errors.New("asdl: expected type name")
	}
	name := p.advance()
	if err := p.expect("="); err != nil {
		return nil, err
	}
	ctor, err := p.parseConstructor()
	if err != nil {
		return nil, err
	}
	ctors := []Constructor{*ctor}
	for p.peek() == "|" {
		p.advance()
		ctor, err := p.parseConstructor()
		if err != nil {
			return nil, err
		}
		ctors = append(ctors, *ctor)
	}
	return &Type{Name: name, Constructors: ctors}, nil
}

func (p *parser) parseConstructor() (*Constructor, error) {
	if p.pos >= len(p.toks) {
		return nil, errors.New("asdl: expected constructor name")
	}
	name := p.advance()
	var fields []Field
	if p.peek() == "(" {
		p.advance()
		var err error
		fields, err = p.parseFieldList()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
	}
	return &Constructor{Name: name, Fields: fields}, nil
}

func (p *parser) parseFieldList() ([]Field, error) {
	var fields []Field
	f, err := p.parseField()
	if err != nil {
		return nil, err
	}
	fields = append(fields, *f)
	for p.peek() == "," {
		p.advance()
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, nil
}

func (p *parser) parseField() (*Field, error) {
	if p.pos >= len(p.toks) {
		return nil, errors.New("asdl: expected field type")
	}
	typ := p.advance()
	seq, opt := false, false
	switch p.peek() {
	case "*":
		p.advance()
		seq = true
	case "?":
		p.advance()
		opt = true
	}
	if p.pos >= len(p.toks) {
		return nil, errors.New("asdl: expected field name")
	}
	name := p.advance()
	return &Field{Type: typ, Name: name, Seq: seq, Opt: opt}, nil
}

// GoFieldType renders f's Go type given a mapping of ASDL type names to Go
// type expressions for the node-family interfaces (expr, stmt, type, decl)
// and any auxiliary enum/struct types the module needs, e.g. "identifier" ->
// "string", "expr" -> "Expr".
func GoFieldType(f Field, builtins map[string]string) string {
	base, ok := builtins[f.Type]
	if !ok {
		base = strings.ToUpper(f.Type[:1]) + f.Type[1:]
	}
	switch {
	case f.Seq:
		return "[]" + base
	case f.Opt:
		if strings.HasPrefix(base, "*") || base == "Expr" || base == "Stmt" || base == "Type" || base == "Decl" {
			return base
		}
		return "*" + base
	default:
		return base
	}
}

// RenderDoc renders a short doc comment naming a constructor's fields.
func RenderDoc(t Type, c Constructor) string {
	if len(c.Fields) == 0 {
		return fmt.Sprintf("%s is a %s with no fields.", c.Name, t.Name)
	}
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s is a %s node: %s.", c.Name, t.Name, strings.Join(names, ", "))
}
