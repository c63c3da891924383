// Package parser implements the recursive-descent Parser (spec section
// 4.3) that turns a Lexer token stream into an *ast.File. It follows the
// @syntax section of the grammar file byte for byte (see
// internal/grammar/testdata/btrc.ebnf) while resolving the five
// disambiguations the grammar alone cannot: generic-args vs "<" as a
// comparison, a parenthesized cast vs a grouping expression, a C-style for
// vs a for-in loop, a tuple type vs a parenthesized single type, and the
// three lambda surface forms. Diagnostics are recorded into a diag.Bag and
// parsing resumes at the next statement/declaration boundary (panic-mode
// recovery), matching the batched-report contract the Lexer already
// follows.
package parser

import (
	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/diag"
	"github.com/btrc-lang/btrc/internal/grammar"
	"github.com/btrc-lang/btrc/internal/token"
)

// Parser holds all state for one parse of a token stream.
type Parser struct {
	toks []token.Token
	pos  int
	bag  *diag.Bag
	file string
	g    *grammar.Info // needed only to re-lex f-string embedded expressions
}

// New creates a Parser over toks (as produced by lexer.Lex), reporting
// diagnostics into bag. g is the same grammar used to produce toks; it is
// needed to re-lex the embedded expressions inside f-string chunks, which
// the Lexer leaves as raw unparsed text.
func New(toks []token.Token, bag *diag.Bag, file string, g *grammar.Info) *Parser {
	return &Parser{toks: toks, bag: bag, file: file, g: g}
}

// ParseFile parses a full translation unit.
func ParseFile(toks []token.Token, bag *diag.Bag, file string, g *grammar.Info) *ast.File {
	p := New(toks, bag, file, g)
	return p.parseFile()
}

// --- token stream helpers ------------------------------------------------

func (p *Parser) cur() token.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return token.Token{Kind: token.EOF}
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) peekAt(offset int, k token.Kind) bool {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return k == token.EOF
	}
	return p.toks[idx].Kind == k
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 || t.Kind != token.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) pos_() diag.Pos {
	t := p.cur()
	return diag.Pos{Line: t.Line, Col: t.Col, Offset: t.Offset, File: p.file}
}

func (p *Parser) expect(k token.Kind, what string) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	p.bag.Errorf(diag.StageParser, p.pos_(), "", "expected %s, found %s %q", what, p.cur().Kind, p.cur().Lexeme)
	return p.cur(), false
}

// syncTo consumes tokens until one of kinds (or a top-level statement
// boundary ';'/'}' /EOF) is found, implementing panic-mode recovery so a
// single malformed declaration or statement does not stop the whole parse.
func (p *Parser) syncTo(kinds ...token.Kind) {
	for !p.at(token.EOF) {
		for _, k := range kinds {
			if p.at(k) {
				return
			}
		}
		if p.at(token.SEMICOLON) {
			p.advance()
			return
		}
		if p.at(token.RBRACE) {
			return
		}
		p.advance()
	}
}

// --- top level -------------------------------------------------------------

func (p *Parser) parseFile() *ast.File {
	f := &ast.File{Path: p.file}
	for !p.at(token.EOF) {
		d := p.parseDecl()
		if d != nil {
			f.Decls = append(f.Decls, d)
		}
	}
	return f
}

func (p *Parser) parseDecl() ast.Decl {
	switch p.cur().Kind {
	case token.KW_CLASS:
		return p.parseClassDecl()
	case token.KW_INTERFACE:
		return p.parseInterfaceDecl()
	case token.KW_ENUM:
		return p.parseEnumDecl()
	case token.KW_STRUCT:
		return p.parseStructDecl()
	case token.KW_TYPEDEF:
		return p.parseTypedefDecl()
	case token.KW_EXTERN:
		return p.parseExternDecl()
	case token.AT:
		return p.parseAnnotatedFuncDecl()
	default:
		if p.looksLikeGlobalVar() {
			return p.parseGlobalVarDecl()
		}
		return p.parseFuncDecl(false)
	}
}

func (p *Parser) looksLikeGlobalVar() bool {
	// "TYPE IDENT (=|;)" that is not followed by '(' is a global variable;
	// a following '(' makes it a function declaration.
	save := p.pos
	defer func() { p.pos = save }()
	if !p.parseTypeSkip() {
		return false
	}
	if !p.at(token.IDENT) {
		return false
	}
	p.advance()
	return p.at(token.ASSIGN) || p.at(token.SEMICOLON)
}

// parseTypeSkip advances past one type without building a node, used only
// by lookahead helpers.
func (p *Parser) parseTypeSkip() bool {
	if !p.isTypeStart() {
		return false
	}
	p.parseType()
	return true
}

func (p *Parser) isTypeStart() bool {
	switch p.cur().Kind {
	case token.KW_INT, token.KW_FLOAT, token.KW_DOUBLE, token.KW_CHAR,
		token.KW_BOOL, token.KW_VOID, token.KW_STRING, token.IDENT, token.LPAREN:
		return true
	}
	return false
}

func (p *Parser) parseAnnotatedFuncDecl() ast.Decl {
	p.advance() // '@'
	name, _ := p.expect(token.IDENT, "annotation name")
	fn := p.parseFuncDecl(name.Lexeme == "gpu")
	return fn
}

// --- declarations ------------------------------------------------------

func (p *Parser) parseClassDecl() ast.Decl {
	pos := p.pos_()
	p.advance() // 'class'
	name, _ := p.expect(token.IDENT, "class name")

	var typeParams []string
	if p.at(token.LT) {
		typeParams = p.parseTypeParamList()
	}

	extends := ""
	if p.at(token.KW_EXTENDS) {
		p.advance()
		id, _ := p.expect(token.IDENT, "base class name")
		extends = id.Lexeme
	}
	var implements []string
	if p.at(token.KW_IMPLEMENTS) {
		p.advance()
		for {
			id, _ := p.expect(token.IDENT, "interface name")
			implements = append(implements, id.Lexeme)
			if !p.at(token.COMMA) {
				break
			}
			p.advance()
		}
	}

	cd := &ast.ClassDecl{Pos: pos, Name: name.Lexeme, TypeParams: typeParams, Extends: extends, Implements: implements}
	p.expect(token.LBRACE, "'{'")
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		p.parseClassMember(cd)
	}
	p.expect(token.RBRACE, "'}'")
	return cd
}

func (p *Parser) parseTypeParamList() []string {
	p.advance() // '<'
	var names []string
	for !p.at(token.GT) && !p.at(token.EOF) {
		id, _ := p.expect(token.IDENT, "type parameter")
		names = append(names, id.Lexeme)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.GT, "'>'")
	return names
}

func (p *Parser) parseClassMember(cd *ast.ClassDecl) {
	isPublic, hasVisibility := true, false
	if p.at(token.KW_PUBLIC) || p.at(token.KW_PRIVATE) {
		isPublic = p.at(token.KW_PUBLIC)
		hasVisibility = true
		p.advance()
	}
	isStatic := false
	if p.at(token.KW_STATIC) {
		isStatic = true
		p.advance()
	}

	if p.cur().Kind == token.IDENT && p.cur().Lexeme == cd.Name && p.peekAt(1, token.LPAREN) {
		cd.Ctors = append(cd.Ctors, p.parseMethodBody(cd.Name, nil, isStatic))
		return
	}
	if p.at(token.TILDE) && p.peekAt(1, token.IDENT) {
		p.advance()
		name, _ := p.expect(token.IDENT, "destructor name")
		cd.Dtor = p.parseMethodBody(name.Lexeme, nil, isStatic)
		return
	}

	pos := p.pos_()
	ty := p.parseType()
	nameTok, _ := p.expect(token.IDENT, "member name")

	if p.at(token.LPAREN) {
		cd.Methods = append(cd.Methods, p.parseMethodBody(nameTok.Lexeme, ty, isStatic))
		return
	}
	if p.at(token.LBRACE) {
		prop := &ast.PropertyDecl{Pos: pos, Name: nameTok.Lexeme, Type: ty}
		p.advance()
		for !p.at(token.RBRACE) && !p.at(token.EOF) {
			if p.cur().Kind == token.IDENT && p.cur().Lexeme == "get" {
				p.advance()
				prop.Getter = p.parseBlock()
			} else if p.cur().Kind == token.IDENT && p.cur().Lexeme == "set" {
				p.advance()
				prop.Setter = p.parseBlock()
			} else {
				p.syncTo(token.RBRACE)
			}
		}
		p.expect(token.RBRACE, "'}'")
		cd.Properties = append(cd.Properties, prop)
		return
	}

	fd := &ast.FieldDecl{Pos: pos, Name: nameTok.Lexeme, Type: ty, IsPublic: !hasVisibility || isPublic, IsStatic: isStatic}
	if p.at(token.ASSIGN) {
		p.advance()
		fd.Init = p.parseExpr()
	}
	p.expect(token.SEMICOLON, "';'")
	cd.Fields = append(cd.Fields, fd)
}

func (p *Parser) parseMethodBody(name string, ret ast.Type, isStatic bool) *ast.FuncDecl {
	pos := p.pos_()
	p.expect(token.LPAREN, "'('")
	params := p.parseParamList()
	p.expect(token.RPAREN, "')'")
	fn := &ast.FuncDecl{Pos: pos, Name: name, Params: params, Ret: ret, IsStatic: isStatic}
	if p.at(token.LBRACE) {
		fn.Body = p.parseBlock()
	} else {
		p.expect(token.SEMICOLON, "';'")
	}
	return fn
}

func (p *Parser) parseParamList() []ast.Param {
	var params []ast.Param
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		pos := p.pos_()
		arc := p.parseARCPolicy()
		ty := p.parseType()
		name, _ := p.expect(token.IDENT, "parameter name")
		params = append(params, ast.Param{Pos: pos, Name: name.Lexeme, Type: ty, ARCPolicy: arc})
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	return params
}

func (p *Parser) parseInterfaceDecl() ast.Decl {
	pos := p.pos_()
	p.advance()
	name, _ := p.expect(token.IDENT, "interface name")
	id := &ast.InterfaceDecl{Pos: pos, Name: name.Lexeme}
	p.expect(token.LBRACE, "'{'")
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		mpos := p.pos_()
		ty := p.parseType()
		mname, _ := p.expect(token.IDENT, "method name")
		p.expect(token.LPAREN, "'('")
		params := p.parseParamList()
		p.expect(token.RPAREN, "')'")
		p.expect(token.SEMICOLON, "';'")
		id.Methods = append(id.Methods, &ast.FuncDecl{Pos: mpos, Name: mname.Lexeme, Params: params, Ret: ty})
	}
	p.expect(token.RBRACE, "'}'")
	return id
}

func (p *Parser) parseEnumDecl() ast.Decl {
	pos := p.pos_()
	p.advance()
	name, _ := p.expect(token.IDENT, "enum name")
	ed := &ast.EnumDecl{Pos: pos, Name: name.Lexeme}
	p.expect(token.LBRACE, "'{'")
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		vpos := p.pos_()
		vname, _ := p.expect(token.IDENT, "variant name")
		v := ast.EnumVariant{Pos: vpos, Name: vname.Lexeme}
		if p.at(token.LPAREN) {
			p.advance()
			v.Fields = p.parseParamList()
			p.expect(token.RPAREN, "')'")
		}
		ed.Variants = append(ed.Variants, v)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.RBRACE, "'}'")
	return ed
}

func (p *Parser) parseStructDecl() ast.Decl {
	pos := p.pos_()
	p.advance()
	name, _ := p.expect(token.IDENT, "struct name")
	sd := &ast.StructDecl{Pos: pos, Name: name.Lexeme}
	p.expect(token.LBRACE, "'{'")
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		fpos := p.pos_()
		ty := p.parseType()
		fname, _ := p.expect(token.IDENT, "field name")
		p.expect(token.SEMICOLON, "';'")
		sd.Fields = append(sd.Fields, &ast.FieldDecl{Pos: fpos, Name: fname.Lexeme, Type: ty, IsPublic: true})
	}
	p.expect(token.RBRACE, "'}'")
	return sd
}

func (p *Parser) parseTypedefDecl() ast.Decl {
	pos := p.pos_()
	p.advance()
	ty := p.parseType()
	name, _ := p.expect(token.IDENT, "typedef name")
	p.expect(token.SEMICOLON, "';'")
	return &ast.TypedefDecl{Pos: pos, Name: name.Lexeme, Underlying: ty}
}

func (p *Parser) parseExternDecl() ast.Decl {
	pos := p.pos_()
	p.advance()
	ty := p.parseType()
	name, _ := p.expect(token.IDENT, "function name")
	p.expect(token.LPAREN, "'('")
	params := p.parseParamList()
	p.expect(token.RPAREN, "')'")
	p.expect(token.SEMICOLON, "';'")
	return &ast.ExternDecl{Pos: pos, Name: name.Lexeme, Params: params, Ret: ty}
}

func (p *Parser) parseGlobalVarDecl() ast.Decl {
	pos := p.pos_()
	isConst := false
	if p.at(token.KW_CONST) {
		isConst = true
		p.advance()
	}
	isStatic := false
	if p.at(token.KW_STATIC) {
		isStatic = true
		p.advance()
	}
	ty := p.parseType()
	name, _ := p.expect(token.IDENT, "variable name")
	gd := &ast.GlobalVarDecl{Pos: pos, Name: name.Lexeme, Type: ty, IsConst: isConst, IsStatic: isStatic}
	if p.at(token.ASSIGN) {
		p.advance()
		gd.Init = p.parseExpr()
	}
	p.expect(token.SEMICOLON, "';'")
	return gd
}

func (p *Parser) parseFuncDecl(isGPU bool) ast.Decl {
	pos := p.pos_()
	isStatic := false
	if p.at(token.KW_STATIC) {
		isStatic = true
		p.advance()
	}
	ty := p.parseType()
	name, ok := p.expect(token.IDENT, "function name")
	if !ok {
		p.syncTo(token.RBRACE)
		return nil
	}
	var typeParams []string
	if p.at(token.LT) {
		typeParams = p.parseTypeParamList()
	}
	p.expect(token.LPAREN, "'('")
	params := p.parseParamList()
	p.expect(token.RPAREN, "')'")
	fn := &ast.FuncDecl{Pos: pos, Name: name.Lexeme, TypeParams: typeParams, Params: params, Ret: ty, IsStatic: isStatic, IsGPU: isGPU}
	if p.at(token.LBRACE) {
		fn.Body = p.parseBlock()
	} else {
		p.expect(token.SEMICOLON, "';'")
	}
	return fn
}

// --- types ---------------------------------------------------------------

func (p *Parser) parseType() ast.Type {
	var base ast.Type
	switch p.cur().Kind {
	case token.KW_INT:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TInt}
	case token.KW_FLOAT:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TFloat}
	case token.KW_DOUBLE:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TDouble}
	case token.KW_CHAR:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TChar}
	case token.KW_BOOL:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TBool}
	case token.KW_VOID:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TVoid}
	case token.KW_STRING:
		p.advance()
		base = &ast.PrimitiveType{Kind: ast.TString}
	case token.LPAREN:
		base = p.parseTupleOrFuncType()
	case token.IDENT:
		name := p.advance().Lexeme
		var args []ast.Type
		if p.at(token.LT) && p.looksLikeGenericArgs() {
			p.advance()
			for !p.at(token.GT) && !p.at(token.EOF) {
				args = append(args, p.parseType())
				if p.at(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
			p.expect(token.GT, "'>'")
		}
		base = &ast.NamedType{Name: name, Args: args}
	default:
		p.bag.Errorf(diag.StageParser, p.pos_(), "", "expected a type, found %s %q", p.cur().Kind, p.cur().Lexeme)
		return &ast.PrimitiveType{Kind: ast.TVoid}
	}

	for {
		switch p.cur().Kind {
		case token.STAR:
			p.advance()
			base = &ast.PointerType{Elem: base}
		case token.QUESTION:
			p.advance()
			base = &ast.NullableType{Elem: base}
		default:
			return base
		}
	}
}

// looksLikeGenericArgs disambiguates "Name<" as the start of generic
// arguments versus a less-than comparison: it scans ahead for a matching
// '>' before the next ';', '{', or '=' that isn't itself part of a nested
// generic close, one of the five parser disambiguations spec section 4.3
// calls out by name.
func (p *Parser) looksLikeGenericArgs() bool {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.LT:
			depth++
		case token.GT:
			depth--
			if depth == 0 {
				return true
			}
		case token.SEMICOLON, token.LBRACE, token.ASSIGN, token.EOF:
			return false
		}
	}
	return false
}

func (p *Parser) parseTupleOrFuncType() ast.Type {
	p.advance() // '('
	var elems []ast.Type
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		elems = append(elems, p.parseType())
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.RPAREN, "')'")
	if p.at(token.ARROW) {
		p.advance()
		ret := p.parseType()
		return &ast.FuncType{Params: elems, Ret: ret}
	}
	if len(elems) == 1 {
		return elems[0]
	}
	return &ast.TupleType{Elements: elems}
}

// --- statements ------------------------------------------------------------

func (p *Parser) parseBlock() *ast.BlockStmt {
	pos := p.pos_()
	p.expect(token.LBRACE, "'{'")
	b := &ast.BlockStmt{Pos: pos}
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		s := p.parseStmt()
		if s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	p.expect(token.RBRACE, "'}'")
	return b
}

func (p *Parser) parseStmt() ast.Stmt {
	switch p.cur().Kind {
	case token.LBRACE:
		return p.parseBlock()
	case token.KW_VAR:
		return p.parseVarDeclStmt()
	case token.KW_IF:
		return p.parseIfStmt()
	case token.KW_FOR:
		return p.parseForOrForIn()
	case token.KW_WHILE:
		return p.parseWhileStmt()
	case token.KW_DO:
		return p.parseDoWhileStmt()
	case token.KW_SWITCH:
		return p.parseSwitchStmt()
	case token.KW_TRY:
		return p.parseTryStmt()
	case token.KW_THROW:
		return p.parseThrowStmt()
	case token.KW_RETURN:
		return p.parseReturnStmt()
	case token.KW_BREAK:
		pos := p.pos_()
		p.advance()
		p.expect(token.SEMICOLON, "';'")
		return &ast.BreakStmt{Pos: pos}
	case token.KW_CONTINUE:
		pos := p.pos_()
		p.advance()
		p.expect(token.SEMICOLON, "';'")
		return &ast.ContinueStmt{Pos: pos}
	case token.KW_PARALLEL:
		pos := p.pos_()
		p.advance()
		return &ast.ParallelStmt{Pos: pos, Body: p.parseBlock()}
	default:
		if p.looksLikeLocalVarDecl() {
			return p.parseTypedVarDeclStmt()
		}
		return p.parseExprOrAssignStmt()
	}
}

func (p *Parser) looksLikeLocalVarDecl() bool {
	save := p.pos
	defer func() { p.pos = save }()
	p.parseARCPolicy()
	if !p.isTypeStart() || p.at(token.LPAREN) {
		return false
	}
	if !p.parseTypeSkip() {
		return false
	}
	return p.at(token.IDENT)
}

func (p *Parser) parseVarDeclStmt() ast.Stmt {
	pos := p.pos_()
	p.advance() // 'var'
	arc := p.parseARCPolicy()
	name, _ := p.expect(token.IDENT, "variable name")
	v := &ast.VarDeclStmt{Pos: pos, Name: name.Lexeme, ARCPolicy: arc}
	if p.at(token.ASSIGN) {
		p.advance()
		v.Init = p.parseExpr()
	}
	p.expect(token.SEMICOLON, "';'")
	return v
}

func (p *Parser) parseTypedVarDeclStmt() ast.Stmt {
	pos := p.pos_()
	arc := p.parseARCPolicy()
	ty := p.parseType()
	name, _ := p.expect(token.IDENT, "variable name")
	v := &ast.VarDeclStmt{Pos: pos, Name: name.Lexeme, Type: ty, ARCPolicy: arc}
	if p.at(token.ASSIGN) {
		p.advance()
		v.Init = p.parseExpr()
	}
	p.expect(token.SEMICOLON, "';'")
	return v
}

func (p *Parser) parseARCPolicy() ast.ARCPolicy {
	switch p.cur().Kind {
	case token.KW_KEEP:
		p.advance()
		return ast.ARCKeep
	case token.KW_RELEASE:
		p.advance()
		return ast.ARCRelease
	default:
		return ast.ARCDefault
	}
}

func (p *Parser) parseIfStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	p.expect(token.LPAREN, "'('")
	cond := p.parseExpr()
	p.expect(token.RPAREN, "')'")
	then := p.parseStmt()
	var els ast.Stmt
	if p.at(token.KW_ELSE) {
		p.advance()
		els = p.parseStmt()
	}
	return &ast.IfStmt{Pos: pos, Cond: cond, Then: then, Else: els}
}

// parseForOrForIn disambiguates "for (TYPE? ident in expr) body" from the
// three-clause C-style for, the second parser disambiguation spec section
// 4.3 names, by scanning ahead for an "in" keyword (at any parenthesis
// depth) before the first ';' or the loop's closing ')'.
func (p *Parser) parseForOrForIn() ast.Stmt {
	pos := p.pos_()
	p.advance() // 'for'
	p.expect(token.LPAREN, "'('")
	if p.looksLikeForIn() {
		if p.isTypeStart() && !p.at(token.IDENT) {
			p.parseType()
		} else if p.at(token.IDENT) && p.peekAt(1, token.IDENT) {
			p.parseType()
		}
		name, _ := p.expect(token.IDENT, "loop variable")
		p.expect(token.KW_IN, "'in'")
		coll := p.parseExpr()
		p.expect(token.RPAREN, "')'")
		return &ast.ForInStmt{Pos: pos, VarName: name.Lexeme, Collection: coll, Body: p.parseStmt()}
	}

	var init ast.Stmt
	if !p.at(token.SEMICOLON) {
		if p.looksLikeLocalVarDecl() {
			init = p.parseTypedVarDeclStmtNoSemi()
		} else {
			init = p.parseExprOrAssignStmtNoSemi()
		}
	}
	p.expect(token.SEMICOLON, "';'")
	var cond ast.Expr
	if !p.at(token.SEMICOLON) {
		cond = p.parseExpr()
	}
	p.expect(token.SEMICOLON, "';'")
	var post ast.Stmt
	if !p.at(token.RPAREN) {
		post = p.parseExprOrAssignStmtNoSemi()
	}
	p.expect(token.RPAREN, "')'")
	return &ast.ForStmt{Pos: pos, Init: init, Cond: cond, Post: post, Body: p.parseStmt()}
}

func (p *Parser) looksLikeForIn() bool {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			if depth == 0 {
				return false
			}
			depth--
		case token.SEMICOLON:
			return false
		case token.KW_IN:
			return true
		case token.EOF:
			return false
		}
	}
	return false
}

func (p *Parser) parseTypedVarDeclStmtNoSemi() ast.Stmt {
	pos := p.pos_()
	arc := p.parseARCPolicy()
	ty := p.parseType()
	name, _ := p.expect(token.IDENT, "variable name")
	v := &ast.VarDeclStmt{Pos: pos, Name: name.Lexeme, Type: ty, ARCPolicy: arc}
	if p.at(token.ASSIGN) {
		p.advance()
		v.Init = p.parseExpr()
	}
	return v
}

func (p *Parser) parseExprOrAssignStmtNoSemi() ast.Stmt {
	pos := p.pos_()
	e := p.parseExpr()
	if op, ok := p.matchAssignOp(); ok {
		val := p.parseExpr()
		return &ast.AssignStmt{Pos: pos, Op: op, Target: e, Value: val}
	}
	return &ast.ExprStmt{Pos: pos, Expr: e}
}

func (p *Parser) parseWhileStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	p.expect(token.LPAREN, "'('")
	cond := p.parseExpr()
	p.expect(token.RPAREN, "')'")
	return &ast.WhileStmt{Pos: pos, Cond: cond, Body: p.parseStmt()}
}

func (p *Parser) parseDoWhileStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	body := p.parseStmt()
	p.expect(token.KW_WHILE, "'while'")
	p.expect(token.LPAREN, "'('")
	cond := p.parseExpr()
	p.expect(token.RPAREN, "')'")
	p.expect(token.SEMICOLON, "';'")
	return &ast.DoWhileStmt{Pos: pos, Body: body, Cond: cond}
}

func (p *Parser) parseSwitchStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	p.expect(token.LPAREN, "'('")
	tag := p.parseExpr()
	p.expect(token.RPAREN, "')'")
	p.expect(token.LBRACE, "'{'")
	sw := &ast.SwitchStmt{Pos: pos, Tag: tag}
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		if p.at(token.KW_CASE) {
			cpos := p.pos_()
			p.advance()
			var values []ast.Expr
			for {
				values = append(values, p.parseExpr())
				p.expect(token.COLON, "':'")
				if p.at(token.KW_CASE) {
					p.advance()
					continue
				}
				break
			}
			body := p.parseCaseBody()
			sw.Cases = append(sw.Cases, ast.SwitchCase{Pos: cpos, Values: values, Body: body})
		} else if p.at(token.KW_DEFAULT) {
			p.advance()
			p.expect(token.COLON, "':'")
			sw.Default = p.parseCaseBody()
		} else {
			p.syncTo(token.RBRACE)
		}
	}
	p.expect(token.RBRACE, "'}'")
	return sw
}

func (p *Parser) parseCaseBody() []ast.Stmt {
	var body []ast.Stmt
	for !p.at(token.KW_CASE) && !p.at(token.KW_DEFAULT) && !p.at(token.RBRACE) && !p.at(token.EOF) {
		s := p.parseStmt()
		if s != nil {
			body = append(body, s)
		}
	}
	return body
}

func (p *Parser) parseTryStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	body := p.parseBlock()
	ts := &ast.TryStmt{Pos: pos, Body: body}
	for p.at(token.KW_CATCH) {
		cpos := p.pos_()
		p.advance()
		p.expect(token.LPAREN, "'('")
		ty := p.parseType()
		name, _ := p.expect(token.IDENT, "exception variable")
		p.expect(token.RPAREN, "')'")
		ts.Catches = append(ts.Catches, ast.CatchClause{Pos: cpos, Type: ty, Name: name.Lexeme, Body: p.parseBlock()})
	}
	if p.at(token.KW_FINALLY) {
		p.advance()
		ts.Finally = p.parseBlock()
	}
	return ts
}

func (p *Parser) parseThrowStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	val := p.parseExpr()
	p.expect(token.SEMICOLON, "';'")
	return &ast.ThrowStmt{Pos: pos, Value: val}
}

func (p *Parser) parseReturnStmt() ast.Stmt {
	pos := p.pos_()
	p.advance()
	var val ast.Expr
	if !p.at(token.SEMICOLON) {
		val = p.parseExpr()
	}
	p.expect(token.SEMICOLON, "';'")
	return &ast.ReturnStmt{Pos: pos, Value: val}
}

func (p *Parser) parseExprOrAssignStmt() ast.Stmt {
	pos := p.pos_()
	e := p.parseExpr()
	if op, ok := p.matchAssignOp(); ok {
		val := p.parseExpr()
		p.expect(token.SEMICOLON, "';'")
		return &ast.AssignStmt{Pos: pos, Op: op, Target: e, Value: val}
	}
	p.expect(token.SEMICOLON, "';'")
	return &ast.ExprStmt{Pos: pos, Expr: e}
}

func (p *Parser) matchAssignOp() (ast.AssignOp, bool) {
	switch p.cur().Kind {
	case token.ASSIGN:
		p.advance()
		return ast.AssignSet, true
	case token.PLUS_ASSIGN:
		p.advance()
		return ast.AssignAdd, true
	case token.MINUS_ASSIGN:
		p.advance()
		return ast.AssignSub, true
	case token.STAR_ASSIGN:
		p.advance()
		return ast.AssignMul, true
	case token.SLASH_ASSIGN:
		p.advance()
		return ast.AssignDiv, true
	case token.PERCENT_ASSIGN:
		p.advance()
		return ast.AssignMod, true
	case token.AMP_ASSIGN:
		p.advance()
		return ast.AssignAnd, true
	case token.PIPE_ASSIGN:
		p.advance()
		return ast.AssignOr, true
	case token.CARET_ASSIGN:
		p.advance()
		return ast.AssignXor, true
	case token.SHL_ASSIGN:
		p.advance()
		return ast.AssignShl, true
	case token.SHR_ASSIGN:
		p.advance()
		return ast.AssignShr, true
	default:
		return 0, false
	}
}
