package parser

import (
	"strconv"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/diag"
	"github.com/btrc-lang/btrc/internal/lexer"
	"github.com/btrc-lang/btrc/internal/token"
)

// parseExpr enters the precedence chain at its lowest level, following the
// @syntax section of the grammar file: assignExpr is handled by the
// statement-level assignment parsing, so the expression chain proper starts
// at nullCoalesceExpr.
//
//	nullCoalesceExpr -> ternaryExpr -> orExpr -> andExpr -> bitOrExpr ->
//	bitXorExpr -> bitAndExpr -> eqExpr -> relExpr -> shiftExpr -> addExpr ->
//	mulExpr -> unaryExpr -> postfixExpr -> primaryExpr
func (p *Parser) parseExpr() ast.Expr {
	return p.parseNullCoalesce()
}

func (p *Parser) parseNullCoalesce() ast.Expr {
	left := p.parseTernary()
	for p.at(token.NULL_COALESCE) {
		pos := p.pos_()
		p.advance()
		right := p.parseTernary()
		left = &ast.NullCoalesceExpr{Pos: pos, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseTernary() ast.Expr {
	cond := p.parseOr()
	if p.at(token.QUESTION) {
		pos := p.pos_()
		p.advance()
		then := p.parseExpr()
		p.expect(token.COLON, "':'")
		els := p.parseExpr()
		return &ast.TernaryExpr{Pos: pos, Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.at(token.OR_OR) {
		pos := p.pos_()
		p.advance()
		right := p.parseAnd()
		left = &ast.LogicalExpr{Pos: pos, Op: ast.LogicalOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseBitOr()
	for p.at(token.AND_AND) {
		pos := p.pos_()
		p.advance()
		right := p.parseBitOr()
		left = &ast.LogicalExpr{Pos: pos, Op: ast.LogicalAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitOr() ast.Expr {
	left := p.parseBitXor()
	for p.at(token.PIPE) {
		pos := p.pos_()
		p.advance()
		right := p.parseBitXor()
		left = &ast.BinaryExpr{Pos: pos, Op: ast.BinOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitXor() ast.Expr {
	left := p.parseBitAnd()
	for p.at(token.CARET) {
		pos := p.pos_()
		p.advance()
		right := p.parseBitAnd()
		left = &ast.BinaryExpr{Pos: pos, Op: ast.BinXor, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitAnd() ast.Expr {
	left := p.parseEquality()
	for p.at(token.AMP) {
		pos := p.pos_()
		p.advance()
		right := p.parseEquality()
		left = &ast.BinaryExpr{Pos: pos, Op: ast.BinAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseRelational()
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.EQ:
			op = ast.BinEq
		case token.NEQ:
			op = ast.BinNeq
		default:
			return left
		}
		pos := p.pos_()
		p.advance()
		right := p.parseRelational()
		left = &ast.BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseRelational() ast.Expr {
	left := p.parseShift()
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.LT:
			op = ast.BinLt
		case token.GT:
			op = ast.BinGt
		case token.LE:
			op = ast.BinLe
		case token.GE:
			op = ast.BinGe
		default:
			return left
		}
		pos := p.pos_()
		p.advance()
		right := p.parseShift()
		left = &ast.BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseShift() ast.Expr {
	left := p.parseAdd()
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.SHL:
			op = ast.BinShl
		case token.SHR:
			op = ast.BinShr
		default:
			return left
		}
		pos := p.pos_()
		p.advance()
		right := p.parseAdd()
		left = &ast.BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdd() ast.Expr {
	left := p.parseMul()
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.PLUS:
			op = ast.BinAdd
		case token.MINUS:
			op = ast.BinSub
		default:
			return left
		}
		pos := p.pos_()
		p.advance()
		right := p.parseMul()
		left = &ast.BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMul() ast.Expr {
	left := p.parseUnary()
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.STAR:
			op = ast.BinMul
		case token.SLASH:
			op = ast.BinDiv
		case token.PERCENT:
			op = ast.BinMod
		default:
			return left
		}
		pos := p.pos_()
		p.advance()
		right := p.parseUnary()
		left = &ast.BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	pos := p.pos_()
	switch p.cur().Kind {
	case token.BANG:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryNot, Operand: p.parseUnary()}
	case token.MINUS:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryNeg, Operand: p.parseUnary()}
	case token.TILDE:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryBitNot, Operand: p.parseUnary()}
	case token.AMP:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryAddr, Operand: p.parseUnary()}
	case token.STAR:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryDeref, Operand: p.parseUnary()}
	case token.PLUS_PLUS:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryPreInc, Operand: p.parseUnary()}
	case token.MINUS_MINUS:
		p.advance()
		return &ast.UnaryExpr{Pos: pos, Op: ast.UnaryPreDec, Operand: p.parseUnary()}
	case token.KW_SIZEOF:
		p.advance()
		p.expect(token.LPAREN, "'('")
		ty := p.parseType()
		p.expect(token.RPAREN, "')'")
		return &ast.SizeofExpr{Pos: pos, Type: ty}
	case token.LPAREN:
		if cast, ok := p.tryParseCast(); ok {
			return cast
		}
	}
	return p.parsePostfix()
}

// tryParseCast disambiguates "(Type) Operand" from a parenthesized grouping
// expression, the third disambiguation spec section 4.3 names: it speculates
// a type parse behind the '(' and only commits if a ')' immediately follows
// and the token after that cannot begin a binary/postfix continuation of
// what would otherwise be a plain grouped expression (i.e. it looks like the
// start of a unary/primary operand).
func (p *Parser) tryParseCast() (ast.Expr, bool) {
	save := p.pos
	pos := p.pos_()
	p.advance() // '('
	if !p.isTypeStart() || p.at(token.LPAREN) {
		p.pos = save
		return nil, false
	}
	ty := p.parseType()
	if !p.at(token.RPAREN) {
		p.pos = save
		return nil, false
	}
	p.advance() // ')'
	if !p.castOperandFollows() {
		p.pos = save
		return nil, false
	}
	operand := p.parseUnary()
	return &ast.CastExpr{Pos: pos, Type: ty, Operand: operand}, true
}

func (p *Parser) castOperandFollows() bool {
	switch p.cur().Kind {
	case token.IDENT, token.INT_LIT, token.FLOAT_LIT, token.CHAR_LIT,
		token.STRING_LIT, token.FSTRING_LIT, token.LPAREN, token.BANG,
		token.MINUS, token.TILDE, token.AMP, token.STAR, token.PLUS_PLUS,
		token.MINUS_MINUS, token.KW_SELF, token.KW_TRUE, token.KW_FALSE,
		token.KW_NULL, token.KW_NEW, token.KW_SIZEOF:
		return true
	}
	return false
}

func (p *Parser) parsePostfix() ast.Expr {
	e := p.parsePrimary()
	for {
		pos := p.pos_()
		switch p.cur().Kind {
		case token.DOT:
			p.advance()
			name, _ := p.expect(token.IDENT, "member name")
			e = &ast.MemberExpr{Pos: pos, Recv: e, Name: name.Lexeme}
		case token.ARROW:
			p.advance()
			name, _ := p.expect(token.IDENT, "member name")
			e = &ast.MemberExpr{Pos: pos, Recv: e, Name: name.Lexeme, Arrow: true}
		case token.QUESTION_DOT:
			p.advance()
			name, _ := p.expect(token.IDENT, "member name")
			e = &ast.MemberExpr{Pos: pos, Recv: e, Name: name.Lexeme, Nullsafe: true}
		case token.LBRACKET:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACKET, "']'")
			e = &ast.IndexExpr{Pos: pos, Recv: e, Index: idx}
		case token.LPAREN:
			p.advance()
			var args []ast.Expr
			for !p.at(token.RPAREN) && !p.at(token.EOF) {
				args = append(args, p.parseExpr())
				if p.at(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
			p.expect(token.RPAREN, "')'")
			e = &ast.CallExpr{Pos: pos, Callee: e, Args: args}
		case token.PLUS_PLUS:
			p.advance()
			e = &ast.PostfixExpr{Pos: pos, Op: ast.PostfixInc, Operand: e}
		case token.MINUS_MINUS:
			p.advance()
			e = &ast.PostfixExpr{Pos: pos, Op: ast.PostfixDec, Operand: e}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	pos := p.pos_()
	switch p.cur().Kind {
	case token.INT_LIT:
		t := p.advance()
		v, _ := parseIntLiteral(t.Lexeme)
		return &ast.IntLit{Pos: pos, Text: t.Lexeme, Value: v}
	case token.FLOAT_LIT:
		t := p.advance()
		v, _ := strconv.ParseFloat(trimFloatSuffix(t.Lexeme), 64)
		return &ast.FloatLit{Pos: pos, Text: t.Lexeme, Value: v}
	case token.KW_TRUE:
		p.advance()
		return &ast.BoolLit{Pos: pos, Value: true}
	case token.KW_FALSE:
		p.advance()
		return &ast.BoolLit{Pos: pos, Value: false}
	case token.CHAR_LIT:
		t := p.advance()
		r := rune(0)
		if len(t.Lexeme) > 0 {
			r = []rune(t.Lexeme)[0]
		}
		return &ast.CharLit{Pos: pos, Value: r}
	case token.STRING_LIT:
		t := p.advance()
		return &ast.StringLit{Pos: pos, Value: t.Lexeme}
	case token.FSTRING_LIT:
		return p.parseFStringLit()
	case token.KW_NULL:
		p.advance()
		return &ast.NullLit{Pos: pos}
	case token.KW_SELF:
		p.advance()
		return &ast.SelfExpr{Pos: pos}
	case token.IDENT:
		t := p.advance()
		return &ast.Ident{Pos: pos, Name: t.Lexeme}
	case token.KW_NEW:
		return p.parseNewExpr()
	case token.KW_DELETE:
		p.advance()
		return &ast.DeleteExpr{Pos: pos, Operand: p.parseUnary()}
	case token.KW_FUNCTION:
		return p.parseVerboseLambda()
	case token.LPAREN:
		return p.parseParenExprOrLambdaOrTuple()
	default:
		p.bag.Errorf(diag.StageParser, pos, "", "unexpected token %s %q in expression", p.cur().Kind, p.cur().Lexeme)
		p.advance()
		return &ast.NullLit{Pos: pos}
	}
}

func (p *Parser) parseNewExpr() ast.Expr {
	pos := p.pos_()
	p.advance() // 'new'
	ty := p.parseType()
	var args []ast.Expr
	if p.at(token.LPAREN) {
		p.advance()
		for !p.at(token.RPAREN) && !p.at(token.EOF) {
			args = append(args, p.parseExpr())
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
		p.expect(token.RPAREN, "')'")
	}
	return &ast.NewExpr{Pos: pos, Type: ty, Args: args}
}

func (p *Parser) parseVerboseLambda() ast.Expr {
	pos := p.pos_()
	p.advance() // 'function'
	p.expect(token.LPAREN, "'('")
	params := p.parseParamList()
	p.expect(token.RPAREN, "')'")
	var ret ast.Type
	if p.at(token.ARROW) {
		p.advance()
		ret = p.parseType()
	}
	body := p.parseBlock()
	return &ast.LambdaExpr{Pos: pos, Params: params, Ret: ret, BlockBody: body}
}

// parseParenExprOrLambdaOrTuple resolves the remaining two of the five
// parser disambiguations spec section 4.3 names: a parenthesized param list
// followed by "=>" is a lambda; otherwise, more than one comma-separated
// element makes a tuple literal, and exactly one makes a plain grouping.
func (p *Parser) parseParenExprOrLambdaOrTuple() ast.Expr {
	pos := p.pos_()
	if lam, ok := p.tryParseArrowLambda(); ok {
		return lam
	}
	p.advance() // '('
	if p.at(token.RPAREN) {
		p.advance()
		return &ast.TupleExpr{Pos: pos}
	}
	var elems []ast.Expr
	elems = append(elems, p.parseExpr())
	for p.at(token.COMMA) {
		p.advance()
		elems = append(elems, p.parseExpr())
	}
	p.expect(token.RPAREN, "')'")
	if len(elems) == 1 {
		return elems[0]
	}
	return &ast.TupleExpr{Pos: pos, Elements: elems}
}

func (p *Parser) tryParseArrowLambda() (ast.Expr, bool) {
	save := p.pos
	pos := p.pos_()
	p.advance() // '('
	var params []ast.Param
	ok := true
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		ppos := p.pos_()
		if p.at(token.IDENT) && (p.peekAt(1, token.COMMA) || p.peekAt(1, token.RPAREN)) {
			name := p.advance()
			params = append(params, ast.Param{Pos: ppos, Name: name.Lexeme})
		} else if p.isTypeStart() {
			ty := p.parseType()
			name, valid := p.expect(token.IDENT, "parameter name")
			if !valid {
				ok = false
				break
			}
			params = append(params, ast.Param{Pos: ppos, Name: name.Lexeme, Type: ty})
		} else {
			ok = false
			break
		}
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if !ok || !p.at(token.RPAREN) {
		p.pos = save
		return nil, false
	}
	p.advance() // ')'
	if !p.at(token.FAT_ARROW) {
		p.pos = save
		return nil, false
	}
	p.advance() // '=>'
	if p.at(token.LBRACE) {
		return &ast.LambdaExpr{Pos: pos, Params: params, BlockBody: p.parseBlock()}, true
	}
	return &ast.LambdaExpr{Pos: pos, Params: params, ExprBody: p.parseExpr()}, true
}

func (p *Parser) parseFStringLit() ast.Expr {
	pos := p.pos_()
	t := p.advance()
	chunks := p.splitFStringChunks(t.Lexeme, pos)
	return &ast.FStringExpr{Pos: pos, Chunks: chunks}
}

// splitFStringChunks splits an f-string's raw body (as scanned by the
// Lexer, which only tracks brace depth) into literal-text and embedded
// expression chunks, lexing and parsing each embedded expression
// independently so a nested "{...}" can itself contain arbitrary btrc
// expressions, including further f-strings.
func (p *Parser) splitFStringChunks(raw string, pos diag.Pos) []ast.FStringChunk {
	var chunks []ast.FStringChunk
	var text []rune
	runes := []rune(raw)
	i := 0
	flushText := func() {
		if len(text) > 0 {
			chunks = append(chunks, ast.FStringChunk{Text: string(text)})
			text = nil
		}
	}
	for i < len(runes) {
		if runes[i] == '{' && i+1 < len(runes) && runes[i+1] == '{' {
			text = append(text, '{')
			i += 2
			continue
		}
		if runes[i] == '}' && i+1 < len(runes) && runes[i+1] == '}' {
			text = append(text, '}')
			i += 2
			continue
		}
		if runes[i] == '{' {
			flushText()
			depth := 1
			start := i + 1
			j := start
			for j < len(runes) && depth > 0 {
				switch runes[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						goto done
					}
				}
				j++
			}
		done:
			body := string(runes[start:j])
			formatSpec := ""
			if idx := lastUnquotedColon(body); idx >= 0 {
				formatSpec = body[idx+1:]
				body = body[:idx]
			}
			exprToks := lexer.Lex(body, p.g, p.bag, pos.File)
			sub := New(exprToks, p.bag, pos.File, p.g)
			e := sub.parseExpr()
			chunks = append(chunks, ast.FStringChunk{Expr: e, FormatSpec: formatSpec})
			i = j + 1
			continue
		}
		text = append(text, runes[i])
		i++
	}
	flushText()
	return chunks
}

func lastUnquotedColon(s string) int {
	depth := 0
	inStr := false
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '"':
			inStr = !inStr
		case ':':
			if depth == 0 && !inStr {
				return i
			}
		}
	}
	return -1
}

func parseIntLiteral(lexeme string) (int64, error) {
	s := lexeme
	base := 10
	switch {
	case len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X"):
		base = 16
		s = s[2:]
	case len(s) > 2 && (s[0:2] == "0b" || s[0:2] == "0B"):
		base = 2
		s = s[2:]
	case len(s) > 2 && (s[0:2] == "0o" || s[0:2] == "0O"):
		base = 8
		s = s[2:]
	}
	return strconv.ParseInt(s, base, 64)
}

func trimFloatSuffix(lexeme string) string {
	if len(lexeme) > 0 && (lexeme[len(lexeme)-1] == 'f' || lexeme[len(lexeme)-1] == 'F') {
		return lexeme[:len(lexeme)-1]
	}
	return lexeme
}
