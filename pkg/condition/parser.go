package condition

import "strconv"

// Grammar (highest binding last):
//
//	expr    := or
//	or      := and ( "||" and )*
//	and     := unary ( "&&" unary )*
//	unary   := "!" unary | cmp
//	cmp     := primary ( ("==" | "!=" | "<" | "<=" | ">" | ">=") primary )?
//	primary := literal | variable | "(" expr ")"
type parser struct {
	lex  *lexer
	cur  token
	perr *SyntaxError
}

func newParser(src string) *parser {
	return &parser{lex: &lexer{src: src}}
}

func (p *parser) advance() {
	if p.perr != nil {
		return
	}
	tok, err := p.lex.next()
	if err != nil {
		p.perr = err
		return
	}
	p.cur = tok
}

func (p *parser) parse() (node, *SyntaxError) {
	p.advance()
	if p.perr != nil {
		return nil, p.perr
	}
	if p.cur.kind == tokEOF { // blank expression: always true
		return nil, nil
	}
	root := p.parseOr()
	if p.perr != nil {
		return nil, p.perr
	}
	if p.cur.kind != tokEOF {
		return nil, p.fail("unexpected %q", p.cur.text)
	}
	return root, nil
}

func (p *parser) fail(format string, args ...any) *SyntaxError {
	if p.perr == nil {
		p.perr = p.lex.errf(p.cur.pos, format, args...)
	}
	return p.perr
}

func (p *parser) parseOr() node {
	left := p.parseAnd()
	for p.perr == nil && p.cur.kind == tokOr {
		p.advance()
		right := p.parseAnd()
		left = &binaryNode{op: opOr, left: left, right: right}
	}
	return left
}

func (p *parser) parseAnd() node {
	left := p.parseUnary()
	for p.perr == nil && p.cur.kind == tokAnd {
		p.advance()
		right := p.parseUnary()
		left = &binaryNode{op: opAnd, left: left, right: right}
	}
	return left
}

func (p *parser) parseUnary() node {
	if p.cur.kind == tokNot {
		p.advance()
		return &notNode{child: p.parseUnary()}
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() node {
	left := p.parsePrimary()
	if p.perr != nil || p.cur.kind != tokOp {
		return left
	}
	op, ok := cmpOps[p.cur.text]
	if !ok {
		p.fail("unknown operator %q", p.cur.text)
		return nil
	}
	p.advance()
	right := p.parsePrimary()
	return &binaryNode{op: op, left: left, right: right}
}

func (p *parser) parsePrimary() node {
	if p.perr != nil {
		return nil
	}
	switch p.cur.kind {
	case tokTrue:
		p.advance()
		return &literalNode{val: true}
	case tokFalse:
		p.advance()
		return &literalNode{val: false}
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			p.fail("bad number %q", p.cur.text)
			return nil
		}
		p.advance()
		return &literalNode{val: f}
	case tokString:
		s := p.cur.text
		p.advance()
		return &literalNode{val: s}
	case tokIdent:
		name := p.cur.text
		p.advance()
		return &varNode{name: name}
	case tokLParen:
		p.advance()
		inner := p.parseOr()
		if p.perr != nil {
			return nil
		}
		if p.cur.kind != tokRParen {
			p.fail("expected ')'")
			return nil
		}
		p.advance()
		return inner
	case tokEOF:
		p.fail("unexpected end of expression")
		return nil
	default:
		p.fail("unexpected %q", p.cur.text)
		return nil
	}
}

var cmpOps = map[string]binaryOp{
	"==": opEq,
	"!=": opNeq,
	"<":  opLt,
	"<=": opLte,
	">":  opGt,
	">=": opGte,
}
