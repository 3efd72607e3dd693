package parser

import (
	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/lexer"
)

var compareOps = map[lexer.Kind]ast.CompareOp{
	lexer.Eq: ast.OpEq, lexer.NotEq: ast.OpNotEq,
	lexer.Less: ast.OpLess, lexer.LessEq: ast.OpLessEq,
	lexer.Greater: ast.OpGreater, lexer.GreaterEq: ast.OpGreaterEq,
}

// parseExpr parses a predicate/value expression, the shared grammar
// behind `when`, `precondition`, `condition`, and `payload_value`.
func (p *Parser) parseExpr() (*ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (*ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.Or) {
		prov := p.prov()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Expr{Kind: ast.ExprOr, Prov: prov, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.And) {
		prov := p.prov()
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.Expr{Kind: ast.ExprAnd, Prov: prov, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (*ast.Expr, error) {
	if p.is(lexer.Not) {
		prov := p.prov()
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Expr{Kind: ast.ExprNot, Prov: prov, Operand: operand}, nil
	}
	return p.parseCompare()
}

func (p *Parser) parseCompare() (*ast.Expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	if op, ok := compareOps[p.cur().Kind]; ok {
		prov := p.prov()
		p.advance()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		return &ast.Expr{Kind: ast.ExprCompare, Prov: prov, Left: left, Right: right, Op: op}, nil
	}
	return left, nil
}

func (p *Parser) parseMul() (*ast.Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.Star) {
		prov := p.prov()
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &ast.Expr{Kind: ast.ExprMul, Prov: prov, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePrimary() (*ast.Expr, error) {
	prov := p.prov()
	switch p.cur().Kind {
	case lexer.LParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.Int:
		tok := p.advance()
		return &ast.Expr{Kind: ast.ExprLiteral, Prov: prov, LitKind: ast.LitInt, LitText: tok.Text}, nil
	case lexer.Decimal:
		tok := p.advance()
		return &ast.Expr{Kind: ast.ExprLiteral, Prov: prov, LitKind: ast.LitDecimal, LitText: tok.Text}, nil
	case lexer.String:
		tok := p.advance()
		return &ast.Expr{Kind: ast.ExprLiteral, Prov: prov, LitKind: ast.LitString, LitText: tok.Text}, nil
	case lexer.ForAll, lexer.Exists:
		return p.parseQuantifier()
	case lexer.Ident:
		return p.parseIdentExpr()
	default:
		return nil, p.errHere("expected an expression, got %q", p.cur().Text)
	}
}

func (p *Parser) parseQuantifier() (*ast.Expr, error) {
	prov := p.prov()
	kind := ast.ExprForAll
	if p.cur().Kind == lexer.Exists {
		kind = ast.ExprExists
	}
	p.advance()
	varTok, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.In); err != nil {
		return nil, err
	}
	domain, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Dot); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Expr{Kind: kind, Prov: prov, Var: varTok.Text, Domain: domain, Body: body}, nil
}

func (p *Parser) parseIdentExpr() (*ast.Expr, error) {
	prov := p.prov()
	nameTok := p.advance()

	switch nameTok.Text {
	case "true", "false":
		return &ast.Expr{Kind: ast.ExprLiteral, Prov: prov, LitKind: ast.LitBool, LitText: nameTok.Text}, nil
	case "verdict_present":
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		verdictTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return &ast.Expr{Kind: ast.ExprVerdictPresent, Prov: prov, VerdictType: verdictTok.Text}, nil
	}

	base := &ast.Expr{Kind: ast.ExprFactRef, Prov: prov, Name: nameTok.Text}
	return p.parseFieldChain(base)
}

// parsePostfix parses the quantifier domain: a bare fact reference. It
// does not chain `.field` accesses — the Dot that follows belongs to the
// `∀ v ∈ domain . body` separator, not a field reference.
func (p *Parser) parsePostfix() (*ast.Expr, error) {
	if !p.is(lexer.Ident) {
		return nil, p.errHere("expected a fact reference, got %q", p.cur().Text)
	}
	prov := p.prov()
	nameTok := p.advance()
	return &ast.Expr{Kind: ast.ExprFactRef, Prov: prov, Name: nameTok.Text}, nil
}

func (p *Parser) parseFieldChain(base *ast.Expr) (*ast.Expr, error) {
	for p.is(lexer.Dot) {
		prov := p.prov()
		p.advance()
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		base = &ast.Expr{Kind: ast.ExprFieldRef, Prov: prov, Base: base, Field: fieldTok.Text}
	}
	return base, nil
}
