package parser

import (
	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/lexer"
)

func (p *Parser) parseFact() (*ast.Fact, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	f := &ast.Fact{ID: id, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "type":
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			f.Type = t
		case "source":
			src, err := p.parseSource()
			if err != nil {
				return nil, err
			}
			f.Source = src
		case "default":
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			f.Default = v
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Fact field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return f, nil
}

// parseSource parses a fact's `source` value: either a bare string
// ("system.field") or a structured {system_id, path} record.
func (p *Parser) parseSource() (ast.Source, error) {
	prov := p.prov()
	if p.is(lexer.String) {
		tok := p.advance()
		return ast.Source{FreeText: tok.Text, Prov: prov}, nil
	}
	src := ast.Source{Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return src, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return src, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return src, err
		}
		strTok, err := p.expect(lexer.String)
		if err != nil {
			return src, err
		}
		switch fieldTok.Text {
		case "system_id":
			src.SystemID = strTok.Text
		case "path":
			src.Path = strTok.Text
		default:
			return src, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown source field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	_, err := p.expect(lexer.RBrace)
	return src, err
}

func (p *Parser) parseEntity() (*ast.Entity, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	e := &ast.Entity{ID: id, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "states":
			states, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			e.States = states
		case "initial":
			idTok, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			e.Initial = ast.Ident{Name: idTok.Text, Prov: ast.Provenance{File: p.file, Line: idTok.Line}}
		case "transitions":
			transitions, err := p.parseTransitionList()
			if err != nil {
				return nil, err
			}
			e.Transitions = transitions
		case "parent":
			idTok, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			parent := ast.Ident{Name: idTok.Text, Prov: ast.Provenance{File: p.file, Line: idTok.Line}}
			e.Parent = &parent
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Entity field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) parseIdentList() ([]ast.Ident, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var out []ast.Ident
	for !p.is(lexer.RBracket) {
		idTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		out = append(out, ast.Ident{Name: idTok.Text, Prov: ast.Provenance{File: p.file, Line: idTok.Line}})
		if p.is(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	_, err := p.expect(lexer.RBracket)
	return out, err
}

func (p *Parser) parseTransitionList() ([]ast.Transition, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var out []ast.Transition
	for !p.is(lexer.RBracket) {
		tr, err := p.parseTransition()
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
		if p.is(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	_, err := p.expect(lexer.RBracket)
	return out, err
}

// parseTransition parses a single `(from -> to)` pair.
func (p *Parser) parseTransition() (ast.Transition, error) {
	prov := p.prov()
	if _, err := p.expect(lexer.LParen); err != nil {
		return ast.Transition{}, err
	}
	fromTok, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Transition{}, err
	}
	if _, err := p.expect(lexer.Arrow); err != nil {
		return ast.Transition{}, err
	}
	toTok, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Transition{}, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return ast.Transition{}, err
	}
	return ast.Transition{
		From: ast.Ident{Name: fromTok.Text, Prov: ast.Provenance{File: p.file, Line: fromTok.Line}},
		To:   ast.Ident{Name: toTok.Text, Prov: ast.Provenance{File: p.file, Line: toTok.Line}},
		Prov: prov,
	}, nil
}

func (p *Parser) parseRule() (*ast.Rule, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	r := &ast.Rule{ID: id, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "stratum":
			stratumProv := p.prov()
			n, err := p.parseIntLit()
			if err != nil {
				return nil, err
			}
			r.Stratum = ast.IntLit{Value: n, Prov: stratumProv}
		case "when":
			w, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			r.When = w
		case "produce":
			prod, err := p.parseProduce()
			if err != nil {
				return nil, err
			}
			r.Produce = prod
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Rule field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *Parser) parseProduce() (ast.Produce, error) {
	prov := p.prov()
	prod := ast.Produce{Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return prod, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return prod, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return prod, err
		}
		switch fieldTok.Text {
		case "verdict_type":
			idTok, err := p.expect(lexer.Ident)
			if err != nil {
				return prod, err
			}
			prod.VerdictType = ast.Ident{Name: idTok.Text, Prov: ast.Provenance{File: p.file, Line: idTok.Line}}
		case "payload_type":
			t, err := p.parseType()
			if err != nil {
				return prod, err
			}
			prod.PayloadType = t
		case "payload_value":
			v, err := p.parseExpr()
			if err != nil {
				return prod, err
			}
			prod.PayloadValue = v
		default:
			return prod, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown produce field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	_, err := p.expect(lexer.RBrace)
	return prod, err
}

func (p *Parser) parseOperation() (*ast.Operation, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	op := &ast.Operation{ID: id, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "allowed_personas":
			list, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			op.AllowedPersonas = list
		case "precondition":
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			op.Precondition = e
		case "effects":
			effects, err := p.parseEffectList()
			if err != nil {
				return nil, err
			}
			op.Effects = effects
		case "outcomes":
			list, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			op.Outcomes = list
		case "error_contract":
			list, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			op.ErrorContract = list
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Operation field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return op, nil
}

func (p *Parser) parseEffectList() ([]ast.Effect, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var out []ast.Effect
	for !p.is(lexer.RBracket) {
		eff, err := p.parseEffect()
		if err != nil {
			return nil, err
		}
		out = append(out, eff)
		if p.is(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	_, err := p.expect(lexer.RBracket)
	return out, err
}

// parseEffect parses `(entity, from -> to)` or `(entity, from -> to, outcome)`.
func (p *Parser) parseEffect() (ast.Effect, error) {
	prov := p.prov()
	if _, err := p.expect(lexer.LParen); err != nil {
		return ast.Effect{}, err
	}
	entityTok, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Effect{}, err
	}
	if _, err := p.expect(lexer.Comma); err != nil {
		return ast.Effect{}, err
	}
	fromTok, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Effect{}, err
	}
	if _, err := p.expect(lexer.Arrow); err != nil {
		return ast.Effect{}, err
	}
	toTok, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Effect{}, err
	}
	eff := ast.Effect{
		Entity: ast.Ident{Name: entityTok.Text, Prov: ast.Provenance{File: p.file, Line: entityTok.Line}},
		From:   ast.Ident{Name: fromTok.Text, Prov: ast.Provenance{File: p.file, Line: fromTok.Line}},
		To:     ast.Ident{Name: toTok.Text, Prov: ast.Provenance{File: p.file, Line: toTok.Line}},
		Prov:   prov,
	}
	if p.is(lexer.Comma) {
		p.advance()
		outTok, err := p.expect(lexer.Ident)
		if err != nil {
			return ast.Effect{}, err
		}
		outcome := ast.Ident{Name: outTok.Text, Prov: ast.Provenance{File: p.file, Line: outTok.Line}}
		eff.Outcome = &outcome
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return ast.Effect{}, err
	}
	return eff, nil
}

func (p *Parser) parseTypeDecl() (*ast.TypeDecl, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	td := &ast.TypeDecl{ID: id, Prov: prov, Fields: map[string]*ast.Type{}}
	for !p.atFieldsEnd() {
		nameTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		fieldType, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, dup := td.Fields[nameTok.Text]; dup {
			return nil, &Error{File: p.file, Line: nameTok.Line, Message: "duplicate field " + nameTok.Text}
		}
		td.Fields[nameTok.Text] = fieldType
		td.FieldOrder = append(td.FieldOrder, nameTok.Text)
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return td, nil
}

func (p *Parser) parseSystem() (*ast.System, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	s := &ast.System{ID: id, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "members":
			list, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			s.Members = list
		case "triggers":
			triggers, err := p.parseTriggerList()
			if err != nil {
				return nil, err
			}
			s.Triggers = triggers
		case "shared_personas":
			list, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			s.SharedPersonas = list
		case "shared_entities":
			list, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			s.SharedEntities = list
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown System field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseTriggerList() ([]ast.Trigger, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var out []ast.Trigger
	for !p.is(lexer.RBracket) {
		tr, err := p.parseTrigger()
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
		if p.is(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	_, err := p.expect(lexer.RBracket)
	return out, err
}

// parseTrigger parses `(from_member.from_flow -> to_member.to_flow)`.
func (p *Parser) parseTrigger() (ast.Trigger, error) {
	prov := p.prov()
	if _, err := p.expect(lexer.LParen); err != nil {
		return ast.Trigger{}, err
	}
	fromMember, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Trigger{}, err
	}
	if _, err := p.expect(lexer.Dot); err != nil {
		return ast.Trigger{}, err
	}
	fromFlow, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Trigger{}, err
	}
	if _, err := p.expect(lexer.Arrow); err != nil {
		return ast.Trigger{}, err
	}
	toMember, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Trigger{}, err
	}
	if _, err := p.expect(lexer.Dot); err != nil {
		return ast.Trigger{}, err
	}
	toFlow, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Trigger{}, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return ast.Trigger{}, err
	}
	mk := func(t lexer.Token) ast.Ident {
		return ast.Ident{Name: t.Text, Prov: ast.Provenance{File: p.file, Line: t.Line}}
	}
	return ast.Trigger{
		FromMember: mk(fromMember), FromFlow: mk(fromFlow),
		ToMember: mk(toMember), ToFlow: mk(toFlow),
		Prov: prov,
	}, nil
}
