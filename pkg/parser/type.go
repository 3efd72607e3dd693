package parser

import (
	"strconv"

	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/lexer"
)

var baseTypeKeywords = map[string]ast.TypeKind{
	"Bool": ast.TBool, "Date": ast.TDate, "DateTime": ast.TDateTime,
	"Int": ast.TInt, "Decimal": ast.TDecimal, "Text": ast.TText,
	"Money": ast.TMoney, "Duration": ast.TDuration, "Enum": ast.TEnum,
	"Record": ast.TRecord, "List": ast.TList, "TaggedUnion": ast.TTaggedUnion,
}

func (p *Parser) parseIntLit() (int64, error) {
	tok, err := p.expect(lexer.Int)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.ParseInt(tok.Text, 10, 64)
	if convErr != nil {
		return 0, &Error{File: p.file, Line: tok.Line, Message: "malformed integer literal " + tok.Text}
	}
	return n, nil
}

// parseType parses a BaseType. A bare identifier not in baseTypeKeywords
// is a TypeRef, resolved against declared TypeDecls in elaborator pass 3.
func (p *Parser) parseType() (*ast.Type, error) {
	prov := p.prov()
	if !p.is(lexer.Ident) {
		return nil, p.errHere("expected a type, got %q", p.cur().Text)
	}
	name := p.cur().Text
	kind, known := baseTypeKeywords[name]
	if !known {
		p.advance()
		return &ast.Type{Kind: ast.TRef, Prov: prov, RefName: name}, nil
	}
	p.advance()

	switch kind {
	case ast.TBool, ast.TDate, ast.TDateTime:
		return &ast.Type{Kind: kind, Prov: prov}, nil
	case ast.TInt:
		return p.parseIntType(prov)
	case ast.TDecimal:
		return p.parseDecimalType(prov)
	case ast.TText:
		return p.parseTextType(prov)
	case ast.TMoney:
		return p.parseMoneyType(prov)
	case ast.TDuration:
		return p.parseDurationType(prov)
	case ast.TEnum:
		return p.parseEnumType(prov)
	case ast.TRecord:
		return p.parseRecordType(prov)
	case ast.TList:
		return p.parseListType(prov)
	case ast.TTaggedUnion:
		return p.parseTaggedUnionType(prov)
	default:
		return nil, p.errHere("unsupported type %q", name)
	}
}

func (p *Parser) parseIntType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TInt, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		n, err := p.parseIntLit()
		if err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "min":
			t.Min = &n
		case "max":
			t.Max = &n
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Int field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseDecimalType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TDecimal, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		n, err := p.parseIntLit()
		if err != nil {
			return nil, err
		}
		v := int(n)
		switch fieldTok.Text {
		case "precision":
			t.Precision = &v
		case "scale":
			t.Scale = &v
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Decimal field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseTextType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TText, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if !p.atFieldsEnd() {
		if err := p.expectKeyword("max_length"); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		n, err := p.parseIntLit()
		if err != nil {
			return nil, err
		}
		v := int(n)
		t.MaxLength = &v
		p.consumeFieldSep()
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseMoneyType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TMoney, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("currency"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	strTok, err := p.expect(lexer.String)
	if err != nil {
		return nil, err
	}
	t.Currency = strTok.Text
	p.consumeFieldSep()
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseDurationType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TDuration, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "unit":
			strTok, err := p.expect(lexer.String)
			if err != nil {
				return nil, err
			}
			t.Unit = strTok.Text
		case "min":
			n, err := p.parseIntLit()
			if err != nil {
				return nil, err
			}
			t.DurationMin = &n
		case "max":
			n, err := p.parseIntLit()
			if err != nil {
				return nil, err
			}
			t.DurationMax = &n
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Duration field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseEnumType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TEnum, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("values"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	for !p.is(lexer.RBracket) {
		strTok, err := p.expect(lexer.String)
		if err != nil {
			return nil, err
		}
		t.Values = append(t.Values, strTok.Text)
		if p.is(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	p.consumeFieldSep()
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseRecordType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TRecord, Prov: prov, Fields: map[string]*ast.Type{}}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("fields"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	if err := p.parseFieldMap(t.Fields, &t.FieldOrder); err != nil {
		return nil, err
	}
	p.consumeFieldSep()
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseListType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TList, Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "element":
			elem, err := p.parseType()
			if err != nil {
				return nil, err
			}
			t.Element = elem
		case "max":
			n, err := p.parseIntLit()
			if err != nil {
				return nil, err
			}
			v := int(n)
			t.ListMax = &v
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown List field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseTaggedUnionType(prov ast.Provenance) (*ast.Type, error) {
	t := &ast.Type{Kind: ast.TTaggedUnion, Prov: prov, Variants: map[string]*ast.Type{}}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("variants"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	if err := p.parseFieldMap(t.Variants, &t.VariantOrder); err != nil {
		return nil, err
	}
	p.consumeFieldSep()
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return t, nil
}

// parseFieldMap parses `{ name: Type, name: Type, ... }` preserving
// declaration order in order.
func (p *Parser) parseFieldMap(into map[string]*ast.Type, order *[]string) error {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return err
	}
	for !p.atFieldsEnd() {
		nameTok, err := p.expect(lexer.Ident)
		if err != nil {
			return err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return err
		}
		fieldType, err := p.parseType()
		if err != nil {
			return err
		}
		if _, dup := into[nameTok.Text]; dup {
			return &Error{File: p.file, Line: nameTok.Line, Message: "duplicate field " + nameTok.Text}
		}
		into[nameTok.Text] = fieldType
		*order = append(*order, nameTok.Text)
		if !p.consumeFieldSep() {
			break
		}
	}
	_, err := p.expect(lexer.RBrace)
	return err
}
