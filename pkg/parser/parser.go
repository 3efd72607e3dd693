// Package parser implements the recursive-descent front end that turns a
// lexed token stream into the raw construct tree in pkg/ast (spec §4.2).
// It has two modes: Parse stops at the first error; ParseRecovering
// accumulates up to maxErrors by skipping to the next construct boundary.
package parser

import (
	"fmt"

	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/lexer"
)

const defaultMaxErrors = 10

// Parser walks a single file's token stream.
type Parser struct {
	file      string
	toks      []lexer.Token
	pos       int
	recover   bool
	maxErrors int
	errs      []*Error
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxErrors overrides the default recovery cap of 10.
func WithMaxErrors(n int) Option {
	return func(p *Parser) { p.maxErrors = n }
}

func New(file string, toks []lexer.Token, opts ...Option) *Parser {
	p := &Parser{file: file, toks: toks, maxErrors: defaultMaxErrors}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse runs in single-error mode: the first parse error aborts and is
// returned as *Error.
func (p *Parser) Parse() (*ast.File, error) {
	p.recover = false
	f, err := p.parseFile()
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ParseRecovering runs in multi-error mode and always returns whatever
// constructs it could salvage alongside the accumulated errors.
func (p *Parser) ParseRecovering() (*ast.File, *MultiError) {
	p.recover = true
	f, _ := p.parseFile()
	if len(p.errs) == 0 {
		return f, nil
	}
	return f, &MultiError{Errors: p.errs}
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool       { return p.cur().Kind == lexer.EOF }
func (p *Parser) prov() ast.Provenance {
	return ast.Provenance{File: p.file, Line: p.cur().Line}
}

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if t.Kind != lexer.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) is(k lexer.Kind) bool { return p.cur().Kind == k }

func (p *Parser) isKeyword(word string) bool {
	return p.cur().Kind == lexer.Ident && p.cur().Text == word
}

func (p *Parser) expect(k lexer.Kind) (lexer.Token, error) {
	if p.cur().Kind != k {
		return lexer.Token{}, p.errHere("expected %s, got %s %q", k, p.cur().Kind, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectKeyword(word string) error {
	if !p.isKeyword(word) {
		return p.errHere("expected %q, got %q", word, p.cur().Text)
	}
	p.advance()
	return nil
}

func (p *Parser) errHere(format string, args ...any) *Error {
	return &Error{File: p.file, Line: p.cur().Line, Message: fmt.Sprintf(format, args...)}
}

// record appends err to the accumulator in recovering mode; in
// single-error mode it is simply returned by the caller.
func (p *Parser) record(err error) error {
	if pe, ok := err.(*Error); ok && p.recover {
		p.errs = append(p.errs, pe)
	}
	return err
}

var constructKeywords = map[string]bool{
	"fact": true, "entity": true, "rule": true, "operation": true,
	"flow": true, "type": true, "persona": true, "system": true,
}

// skipToRecoveryPoint discards tokens until the brace that opened the
// failing construct is closed (tracking nesting) or the next top-level
// construct keyword is reached at depth 0, whichever comes first.
func (p *Parser) skipToRecoveryPoint(depth int) {
	for {
		t := p.cur()
		if t.Kind == lexer.EOF {
			return
		}
		if depth == 0 && t.Kind == lexer.Ident && constructKeywords[t.Text] {
			return
		}
		switch t.Kind {
		case lexer.LBrace:
			depth++
		case lexer.RBrace:
			if depth == 0 {
				p.advance()
				return
			}
			depth--
		}
		p.advance()
	}
}

func (p *Parser) parseFile() (*ast.File, error) {
	f := &ast.File{Path: p.file}
	for !p.atEOF() {
		if len(p.errs) >= p.maxErrors && p.recover {
			break
		}
		if p.isKeyword("import") {
			imp, err := p.parseImport()
			if err != nil {
				if !p.recover {
					return f, err
				}
				p.record(err)
				p.skipToRecoveryPoint(0)
				continue
			}
			f.Imports = append(f.Imports, imp)
			continue
		}
		if p.cur().Kind == lexer.Ident && constructKeywords[p.cur().Text] {
			c, err := p.parseConstruct()
			if err != nil {
				if !p.recover {
					return f, err
				}
				p.record(err)
				p.skipToRecoveryPoint(0)
				continue
			}
			f.Constructs = append(f.Constructs, c)
			continue
		}
		err := p.errHere("expected import or construct declaration, got %q", p.cur().Text)
		if !p.recover {
			return f, err
		}
		p.record(err)
		p.advance()
	}
	return f, nil
}

func (p *Parser) parseImport() (*ast.Import, error) {
	prov := p.prov()
	p.advance() // "import"
	tok, err := p.expect(lexer.String)
	if err != nil {
		return nil, err
	}
	return &ast.Import{Path: tok.Text, Prov: prov}, nil
}

func (p *Parser) parseConstruct() (ast.Construct, error) {
	kw := p.cur().Text
	switch kw {
	case "fact":
		return p.parseFact()
	case "entity":
		return p.parseEntity()
	case "rule":
		return p.parseRule()
	case "operation":
		return p.parseOperation()
	case "flow":
		return p.parseFlow()
	case "type":
		return p.parseTypeDecl()
	case "persona":
		return p.parsePersona()
	case "system":
		return p.parseSystem()
	default:
		return nil, p.errHere("unknown construct keyword %q", kw)
	}
}

// parseHeader consumes `<keyword> <id> {` and returns id, its provenance, and
// any error from the opening brace.
func (p *Parser) parseHeader() (id string, prov ast.Provenance, err error) {
	prov = p.prov()
	p.advance() // keyword
	idTok, err := p.expect(lexer.Ident)
	if err != nil {
		return "", prov, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return "", prov, err
	}
	return idTok.Text, prov, nil
}

func (p *Parser) atFieldsEnd() bool { return p.is(lexer.RBrace) }

// consumeFieldSep consumes a trailing comma if present; returns true if
// the field list continues (i.e. the next token is not RBrace).
func (p *Parser) consumeFieldSep() bool {
	if p.is(lexer.Comma) {
		p.advance()
	}
	return !p.atFieldsEnd()
}

func (p *Parser) parsePersona() (*ast.Persona, error) {
	prov := p.prov()
	p.advance()
	idTok, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return &ast.Persona{ID: idTok.Text, Prov: prov}, nil
}
