// Package lexer tokenizes tenor source text (spec §4.1) into a stream of
// spanned tokens carrying line provenance for every later diagnostic.
package lexer

import "fmt"

// Kind identifies a token's lexical category.
type Kind int

const (
	EOF Kind = iota
	Ident
	String
	Int
	Decimal

	LBrace
	RBrace
	LBracket
	RBracket
	LParen
	RParen
	Comma
	Dot
	Colon
	Star

	Eq
	NotEq
	Less
	LessEq
	Greater
	GreaterEq
	Assign // '=' used as assignment inside a field, disambiguated by the parser

	And
	Or
	Not
	ForAll
	Exists
	In

	Arrow
)

var kindNames = map[Kind]string{
	EOF: "EOF", Ident: "ident", String: "string", Int: "int", Decimal: "decimal",
	LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]", LParen: "(", RParen: ")",
	Comma: ",", Dot: ".", Colon: ":", Star: "*",
	Eq: "=", NotEq: "!=", Less: "<", LessEq: "<=", Greater: ">", GreaterEq: ">=", Assign: "=",
	And: "and", Or: "or", Not: "not", ForAll: "forall", Exists: "exists", In: "in",
	Arrow: "->",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a single lexical unit with source-line provenance (spec §4.1).
type Token struct {
	Kind Kind
	Text string // raw/decoded text: identifier name, unescaped string, literal digits
	Line int
	File string
}
