package lexer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Error is a fatal lexical error (spec §4.1, §7 family 1): unterminated
// string, unknown character, or malformed number. The pipeline aborts on
// any Error — there is no lexer-level recovery.
type Error struct {
	File    string
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: lex error: %s", e.File, e.Line, e.Message)
}

var specialAliases = map[string]Kind{
	"and": And,
	"or":  Or,
	"not": Not,
}

// Lex tokenizes src (from the named file) into a full token stream,
// terminated by a single EOF token. It stops at the first fatal error.
func Lex(file, src string) ([]Token, error) {
	l := &lexer{file: file, src: src, line: 1}
	var toks []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

type lexer struct {
	file string
	src  string
	pos  int
	line int
}

func (l *lexer) errf(format string, args ...any) error {
	return &Error{File: l.file, Line: l.line, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Line: l.line, File: l.file}, nil
	}

	startLine := l.line
	r, size := l.peekRune()

	switch {
	case r == '"':
		return l.lexString(startLine)
	case r == '-' && isDigit(l.peekByteAt(1)):
		return l.lexNumber(startLine)
	case isDigit(byte(r)) && r < utf8.RuneSelf:
		return l.lexNumber(startLine)
	case isIdentStart(r):
		return l.lexIdentOrKeyword(startLine)
	}

	switch r {
	case '{':
		l.advance(size)
		return Token{Kind: LBrace, Text: "{", Line: startLine, File: l.file}, nil
	case '}':
		l.advance(size)
		return Token{Kind: RBrace, Text: "}", Line: startLine, File: l.file}, nil
	case '[':
		l.advance(size)
		return Token{Kind: LBracket, Text: "[", Line: startLine, File: l.file}, nil
	case ']':
		l.advance(size)
		return Token{Kind: RBracket, Text: "]", Line: startLine, File: l.file}, nil
	case '(':
		l.advance(size)
		return Token{Kind: LParen, Text: "(", Line: startLine, File: l.file}, nil
	case ')':
		l.advance(size)
		return Token{Kind: RParen, Text: ")", Line: startLine, File: l.file}, nil
	case ',':
		l.advance(size)
		return Token{Kind: Comma, Text: ",", Line: startLine, File: l.file}, nil
	case '.':
		l.advance(size)
		return Token{Kind: Dot, Text: ".", Line: startLine, File: l.file}, nil
	case ':':
		l.advance(size)
		return Token{Kind: Colon, Text: ":", Line: startLine, File: l.file}, nil
	case '*':
		l.advance(size)
		return Token{Kind: Star, Text: "*", Line: startLine, File: l.file}, nil
	case '=':
		l.advance(size)
		return Token{Kind: Eq, Text: "=", Line: startLine, File: l.file}, nil
	case '!':
		if l.peekByteAt(1) == '=' {
			l.advance(2)
			return Token{Kind: NotEq, Text: "!=", Line: startLine, File: l.file}, nil
		}
		return Token{}, l.errf("unknown character %q", "!")
	case '<':
		if l.peekByteAt(1) == '=' {
			l.advance(2)
			return Token{Kind: LessEq, Text: "<=", Line: startLine, File: l.file}, nil
		}
		l.advance(1)
		return Token{Kind: Less, Text: "<", Line: startLine, File: l.file}, nil
	case '>':
		if l.peekByteAt(1) == '=' {
			l.advance(2)
			return Token{Kind: GreaterEq, Text: ">=", Line: startLine, File: l.file}, nil
		}
		l.advance(1)
		return Token{Kind: Greater, Text: ">", Line: startLine, File: l.file}, nil
	case '-':
		if l.peekByteAt(1) == '>' {
			l.advance(2)
			return Token{Kind: Arrow, Text: "->", Line: startLine, File: l.file}, nil
		}
		return Token{}, l.errf("unknown character %q (bare '-' is only valid before a digit or before '>')", "-")
	case '∧':
		l.advance(size)
		return Token{Kind: And, Text: "∧", Line: startLine, File: l.file}, nil
	case '∨':
		l.advance(size)
		return Token{Kind: Or, Text: "∨", Line: startLine, File: l.file}, nil
	case '¬':
		l.advance(size)
		return Token{Kind: Not, Text: "¬", Line: startLine, File: l.file}, nil
	case '∀':
		l.advance(size)
		return Token{Kind: ForAll, Text: "∀", Line: startLine, File: l.file}, nil
	case '∃':
		l.advance(size)
		return Token{Kind: Exists, Text: "∃", Line: startLine, File: l.file}, nil
	case '∈':
		l.advance(size)
		return Token{Kind: In, Text: "∈", Line: startLine, File: l.file}, nil
	case '→':
		l.advance(size)
		return Token{Kind: Arrow, Text: "→", Line: startLine, File: l.file}, nil
	}

	return Token{}, l.errf("unknown character %q", string(r))
}

func (l *lexer) advance(n int) {
	for i := 0; i < n; i++ {
		if l.pos < len(l.src) && l.src[l.pos] == '\n' {
			l.line++
		}
		l.pos++
	}
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r':
			l.pos++
		case '\n':
			l.pos++
			l.line++
		default:
			return
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || isDigit(byte(r)) || r == '-'
}

func (l *lexer) lexIdentOrKeyword(startLine int) (Token, error) {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := l.peekRune()
		if r >= utf8.RuneSelf || !isIdentCont(r) {
			break
		}
		l.pos += size
	}
	text := l.src[start:l.pos]
	if kind, ok := specialAliases[text]; ok {
		return Token{Kind: kind, Text: text, Line: startLine, File: l.file}, nil
	}
	return Token{Kind: Ident, Text: text, Line: startLine, File: l.file}, nil
}

func (l *lexer) lexNumber(startLine int) (Token, error) {
	start := l.pos
	if l.peekByte() == '-' {
		l.pos++
	}
	if !isDigit(l.peekByte()) {
		end := start + 8
		if end > len(l.src) {
			end = len(l.src)
		}
		return Token{}, l.errf("malformed number at %q", l.src[start:end])
	}
	for isDigit(l.peekByte()) {
		l.pos++
	}
	isDecimal := false
	if l.peekByte() == '.' {
		if !isDigit(l.peekByteAt(1)) {
			// A trailing '.' with no digits is a separate Dot token (e.g. "∀ v ∈ fact . body");
			// don't consume it into the number.
		} else {
			isDecimal = true
			l.pos++
			for isDigit(l.peekByte()) {
				l.pos++
			}
		}
	}
	if isIdentStart(rune(l.peekByte())) {
		return Token{}, l.errf("malformed number: unexpected trailing characters after %q", l.src[start:l.pos])
	}
	text := l.src[start:l.pos]
	if isDecimal {
		return Token{Kind: Decimal, Text: text, Line: startLine, File: l.file}, nil
	}
	return Token{Kind: Int, Text: text, Line: startLine, File: l.file}, nil
}

func (l *lexer) lexString(startLine int) (Token, error) {
	l.pos++ // consume opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, &Error{File: l.file, Line: startLine, Message: "unterminated string literal"}
		}
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			return Token{Kind: String, Text: sb.String(), Line: startLine, File: l.file}, nil
		}
		if c == '\n' {
			return Token{}, &Error{File: l.file, Line: startLine, Message: "unterminated string literal (newline before closing quote)"}
		}
		if c == '\\' {
			l.pos++
			if l.pos >= len(l.src) {
				return Token{}, &Error{File: l.file, Line: startLine, Message: "unterminated string literal (trailing escape)"}
			}
			esc := l.src[l.pos]
			switch esc {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return Token{}, l.errf("invalid escape sequence '\\%c'", esc)
			}
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
}
