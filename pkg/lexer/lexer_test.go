package lexer_test

import (
	"testing"

	"github.com/riverline-labs/tenor/pkg/lexer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []lexer.Token) []lexer.Kind {
	out := make([]lexer.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLex_Punctuation(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `{ } [ ] ( ) , . : *`)
	require.NoError(t, err)
	assert.Equal(t, []lexer.Kind{
		lexer.LBrace, lexer.RBrace, lexer.LBracket, lexer.RBracket,
		lexer.LParen, lexer.RParen, lexer.Comma, lexer.Dot, lexer.Colon, lexer.Star, lexer.EOF,
	}, kinds(toks))
}

func TestLex_Comparisons(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `= != < <= > >=`)
	require.NoError(t, err)
	assert.Equal(t, []lexer.Kind{
		lexer.Eq, lexer.NotEq, lexer.Less, lexer.LessEq, lexer.Greater, lexer.GreaterEq, lexer.EOF,
	}, kinds(toks))
}

func TestLex_LogicalAliases(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `∧ ∨ ¬ and or not ∀ ∃ ∈`)
	require.NoError(t, err)
	assert.Equal(t, []lexer.Kind{
		lexer.And, lexer.Or, lexer.Not, lexer.And, lexer.Or, lexer.Not,
		lexer.ForAll, lexer.Exists, lexer.In, lexer.EOF,
	}, kinds(toks))
}

func TestLex_Arrow(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `-> →`)
	require.NoError(t, err)
	assert.Equal(t, []lexer.Kind{lexer.Arrow, lexer.Arrow, lexer.EOF}, kinds(toks))
}

func TestLex_NegativeIntegerAbsorbsMinus(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `-5 5 -5.25`)
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, lexer.Int, toks[0].Kind)
	assert.Equal(t, "-5", toks[0].Text)
	assert.Equal(t, lexer.Int, toks[1].Kind)
	assert.Equal(t, lexer.Decimal, toks[2].Kind)
	assert.Equal(t, "-5.25", toks[2].Text)
}

func TestLex_StringEscapes(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `"hello \"world\"\n"`)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "hello \"world\"\n", toks[0].Text)
}

func TestLex_LineTracking(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", "fact\nentity\nrule")
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 2, toks[1].Line)
	assert.Equal(t, 3, toks[2].Line)
}

func TestLex_UnterminatedStringIsFatal(t *testing.T) {
	_, err := lexer.Lex("t.dsl", `"unterminated`)
	require.Error(t, err)
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
}

func TestLex_UnknownCharacterIsFatal(t *testing.T) {
	_, err := lexer.Lex("t.dsl", `@`)
	require.Error(t, err)
}

func TestLex_MalformedNumberIsFatal(t *testing.T) {
	_, err := lexer.Lex("t.dsl", `5abc`)
	require.Error(t, err)
}

func TestLex_ForallExpressionWithDot(t *testing.T) {
	toks, err := lexer.Lex("t.dsl", `∀ v ∈ items . v.amount > 0`)
	require.NoError(t, err)
	assert.Equal(t, []lexer.Kind{
		lexer.ForAll, lexer.Ident, lexer.In, lexer.Ident, lexer.Dot,
		lexer.Ident, lexer.Dot, lexer.Ident, lexer.Greater, lexer.Int, lexer.EOF,
	}, kinds(toks))
}
