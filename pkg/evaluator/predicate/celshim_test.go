package predicate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompilerEvalBasic(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	tests := []struct {
		name  string
		expr  string
		facts map[string]any
		want  bool
	}{
		{
			name:  "numeric comparison true",
			expr:  `facts.amount > 100`,
			facts: map[string]any{"amount": int64(150)},
			want:  true,
		},
		{
			name:  "numeric comparison false",
			expr:  `facts.amount > 100`,
			facts: map[string]any{"amount": int64(50)},
			want:  false,
		},
		{
			name:  "boolean conjunction",
			expr:  `facts.approved && facts.amount < 1000`,
			facts: map[string]any{"approved": true, "amount": int64(200)},
			want:  true,
		},
		{
			name:  "string equality",
			expr:  `facts.region == "us-east"`,
			facts: map[string]any{"region": "us-east"},
			want:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prg, err := c.Compile(tc.expr)
			require.NoError(t, err)
			got, err := prg.Eval(tc.facts)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCompilerCachesByExpressionText(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	p1, err := c.Compile(`facts.x > 0`)
	require.NoError(t, err)
	p2, err := c.Compile(`facts.x > 0`)
	require.NoError(t, err)

	require.Len(t, c.cache, 1)

	ok1, err := p1.Eval(map[string]any{"x": int64(1)})
	require.NoError(t, err)
	ok2, err := p2.Eval(map[string]any{"x": int64(1)})
	require.NoError(t, err)
	require.Equal(t, ok1, ok2)
}

func TestCompilerRejectsMalformedExpression(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	_, err = c.Compile(`facts.amount >`)
	require.Error(t, err)
}

func TestCompilerRejectsNonBoolResult(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	prg, err := c.Compile(`facts.amount`)
	require.NoError(t, err)

	_, err = prg.Eval(map[string]any{"amount": int64(5)})
	require.Error(t, err)
}
