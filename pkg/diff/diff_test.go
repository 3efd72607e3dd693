package diff

import (
	"testing"

	"github.com/riverline-labs/tenor/pkg/interchange"
	"github.com/stretchr/testify/require"
)

func amountFact(min, max int64) map[string]any {
	return map[string]any{
		"kind": "Fact", "id": "amount",
		"type": map[string]any{"base": "Int", "min": float64(min), "max": float64(max)},
	}
}

func addedRule(id string) map[string]any {
	return map[string]any{"kind": "Rule", "id": id, "stratum": float64(0)}
}

// TestDiffAndClassify_S5 is spec §8 scenario S5: narrowing a Fact's Int
// range classifies Breaking with a migration action; an added Rule
// classifies RequiresAnalysis.
func TestDiffAndClassify_S5(t *testing.T) {
	a := interchange.New("bundle-a", []map[string]any{amountFact(0, 10000)})
	b := interchange.New("bundle-b", []map[string]any{amountFact(0, 5000), addedRule("r-new")})

	result := Diff(a, b)
	require.Len(t, result.Changed, 1)
	require.Equal(t, Key{Kind: "Fact", ID: "amount"}, result.Changed[0].Key)
	require.Len(t, result.Changed[0].Fields, 1)
	require.Equal(t, "type", result.Changed[0].Fields[0].Field)

	require.Len(t, result.Added, 1)
	require.Equal(t, Key{Kind: "Rule", ID: "r-new"}, constructKey(result.Added[0]))

	c := Classify(result)
	var factFinding, ruleFinding *Finding
	for i := range c.Findings {
		f := &c.Findings[i]
		switch {
		case f.Key.Kind == "Fact" && f.Field == "type":
			factFinding = f
		case f.Key.Kind == "Rule" && f.Field == "":
			ruleFinding = f
		}
	}
	require.NotNil(t, factFinding)
	require.Equal(t, Breaking, factFinding.Severity)
	require.Equal(t, "Int range narrowing", factFinding.Reason)
	require.NotEmpty(t, factFinding.Migration)

	require.NotNil(t, ruleFinding)
	require.Equal(t, RequiresAnalysis, ruleFinding.Severity)

	require.True(t, c.HasBreaking())
	require.Equal(t, 1, c.Summary.BreakingCount)
	require.Equal(t, 1, c.Summary.RequiresAnalysisCount)
}

// TestDiff_Idempotent covers L2/L3: diffing a bundle against itself
// yields no added/removed/changed entries and zero breaking findings.
func TestDiff_Idempotent(t *testing.T) {
	b := interchange.New("bundle", []map[string]any{
		amountFact(0, 100),
		addedRule("r1"),
		map[string]any{"kind": "Entity", "id": "Order", "states": []any{"pending", "approved"}, "initial": "pending"},
	})

	result := Diff(b, b)
	require.Empty(t, result.Added)
	require.Empty(t, result.Removed)
	require.Empty(t, result.Changed)

	c := Classify(result)
	require.Equal(t, 0, c.Summary.BreakingCount)
	require.False(t, c.HasBreaking())
}

func TestDiff_IgnoresNoiseFields(t *testing.T) {
	a := interchange.New("a", []map[string]any{
		{"kind": "Fact", "id": "f", "line": float64(10), "type": map[string]any{"base": "Bool"}},
	})
	b := interchange.New("b", []map[string]any{
		{"kind": "Fact", "id": "f", "line": float64(99), "type": map[string]any{"base": "Bool"}},
	})
	result := Diff(a, b)
	require.Empty(t, result.Changed)
}

func TestDiff_PrimitiveArrayTreatedAsSet(t *testing.T) {
	a := interchange.New("a", []map[string]any{
		{"kind": "Operation", "id": "op", "allowed_personas": []any{"admin", "clerk"}},
	})
	b := interchange.New("b", []map[string]any{
		{"kind": "Operation", "id": "op", "allowed_personas": []any{"clerk", "admin"}},
	})
	result := Diff(a, b)
	require.Empty(t, result.Changed)
}

func TestClassify_EntityStatesNarrowIsBreaking(t *testing.T) {
	a := interchange.New("a", []map[string]any{
		{"kind": "Entity", "id": "Order", "states": []any{"pending", "approved", "cancelled"}},
	})
	b := interchange.New("b", []map[string]any{
		{"kind": "Entity", "id": "Order", "states": []any{"pending", "approved"}},
	})
	c := Classify(Diff(a, b))
	require.Len(t, c.Findings, 1)
	require.Equal(t, Breaking, c.Findings[0].Severity)
}
