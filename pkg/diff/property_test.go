//go:build property
// +build property

package diff_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/riverline-labs/tenor/pkg/diff"
	"github.com/riverline-labs/tenor/pkg/interchange"
)

// TestDiffSelfIsEmpty is the property form of L2/L3: for any randomly
// generated bundle, diffing it against itself produces no changes and
// classifying that diff reports zero breaking findings.
func TestDiffSelfIsEmpty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("diff(B, B) is empty and non-breaking", prop.ForAll(
		func(ids []string, mins []int) bool {
			n := len(ids)
			if len(mins) < n {
				n = len(mins)
			}
			constructs := make([]map[string]any, 0, n)
			for i := 0; i < n; i++ {
				if ids[i] == "" {
					continue
				}
				constructs = append(constructs, map[string]any{
					"kind": "Fact",
					"id":   ids[i],
					"type": map[string]any{"base": "Int", "min": float64(mins[i]), "max": float64(mins[i] + 100)},
				})
			}
			b := interchange.New("b", constructs)

			result := diff.Diff(b, b)
			if len(result.Added) != 0 || len(result.Removed) != 0 || len(result.Changed) != 0 {
				return false
			}
			return diff.Classify(result).Summary.BreakingCount == 0
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.TestingRun(t)
}
