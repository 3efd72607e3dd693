package analyze

import (
	"testing"

	"github.com/riverline-labs/tenor/pkg/evaluator"
	"github.com/stretchr/testify/require"
)

func testModel() *evaluator.Model {
	return &evaluator.Model{
		Entities: map[string]*evaluator.EntityDef{
			"Order": {
				ID: "Order", Initial: "pending",
				States:      []string{"pending", "approved", "orphaned"},
				Transitions: []evaluator.Transition{{From: "pending", To: "approved"}},
			},
		},
		Rules: []*evaluator.RuleDef{
			{ID: "r1", Stratum: 0, VerdictType: "order_eligible"},
		},
		Flows: map[string]*evaluator.FlowDef{
			"f": {
				ID: "f", Entry: "s1",
				Steps: map[string]*evaluator.StepDef{
					"s1": {ID: "s1", StepKind: "operation", Op: "approve",
						Outcomes: map[string]*evaluator.StepTargetDef{
							"done": {Terminal: true, Outcome: "ok"},
						}},
				},
			},
		},
	}
}

func TestRun_ReachabilityFindsOrphanedState(t *testing.T) {
	r := Run(testModel())
	require.Len(t, r.StateSpaces, 1)
	require.Equal(t, 3, r.StateSpaces[0].Count)

	var found bool
	for _, f := range r.Findings {
		if f.Check == "reachability" && f.Subject == "Order" {
			found = true
			require.Contains(t, f.Message, "orphaned")
		}
	}
	require.True(t, found)
}

func TestRun_VerdictCoverage(t *testing.T) {
	r := Run(testModel())
	require.Equal(t, []string{"order_eligible"}, r.VerdictTypes)
}

func TestRun_FlowPathCounts(t *testing.T) {
	r := Run(testModel())
	require.Equal(t, 1, r.FlowPathCounts["f"])
}

func TestRun_VerdictUniquenessViolation(t *testing.T) {
	m := testModel()
	m.Rules = append(m.Rules, &evaluator.RuleDef{ID: "r2", Stratum: 0, VerdictType: "order_eligible"})
	r := Run(m)

	var found bool
	for _, f := range r.Findings {
		if f.Check == "verdict_uniqueness" {
			found = true
			require.Equal(t, Error, f.Severity)
		}
	}
	require.True(t, found)
}
