package explain

import (
	"strings"
	"testing"

	"github.com/riverline-labs/tenor/pkg/analyze"
	"github.com/riverline-labs/tenor/pkg/evaluator"
	"github.com/stretchr/testify/require"
)

func testModel() *evaluator.Model {
	return &evaluator.Model{
		Facts: map[string]*evaluator.FactDef{
			"age":        {ID: "age", Type: map[string]any{"base": "Int"}},
			"is_vip":     {ID: "is_vip", Type: map[string]any{"base": "Bool"}, Default: map[string]any{"kind": "literal", "value": false}},
			"account_id": {ID: "account_id", Type: map[string]any{"base": "Text"}},
		},
		Entities: map[string]*evaluator.EntityDef{
			"Order": {ID: "Order", Initial: "pending", States: []string{"pending", "approved"}},
		},
		Rules: []*evaluator.RuleDef{
			{ID: "r1", Stratum: 0, VerdictType: "order_eligible"},
			{ID: "r2", Stratum: 1, VerdictType: "order_priced"},
		},
		Operations: map[string]*evaluator.OperationDef{
			"approve": {ID: "approve", AllowedPersonas: []string{"reviewer"}},
		},
		Flows: map[string]*evaluator.FlowDef{
			"approval": {
				ID: "approval", Entry: "s1",
				Steps: map[string]*evaluator.StepDef{
					"s1": {ID: "s1", StepKind: "operation", Op: "approve", Persona: "reviewer",
						Outcomes: map[string]*evaluator.StepTargetDef{
							"approved": {Terminal: true, Outcome: "approved"},
							"rejected": {Terminal: true, Outcome: "rejected"},
						}},
				},
			},
		},
	}
}

func TestRun_RendersAllFourSections(t *testing.T) {
	m := testModel()
	report := analyze.Run(m)
	sink := NewMarkdownSink()

	Run(m, report, sink)
	out := sink.String()

	require.Contains(t, out, "# Contract Summary")
	require.Contains(t, out, "# Decision Flow Narrative")
	require.Contains(t, out, "# Fact Inventory")
	require.Contains(t, out, "# Risk / Coverage Notes")
}

func TestContractSummary_CountsStrata(t *testing.T) {
	m := testModel()
	sink := NewMarkdownSink()
	contractSummary(m, sink)
	out := sink.String()
	require.Contains(t, out, "Rules: 2 across 2 strata")
}

func TestDecisionFlowNarrative_MentionsOperationAndPersona(t *testing.T) {
	m := testModel()
	sink := NewMarkdownSink()
	decisionFlowNarrative(m, sink)
	out := sink.String()
	require.Contains(t, out, "`approve`")
	require.Contains(t, out, "*reviewer*")
}

func TestFactInventory_GroupsByCategory(t *testing.T) {
	m := testModel()
	sink := NewMarkdownSink()
	factInventory(m, sink)
	out := sink.String()
	require.Contains(t, out, "## Boolean")
	require.Contains(t, out, "## Numeric")
	require.Contains(t, out, "## Textual")
	require.True(t, strings.Index(out, "is_vip") > strings.Index(out, "## Boolean"))
}

func TestRiskAndCoverageNotes_NilReport(t *testing.T) {
	sink := NewMarkdownSink()
	riskAndCoverageNotes(nil, sink)
	require.Contains(t, sink.String(), "No analyze report")
}

func TestRiskAndCoverageNotes_IncludesFindings(t *testing.T) {
	m := testModel()
	report := analyze.Run(m)
	sink := NewMarkdownSink()
	riskAndCoverageNotes(report, sink)
	require.Contains(t, sink.String(), "Order")
}
