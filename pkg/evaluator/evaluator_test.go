package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func literalBool(b bool) map[string]any {
	return map[string]any{"kind": "literal", "value": b}
}

func verdictPresent(verdictType string) map[string]any {
	return map[string]any{"kind": "verdict_present", "verdict_type": verdictType}
}

// s1Model builds the bundle described in spec §8 scenario S1: one
// entity, one operation, one flow with a single OperationStep.
func s1Model() *Model {
	return &Model{
		Facts: map[string]*FactDef{},
		Entities: map[string]*EntityDef{
			"Order": {ID: "Order", States: []string{"pending", "approved"}, Initial: "pending",
				Transitions: []Transition{{From: "pending", To: "approved"}}},
		},
		Operations: map[string]*OperationDef{
			"approve": {
				ID:              "approve",
				AllowedPersonas: []string{"admin"},
				Precondition:    literalBool(true),
				Effects:         []EffectDef{{Entity: "Order", From: "pending", To: "approved"}},
				Outcomes:        []string{"done"},
			},
		},
		Flows: map[string]*FlowDef{
			"f": {
				ID:    "f",
				Entry: "s1",
				Steps: map[string]*StepDef{
					"s1": {
						ID: "s1", StepKind: "operation", Op: "approve", Persona: "admin",
						Outcomes:  map[string]*StepTargetDef{"done": {Terminal: true, Outcome: "ok"}},
						OnFailure: &HandlerDef{Kind: "terminate", Outcome: "err"},
					},
				},
			},
		},
	}
}

func TestExecuteFlow_SimpleApproval(t *testing.T) {
	m := s1Model()
	snapshot := Snapshot{Facts: FactSet{}, Verdicts: NewVerdictSet()}
	state := EntityStateMap{{Entity: "Order", Instance: "order-1"}: "pending"}
	bindings := InstanceBindingMap{"Order": "order-1"}

	result, err := ExecuteFlow(m, "f", snapshot, state, bindings, "admin", 0)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Outcome)
	require.Len(t, result.Steps, 1)
	require.Equal(t, "success", result.Steps[0].Result)
	require.Len(t, result.Effects, 1)
	require.Equal(t, EffectRecord{Entity: "Order", Instance: "order-1", From: "pending", To: "approved"}, result.Effects[0])
	require.Equal(t, "approved", state[EntityKey{Entity: "Order", Instance: "order-1"}])
}

func TestExecuteFlow_UnauthorizedPersonaTerminates(t *testing.T) {
	m := s1Model()
	m.Flows["f"].Steps["s1"].Persona = "clerk"
	snapshot := Snapshot{Facts: FactSet{}, Verdicts: NewVerdictSet()}
	state := EntityStateMap{{Entity: "Order", Instance: "order-1"}: "pending"}
	bindings := InstanceBindingMap{"Order": "order-1"}

	result, err := ExecuteFlow(m, "f", snapshot, state, bindings, "clerk", 0)
	require.NoError(t, err)
	require.Equal(t, "err", result.Outcome)
	// the failed attempt must not mutate entity state
	require.Equal(t, "pending", state[EntityKey{Entity: "Order", Instance: "order-1"}])
}

// s2Model extends s1Model with a Rule producing `order_eligible`
// unconditionally and a BranchStep on verdict_present, per spec §8
// scenario S2 (frozen verdict semantics).
func s2Model() *Model {
	m := s1Model()
	m.Rules = []*RuleDef{
		{ID: "r1", Stratum: 0, When: literalBool(true), VerdictType: "order_eligible", PayloadValue: literalBool(true)},
	}
	m.Flows["f"].Steps["s1"].Outcomes["done"] = &StepTargetDef{StepID: "s2"}
	m.Flows["f"].Steps["s2"] = &StepDef{
		ID: "s2", StepKind: "branch", Condition: verdictPresent("order_eligible"),
		IfTrue:  &StepTargetDef{Terminal: true, Outcome: "frozen_ok"},
		IfFalse: &StepTargetDef{Terminal: true, Outcome: "frozen_bad"},
	}
	return m
}

func TestExecuteFlow_FrozenVerdictSemantics(t *testing.T) {
	m := s2Model()
	facts := FactSet{}
	verdicts, err := EvaluateRules(m, facts)
	require.NoError(t, err)
	require.True(t, verdicts.Present("order_eligible"))

	snapshot := Snapshot{Facts: facts, Verdicts: verdicts.Clone()}
	state := EntityStateMap{{Entity: "Order", Instance: "order-1"}: "pending"}
	bindings := InstanceBindingMap{"Order": "order-1"}

	result, err := ExecuteFlow(m, "f", snapshot, state, bindings, "admin", 0)
	require.NoError(t, err)
	require.Equal(t, "frozen_ok", result.Outcome)
}

func TestEvaluateRules_StratificationOrder(t *testing.T) {
	m := &Model{
		Rules: []*RuleDef{
			{ID: "b", Stratum: 1, When: verdictPresent("a_flag"), VerdictType: "b_flag", PayloadValue: literalBool(true)},
			{ID: "a", Stratum: 0, When: literalBool(true), VerdictType: "a_flag", PayloadValue: literalBool(true)},
		},
	}
	verdicts, err := EvaluateRules(m, FactSet{})
	require.NoError(t, err)
	require.True(t, verdicts.Present("a_flag"))
	require.True(t, verdicts.Present("b_flag"))
}

func TestMaxStepsGuard(t *testing.T) {
	m := &Model{
		Operations: map[string]*OperationDef{},
		Flows: map[string]*FlowDef{
			"loop": {
				ID: "loop", Entry: "s1",
				Steps: map[string]*StepDef{
					"s1": {ID: "s1", StepKind: "branch", Condition: literalBool(true),
						IfTrue:  &StepTargetDef{StepID: "s1"},
						IfFalse: &StepTargetDef{Terminal: true, Outcome: "unreachable"}},
				},
			},
		},
	}
	snapshot := Snapshot{Facts: FactSet{}, Verdicts: NewVerdictSet()}
	_, err := ExecuteFlow(m, "loop", snapshot, EntityStateMap{}, InstanceBindingMap{}, "admin", 5)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	require.Equal(t, ErrFlowError, rerr.Kind)
}
