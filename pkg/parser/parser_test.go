package parser_test

import (
	"testing"

	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/lexer"
	"github.com/riverline-labs/tenor/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSrc = `
persona Applicant {}

fact Amount {
  type: Decimal{precision:10,scale:2},
  source: "loan.amount"
}

entity Application {
  states: [Draft, Submitted, Approved, Rejected],
  initial: Draft,
  transitions: [(Draft -> Submitted), (Submitted -> Approved), (Submitted -> Rejected)]
}

rule HighValue {
  stratum: 0,
  when: Amount > 10000,
  produce: {
    verdict_type: Flagged,
    payload_type: Bool,
    payload_value: true
  }
}

operation Submit {
  allowed_personas: [Applicant],
  precondition: true,
  effects: [(Application, Draft -> Submitted)],
  outcomes: [ok],
  error_contract: [invalid]
}

flow Onboarding {
  entry: submit_step,
  steps: {
    submit_step: {
      kind: operation,
      op: Submit,
      persona: Applicant,
      outcomes: { ok: terminal(done) },
      on_failure: { kind: terminate, outcome: failed }
    }
  }
}
`

func parseSample(t *testing.T, src string) *ast.File {
	t.Helper()
	toks, err := lexer.Lex("sample.dsl", src)
	require.NoError(t, err)
	f, err := parser.New("sample.dsl", toks).Parse()
	require.NoError(t, err)
	return f
}

func TestParse_FullFile(t *testing.T) {
	f := parseSample(t, sampleSrc)
	require.Len(t, f.Constructs, 6)

	var persona *ast.Persona
	var fact *ast.Fact
	var entity *ast.Entity
	var rule *ast.Rule
	var op *ast.Operation
	var flow *ast.Flow
	for _, c := range f.Constructs {
		switch v := c.(type) {
		case *ast.Persona:
			persona = v
		case *ast.Fact:
			fact = v
		case *ast.Entity:
			entity = v
		case *ast.Rule:
			rule = v
		case *ast.Operation:
			op = v
		case *ast.Flow:
			flow = v
		}
	}
	require.NotNil(t, persona)
	assert.Equal(t, "Applicant", persona.ID)

	require.NotNil(t, fact)
	assert.Equal(t, ast.TDecimal, fact.Type.Kind)
	assert.Equal(t, "loan.amount", fact.Source.FreeText)

	require.NotNil(t, entity)
	assert.Equal(t, "Draft", entity.Initial.Name)
	assert.Len(t, entity.States, 4)
	assert.Len(t, entity.Transitions, 3)

	require.NotNil(t, rule)
	assert.Equal(t, int64(0), rule.Stratum.Value)
	assert.Equal(t, ast.ExprCompare, rule.When.Kind)
	assert.Equal(t, ast.OpGreater, rule.When.Op)
	assert.Equal(t, "Flagged", rule.Produce.VerdictType.Name)

	require.NotNil(t, op)
	assert.Len(t, op.Effects, 1)
	assert.Equal(t, "Application", op.Effects[0].Entity.Name)

	require.NotNil(t, flow)
	assert.Equal(t, "submit_step", flow.Entry.Name)
	step := flow.Steps["submit_step"]
	require.NotNil(t, step)
	assert.Equal(t, ast.StepOperation, step.Kind)
	assert.Equal(t, "Submit", step.Op.Name)
	require.NotNil(t, step.Outcomes["ok"])
	assert.Equal(t, ast.TargetTerminal, step.Outcomes["ok"].Kind)
	assert.Equal(t, "done", step.Outcomes["ok"].Outcome)
	require.NotNil(t, step.OnFailure)
	assert.Equal(t, ast.HandlerTerminate, step.OnFailure.Kind)
	assert.Equal(t, "failed", step.OnFailure.Outcome)
}

func TestParse_UnknownFieldIsError(t *testing.T) {
	src := `persona X { bogus: 1 }`
	toks, err := lexer.Lex("t.dsl", src)
	require.NoError(t, err)
	_, err = parser.New("t.dsl", toks).Parse()
	require.Error(t, err)
}

func TestParse_MultiErrorRecovery(t *testing.T) {
	src := `
persona Broken {
  bogus: 1
}

persona Good {}
`
	toks, err := lexer.Lex("t.dsl", src)
	require.NoError(t, err)
	f, multiErr := parser.New("t.dsl", toks).ParseRecovering()
	require.NotNil(t, multiErr)
	assert.Len(t, multiErr.Errors, 1)
	require.Len(t, f.Constructs, 1)
	assert.Equal(t, "Good", f.Constructs[0].ConstructID())
}

func TestParse_QuantifierExpression(t *testing.T) {
	src := `
fact Items {
  type: List{element: Decimal{precision:10,scale:2}},
  source: "order.items"
}

rule AllPositive {
  stratum: 0,
  when: ∀ v ∈ Items . v > 0,
  produce: { verdict_type: Valid, payload_type: Bool, payload_value: true }
}
`
	f := parseSample(t, src)
	require.Len(t, f.Constructs, 2)
	rule, ok := f.Constructs[1].(*ast.Rule)
	require.True(t, ok)
	assert.Equal(t, ast.ExprForAll, rule.When.Kind)
	assert.Equal(t, "v", rule.When.Var)
	assert.Equal(t, "Items", rule.When.Domain.Name)
}
