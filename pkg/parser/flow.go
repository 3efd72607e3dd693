package parser

import (
	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/lexer"
)

func (p *Parser) parseFlow() (*ast.Flow, error) {
	id, prov, err := p.parseHeader()
	if err != nil {
		return nil, err
	}
	flow := &ast.Flow{ID: id, Prov: prov, Steps: map[string]*ast.Step{}}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "entry":
			idTok, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			flow.Entry = ast.Ident{Name: idTok.Text, Prov: ast.Provenance{File: p.file, Line: idTok.Line}}
		case "steps":
			steps, order, err := p.parseStepMap()
			if err != nil {
				return nil, err
			}
			flow.Steps = steps
			flow.StepOrder = order
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown Flow field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return flow, nil
}

// parseStepMap parses `{ step_id: { ...step body... }, ... }`, preserving
// declaration order.
func (p *Parser) parseStepMap() (map[string]*ast.Step, []string, error) {
	steps := map[string]*ast.Step{}
	var order []string
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, nil, err
	}
	for !p.atFieldsEnd() {
		idTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, nil, err
		}
		step, err := p.parseStep(idTok.Text)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := steps[idTok.Text]; dup {
			return nil, nil, &Error{File: p.file, Line: idTok.Line, Message: "duplicate step id " + idTok.Text}
		}
		steps[idTok.Text] = step
		order = append(order, idTok.Text)
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, nil, err
	}
	return steps, order, nil
}

var stepKindNames = map[string]ast.StepKind{
	"operation": ast.StepOperation, "branch": ast.StepBranch,
	"handoff": ast.StepHandoff, "subflow": ast.StepSubFlow, "parallel": ast.StepParallel,
}

func (p *Parser) ident() (ast.Ident, error) {
	tok, err := p.expect(lexer.Ident)
	if err != nil {
		return ast.Ident{}, err
	}
	return ast.Ident{Name: tok.Text, Prov: ast.Provenance{File: p.file, Line: tok.Line}}, nil
}

// parseStep dispatches on the mandatory leading `kind` field of a step body.
func (p *Parser) parseStep(id string) (*ast.Step, error) {
	prov := p.prov()
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("kind"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	kindTok, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	kind, known := stepKindNames[kindTok.Text]
	if !known {
		return nil, &Error{File: p.file, Line: kindTok.Line, Message: "unknown step kind " + kindTok.Text}
	}
	p.consumeFieldSep()

	step := &ast.Step{ID: id, Kind: kind, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		if err := p.parseStepField(step, fieldTok); err != nil {
			return nil, err
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return step, nil
}

func (p *Parser) parseStepField(step *ast.Step, fieldTok lexer.Token) error {
	switch fieldTok.Text {
	case "op":
		id, err := p.ident()
		if err != nil {
			return err
		}
		step.Op = id
	case "persona":
		id, err := p.ident()
		if err != nil {
			return err
		}
		step.Persona = id
	case "outcomes":
		outcomes, order, err := p.parseOutcomeMap()
		if err != nil {
			return err
		}
		step.Outcomes = outcomes
		step.OutcomeOrder = order
	case "on_failure":
		fh, err := p.parseFailureHandler()
		if err != nil {
			return err
		}
		step.OnFailure = fh
	case "condition":
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		step.Condition = e
	case "if_true":
		t, err := p.parseStepTarget()
		if err != nil {
			return err
		}
		step.IfTrue = t
	case "if_false":
		t, err := p.parseStepTarget()
		if err != nil {
			return err
		}
		step.IfFalse = t
	case "from_persona":
		id, err := p.ident()
		if err != nil {
			return err
		}
		step.FromPersona = id
	case "to_persona":
		id, err := p.ident()
		if err != nil {
			return err
		}
		step.ToPersona = id
	case "next":
		t, err := p.parseStepTarget()
		if err != nil {
			return err
		}
		step.Next = t
	case "flow":
		id, err := p.ident()
		if err != nil {
			return err
		}
		step.Flow = id
	case "on_success":
		t, err := p.parseStepTarget()
		if err != nil {
			return err
		}
		step.OnSuccess = t
	case "branches":
		branches, err := p.parseBranchList()
		if err != nil {
			return err
		}
		step.Branches = branches
	case "join":
		j, err := p.parseJoinPolicy()
		if err != nil {
			return err
		}
		step.Join = j
	default:
		return &Error{File: p.file, Line: fieldTok.Line, Message: "unknown step field " + fieldTok.Text}
	}
	return nil
}

// parseOutcomeMap parses `{ label: target, ... }`.
func (p *Parser) parseOutcomeMap() (map[string]*ast.StepTarget, []string, error) {
	outcomes := map[string]*ast.StepTarget{}
	var order []string
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, nil, err
	}
	for !p.atFieldsEnd() {
		labelTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, nil, err
		}
		target, err := p.parseStepTarget()
		if err != nil {
			return nil, nil, err
		}
		outcomes[labelTok.Text] = target
		order = append(order, labelTok.Text)
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, nil, err
	}
	return outcomes, order, nil
}

// parseStepTarget parses either a bare step-id identifier or
// `terminal(outcome_label)`.
func (p *Parser) parseStepTarget() (*ast.StepTarget, error) {
	prov := p.prov()
	idTok, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if idTok.Text == "terminal" {
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		outcomeTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return &ast.StepTarget{Kind: ast.TargetTerminal, Outcome: outcomeTok.Text, Prov: prov}, nil
	}
	return &ast.StepTarget{Kind: ast.TargetStepRef, StepID: idTok.Text, Prov: prov}, nil
}

var failureHandlerKinds = map[string]ast.HandlerKind{
	"terminate": ast.HandlerTerminate, "compensate": ast.HandlerCompensate, "escalate": ast.HandlerEscalate,
}

// parseFailureHandler parses `{ kind: terminate|compensate|escalate, ... }`.
func (p *Parser) parseFailureHandler() (*ast.FailureHandler, error) {
	prov := p.prov()
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("kind"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	kindTok, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	kind, known := failureHandlerKinds[kindTok.Text]
	if !known {
		return nil, &Error{File: p.file, Line: kindTok.Line, Message: "unknown failure handler kind " + kindTok.Text}
	}
	p.consumeFieldSep()

	fh := &ast.FailureHandler{Kind: kind, Prov: prov}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		switch fieldTok.Text {
		case "outcome":
			outTok, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			fh.Outcome = outTok.Text
		case "steps":
			steps, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			fh.CompensationSteps = steps
		case "then":
			t, err := p.parseStepTarget()
			if err != nil {
				return nil, err
			}
			fh.Then = t
		case "to_persona":
			id, err := p.ident()
			if err != nil {
				return nil, err
			}
			fh.ToPersona = id
		case "next":
			t, err := p.parseStepTarget()
			if err != nil {
				return nil, err
			}
			fh.Next = t
		default:
			return nil, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown failure handler field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return fh, nil
}

// parseJoinPolicy parses a ParallelStep's `join` block: `{
// on_all_success: <target>, on_any_failure: <handler>, on_all_complete:
// <target> }`, each key independently optional (spec §3).
func (p *Parser) parseJoinPolicy() (ast.JoinPolicy, error) {
	prov := p.prov()
	j := ast.JoinPolicy{Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return j, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return j, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return j, err
		}
		switch fieldTok.Text {
		case "on_all_success":
			t, err := p.parseStepTarget()
			if err != nil {
				return j, err
			}
			j.OnAllSuccess = t
		case "on_any_failure":
			h, err := p.parseFailureHandler()
			if err != nil {
				return j, err
			}
			j.OnAnyFailure = h
		case "on_all_complete":
			t, err := p.parseStepTarget()
			if err != nil {
				return j, err
			}
			j.OnAllComplete = t
		default:
			return j, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown join field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	_, err := p.expect(lexer.RBrace)
	return j, err
}

func (p *Parser) parseBranchList() ([]ast.Branch, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var out []ast.Branch
	for !p.is(lexer.RBracket) {
		br, err := p.parseBranch()
		if err != nil {
			return nil, err
		}
		out = append(out, br)
		if p.is(lexer.Comma) {
			p.advance()
			continue
		}
		break
	}
	_, err := p.expect(lexer.RBracket)
	return out, err
}

// parseBranch parses one ParallelStep branch: `{ entry: id, steps: {...} }`.
func (p *Parser) parseBranch() (ast.Branch, error) {
	prov := p.prov()
	br := ast.Branch{Prov: prov}
	if _, err := p.expect(lexer.LBrace); err != nil {
		return br, err
	}
	for !p.atFieldsEnd() {
		fieldTok, err := p.expect(lexer.Ident)
		if err != nil {
			return br, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return br, err
		}
		switch fieldTok.Text {
		case "entry":
			id, err := p.ident()
			if err != nil {
				return br, err
			}
			br.Entry = id
		case "steps":
			steps, order, err := p.parseStepMap()
			if err != nil {
				return br, err
			}
			br.Steps = steps
			br.StepOrder = order
		default:
			return br, &Error{File: p.file, Line: fieldTok.Line, Message: "unknown branch field " + fieldTok.Text}
		}
		if !p.consumeFieldSep() {
			break
		}
	}
	_, err := p.expect(lexer.RBrace)
	return br, err
}
