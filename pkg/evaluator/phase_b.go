package evaluator

// Snapshot is the immutable (facts, verdicts) pair captured at flow
// initiation (spec §4.5.2). It is never mutated or recomputed; Phase B
// reads it by value throughout a flow's execution, including every
// sub-flow and parallel branch.
type Snapshot struct {
	Facts    FactSet
	Verdicts *VerdictSet
}

// EntityKey identifies one entity instance.
type EntityKey struct{ Entity, Instance string }

// EntityStateMap is the mutable current-state table, owned exclusively
// by the current execution frame (cloned on parallel branch fork,
// merged on join -- spec §5).
type EntityStateMap map[EntityKey]string

func NewEntityStateMap() EntityStateMap { return EntityStateMap{} }

func (m EntityStateMap) Clone() EntityStateMap {
	out := make(EntityStateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DefaultInstanceID is used when InstanceBindingMap has no entry for an
// entity (spec §4.5.2: "a missing binding falls back to a default
// single-instance id").
const DefaultInstanceID = "default"

// InstanceBindingMap maps entity id -> the specific instance id a flow
// invocation acts upon.
type InstanceBindingMap map[string]string

func (b InstanceBindingMap) Resolve(entity string) string {
	if id, ok := b[entity]; ok {
		return id
	}
	return DefaultInstanceID
}

// StepRecord is one executed step, recorded for the FlowResult.
type StepRecord struct {
	StepID string
	Kind   string
	Result string
}

// EffectRecord is one applied entity state change.
type EffectRecord struct {
	Entity, Instance, From, To string
}

// FlowResult is the structured outcome of one flow invocation (spec §4.5.2).
type FlowResult struct {
	Outcome string
	Steps   []StepRecord
	Effects []EffectRecord
	Persona string
}

const defaultMaxSteps = 1000

type executor struct {
	model    *Model
	snapshot Snapshot
	maxSteps int
	steps    *int
}

// ExecuteFlow runs flowID to completion against the given frozen
// snapshot, mutable entity state, and instance bindings (spec §4.5.2).
// maxSteps <= 0 uses the spec's default of 1000.
func ExecuteFlow(model *Model, flowID string, snapshot Snapshot, state EntityStateMap, bindings InstanceBindingMap, persona string, maxSteps int) (*FlowResult, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	flow, ok := model.Flows[flowID]
	if !ok {
		return nil, flowErr(flowID, "flow %q not found", flowID)
	}
	steps := 0
	ex := &executor{model: model, snapshot: snapshot, maxSteps: maxSteps, steps: &steps}
	return ex.runSteps(flowID, flowID, flow.Entry, flow.Steps, state, bindings, persona)
}

// runSteps is the shared state-machine walk used for a top-level Flow,
// a SubFlowStep invocation, and a ParallelStep branch (all three are "a
// DAG of steps with an entry"; only the step-id source and label differ).
func (ex *executor) runSteps(label, flowID, entry string, steps map[string]*StepDef, state EntityStateMap, bindings InstanceBindingMap, persona string) (*FlowResult, error) {
	if steps == nil {
		return nil, flowErr(flowID, "flow %q not found", flowID)
	}
	result := &FlowResult{Persona: persona}
	cur := entry
	for {
		*ex.steps++
		if *ex.steps > ex.maxSteps {
			return nil, flowErr(flowID, "exceeded max_steps (%d)", ex.maxSteps)
		}
		step, ok := steps[cur]
		if !ok {
			return nil, flowErr(flowID, "step %q not found in %s", cur, label)
		}
		outcome, next, err := ex.execStep(flowID, step, steps, state, bindings, result)
		if err != nil {
			return nil, err
		}
		if outcome != "" {
			result.Outcome = outcome
			return result, nil
		}
		cur = next
	}
}

func (ex *executor) ctx(state EntityStateMap) evalCtx {
	return evalCtx{facts: ex.snapshot.Facts, verdicts: ex.snapshot.Verdicts, scope: nil, col: newCollector()}
}

func routeTarget(t *StepTargetDef) (outcome, next string) {
	if t == nil {
		return "", ""
	}
	if t.Terminal {
		return t.Outcome, ""
	}
	return "", t.StepID
}

func (ex *executor) execStep(flowID string, step *StepDef, steps map[string]*StepDef, state EntityStateMap, bindings InstanceBindingMap, result *FlowResult) (outcome, next string, err error) {
	switch step.StepKind {
	case "operation":
		return ex.execOperationStep(flowID, step, steps, state, bindings, result)
	case "branch":
		cond, err := evalExpr(step.Condition, ex.ctx(state))
		if err != nil {
			return "", "", err
		}
		result.Steps = append(result.Steps, StepRecord{StepID: step.ID, Kind: "branch", Result: cond.String()})
		if boolOf(cond) {
			o, n := routeTarget(step.IfTrue)
			return o, n, nil
		}
		o, n := routeTarget(step.IfFalse)
		return o, n, nil
	case "handoff":
		result.Steps = append(result.Steps, StepRecord{StepID: step.ID, Kind: "handoff", Result: step.FromPersona + "->" + step.ToPersona})
		o, n := routeTarget(step.Next)
		return o, n, nil
	case "sub_flow":
		return ex.execSubFlowStep(flowID, step, state, bindings, result)
	case "parallel":
		return ex.execParallelStep(flowID, step, steps, state, bindings, result)
	}
	return "", "", flowErr(flowID, "unknown step kind %q at step %q", step.StepKind, step.ID)
}

func (ex *executor) execOperationStep(flowID string, step *StepDef, steps map[string]*StepDef, state EntityStateMap, bindings InstanceBindingMap, result *FlowResult) (outcome, next string, err error) {
	op, ok := ex.model.Operations[step.Op]
	if !ok {
		return "", "", flowErr(flowID, "operation %q not found (step %q)", step.Op, step.ID)
	}

	authorized := false
	for _, p := range op.AllowedPersonas {
		if p == step.Persona {
			authorized = true
			break
		}
	}

	ok2 := authorized
	if ok2 && op.Precondition != nil {
		v, err := evalExpr(op.Precondition, ex.ctx(state))
		if err != nil {
			return "", "", err
		}
		ok2 = boolOf(v)
	}

	type pending struct {
		key  EntityKey
		to   string
		from string
	}
	var effects []pending
	if ok2 {
		for _, eff := range op.Effects {
			key := EntityKey{Entity: eff.Entity, Instance: bindings.Resolve(eff.Entity)}
			if state[key] != eff.From {
				ok2 = false
				break
			}
			effects = append(effects, pending{key: key, to: eff.To, from: eff.From})
		}
	}

	if !ok2 {
		result.Steps = append(result.Steps, StepRecord{StepID: step.ID, Kind: "operation", Result: "failure"})
		return ex.handleFailure(flowID, step.OnFailure, steps, state, bindings, result)
	}

	for _, p := range effects {
		state[p.key] = p.to
		result.Effects = append(result.Effects, EffectRecord{Entity: p.key.Entity, Instance: p.key.Instance, From: p.from, To: p.to})
	}
	result.Steps = append(result.Steps, StepRecord{StepID: step.ID, Kind: "operation", Result: "success"})

	label := operationOutcomeLabel(op)
	target, ok := step.Outcomes[label]
	if !ok {
		return "", "", flowErr(flowID, "operation step %q: no route declared for outcome %q", step.ID, label)
	}
	o, n := routeTarget(target)
	return o, n, nil
}

// operationOutcomeLabel picks the outcome label an operation's effects
// resolve to: the sole declared outcome, or the label attached to the
// effect for multi-outcome operations (spec §4.5.2).
func operationOutcomeLabel(op *OperationDef) string {
	if len(op.Outcomes) == 1 {
		return op.Outcomes[0]
	}
	for _, eff := range op.Effects {
		if eff.Outcome != "" {
			return eff.Outcome
		}
	}
	if len(op.Outcomes) > 0 {
		return op.Outcomes[0]
	}
	return ""
}

func (ex *executor) handleFailure(flowID string, h *HandlerDef, steps map[string]*StepDef, state EntityStateMap, bindings InstanceBindingMap, result *FlowResult) (outcome, next string, err error) {
	if h == nil {
		return "", "", flowErr(flowID, "step failed with no on_failure handler")
	}
	switch h.Kind {
	case "terminate":
		return h.Outcome, "", nil
	case "compensate":
		for _, csID := range h.CompensationSteps {
			cs, ok := steps[csID]
			if !ok {
				return "", "", flowErr(flowID, "compensation step %q not found", csID)
			}
			o, n, err := ex.execStep(flowID, cs, steps, state, bindings, result)
			if err != nil {
				return "", "", err
			}
			if o != "" {
				return o, "", nil // compensation step's own handler routed to a Terminal
			}
			if n != "" && n != csID {
				return "", n, nil // compensation step's own handler redirected elsewhere
			}
		}
		return routeTarget(h.Then)
	case "escalate":
		result.Steps = append(result.Steps, StepRecord{StepID: "escalate", Kind: "escalate", Result: h.ToPersona})
		return routeTarget(h.Next)
	}
	return "", "", flowErr(flowID, "unknown failure handler kind %q", h.Kind)
}

func (ex *executor) execSubFlowStep(flowID string, step *StepDef, state EntityStateMap, bindings InstanceBindingMap, result *FlowResult) (outcome, next string, err error) {
	sub, ok := ex.model.Flows[step.Flow]
	if !ok {
		return "", "", flowErr(flowID, "sub-flow %q not found (step %q)", step.Flow, step.ID)
	}
	subResult, subErr := ex.runSteps(step.Flow, step.Flow, sub.Entry, sub.Steps, state, bindings, step.Persona)
	if subErr != nil {
		result.Steps = append(result.Steps, StepRecord{StepID: step.ID, Kind: "sub_flow", Result: "failure"})
		return ex.handleFailure(flowID, step.OnFailure, ex.model.Flows[flowID].Steps, state, bindings, result)
	}
	result.Steps = append(result.Steps, StepRecord{StepID: step.ID, Kind: "sub_flow", Result: "success:" + subResult.Outcome})
	result.Steps = append(result.Steps, subResult.Steps...)
	result.Effects = append(result.Effects, subResult.Effects...)
	o, n := routeTarget(step.OnSuccess)
	return o, n, nil
}

// execParallelStep forks a clone of the entity state per branch and
// executes each branch as a private flow over the shared immutable
// snapshot (spec §4.5.2). Branch entity-effect sets are disjoint by
// construction (I10), so merge order never matters.
//
// The join policy is then evaluated in order: on_all_success fires only
// when every branch succeeded, on_any_failure only when at least one
// branch failed, and on_all_complete unconditionally as a catch-all
// routed to regardless of outcome. Each is independently optional; a
// fired condition with no configured target for it falls through to
// the next one. A ParallelStep that completes with no applicable,
// configured target is a flow error -- execution cannot continue past
// it and there is nothing for the caller to route to.
func (ex *executor) execParallelStep(flowID string, step *StepDef, steps map[string]*StepDef, state EntityStateMap, bindings InstanceBindingMap, result *FlowResult) (outcome, next string, err error) {
	type branchOutcome struct {
		id    string
		res   *FlowResult
		err   error
		clone EntityStateMap
	}
	var outcomes []branchOutcome
	for _, br := range step.Branches {
		clone := state.Clone()
		res, berr := ex.runSteps(br.ID, flowID, br.Entry, br.Steps, clone, bindings, result.Persona)
		outcomes = append(outcomes, branchOutcome{id: br.ID, res: res, err: berr, clone: clone})
	}

	anyFailed := false
	for _, bo := range outcomes {
		if bo.err != nil {
			anyFailed = true
		}
	}
	allSuccess := !anyFailed

	for _, bo := range outcomes {
		result.Steps = append(result.Steps, StepRecord{StepID: step.ID + "/" + bo.id, Kind: "parallel_branch", Result: boolErrString(bo.err)})
		if bo.err != nil {
			continue
		}
		result.Steps = append(result.Steps, bo.res.Steps...)
		result.Effects = append(result.Effects, bo.res.Effects...)
		for k, v := range bo.clone {
			state[k] = v
		}
	}

	if allSuccess && step.Join.OnAllSuccess != nil {
		o, n := routeTarget(step.Join.OnAllSuccess)
		return o, n, nil
	}
	if anyFailed && step.Join.OnAnyFailure != nil {
		return ex.handleFailure(flowID, step.Join.OnAnyFailure, steps, state, bindings, result)
	}
	if step.Join.OnAllComplete != nil {
		o, n := routeTarget(step.Join.OnAllComplete)
		return o, n, nil
	}
	return "", "", flowErr(flowID, "parallel step %q completed but no join policy matched", step.ID)
}

func boolErrString(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
