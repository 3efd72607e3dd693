package elaborate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riverline-labs/tenor/pkg/ast"
)

// validate is pass 5: the six categories of global structural validation
// (spec §4.3 pass 5, invariants I1-I12). Per-construct resolution already
// happened in pass 4; this pass is the graph-shaped checks that need the
// whole bundle in view at once.
func (e *Elaborator) validate() Diagnostics {
	var diags Diagnostics

	diags = append(diags, e.checkEntityReferencesAndTransitions()...)
	diags = append(diags, e.checkEntityHierarchyDAG()...)
	diags = append(diags, e.checkOperations()...)
	diags = append(diags, e.checkFlows()...)
	diags = append(diags, e.checkCrossFlowDAG()...)
	diags = append(diags, e.checkParallelDisjointness()...)
	if len(e.systems) > 0 {
		diags = append(diags, e.checkSystemTriggerAcyclicity()...)
	}
	return diags
}

// --- I3, I11: entity states/initial/transitions, hierarchy DAG ---

func (e *Elaborator) checkEntityReferencesAndTransitions() Diagnostics {
	var diags Diagnostics
	for _, id := range sortedEntityNames(e.entities) {
		ent := e.entities[id]
		states := map[string]bool{}
		for _, s := range ent.States {
			states[s.Name] = true
		}
		if !states[ent.Initial.Name] {
			diags = append(diags, &Diagnostic{
				Pass: 5, Kind: "InvalidInitialState", Construct: id, FieldPath: "initial",
				File: ent.Initial.Prov.File, Line: ent.Initial.Prov.Line,
				Message: fmt.Sprintf("entity %q: initial state %q is not a member of states", id, ent.Initial.Name),
				Code:    CodeUndeclaredTransition,
			})
		}
		for i, t := range ent.Transitions {
			if !states[t.From.Name] {
				diags = append(diags, &Diagnostic{
					Pass: 5, Kind: "InvalidTransitionEndpoint", Construct: id,
					FieldPath: fmt.Sprintf("transitions[%d].from", i),
					File:      t.From.Prov.File, Line: t.From.Prov.Line,
					Message: fmt.Sprintf("entity %q: transition `from` state %q is not a member of states", id, t.From.Name),
					Code:    CodeUndeclaredTransition,
				})
			}
			if !states[t.To.Name] {
				diags = append(diags, &Diagnostic{
					Pass: 5, Kind: "InvalidTransitionEndpoint", Construct: id,
					FieldPath: fmt.Sprintf("transitions[%d].to", i),
					File:      t.To.Prov.File, Line: t.To.Prov.Line,
					Message: fmt.Sprintf("entity %q: transition `to` state %q is not a member of states", id, t.To.Name),
					Code:    CodeUndeclaredTransition,
				})
			}
		}
		if ent.Parent != nil {
			if _, ok := e.entities[ent.Parent.Name]; !ok {
				diags = append(diags, &Diagnostic{
					Pass: 5, Kind: "UnresolvedEntity", Construct: id, FieldPath: "parent",
					File: ent.Parent.Prov.File, Line: ent.Parent.Prov.Line,
					Message: fmt.Sprintf("entity %q: parent %q does not resolve to a declared entity", id, ent.Parent.Name),
					Code:    CodeUnresolvedEntity,
				})
			}
		}
	}
	return diags
}

func (e *Elaborator) checkEntityHierarchyDAG() Diagnostics {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := map[string]int{}
	var diag *Diagnostic

	var walk func(id string, chain []string)
	walk = func(id string, chain []string) {
		if diag != nil || state[id] == done {
			return
		}
		ent, ok := e.entities[id]
		if !ok {
			return
		}
		if state[id] == inStack {
			idx := 0
			for i, n := range chain {
				if n == id {
					idx = i
					break
				}
			}
			cyc := append(append([]string{}, chain[idx:]...), id)
			diag = &Diagnostic{
				Pass: 5, Kind: "EntityHierarchyCycle", Construct: id, FieldPath: "parent",
				File: ent.Prov.File, Line: ent.Prov.Line,
				Message: fmt.Sprintf("entity hierarchy cycle (I11): %s", strings.Join(cyc, " -> ")),
				Code:    CodeEntityHierarchyCycle,
			}
			return
		}
		if ent.Parent == nil {
			state[id] = done
			return
		}
		state[id] = inStack
		walk(ent.Parent.Name, append(chain, id))
		if diag == nil {
			state[id] = done
		}
	}

	for _, id := range sortedEntityNames(e.entities) {
		if state[id] == unvisited {
			walk(id, nil)
			if diag != nil {
				return Diagnostics{diag}
			}
		}
	}
	return nil
}

// --- I2, I4, I12: operation persona/effect/outcome checks ---

func (e *Elaborator) checkOperations() Diagnostics {
	var diags Diagnostics
	for _, id := range sortedOperationNames(e.operations) {
		op := e.operations[id]

		for _, p := range op.AllowedPersonas {
			if _, ok := e.personas[p.Name]; !ok {
				diags = append(diags, unresolvedPersonaDiag(id, "allowed_personas", p))
			}
		}

		outcomeSet := map[string]bool{}
		for _, o := range op.Outcomes {
			outcomeSet[o.Name] = true
		}
		errSet := map[string]bool{}
		for _, o := range op.ErrorContract {
			if outcomeSet[o.Name] {
				diags = append(diags, &Diagnostic{
					Pass: 5, Kind: "OutcomesErrorContractOverlap", Construct: id, FieldPath: "error_contract",
					File: o.Prov.File, Line: o.Prov.Line,
					Message: fmt.Sprintf("operation %q: outcome label %q appears in both outcomes and error_contract (I12)", id, o.Name),
					Code:    CodeOutcomesOverlap,
				})
			}
			errSet[o.Name] = true
		}

		multiOutcome := len(op.Outcomes) >= 2
		for i, eff := range op.Effects {
			ent, ok := e.entities[eff.Entity.Name]
			if !ok {
				diags = append(diags, &Diagnostic{
					Pass: 5, Kind: "UnresolvedEntity", Construct: id, FieldPath: fmt.Sprintf("effects[%d].entity", i),
					File: eff.Entity.Prov.File, Line: eff.Entity.Prov.Line,
					Message: fmt.Sprintf("operation %q: effect references undeclared entity %q", id, eff.Entity.Name),
					Code:    CodeUnresolvedEntity,
				})
			} else if !hasTransition(ent, eff.From.Name, eff.To.Name) {
				diags = append(diags, &Diagnostic{
					Pass: 5, Kind: "UndeclaredTransition", Construct: id, FieldPath: fmt.Sprintf("effects[%d]", i),
					File: eff.Prov.File, Line: eff.Prov.Line,
					Message: fmt.Sprintf("operation %q: effect (%s: %s -> %s) is not a declared transition on entity %q (I4)", id, eff.Entity.Name, eff.From.Name, eff.To.Name, eff.Entity.Name),
					Code:    CodeUndeclaredTransition,
				})
			}
			if multiOutcome {
				if eff.Outcome == nil || !outcomeSet[eff.Outcome.Name] {
					diags = append(diags, &Diagnostic{
						Pass: 5, Kind: "MissingOutcomeLabel", Construct: id, FieldPath: fmt.Sprintf("effects[%d].outcome", i),
						File: eff.Prov.File, Line: eff.Prov.Line,
						Message: fmt.Sprintf("operation %q: with >=2 declared outcomes, every effect must carry an outcome label from that set", id),
						Code:    CodeMissingOutcomeLabel,
					})
				}
			}
		}
		_ = errSet
	}
	return diags
}

func hasTransition(ent *ast.Entity, from, to string) bool {
	for _, t := range ent.Transitions {
		if t.From.Name == from && t.To.Name == to {
			return true
		}
	}
	return false
}

func unresolvedPersonaDiag(construct, field string, p ast.Ident) *Diagnostic {
	return &Diagnostic{
		Pass: 5, Kind: "UnresolvedPersona", Construct: construct, FieldPath: field,
		File: p.Prov.File, Line: p.Prov.Line,
		Message: fmt.Sprintf("%s: persona %q does not resolve to a declared persona", construct, p.Name),
		Code:    CodeUnresolvedPersona,
	}
}

// --- I2, I7, I8: flow step graph checks ---

func (e *Elaborator) checkFlows() Diagnostics {
	var diags Diagnostics
	for _, id := range sortedFlowNames(e.flows) {
		flow := e.flows[id]
		diags = append(diags, e.checkStepsBlock(id, flow.Entry, flow.Steps, flow.StepOrder)...)
	}
	return diags
}

// checkStepsBlock runs I2/I7/I8 over one step map, whether it is a
// top-level Flow or a ParallelStep branch (spec §4.3 pass 5: "ParallelStep
// is a terminal node in the outer graph -- its branches are self-contained
// sub-graphs").
func (e *Elaborator) checkStepsBlock(flowID string, entry ast.Ident, steps map[string]*ast.Step, order []string) Diagnostics {
	var diags Diagnostics

	if _, ok := steps[entry.Name]; !ok {
		diags = append(diags, &Diagnostic{
			Pass: 5, Kind: "InvalidEntryStep", Construct: flowID, FieldPath: "entry",
			File: entry.Prov.File, Line: entry.Prov.Line,
			Message: fmt.Sprintf("flow %q: entry %q is not a declared step", flowID, entry.Name),
			Code:    CodeInvalidEntryStep,
		})
	}

	for _, sid := range order {
		step := steps[sid]
		diags = append(diags, e.checkStepReferences(flowID, step, steps)...)
		if step.Kind == ast.StepParallel {
			for _, br := range step.Branches {
				diags = append(diags, e.checkStepsBlock(flowID+"/"+step.ID+"/"+br.ID, br.Entry, br.Steps, br.StepOrder)...)
			}
		}
	}

	if cyc := findStepCycle(steps); len(cyc) > 0 {
		sort.Strings(cyc)
		first := steps[cyc[0]]
		diags = append(diags, &Diagnostic{
			Pass: 5, Kind: "FlowStepCycle", Construct: flowID,
			File: first.Prov.File, Line: first.Prov.Line,
			Message: fmt.Sprintf("flow %q: step graph contains a cycle (I7) among: %s", flowID, strings.Join(cyc, ", ")),
			Code:    CodeFlowStepCycle,
		})
	}

	return diags
}

// checkStepReferences resolves persona/op/entity/sub-flow/step-target
// references on one step (I2, I8).
func (e *Elaborator) checkStepReferences(flowID string, step *ast.Step, steps map[string]*ast.Step) Diagnostics {
	var diags Diagnostics
	checkTarget := func(field string, t *ast.StepTarget) {
		if t == nil || t.Kind != ast.TargetStepRef {
			return
		}
		if _, ok := steps[t.StepID]; !ok {
			diags = append(diags, &Diagnostic{
				Pass: 5, Kind: "UnresolvedStep", Construct: flowID, FieldPath: field,
				File: t.Prov.File, Line: t.Prov.Line,
				Message: fmt.Sprintf("step %q: target %q is not a declared step in this flow", step.ID, t.StepID),
				Code:    CodeUnresolvedStep,
			})
		}
	}
	checkPersona := func(field string, p ast.Ident) {
		if _, ok := e.personas[p.Name]; !ok {
			diags = append(diags, unresolvedPersonaDiag(flowID+"/"+step.ID, field, p))
		}
	}
	checkHandler := func(field string, h *ast.FailureHandler) {
		if h == nil {
			diags = append(diags, &Diagnostic{
				Pass: 5, Kind: "MissingOnFailure", Construct: flowID, FieldPath: field,
				File: step.Prov.File, Line: step.Prov.Line,
				Message: fmt.Sprintf("step %q: missing required on_failure handler (I8)", step.ID),
				Code:    CodeMissingOnFailure,
			})
			return
		}
		switch h.Kind {
		case ast.HandlerCompensate:
			for _, cs := range h.CompensationSteps {
				if _, ok := steps[cs.Name]; !ok {
					diags = append(diags, &Diagnostic{
						Pass: 5, Kind: "UnresolvedStep", Construct: flowID, FieldPath: field + ".steps",
						File: cs.Prov.File, Line: cs.Prov.Line,
						Message: fmt.Sprintf("step %q: compensation step %q is not declared in this flow", step.ID, cs.Name),
						Code:    CodeUnresolvedStep,
					})
				}
			}
			checkTarget(field+".then", h.Then)
		case ast.HandlerEscalate:
			checkPersona(field+".to_persona", h.ToPersona)
			checkTarget(field+".next", h.Next)
		}
	}

	switch step.Kind {
	case ast.StepOperation:
		if _, ok := e.operations[step.Op.Name]; !ok {
			diags = append(diags, &Diagnostic{
				Pass: 5, Kind: "UnresolvedOperation", Construct: flowID, FieldPath: "op",
				File: step.Op.Prov.File, Line: step.Op.Prov.Line,
				Message: fmt.Sprintf("step %q: op %q does not resolve to a declared operation", step.ID, step.Op.Name),
				Code:    CodeUnresolvedOperation,
			})
		}
		checkPersona("persona", step.Persona)
		for _, label := range step.OutcomeOrder {
			checkTarget("outcomes."+label, step.Outcomes[label])
		}
		checkHandler("on_failure", step.OnFailure)
	case ast.StepBranch:
		checkPersona("persona", step.Persona)
		checkTarget("if_true", step.IfTrue)
		checkTarget("if_false", step.IfFalse)
	case ast.StepHandoff:
		checkPersona("from_persona", step.FromPersona)
		checkPersona("to_persona", step.ToPersona)
		checkTarget("next", step.Next)
	case ast.StepSubFlow:
		if _, ok := e.flows[step.Flow.Name]; !ok {
			diags = append(diags, &Diagnostic{
				Pass: 5, Kind: "UnresolvedFlow", Construct: flowID, FieldPath: "flow",
				File: step.Flow.Prov.File, Line: step.Flow.Prov.Line,
				Message: fmt.Sprintf("step %q: sub-flow reference %q does not resolve to a declared flow", step.ID, step.Flow.Name),
				Code:    CodeUnresolvedFlow,
			})
		}
		checkPersona("persona", step.Persona)
		checkTarget("on_success", step.OnSuccess)
		checkHandler("on_failure", step.OnFailure)
	case ast.StepParallel:
		// Branches are validated by the recursive checkStepsBlock call.
		// join's step-ref/persona targets are intentionally left
		// unchecked here, not merely uncovered: a dangling join target
		// is a flow-execution-time error ("no step %q found"), exactly
		// as in the original's pass5_validate.rs, which matches
		// RawStep::ParallelStep with an empty arm in this same
		// reference-resolution switch.
	}
	return diags
}

// findStepCycle runs Kahn's algorithm over a step map's adjacency list
// (outer-graph edges only: OperationStep outcomes, Branch if_true/
// if_false, Handoff next, SubFlow on_success; ParallelStep is terminal).
// Returns the ids of every step left with non-zero in-degree, in map
// iteration order (unsorted).
func findStepCycle(steps map[string]*ast.Step) []string {
	adj := map[string][]string{}
	indeg := map[string]int{}
	for id := range steps {
		indeg[id] = 0
	}
	addEdge := func(from string, t *ast.StepTarget) {
		if t == nil || t.Kind != ast.TargetStepRef {
			return
		}
		if _, ok := steps[t.StepID]; !ok {
			return
		}
		adj[from] = append(adj[from], t.StepID)
		indeg[t.StepID]++
	}

	for id, step := range steps {
		switch step.Kind {
		case ast.StepOperation:
			for _, label := range step.OutcomeOrder {
				addEdge(id, step.Outcomes[label])
			}
		case ast.StepBranch:
			addEdge(id, step.IfTrue)
			addEdge(id, step.IfFalse)
		case ast.StepHandoff:
			addEdge(id, step.Next)
		case ast.StepSubFlow:
			addEdge(id, step.OnSuccess)
		case ast.StepParallel:
			// terminal node in the outer graph
		}
	}

	var queue []string
	for id := range steps {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		var next []string
		for _, n := range adj[cur] {
			indeg[n]--
			if indeg[n] == 0 {
				next = append(next, n)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}
	if visited == len(steps) {
		return nil
	}
	var cyc []string
	for id, d := range indeg {
		if d > 0 {
			cyc = append(cyc, id)
		}
	}
	return cyc
}

// --- I9: cross-flow reference DAG ---

func (e *Elaborator) checkCrossFlowDAG() Diagnostics {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := map[string]int{}
	var diag *Diagnostic

	var walk func(id string, chain []string)
	walk = func(id string, chain []string) {
		if diag != nil || state[id] == done {
			return
		}
		flow, ok := e.flows[id]
		if !ok {
			return
		}
		if state[id] == inStack {
			idx := 0
			for i, n := range chain {
				if n == id {
					idx = i
					break
				}
			}
			cyc := append(append([]string{}, chain[idx:]...), id)
			diag = &Diagnostic{
				Pass: 5, Kind: "CrossFlowCycle", Construct: id,
				File: flow.Prov.File, Line: flow.Prov.Line,
				Message: fmt.Sprintf("cross-flow reference cycle (I9): %s", strings.Join(cyc, " -> ")),
				Code:    CodeCrossFlowCycle,
			}
			return
		}
		state[id] = inStack
		for _, target := range subFlowTargets(flow.Steps) {
			walk(target, append(chain, id))
			if diag != nil {
				return
			}
		}
		state[id] = done
	}

	for _, id := range sortedFlowNames(e.flows) {
		if state[id] == unvisited {
			walk(id, nil)
			if diag != nil {
				return Diagnostics{diag}
			}
		}
	}
	return nil
}

// subFlowTargets collects every flow id referenced by a SubFlowStep
// anywhere in steps, including nested inside ParallelStep branches.
func subFlowTargets(steps map[string]*ast.Step) []string {
	var out []string
	for _, id := range sortedStepKeys(steps) {
		step := steps[id]
		if step.Kind == ast.StepSubFlow {
			out = append(out, step.Flow.Name)
		}
		if step.Kind == ast.StepParallel {
			for _, br := range step.Branches {
				out = append(out, subFlowTargets(br.Steps)...)
			}
		}
	}
	return out
}

func sortedStepKeys(m map[string]*ast.Step) []string { return sortedKeysAny(m) }

// --- I10: parallel branch entity-effect disjointness ---

func (e *Elaborator) checkParallelDisjointness() Diagnostics {
	var diags Diagnostics
	for _, flowID := range sortedFlowNames(e.flows) {
		diags = append(diags, e.walkParallelSteps(flowID, e.flows[flowID].Steps, e.flows[flowID].StepOrder)...)
	}
	return diags
}

func (e *Elaborator) walkParallelSteps(flowID string, steps map[string]*ast.Step, order []string) Diagnostics {
	var diags Diagnostics
	for _, sid := range order {
		step := steps[sid]
		if step.Kind != ast.StepParallel {
			continue
		}
		type branchEntities struct {
			id   string
			ents map[string]bool
		}
		var branches []branchEntities
		for _, br := range step.Branches {
			ents := map[string]bool{}
			e.collectBranchEntities(br.Steps, ents)
			branches = append(branches, branchEntities{id: br.ID, ents: ents})
			diags = append(diags, e.walkParallelSteps(flowID+"/"+step.ID+"/"+br.ID, br.Steps, br.StepOrder)...)
		}
		for i := 0; i < len(branches); i++ {
			for j := i + 1; j < len(branches); j++ {
				for ent := range branches[i].ents {
					if branches[j].ents[ent] {
						diags = append(diags, &Diagnostic{
							Pass: 5, Kind: "ParallelBranchConflict", Construct: flowID, FieldPath: step.ID,
							File: step.Prov.File, Line: step.Prov.Line,
							Message: fmt.Sprintf("flow %q: parallel step %q branches %q and %q both affect entity %q (I10)", flowID, step.ID, branches[i].id, branches[j].id, ent),
							Code:    CodeParallelBranchConflict,
						})
					}
				}
			}
		}
	}
	return diags
}

// collectBranchEntities gathers the set of entities affected by a
// branch's own OperationSteps and by one SubFlowStep hop (spec §4.3
// pass 5 parallel-branch disjointness algorithm).
func (e *Elaborator) collectBranchEntities(steps map[string]*ast.Step, out map[string]bool) {
	for _, id := range sortedStepKeys(steps) {
		step := steps[id]
		switch step.Kind {
		case ast.StepOperation:
			if op, ok := e.operations[step.Op.Name]; ok {
				for _, eff := range op.Effects {
					out[eff.Entity.Name] = true
				}
			}
		case ast.StepSubFlow:
			if flow, ok := e.flows[step.Flow.Name]; ok {
				for _, sid := range flow.StepOrder {
					inner := flow.Steps[sid]
					if inner.Kind == ast.StepOperation {
						if op, ok := e.operations[inner.Op.Name]; ok {
							for _, eff := range op.Effects {
								out[eff.Entity.Name] = true
							}
						}
					}
				}
			}
		}
	}
}

// --- System trigger acyclicity ---

func (e *Elaborator) checkSystemTriggerAcyclicity() Diagnostics {
	type node struct{ member, flow string }
	var diags Diagnostics

	for _, sysID := range sortedSystemNames(e.systems) {
		sys := e.systems[sysID]
		memberSet := map[string]bool{}
		for _, m := range sys.Members {
			memberSet[m.Name] = true
		}
		adj := map[node][]node{}
		for _, tr := range sys.Triggers {
			from := node{tr.FromMember.Name, tr.FromFlow.Name}
			to := node{tr.ToMember.Name, tr.ToFlow.Name}
			adj[from] = append(adj[from], to)
		}

		const (
			unvisited = 0
			inStack   = 1
			done      = 2
		)
		state := map[node]int{}
		var diag *Diagnostic
		var chain []node

		var walk func(n node)
		walk = func(n node) {
			if diag != nil || state[n] == done {
				return
			}
			if state[n] == inStack {
				idx := 0
				for i, c := range chain {
					if c == n {
						idx = i
						break
					}
				}
				cyc := append(append([]node{}, chain[idx:]...), n)
				parts := make([]string, len(cyc))
				for i, c := range cyc {
					parts[i] = c.member + "." + c.flow
				}
				diag = &Diagnostic{
					Pass: 5, Kind: "TriggerCycle", Construct: sysID,
					File: sys.Prov.File, Line: sys.Prov.Line,
					Message: fmt.Sprintf("system %q: trigger graph cycle: %s", sysID, strings.Join(parts, " -> ")),
					Code:    CodeTriggerCycle,
				}
				return
			}
			state[n] = inStack
			chain = append(chain, n)
			for _, next := range adj[n] {
				walk(next)
				if diag != nil {
					return
				}
			}
			chain = chain[:len(chain)-1]
			state[n] = done
		}

		var allNodes []node
		for n := range adj {
			allNodes = append(allNodes, n)
			for _, t := range adj[n] {
				allNodes = append(allNodes, t)
			}
		}
		sort.Slice(allNodes, func(i, j int) bool {
			if allNodes[i].member != allNodes[j].member {
				return allNodes[i].member < allNodes[j].member
			}
			return allNodes[i].flow < allNodes[j].flow
		})
		for _, n := range allNodes {
			if state[n] == unvisited {
				walk(n)
				if diag != nil {
					diags = append(diags, diag)
					return diags
				}
			}
		}
	}
	return diags
}

func sortedEntityNames(m map[string]*ast.Entity) []string { return sortedKeysAny(m) }
func sortedSystemNames(m map[string]*ast.System) []string { return sortedKeysAny(m) }
