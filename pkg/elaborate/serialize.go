package elaborate

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/decimal"
	"github.com/riverline-labs/tenor/pkg/interchange"
)

// serialize is pass 6: emit the canonical bundle (spec §4.3 pass 6,
// §4.4). Every construct becomes a map[string]any; encoding/json sorts
// map keys alphabetically on marshal, which is exactly P1's ascending-
// key-order requirement, so no bespoke key-ordering code is needed here
// -- only construct-array and step-array ordering, which are explicit
// orderings this function is responsible for.
func (e *Elaborator) serialize(rootPath string) (*interchange.Bundle, Diagnostics) {
	var constructs []map[string]any

	for _, id := range sortedFactNames(e.facts) {
		constructs = append(constructs, e.serializeFact(e.facts[id]))
	}
	for _, id := range sortedEntityNames(e.entities) {
		constructs = append(constructs, e.serializeEntity(e.entities[id]))
	}
	for _, id := range rulesByStratumThenID(e.rules) {
		constructs = append(constructs, e.serializeRule(e.rules[id]))
	}
	for _, id := range sortedOperationNames(e.operations) {
		constructs = append(constructs, e.serializeOperation(e.operations[id]))
	}
	for _, id := range sortedFlowNames(e.flows) {
		constructs = append(constructs, e.serializeFlow(e.flows[id]))
	}
	for _, id := range sortedTypeDeclNames(e.typeDecls) {
		constructs = append(constructs, e.serializeTypeDecl(e.typeDecls[id]))
	}
	for _, id := range sortedPersonaNames(e.personas) {
		constructs = append(constructs, serializePersona(e.personas[id]))
	}
	for _, id := range sortedSystemNames(e.systems) {
		constructs = append(constructs, serializeSystem(e.systems[id]))
	}

	bundleID := strings.TrimSuffix(filepath.Base(rootPath), filepath.Ext(rootPath))
	return interchange.New(bundleID, constructs), nil
}

func rulesByStratumThenID(rules map[string]*ast.Rule) []string {
	ids := sortedKeysAny(rules)
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := rules[ids[j-1]], rules[ids[j]]
			if a.Stratum.Value > b.Stratum.Value || (a.Stratum.Value == b.Stratum.Value && ids[j-1] > ids[j]) {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			} else {
				break
			}
		}
	}
	return ids
}

func sortedPersonaNames(m map[string]*ast.Persona) []string { return sortedKeysAny(m) }

func provJSON(p ast.Provenance) map[string]any {
	return map[string]any{"file": p.File, "line": p.Line}
}

func identList(ids []ast.Ident) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}

func (e *Elaborator) serializeFact(f *ast.Fact) map[string]any {
	m := map[string]any{
		"kind":       "Fact",
		"id":         f.ID,
		"provenance": provJSON(f.Prov),
		"type":       serializeType(f.Type),
		"source":     serializeSource(f.Source),
	}
	if f.Default != nil {
		m["default"] = e.serializeExprValue(f.Default)
	}
	return m
}

func serializeSource(s ast.Source) map[string]any {
	if s.FreeText != "" {
		return map[string]any{"free_text": s.FreeText}
	}
	return map[string]any{"system_id": s.SystemID, "path": s.Path}
}

func (e *Elaborator) serializeEntity(ent *ast.Entity) map[string]any {
	transitions := make([]map[string]any, len(ent.Transitions))
	for i, t := range ent.Transitions {
		transitions[i] = map[string]any{"from": t.From.Name, "to": t.To.Name}
	}
	m := map[string]any{
		"kind":        "Entity",
		"id":          ent.ID,
		"provenance":  provJSON(ent.Prov),
		"states":      identList(ent.States),
		"initial":     ent.Initial.Name,
		"transitions": transitions,
	}
	if ent.Parent != nil {
		m["parent"] = ent.Parent.Name
	}
	return m
}

func (e *Elaborator) serializeRule(r *ast.Rule) map[string]any {
	return map[string]any{
		"kind":       "Rule",
		"id":         r.ID,
		"provenance": provJSON(r.Prov),
		"stratum":    r.Stratum.Value,
		"when":       e.serializeExprValue(r.When),
		"produce": map[string]any{
			"verdict_type": r.Produce.VerdictType.Name,
			"payload_type": serializeType(r.Produce.PayloadType),
			"payload_value": e.serializeExprValue(r.Produce.PayloadValue),
		},
	}
}

func (e *Elaborator) serializeOperation(op *ast.Operation) map[string]any {
	effects := make([]map[string]any, len(op.Effects))
	for i, eff := range op.Effects {
		em := map[string]any{"entity": eff.Entity.Name, "from": eff.From.Name, "to": eff.To.Name}
		if eff.Outcome != nil {
			em["outcome"] = eff.Outcome.Name
		}
		effects[i] = em
	}
	m := map[string]any{
		"kind":             "Operation",
		"id":               op.ID,
		"provenance":       provJSON(op.Prov),
		"allowed_personas": identList(op.AllowedPersonas),
		"effects":          effects,
		"outcomes":         identList(op.Outcomes),
		"error_contract":   identList(op.ErrorContract),
	}
	if op.Precondition != nil {
		m["precondition"] = e.serializeExprValue(op.Precondition)
	} else {
		m["precondition"] = map[string]any{"kind": "literal", "value": true}
	}
	return m
}

func (e *Elaborator) serializeFlow(f *ast.Flow) map[string]any {
	return map[string]any{
		"kind":       "Flow",
		"id":         f.ID,
		"provenance": provJSON(f.Prov),
		"entry":      f.Entry.Name,
		"steps":      e.serializeStepsBFS(f.Entry.Name, f.Steps, f.StepOrder),
	}
}

// serializeStepsBFS emits steps in BFS order from entry (spec §4.3 pass
// 6 rule (c)), falling back to declaration order for any step
// unreachable from entry (e.g. a step only reachable via a cycle the
// validator already rejected, or dead code in a bundle built by hand).
func (e *Elaborator) serializeStepsBFS(entry string, steps map[string]*ast.Step, order []string) []map[string]any {
	visited := map[string]bool{}
	var bfsOrder []string
	queue := []string{}
	if _, ok := steps[entry]; ok {
		queue = append(queue, entry)
		visited[entry] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		bfsOrder = append(bfsOrder, cur)
		for _, n := range stepTargets(steps[cur]) {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	for _, id := range order {
		if !visited[id] {
			visited[id] = true
			bfsOrder = append(bfsOrder, id)
		}
	}

	out := make([]map[string]any, len(bfsOrder))
	for i, id := range bfsOrder {
		out[i] = e.serializeStep(steps[id])
	}
	return out
}

func stepTargets(step *ast.Step) []string {
	var out []string
	add := func(t *ast.StepTarget) {
		if t != nil && t.Kind == ast.TargetStepRef {
			out = append(out, t.StepID)
		}
	}
	switch step.Kind {
	case ast.StepOperation:
		for _, label := range step.OutcomeOrder {
			add(step.Outcomes[label])
		}
	case ast.StepBranch:
		add(step.IfTrue)
		add(step.IfFalse)
	case ast.StepHandoff:
		add(step.Next)
	case ast.StepSubFlow:
		add(step.OnSuccess)
	}
	return out
}

func serializeStepTarget(t *ast.StepTarget) map[string]any {
	if t == nil {
		return nil
	}
	if t.Kind == ast.TargetTerminal {
		return map[string]any{"kind": "terminal", "outcome": t.Outcome}
	}
	return map[string]any{"kind": "step_ref", "step": t.StepID}
}

// serializeJoinPolicy emits a ParallelStep's join block: each of the
// three continuations present only when the author declared it.
func serializeJoinPolicy(j ast.JoinPolicy) map[string]any {
	m := map[string]any{}
	if j.OnAllSuccess != nil {
		m["on_all_success"] = serializeStepTarget(j.OnAllSuccess)
	}
	if j.OnAnyFailure != nil {
		m["on_any_failure"] = serializeHandler(j.OnAnyFailure)
	}
	if j.OnAllComplete != nil {
		m["on_all_complete"] = serializeStepTarget(j.OnAllComplete)
	}
	return m
}

func serializeHandler(h *ast.FailureHandler) map[string]any {
	if h == nil {
		return nil
	}
	switch h.Kind {
	case ast.HandlerTerminate:
		return map[string]any{"kind": "terminate", "outcome": h.Outcome}
	case ast.HandlerCompensate:
		return map[string]any{
			"kind":  "compensate",
			"steps": identsToStrings(h.CompensationSteps),
			"then":  serializeStepTarget(h.Then),
		}
	case ast.HandlerEscalate:
		return map[string]any{
			"kind":       "escalate",
			"to_persona": h.ToPersona.Name,
			"next":       serializeStepTarget(h.Next),
		}
	}
	return nil
}

func identsToStrings(ids []ast.Ident) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}

func (e *Elaborator) serializeStep(step *ast.Step) map[string]any {
	m := map[string]any{
		"id":         step.ID,
		"provenance": provJSON(step.Prov),
	}
	switch step.Kind {
	case ast.StepOperation:
		m["step_kind"] = "operation"
		m["op"] = step.Op.Name
		m["persona"] = step.Persona.Name
		outcomes := map[string]any{}
		for _, label := range step.OutcomeOrder {
			outcomes[label] = serializeStepTarget(step.Outcomes[label])
		}
		m["outcomes"] = outcomes
		m["on_failure"] = serializeHandler(step.OnFailure)
	case ast.StepBranch:
		m["step_kind"] = "branch"
		m["condition"] = e.serializeExprValue(step.Condition)
		m["persona"] = step.Persona.Name
		m["if_true"] = serializeStepTarget(step.IfTrue)
		m["if_false"] = serializeStepTarget(step.IfFalse)
	case ast.StepHandoff:
		m["step_kind"] = "handoff"
		m["from_persona"] = step.FromPersona.Name
		m["to_persona"] = step.ToPersona.Name
		m["next"] = serializeStepTarget(step.Next)
	case ast.StepSubFlow:
		m["step_kind"] = "sub_flow"
		m["flow"] = step.Flow.Name
		m["persona"] = step.Persona.Name
		m["on_success"] = serializeStepTarget(step.OnSuccess)
		m["on_failure"] = serializeHandler(step.OnFailure)
	case ast.StepParallel:
		m["step_kind"] = "parallel"
		m["join"] = serializeJoinPolicy(step.Join)
		branches := make([]map[string]any, len(step.Branches))
		for i, br := range step.Branches {
			branches[i] = map[string]any{
				"id":         br.ID,
				"provenance": provJSON(br.Prov),
				"entry":      br.Entry.Name,
				"steps":      e.serializeStepsBFS(br.Entry.Name, br.Steps, br.StepOrder),
			}
		}
		m["branches"] = branches
	}
	return m
}

func (e *Elaborator) serializeTypeDecl(td *ast.TypeDecl) map[string]any {
	fields := map[string]any{}
	for _, fn := range td.FieldOrder {
		fields[fn] = serializeType(e.resolveTypeTreeForSerialize(td.Fields[fn]))
	}
	return map[string]any{
		"kind":       "TypeDecl",
		"id":         td.ID,
		"provenance": provJSON(td.Prov),
		"fields":     fields,
	}
}

// resolveTypeTreeForSerialize resolves any remaining TRef nodes against
// the pass-3 type environment; by pass 6 every TypeDecl and construct
// field has already been resolved in-place during pass 4, but TypeDecl's
// own field map is serialized independently so it is resolved here too.
func (e *Elaborator) resolveTypeTreeForSerialize(t *ast.Type) *ast.Type {
	if t == nil {
		return nil
	}
	if t.Kind == ast.TRef {
		if rt, ok := e.resolvedTypes[t.RefName]; ok {
			return rt
		}
	}
	return t
}

func serializePersona(p *ast.Persona) map[string]any {
	return map[string]any{
		"kind":       "Persona",
		"id":         p.ID,
		"provenance": provJSON(p.Prov),
	}
}

func serializeSystem(s *ast.System) map[string]any {
	triggers := make([]map[string]any, len(s.Triggers))
	for i, tr := range s.Triggers {
		triggers[i] = map[string]any{
			"from_member": tr.FromMember.Name,
			"from_flow":   tr.FromFlow.Name,
			"to_member":   tr.ToMember.Name,
			"to_flow":     tr.ToFlow.Name,
		}
	}
	return map[string]any{
		"kind":            "System",
		"id":              s.ID,
		"provenance":      provJSON(s.Prov),
		"members":         identList(s.Members),
		"triggers":        triggers,
		"shared_personas": identList(s.SharedPersonas),
		"shared_entities": identList(s.SharedEntities),
	}
}

func serializeType(t *ast.Type) map[string]any {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case ast.TBool:
		return map[string]any{"base": "bool"}
	case ast.TInt:
		m := map[string]any{"base": "int"}
		if t.Min != nil {
			m["min"] = *t.Min
		}
		if t.Max != nil {
			m["max"] = *t.Max
		}
		return m
	case ast.TDecimal:
		m := map[string]any{"base": "decimal"}
		if t.Precision != nil {
			m["precision"] = *t.Precision
		}
		if t.Scale != nil {
			m["scale"] = *t.Scale
		}
		return m
	case ast.TText:
		m := map[string]any{"base": "text"}
		if t.MaxLength != nil {
			m["max_length"] = *t.MaxLength
		}
		return m
	case ast.TDate:
		return map[string]any{"base": "date"}
	case ast.TDateTime:
		return map[string]any{"base": "datetime"}
	case ast.TMoney:
		return map[string]any{"base": "money", "currency": t.Currency}
	case ast.TDuration:
		m := map[string]any{"base": "duration", "unit": t.Unit}
		if t.DurationMin != nil {
			m["min"] = *t.DurationMin
		}
		if t.DurationMax != nil {
			m["max"] = *t.DurationMax
		}
		return m
	case ast.TEnum:
		return map[string]any{"base": "enum", "values": t.Values}
	case ast.TRecord:
		fields := map[string]any{}
		for _, fn := range t.FieldOrder {
			fields[fn] = serializeType(t.Fields[fn])
		}
		return map[string]any{"base": "record", "fields": fields}
	case ast.TList:
		m := map[string]any{"base": "list", "element": serializeType(t.Element)}
		if t.ListMax != nil {
			m["max"] = *t.ListMax
		}
		return m
	case ast.TTaggedUnion:
		variants := map[string]any{}
		for _, vn := range t.VariantOrder {
			variants[vn] = serializeType(t.Variants[vn])
		}
		return map[string]any{"base": "tagged_union", "variants": variants}
	case ast.TRef:
		return map[string]any{"base": "type_ref", "name": t.RefName}
	}
	return nil
}

// serializeExprValue emits one expression node per spec §4.4's numeric
// annotation rules: integer/decimal/money literal envelopes, compare
// nodes annotated with a promoted comparison_type, and multiplication
// nodes carrying the computed Int result_type.
func (e *Elaborator) serializeExprValue(expr *ast.Expr) map[string]any {
	if expr == nil {
		return nil
	}
	info := e.exprTypes[expr]
	switch expr.Kind {
	case ast.ExprLiteral:
		return serializeLiteral(expr, info)
	case ast.ExprFactRef:
		return map[string]any{"kind": "fact_ref", "name": expr.Name}
	case ast.ExprFieldRef:
		return map[string]any{"kind": "field_ref", "base": e.serializeExprValue(expr.Base), "field": expr.Field}
	case ast.ExprCompare:
		m := map[string]any{
			"kind":  "compare",
			"op":    compareOpString(expr.Op),
			"left":  e.serializeExprValue(expr.Left),
			"right": e.serializeExprValue(expr.Right),
		}
		if info != nil && info.ComparisonType != nil {
			m["comparison_type"] = serializeType(info.ComparisonType)
		}
		return m
	case ast.ExprAnd:
		return map[string]any{"kind": "and", "left": e.serializeExprValue(expr.Left), "right": e.serializeExprValue(expr.Right)}
	case ast.ExprOr:
		return map[string]any{"kind": "or", "left": e.serializeExprValue(expr.Left), "right": e.serializeExprValue(expr.Right)}
	case ast.ExprNot:
		return map[string]any{"kind": "not", "operand": e.serializeExprValue(expr.Operand)}
	case ast.ExprForAll:
		return map[string]any{"kind": "forall", "var": expr.Var, "domain": e.serializeExprValue(expr.Domain), "body": e.serializeExprValue(expr.Body)}
	case ast.ExprExists:
		return map[string]any{"kind": "exists", "var": expr.Var, "domain": e.serializeExprValue(expr.Domain), "body": e.serializeExprValue(expr.Body)}
	case ast.ExprVerdictPresent:
		return map[string]any{"kind": "verdict_present", "verdict_type": expr.VerdictType}
	case ast.ExprMul:
		m := map[string]any{
			"kind":  "mul",
			"left":  e.serializeExprValue(expr.Left),
			"right": e.serializeExprValue(expr.Right),
		}
		if info != nil && info.ResultType != nil {
			m["result_type"] = serializeType(info.ResultType)
		}
		return m
	}
	return nil
}

func compareOpString(op ast.CompareOp) string {
	switch op {
	case ast.OpEq:
		return "="
	case ast.OpNotEq:
		return "!="
	case ast.OpLess:
		return "<"
	case ast.OpLessEq:
		return "<="
	case ast.OpGreater:
		return ">"
	case ast.OpGreaterEq:
		return ">="
	}
	return ""
}

func serializeLiteral(expr *ast.Expr, info *ExprInfo) map[string]any {
	switch expr.LitKind {
	case ast.LitBool:
		return map[string]any{"kind": "literal", "value": expr.LitText == "true"}
	case ast.LitInt:
		n, _ := strconv.ParseInt(expr.LitText, 10, 64)
		m := map[string]any{"kind": "literal", "value": n}
		if info != nil && info.ValueType != nil {
			m["type"] = serializeType(info.ValueType)
		}
		return m
	case ast.LitDecimal:
		d, err := decimal.Parse(expr.LitText)
		scale := 0
		precision := len(strings.TrimLeft(strings.ReplaceAll(strings.TrimPrefix(expr.LitText, "-"), ".", ""), "0"))
		if precision == 0 {
			precision = 1
		}
		if i := strings.IndexByte(expr.LitText, '.'); i >= 0 {
			scale = len(expr.LitText) - i - 1
		}
		value := expr.LitText
		if err == nil {
			value = d.NormalizeTo(scale, decimal.RoundHalfEven)
		}
		return map[string]any{
			"kind":      "decimal_value",
			"precision": precision,
			"scale":     scale,
			"value":     value,
		}
	case ast.LitString:
		return map[string]any{"kind": "literal", "value": expr.LitText}
	case ast.LitEnumOrIdent:
		m := map[string]any{"kind": "literal", "value": expr.LitText}
		if info != nil && info.ComparisonType != nil {
			m["enum_type"] = serializeType(info.ComparisonType)
		}
		return m
	}
	return nil
}
