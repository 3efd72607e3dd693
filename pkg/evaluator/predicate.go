package evaluator

import (
	"sort"

	"github.com/riverline-labs/tenor/pkg/decimal"
)

// FactSet is the evaluator's immutable input: fact id -> Value (spec
// §4.5). Facts are immutable within one evaluation.
type FactSet map[string]Value

// VerdictInstance is one produced verdict (spec §3, §4.5.1), carrying
// the provenance of which facts/verdicts its `when`/payload evaluation
// touched -- collected by a side-channel during predicate walking
// (spec §9 "Predicate evaluation side channel"), not retrofitted.
type VerdictInstance struct {
	Type       string
	Payload    Value
	RuleID     string
	Stratum    int64
	FactRefs   []string
	VerdictRefs []string
}

// VerdictSet is the accumulated output of Phase A, also consulted by
// `verdict_present` during evaluation of later strata and (read-only,
// never recomputed) during Phase B flow execution.
type VerdictSet struct {
	instances []VerdictInstance
	byType    map[string]*VerdictInstance
}

func NewVerdictSet() *VerdictSet {
	return &VerdictSet{byType: map[string]*VerdictInstance{}}
}

func (vs *VerdictSet) Append(v VerdictInstance) {
	vs.instances = append(vs.instances, v)
	cp := v
	vs.byType[v.Type] = &cp
}

func (vs *VerdictSet) Present(verdictType string) bool {
	_, ok := vs.byType[verdictType]
	return ok
}

func (vs *VerdictSet) Get(verdictType string) (VerdictInstance, bool) {
	v, ok := vs.byType[verdictType]
	if !ok {
		return VerdictInstance{}, false
	}
	return *v, true
}

func (vs *VerdictSet) All() []VerdictInstance { return vs.instances }

// Clone returns a snapshot-safe copy (used to freeze the verdict set at
// flow initiation -- spec §4.5.2).
func (vs *VerdictSet) Clone() *VerdictSet {
	out := NewVerdictSet()
	for _, v := range vs.instances {
		out.Append(v)
	}
	return out
}

// collector gathers the facts and verdicts touched while evaluating one
// rule's `when`/payload expression (spec §9).
type collector struct {
	facts    map[string]bool
	verdicts map[string]bool
}

func newCollector() *collector {
	return &collector{facts: map[string]bool{}, verdicts: map[string]bool{}}
}

func (c *collector) sortedFacts() []string {
	out := make([]string, 0, len(c.facts))
	for f := range c.facts {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (c *collector) sortedVerdicts() []string {
	out := make([]string, 0, len(c.verdicts))
	for v := range c.verdicts {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// evalCtx threads everything a predicate/value expression needs to
// resolve: the fact set, the verdict set accumulated so far, a local
// scope for quantifier-bound variables, and the provenance collector.
type evalCtx struct {
	facts    FactSet
	verdicts *VerdictSet
	scope    map[string]Value
	col      *collector
}

func (ctx evalCtx) withVar(name string, v Value) evalCtx {
	inner := make(map[string]Value, len(ctx.scope)+1)
	for k, val := range ctx.scope {
		inner[k] = val
	}
	inner[name] = v
	return evalCtx{facts: ctx.facts, verdicts: ctx.verdicts, scope: inner, col: ctx.col}
}

// evalExpr evaluates one serialized expression node (spec §4.4 emission
// shapes, §4.5.1 predicate semantics).
func evalExpr(node map[string]any, ctx evalCtx) (Value, error) {
	if node == nil {
		return Value{}, newErr(ErrTypeError, "nil expression node")
	}
	kind := asString(node["kind"])
	switch kind {
	case "literal":
		return evalLiteral(node)
	case "decimal_value":
		s := asString(node["value"])
		d, err := decimal.Parse(s)
		if err != nil {
			return Value{}, newErr(ErrTypeError, "invalid decimal literal %q: %s", s, err)
		}
		return DecimalValue(d), nil
	case "fact_ref":
		return evalFactRef(asString(node["name"]), ctx)
	case "field_ref":
		base, err := evalExpr(asNodeMap(node["base"]), ctx)
		if err != nil {
			return Value{}, err
		}
		if base.Record == nil {
			return Value{}, newErr(ErrNotARecord, "field access on a non-record value")
		}
		field := asString(node["field"])
		fv, ok := base.Record[field]
		if !ok {
			return Value{}, newErr(ErrUnknownFact, "record has no field %q", field)
		}
		return fv, nil
	case "and":
		l, err := evalExpr(asNodeMap(node["left"]), ctx)
		if err != nil {
			return Value{}, err
		}
		if l.Bool != nil && !*l.Bool {
			return BoolValue(false), nil // short-circuit
		}
		r, err := evalExpr(asNodeMap(node["right"]), ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(boolOf(l) && boolOf(r)), nil
	case "or":
		l, err := evalExpr(asNodeMap(node["left"]), ctx)
		if err != nil {
			return Value{}, err
		}
		if l.Bool != nil && *l.Bool {
			return BoolValue(true), nil // short-circuit
		}
		r, err := evalExpr(asNodeMap(node["right"]), ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(boolOf(l) || boolOf(r)), nil
	case "not":
		v, err := evalExpr(asNodeMap(node["operand"]), ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(!boolOf(v)), nil
	case "compare":
		return evalCompare(node, ctx)
	case "mul":
		return evalMul(node, ctx)
	case "forall":
		return evalQuantifier(node, ctx, true)
	case "exists":
		return evalQuantifier(node, ctx, false)
	case "verdict_present":
		vt := asString(node["verdict_type"])
		ctx.col.verdicts[vt] = true
		return BoolValue(ctx.verdicts.Present(vt)), nil
	}
	return Value{}, newErr(ErrTypeError, "unknown expression kind %q", kind)
}

func asNodeMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func boolOf(v Value) bool { return v.Bool != nil && *v.Bool }

func evalLiteral(node map[string]any) (Value, error) {
	val := node["value"]
	switch t := val.(type) {
	case bool:
		return BoolValue(t), nil
	case string:
		if etype, ok := node["enum_type"]; ok {
			_ = etype
		}
		return TextValue(t), nil
	case int64:
		return IntValue(t), nil
	case float64:
		return IntValue(int64(t)), nil
	}
	return Value{}, newErr(ErrTypeError, "unrecognized literal value %v", val)
}

func evalFactRef(name string, ctx evalCtx) (Value, error) {
	if v, ok := ctx.scope[name]; ok {
		return v, nil
	}
	ctx.col.facts[name] = true
	v, ok := ctx.facts[name]
	if !ok {
		return Value{}, newErr(ErrMissingFact, "fact %q not present in fact set", name)
	}
	return v, nil
}

func evalCompare(node map[string]any, ctx evalCtx) (Value, error) {
	left, err := evalExpr(asNodeMap(node["left"]), ctx)
	if err != nil {
		return Value{}, err
	}
	right, err := evalExpr(asNodeMap(node["right"]), ctx)
	if err != nil {
		return Value{}, err
	}
	op := asString(node["op"])

	if left.Money != nil || right.Money != nil {
		if left.Money == nil || right.Money == nil {
			return Value{}, newErr(ErrTypeMismatch, "Money comparison requires both operands to be Money")
		}
		if left.Money.Currency != right.Money.Currency {
			return Value{}, newErr(ErrTypeMismatch, "Money comparison requires identical currency, got %s vs %s", left.Money.Currency, right.Money.Currency)
		}
		return compareResult(op, left.Money.Amount.Cmp(right.Money.Amount))
	}

	if left.Bool != nil || right.Bool != nil {
		if left.Bool == nil || right.Bool == nil {
			return Value{}, newErr(ErrTypeMismatch, "cannot compare bool with non-bool")
		}
		eq := *left.Bool == *right.Bool
		switch op {
		case "=":
			return BoolValue(eq), nil
		case "!=":
			return BoolValue(!eq), nil
		}
		return Value{}, newErr(ErrTypeMismatch, "Bool supports only = and !=")
	}

	ld, lok := left.asDecimal()
	rd, rok := right.asDecimal()
	if lok && rok {
		return compareResult(op, ld.Cmp(rd))
	}

	if left.Text != nil && right.Text != nil {
		return compareResult(op, compareStrings(*left.Text, *right.Text))
	}

	return Value{}, newErr(ErrTypeMismatch, "incomparable operand kinds %s vs %s", left.Kind(), right.Kind())
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareResult(op string, cmp int) (Value, error) {
	switch op {
	case "=":
		return BoolValue(cmp == 0), nil
	case "!=":
		return BoolValue(cmp != 0), nil
	case "<":
		return BoolValue(cmp < 0), nil
	case "<=":
		return BoolValue(cmp <= 0), nil
	case ">":
		return BoolValue(cmp > 0), nil
	case ">=":
		return BoolValue(cmp >= 0), nil
	}
	return Value{}, newErr(ErrTypeError, "unknown comparison operator %q", op)
}

func evalMul(node map[string]any, ctx evalCtx) (Value, error) {
	left, err := evalExpr(asNodeMap(node["left"]), ctx)
	if err != nil {
		return Value{}, err
	}
	right, err := evalExpr(asNodeMap(node["right"]), ctx)
	if err != nil {
		return Value{}, err
	}
	if left.Int == nil || right.Int == nil {
		return Value{}, newErr(ErrTypeMismatch, "multiplication is only defined between Int operands")
	}
	return IntValue(*left.Int * *right.Int), nil
}

func evalQuantifier(node map[string]any, ctx evalCtx, isForAll bool) (Value, error) {
	domain, err := evalExpr(asNodeMap(node["domain"]), ctx)
	if err != nil {
		return Value{}, err
	}
	if domain.List == nil {
		return Value{}, newErr(ErrTypeError, "quantifier domain is not a list value")
	}
	v := asString(node["var"])
	body := asNodeMap(node["body"])
	for _, elem := range domain.List {
		inner := ctx.withVar(v, elem)
		r, err := evalExpr(body, inner)
		if err != nil {
			return Value{}, err
		}
		b := boolOf(r)
		if isForAll && !b {
			return BoolValue(false), nil
		}
		if !isForAll && b {
			return BoolValue(true), nil
		}
	}
	return BoolValue(isForAll), nil
}
