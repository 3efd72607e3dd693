package elaborate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/decimal"
)

// resolveAndTypeCheck is pass 4: replace every TypeRef with its concrete
// BaseType, then type-check every Rule's `when`, every Operation's
// `precondition`, every BranchStep's `condition`, and every produced
// payload value (spec §4.3 pass 4).
func (e *Elaborator) resolveAndTypeCheck() Diagnostics {
	var diags Diagnostics

	for _, name := range sortedFactNames(e.facts) {
		f := e.facts[name]
		f.Type = e.resolveTypeTree(f.Type, &diags)
		if f.Default != nil {
			e.checkExpr(f.Default, nil, math.MaxInt64, false, &diags)
		}
	}

	for _, rid := range e.ruleOrder {
		r := e.rules[rid]
		whenType := e.checkExpr(r.When, nil, r.Stratum.Value, false, &diags)
		if whenType != nil && whenType.Kind != ast.TBool {
			diags = append(diags, &Diagnostic{
				Pass: 4, Kind: "TypeMismatch", Construct: rid, FieldPath: "when",
				File: r.When.Prov.File, Line: r.When.Prov.Line,
				Message: "rule `when` must be a Bool-valued expression", Code: CodeTypeMismatch,
			})
		}
		r.Produce.PayloadType = e.resolveTypeTree(r.Produce.PayloadType, &diags)
		if r.Produce.PayloadValue != nil {
			e.checkExprAgainst(r.Produce.PayloadValue, nil, r.Stratum.Value, r.Produce.PayloadType, &diags)
		}
	}

	for _, opID := range sortedOperationNames(e.operations) {
		op := e.operations[opID]
		if op.Precondition != nil {
			t := e.checkExpr(op.Precondition, nil, math.MaxInt64, false, &diags)
			if t != nil && t.Kind != ast.TBool {
				diags = append(diags, &Diagnostic{
					Pass: 4, Kind: "TypeMismatch", Construct: opID, FieldPath: "precondition",
					File: op.Precondition.Prov.File, Line: op.Precondition.Prov.Line,
					Message: "operation `precondition` must be a Bool-valued expression", Code: CodeTypeMismatch,
				})
			}
		}
	}

	for _, flowID := range sortedFlowNames(e.flows) {
		e.checkFlowConditions(e.flows[flowID].Steps, &diags)
	}

	return diags
}

func (e *Elaborator) checkFlowConditions(steps map[string]*ast.Step, diags *Diagnostics) {
	for _, step := range steps {
		if step.Kind == ast.StepBranch && step.Condition != nil {
			t := e.checkExpr(step.Condition, nil, math.MaxInt64, false, diags)
			if t != nil && t.Kind != ast.TBool {
				*diags = append(*diags, &Diagnostic{
					Pass: 4, Kind: "TypeMismatch", Construct: step.ID, FieldPath: "condition",
					File: step.Condition.Prov.File, Line: step.Condition.Prov.Line,
					Message: "branch `condition` must be a Bool-valued expression", Code: CodeTypeMismatch,
				})
			}
		}
		if step.Kind == ast.StepParallel {
			for _, br := range step.Branches {
				e.checkFlowConditions(br.Steps, diags)
			}
		}
	}
}

func sortedFactNames(m map[string]*ast.Fact) []string { return sortedKeysAny(m) }
func sortedOperationNames(m map[string]*ast.Operation) []string { return sortedKeysAny(m) }
func sortedFlowNames(m map[string]*ast.Flow) []string { return sortedKeysAny(m) }

// checkExprAgainst type-checks an expression in produce-payload context
// (multiplication ranges allowed, containment checked against want).
func (e *Elaborator) checkExprAgainst(expr *ast.Expr, scope map[string]*ast.Type, stratum int64, want *ast.Type, diags *Diagnostics) {
	got := e.checkExpr(expr, scope, stratum, true, diags)
	if got == nil || want == nil {
		return
	}
	if want.Kind == ast.TInt && got.Kind == ast.TInt && got.Min != nil && got.Max != nil && want.Min != nil && want.Max != nil {
		gotRange := decimal.IntRange{Min: *got.Min, Max: *got.Max}
		wantRange := decimal.IntRange{Min: *want.Min, Max: *want.Max}
		if !gotRange.Within(wantRange) {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "RangeOverflow", FieldPath: "payload_value",
				File: expr.Prov.File, Line: expr.Prov.Line,
				Message: fmt.Sprintf("produced value range [%d,%d] exceeds declared payload range [%d,%d]", gotRange.Min, gotRange.Max, wantRange.Min, wantRange.Max),
				Code:    CodeRangeOverflow,
			})
		}
	}
}

// checkExpr is the shared predicate/value type-checker. isPayload
// relaxes the multiplication rule (variable*variable forbidden in
// predicate context only) and switches on range-overflow checking.
func (e *Elaborator) checkExpr(expr *ast.Expr, scope map[string]*ast.Type, stratum int64, isPayload bool, diags *Diagnostics) *ast.Type {
	if expr == nil {
		return nil
	}
	var result *ast.Type
	switch expr.Kind {
	case ast.ExprLiteral:
		result = e.literalType(expr)
	case ast.ExprFactRef:
		result = e.resolveFactRef(expr.Name, scope, expr.Prov)
	case ast.ExprFieldRef:
		base := e.checkExpr(expr.Base, scope, stratum, isPayload, diags)
		if base == nil {
			break
		}
		if base.Kind == ast.TRef {
			*diags = append(*diags, unresolvedIdentDiag(expr.Base, base.RefName))
			break
		}
		if base.Kind != ast.TRecord {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "NotARecord", File: expr.Prov.File, Line: expr.Prov.Line,
				Message: fmt.Sprintf("field access %q on a non-record type", expr.Field), Code: CodeNotARecord,
			})
			break
		}
		ft, ok := base.Fields[expr.Field]
		if !ok {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "UnresolvedField", File: expr.Prov.File, Line: expr.Prov.Line,
				Message: fmt.Sprintf("record has no field %q", expr.Field), Code: CodeUnresolvedFact,
			})
			break
		}
		result = ft
	case ast.ExprAnd, ast.ExprOr:
		e.requireBool(expr.Left, scope, stratum, isPayload, diags)
		e.requireBool(expr.Right, scope, stratum, isPayload, diags)
		result = &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	case ast.ExprNot:
		e.requireBool(expr.Operand, scope, stratum, isPayload, diags)
		result = &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	case ast.ExprCompare:
		result = e.checkCompare(expr, scope, stratum, isPayload, diags)
	case ast.ExprMul:
		result = e.checkMul(expr, scope, stratum, isPayload, diags)
	case ast.ExprForAll, ast.ExprExists:
		result = e.checkQuantifier(expr, scope, stratum, isPayload, diags)
	case ast.ExprVerdictPresent:
		if _, ok := e.verdictProducer[expr.VerdictType]; !ok {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "UnresolvedVerdict", File: expr.Prov.File, Line: expr.Prov.Line,
				Message: fmt.Sprintf("verdict_present references undeclared verdict type %q", expr.VerdictType), Code: CodeUnresolvedVerdict,
			})
		} else if producerStratum := e.verdictStratum[expr.VerdictType]; producerStratum >= stratum {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "StratumViolation", File: expr.Prov.File, Line: expr.Prov.Line,
				Message: fmt.Sprintf("verdict_present(%s): producing rule is at stratum %d, not strictly less than %d (I5)", expr.VerdictType, producerStratum, stratum),
				Code:    CodeStratumViolation,
			})
		}
		result = &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	}
	if result != nil {
		if _, annotated := e.exprTypes[expr]; !annotated {
			e.exprTypes[expr] = &ExprInfo{ValueType: result}
		}
	}
	return result
}

func (e *Elaborator) requireBool(expr *ast.Expr, scope map[string]*ast.Type, stratum int64, isPayload bool, diags *Diagnostics) {
	t := e.checkExpr(expr, scope, stratum, isPayload, diags)
	if t != nil && t.Kind != ast.TBool {
		*diags = append(*diags, &Diagnostic{
			Pass: 4, Kind: "TypeMismatch", File: expr.Prov.File, Line: expr.Prov.Line,
			Message: "expected a Bool-valued operand", Code: CodeTypeMismatch,
		})
	}
}

func unresolvedIdentDiag(expr *ast.Expr, name string) *Diagnostic {
	return &Diagnostic{
		Pass: 4, Kind: "UnresolvedFact", File: expr.Prov.File, Line: expr.Prov.Line,
		Message: fmt.Sprintf("unresolved identifier %q: not a declared fact, bound variable, or enum value in context", name),
		Code:    CodeUnresolvedFact,
	}
}

// resolveFactRef resolves a bare identifier to a bound variable's type, a
// declared Fact's type, or (when neither) a TRef sentinel the caller
// (ExprCompare) may still validate as an enum literal.
func (e *Elaborator) resolveFactRef(name string, scope map[string]*ast.Type, prov ast.Provenance) *ast.Type {
	if t, ok := scope[name]; ok {
		return t
	}
	if f, ok := e.facts[name]; ok {
		return f.Type
	}
	return &ast.Type{Kind: ast.TRef, Prov: prov, RefName: name}
}

func (e *Elaborator) literalType(expr *ast.Expr) *ast.Type {
	switch expr.LitKind {
	case ast.LitBool:
		return &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	case ast.LitInt:
		n, err := strconv.ParseInt(expr.LitText, 10, 64)
		if err != nil {
			return &ast.Type{Kind: ast.TInt, Prov: expr.Prov}
		}
		return &ast.Type{Kind: ast.TInt, Prov: expr.Prov, Min: &n, Max: &n}
	case ast.LitDecimal:
		scale := 0
		if i := strings.IndexByte(expr.LitText, '.'); i >= 0 {
			scale = len(expr.LitText) - i - 1
		}
		precision := len(strings.TrimLeft(strings.ReplaceAll(strings.TrimPrefix(expr.LitText, "-"), ".", ""), "0"))
		if precision == 0 {
			precision = 1
		}
		return &ast.Type{Kind: ast.TDecimal, Prov: expr.Prov, Precision: &precision, Scale: &scale}
	case ast.LitString:
		return &ast.Type{Kind: ast.TText, Prov: expr.Prov}
	default:
		return &ast.Type{Kind: ast.TText, Prov: expr.Prov}
	}
}

var orderedCompareOps = map[ast.CompareOp]bool{
	ast.OpLess: true, ast.OpLessEq: true, ast.OpGreater: true, ast.OpGreaterEq: true,
}

func (e *Elaborator) checkCompare(expr *ast.Expr, scope map[string]*ast.Type, stratum int64, isPayload bool, diags *Diagnostics) *ast.Type {
	left := e.checkExpr(expr.Left, scope, stratum, isPayload, diags)
	right := e.checkExpr(expr.Right, scope, stratum, isPayload, diags)
	boolType := &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	if left == nil || right == nil {
		return boolType
	}

	// Bare-identifier enum-literal reconciliation: one side unresolved,
	// the other a declared Enum.
	if left.Kind == ast.TRef && right.Kind == ast.TEnum {
		return e.reconcileEnumLiteral(expr, expr.Left, left.RefName, right, diags)
	}
	if right.Kind == ast.TRef && left.Kind == ast.TEnum {
		return e.reconcileEnumLiteral(expr, expr.Right, right.RefName, left, diags)
	}
	if left.Kind == ast.TRef {
		*diags = append(*diags, unresolvedIdentDiag(expr.Left, left.RefName))
		return boolType
	}
	if right.Kind == ast.TRef {
		*diags = append(*diags, unresolvedIdentDiag(expr.Right, right.RefName))
		return boolType
	}

	if left.Kind == ast.TBool || right.Kind == ast.TBool {
		if left.Kind != right.Kind {
			*diags = append(*diags, compareMismatch(expr, left, right))
		} else if orderedCompareOps[expr.Op] {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "TypeMismatch", File: expr.Prov.File, Line: expr.Prov.Line,
				Message: "Bool supports only = and !=", Code: CodeTypeMismatch,
			})
		}
		return boolType
	}

	if left.Kind == ast.TMoney && right.Kind == ast.TMoney {
		if left.Currency != right.Currency {
			*diags = append(*diags, &Diagnostic{
				Pass: 4, Kind: "TypeMismatch", File: expr.Prov.File, Line: expr.Prov.Line,
				Message: fmt.Sprintf("Money comparison requires identical currency, got %s vs %s", left.Currency, right.Currency), Code: CodeTypeMismatch,
			})
		}
		return boolType
	}

	if numericKind(left) && numericKind(right) {
		if left.Kind != right.Kind {
			promoted := &ast.Type{Kind: ast.TDecimal, Prov: expr.Prov}
			decSide := left
			if left.Kind == ast.TInt {
				decSide = right
			}
			if decSide.Precision != nil {
				p := *decSide.Precision + 1
				promoted.Precision = &p
			}
			promoted.Scale = decSide.Scale
			e.exprTypes[expr] = &ExprInfo{ValueType: boolType, ComparisonType: promoted}
		}
		return boolType
	}

	if left.Kind == ast.TDate || left.Kind == ast.TDateTime || left.Kind == ast.TText || left.Kind == ast.TEnum {
		if left.Kind != right.Kind && !(left.Kind == ast.TEnum && right.Kind == ast.TEnum) {
			*diags = append(*diags, compareMismatch(expr, left, right))
		}
		return boolType
	}

	return boolType
}

func numericKind(t *ast.Type) bool { return t.Kind == ast.TInt || t.Kind == ast.TDecimal }

func compareMismatch(expr *ast.Expr, left, right *ast.Type) *Diagnostic {
	return &Diagnostic{
		Pass: 4, Kind: "TypeMismatch", File: expr.Prov.File, Line: expr.Prov.Line,
		Message: fmt.Sprintf("incompatible comparison operand types (%d vs %d)", left.Kind, right.Kind), Code: CodeTypeMismatch,
	}
}

func (e *Elaborator) reconcileEnumLiteral(expr, identExpr *ast.Expr, name string, enumType *ast.Type, diags *Diagnostics) *ast.Type {
	found := false
	for _, v := range enumType.Values {
		if v == name {
			found = true
			break
		}
	}
	boolType := &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	if !found {
		*diags = append(*diags, &Diagnostic{
			Pass: 4, Kind: "InvalidEnum", File: identExpr.Prov.File, Line: identExpr.Prov.Line,
			Message: fmt.Sprintf("%q is not a declared value of this enum", name), Code: CodeUnresolvedFact,
		})
	}
	e.exprTypes[expr] = &ExprInfo{ValueType: boolType, ComparisonType: enumType}
	return boolType
}

func (e *Elaborator) checkMul(expr *ast.Expr, scope map[string]*ast.Type, stratum int64, isPayload bool, diags *Diagnostics) *ast.Type {
	left := e.checkExpr(expr.Left, scope, stratum, isPayload, diags)
	right := e.checkExpr(expr.Right, scope, stratum, isPayload, diags)
	resultType := &ast.Type{Kind: ast.TInt, Prov: expr.Prov}
	if left == nil || right == nil || left.Kind != ast.TInt || right.Kind != ast.TInt {
		*diags = append(*diags, &Diagnostic{
			Pass: 4, Kind: "InvalidMultiplication", File: expr.Prov.File, Line: expr.Prov.Line,
			Message: "multiplication is only defined between Int operands", Code: CodeInvalidMultiplication,
		})
		return resultType
	}

	leftIsLiteral := expr.Left.Kind == ast.ExprLiteral
	rightIsLiteral := expr.Right.Kind == ast.ExprLiteral
	if !isPayload && !leftIsLiteral && !rightIsLiteral {
		*diags = append(*diags, &Diagnostic{
			Pass: 4, Kind: "InvalidMultiplication", File: expr.Prov.File, Line: expr.Prov.Line,
			Message: "in predicate context, variable * variable is rejected; only variable * integer-literal is allowed",
			Code:    CodeInvalidMultiplication,
		})
	}

	lr := intRangeOf(left)
	rr := intRangeOf(right)
	product := lr.Mul(rr)
	resultType.Min = &product.Min
	resultType.Max = &product.Max
	e.exprTypes[expr] = &ExprInfo{ValueType: resultType, ResultType: resultType}
	return resultType
}

func intRangeOf(t *ast.Type) decimal.IntRange {
	min, max := int64(math.MinInt64), int64(math.MaxInt64)
	if t.Min != nil {
		min = *t.Min
	}
	if t.Max != nil {
		max = *t.Max
	}
	return decimal.IntRange{Min: min, Max: max}
}

func (e *Elaborator) checkQuantifier(expr *ast.Expr, scope map[string]*ast.Type, stratum int64, isPayload bool, diags *Diagnostics) *ast.Type {
	boolType := &ast.Type{Kind: ast.TBool, Prov: expr.Prov}
	domainType := e.resolveFactRef(expr.Domain.Name, scope, expr.Domain.Prov)
	if domainType.Kind == ast.TRef {
		*diags = append(*diags, unresolvedIdentDiag(expr.Domain, domainType.RefName))
		return boolType
	}
	if domainType.Kind != ast.TList {
		*diags = append(*diags, &Diagnostic{
			Pass: 4, Kind: "NotAList", File: expr.Domain.Prov.File, Line: expr.Domain.Prov.Line,
			Message: fmt.Sprintf("quantifier domain %q must be List-typed", expr.Domain.Name), Code: CodeNotAList,
		})
		return boolType
	}
	inner := make(map[string]*ast.Type, len(scope)+1)
	for k, v := range scope {
		inner[k] = v
	}
	inner[expr.Var] = domainType.Element
	e.requireBool(expr.Body, inner, stratum, isPayload, diags)
	return boolType
}

func sortedKeysAny[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
