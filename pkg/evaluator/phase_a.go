package evaluator

import "sort"

// EvaluateRules is Phase A (spec §4.5.1): stratified rule evaluation.
// Rules are grouped by ascending stratum: a copy of model.Rules is
// sorted by (stratum, id) here, so a Model whose rules are not already
// in that order is evaluated correctly too. Within a stratum, evaluation
// order doesn't affect the result because a stratum-k rule can only see
// verdicts from strata strictly below k (I5) and each verdict type has
// exactly one producer (I6).
func EvaluateRules(m *Model, facts FactSet) (*VerdictSet, error) {
	verdicts := NewVerdictSet()
	rules := append([]*RuleDef(nil), m.Rules...)
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Stratum != rules[j].Stratum {
			return rules[i].Stratum < rules[j].Stratum
		}
		return rules[i].ID < rules[j].ID
	})
	for _, rule := range rules {
		col := newCollector()
		ctx := evalCtx{facts: facts, verdicts: verdicts, scope: nil, col: col}

		whenResult, err := evalExpr(rule.When, ctx)
		if err != nil {
			return nil, err
		}
		if whenResult.Bool == nil || !*whenResult.Bool {
			continue
		}

		payload, err := evalExpr(rule.PayloadValue, ctx)
		if err != nil {
			return nil, err
		}

		verdicts.Append(VerdictInstance{
			Type:        rule.VerdictType,
			Payload:     payload,
			RuleID:      rule.ID,
			Stratum:     rule.Stratum,
			FactRefs:    col.sortedFacts(),
			VerdictRefs: col.sortedVerdicts(),
		})
	}
	return verdicts, nil
}
