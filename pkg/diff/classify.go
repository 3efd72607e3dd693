package diff

import (
	"sort"
	"strings"
)

// Severity is one of the three classifier outcomes (spec §4.6).
type Severity string

const (
	Breaking         Severity = "Breaking"
	NonBreaking      Severity = "NonBreaking"
	RequiresAnalysis Severity = "RequiresAnalysis"
)

// Finding is one classified change: either a whole added/removed
// construct, or a single FieldDiff within a changed construct.
type Finding struct {
	Key       Key
	Field     string // "" for a whole-construct added/removed finding
	Severity  Severity
	Reason    string
	Migration string // optional migration action, "" if none
}

// Summary counts findings by severity.
type Summary struct {
	BreakingCount         int
	NonBreakingCount      int
	RequiresAnalysisCount int
}

// Classification is the classifier's full output (spec §4.6): a
// counted summary plus the materialized finding list, ordered by
// (kind, id) and then by field name.
type Classification struct {
	Findings []Finding
	Summary  Summary
}

func (c *Classification) HasBreaking() bool { return c.Summary.BreakingCount > 0 }

// Classify applies the spec §4.6 policy table to a Result.
func Classify(r *Result) *Classification {
	c := &Classification{}

	for _, a := range r.Added {
		k := constructKey(a)
		sev := NonBreaking
		reason := "Adding new material cannot invalidate existing references"
		if k.Kind == "Rule" {
			sev = RequiresAnalysis
			reason = "May emit new verdicts that downstream branches/flows observe"
		}
		c.add(Finding{Key: k, Severity: sev, Reason: reason})
	}

	for _, rm := range r.Removed {
		c.add(Finding{Key: constructKey(rm), Severity: Breaking, Reason: "Dangling references"})
	}

	for _, ch := range r.Changed {
		for _, f := range ch.Fields {
			c.add(classifyField(ch.Key, f))
		}
	}

	sort.Slice(c.Findings, func(i, j int) bool {
		a, b := c.Findings[i], c.Findings[j]
		if a.Key != b.Key {
			return a.Key.Less(b.Key)
		}
		return a.Field < b.Field
	})
	return c
}

func (c *Classification) add(f Finding) {
	c.Findings = append(c.Findings, f)
	switch f.Severity {
	case Breaking:
		c.Summary.BreakingCount++
	case NonBreaking:
		c.Summary.NonBreakingCount++
	case RequiresAnalysis:
		c.Summary.RequiresAnalysisCount++
	}
}

func classifyField(k Key, f FieldDiff) Finding {
	finding := Finding{Key: k, Field: f.Field}
	switch k.Kind {
	case "Entity":
		finding.Severity, finding.Reason, finding.Migration = classifyEntityField(f)
	case "Fact":
		finding.Severity, finding.Reason, finding.Migration = classifyFactField(f)
	case "Rule":
		finding.Severity, finding.Reason = classifyRuleField(f.Field)
	case "Operation":
		finding.Severity, finding.Reason = classifyOperationField(f)
	case "Flow":
		finding.Severity, finding.Reason = classifyFlowField(f.Field)
	default:
		finding.Severity, finding.Reason = RequiresAnalysis, "Safe default"
	}
	if finding.Severity == "" {
		finding.Severity, finding.Reason = RequiresAnalysis, "Safe default"
	}
	return finding
}

func classifyEntityField(f FieldDiff) (Severity, string, string) {
	switch f.Field {
	case "states":
		before := stringSet(f.Before)
		after := stringSet(f.After)
		if isSubset(before, after) {
			return NonBreaking, "", ""
		}
		return Breaking, "Existing instances may be in a removed state", "Migrate instances out of the removed states before deploying"
	case "initial":
		return Breaking, "Affects all new instances", ""
	case "transitions":
		beforeEdges := edgeSet(f.Before)
		afterEdges := edgeSet(f.After)
		if isSubset(beforeEdges, afterEdges) {
			return NonBreaking, "", ""
		}
		return Breaking, "Existing operations may depend on removed edges", "Audit operations that reference the removed transition"
	case "parent":
		return Breaking, "Hierarchy shape", ""
	}
	return RequiresAnalysis, "Safe default", ""
}

func classifyFactField(f FieldDiff) (Severity, string, string) {
	switch f.Field {
	case "type":
		return classifyFactType(f)
	case "default":
		hasBefore := f.Before != nil
		hasAfter := f.After != nil
		switch {
		case !hasBefore && hasAfter:
			return NonBreaking, "Callers now have a fallback", ""
		case hasBefore && !hasAfter:
			return Breaking, "Callers must now supply the value", "Supply the value explicitly at every call site"
		default:
			return RequiresAnalysis, "May shift verdict outcomes", ""
		}
	case "source":
		return NonBreaking, "Does not affect logic", ""
	}
	return RequiresAnalysis, "Safe default", ""
}

func classifyFactType(f FieldDiff) (Severity, string, string) {
	before, _ := f.Before.(map[string]any)
	after, _ := f.After.(map[string]any)
	if before == nil || after == nil {
		return Breaking, "Type identity", ""
	}
	if asStr(before["base"]) != asStr(after["base"]) {
		return Breaking, "Type identity", "Re-author dependent rules and operations for the new base type"
	}
	switch strings.ToLower(asStr(after["base"])) {
	case "enum":
		beforeVals := stringSet(before["values"])
		afterVals := stringSet(after["values"])
		if isSubset(beforeVals, afterVals) {
			return NonBreaking, "", ""
		}
		return Breaking, "Existing values may be invalid", "Migrate existing values out of the removed enum members"
	case "int":
		bmin, bmax := numField(before["min"]), numField(before["max"])
		amin, amax := numField(after["min"]), numField(after["max"])
		if amin <= bmin && amax >= bmax {
			return NonBreaking, "", ""
		}
		return Breaking, "Int range narrowing", "Clamp or validate existing values against the narrowed range"
	}
	return RequiresAnalysis, "Safe default", ""
}

func classifyRuleField(field string) (Severity, string) {
	switch field {
	case "stratum":
		return Breaking, "Changes ordering and visibility"
	case "when", "produce":
		return RequiresAnalysis, "May change produced verdicts"
	}
	return RequiresAnalysis, "Safe default"
}

func classifyOperationField(f FieldDiff) (Severity, string) {
	switch f.Field {
	case "allowed_personas":
		before := stringSet(f.Before)
		after := stringSet(f.After)
		if isSubset(before, after) {
			return NonBreaking, ""
		}
		return Breaking, ""
	case "precondition":
		return RequiresAnalysis, ""
	case "effects":
		beforeLen := listLen(f.Before)
		afterLen := listLen(f.After)
		if afterLen >= beforeLen && effectsPrefixUnchanged(f.Before, f.After) {
			return NonBreaking, ""
		}
		return Breaking, ""
	case "outcomes":
		before := stringSet(f.Before)
		after := stringSet(f.After)
		if isSubset(before, after) {
			return NonBreaking, ""
		}
		return Breaking, ""
	case "error_contract":
		return NonBreaking, "Policy choice"
	}
	return RequiresAnalysis, "Safe default"
}

func classifyFlowField(field string) (Severity, string) {
	switch field {
	case "entry":
		return Breaking, "In-flight instances reference the entry"
	case "steps":
		return RequiresAnalysis, "Path analysis is separate"
	case "snapshot":
		return NonBreaking, "Policy label"
	}
	return RequiresAnalysis, "Safe default"
}

func effectsPrefixUnchanged(before, after any) bool {
	ba, aok := before.([]any)
	aa, bok := after.([]any)
	if !aok || !bok || len(ba) > len(aa) {
		return false
	}
	for i := range ba {
		bm, _ := ba[i].(map[string]any)
		am, _ := aa[i].(map[string]any)
		if asStr(bm["entity"]) != asStr(am["entity"]) || asStr(bm["from"]) != asStr(am["from"]) || asStr(bm["to"]) != asStr(am["to"]) {
			return false
		}
	}
	return true
}

func listLen(v any) int {
	arr, _ := v.([]any)
	return len(arr)
}

func stringSet(v any) map[string]bool {
	arr, _ := v.([]any)
	out := make(map[string]bool, len(arr))
	for _, e := range arr {
		out[asStr(e)] = true
	}
	return out
}

func edgeSet(v any) map[string]bool {
	arr, _ := v.([]any)
	out := make(map[string]bool, len(arr))
	for _, e := range arr {
		m, _ := e.(map[string]any)
		out[asStr(m["from"])+"->"+asStr(m["to"])] = true
	}
	return out
}

func isSubset(before, after map[string]bool) bool {
	for k := range before {
		if !after[k] {
			return false
		}
	}
	return true
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func numField(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
