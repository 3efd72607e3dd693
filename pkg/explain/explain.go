// Package explain renders a decision-contract model into a fixed
// four-section narrative document (spec §4.8): Contract Summary,
// Decision Flow Narrative, Fact Inventory, and Risk/Coverage Notes.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riverline-labs/tenor/pkg/analyze"
	"github.com/riverline-labs/tenor/pkg/evaluator"
)

// Run renders m (and the analyze.Report already computed over it) to sink.
func Run(m *evaluator.Model, report *analyze.Report, sink Sink) {
	contractSummary(m, sink)
	decisionFlowNarrative(m, sink)
	factInventory(m, sink)
	riskAndCoverageNotes(report, sink)
}

func contractSummary(m *evaluator.Model, sink Sink) {
	sink.Heading(1, "Contract Summary")
	strata := map[int64]bool{}
	for _, r := range m.Rules {
		strata[r.Stratum] = true
	}
	sink.ListItem(fmt.Sprintf("Facts: %d", len(m.Facts)))
	sink.ListItem(fmt.Sprintf("Entities: %d", len(m.Entities)))
	sink.ListItem(fmt.Sprintf("Rules: %d across %d %s", len(m.Rules), len(strata), pluralize(len(strata), "stratum", "strata")))
	sink.ListItem(fmt.Sprintf("Operations: %d", len(m.Operations)))
	sink.ListItem(fmt.Sprintf("Flows: %d", len(m.Flows)))
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// decisionFlowNarrative walks each flow breadth-first from its entry,
// rendering each step kind in human terms (spec §4.8).
func decisionFlowNarrative(m *evaluator.Model, sink Sink) {
	sink.Heading(1, "Decision Flow Narrative")
	for _, flowID := range sortedFlowIDs(m) {
		flow := m.Flows[flowID]
		sink.Heading(2, fmt.Sprintf("Flow %s", sink.Mark(flowID)))

		visited := map[string]bool{}
		queue := []string{flow.Entry}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if visited[id] {
				continue
			}
			visited[id] = true
			step, ok := flow.Steps[id]
			if !ok {
				continue
			}
			sink.ListItem(narrateStep(step, sink))
			for _, next := range successorIDs(step) {
				if !visited[next] {
					queue = append(queue, next)
				}
			}
		}
	}
}

func narrateStep(step *evaluator.StepDef, sink Sink) string {
	switch step.StepKind {
	case "operation":
		return fmt.Sprintf("%s: execute operation %s as %s", step.ID, sink.Mark(step.Op), sink.Emphasis(step.Persona))
	case "branch":
		return fmt.Sprintf("%s: branch on a condition", step.ID)
	case "handoff":
		return fmt.Sprintf("%s: hand off from %s to %s", step.ID, sink.Emphasis(step.FromPersona), sink.Emphasis(step.ToPersona))
	case "sub_flow":
		return fmt.Sprintf("%s: invoke sub-flow %s as %s", step.ID, sink.Mark(step.Flow), sink.Emphasis(step.Persona))
	case "parallel":
		return fmt.Sprintf("%s: run %d branches in parallel, joined by %s", step.ID, len(step.Branches), joinSummary(step.Join))
	}
	return fmt.Sprintf("%s: unknown step", step.ID)
}

// joinSummary lists the join policy's configured continuations in
// evaluation order, matching the fallthrough execParallelStep applies.
func joinSummary(j evaluator.JoinDef) string {
	var parts []string
	if j.OnAllSuccess != nil {
		parts = append(parts, "on_all_success")
	}
	if j.OnAnyFailure != nil {
		parts = append(parts, "on_any_failure")
	}
	if j.OnAllComplete != nil {
		parts = append(parts, "on_all_complete")
	}
	if len(parts) == 0 {
		return "no configured policy"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func successorIDs(step *evaluator.StepDef) []string {
	var out []string
	add := func(t *evaluator.StepTargetDef) {
		if t != nil && !t.Terminal {
			out = append(out, t.StepID)
		}
	}
	switch step.StepKind {
	case "operation":
		labels := make([]string, 0, len(step.Outcomes))
		for l := range step.Outcomes {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			add(step.Outcomes[l])
		}
	case "branch":
		add(step.IfTrue)
		add(step.IfFalse)
	case "handoff":
		add(step.Next)
	case "sub_flow":
		add(step.OnSuccess)
	case "parallel":
		add(step.Join.OnAllSuccess)
		add(step.Join.OnAllComplete)
		if h := step.Join.OnAnyFailure; h != nil {
			switch h.Kind {
			case "compensate":
				add(h.Then)
			case "escalate":
				add(h.Next)
			}
		}
	}
	return out
}

// factCategory buckets a Fact's BaseType into the human groupings the
// Fact Inventory section reports under.
func factCategory(base string) string {
	switch strings.ToLower(base) {
	case "bool":
		return "Boolean"
	case "int", "decimal", "money":
		return "Numeric"
	case "date", "datetime":
		return "Temporal"
	case "text", "enum":
		return "Textual"
	}
	return "Other"
}

func factInventory(m *evaluator.Model, sink Sink) {
	sink.Heading(1, "Fact Inventory")
	byCategory := map[string][]string{}
	for id, f := range m.Facts {
		base, _ := f.Type["base"].(string)
		byCategory[factCategory(base)] = append(byCategory[factCategory(base)], id)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		sink.Heading(2, c)
		ids := byCategory[c]
		sort.Strings(ids)
		for _, id := range ids {
			f := m.Facts[id]
			source := "declared"
			if f.Default != nil {
				source = "has default"
			}
			sink.ListItem(fmt.Sprintf("%s (%s)", sink.Mark(id), source))
		}
	}
}

func riskAndCoverageNotes(report *analyze.Report, sink Sink) {
	sink.Heading(1, "Risk / Coverage Notes")
	if report == nil {
		sink.Paragraph("No analyze report was supplied.")
		return
	}
	for _, ss := range report.StateSpaces {
		sink.ListItem(fmt.Sprintf("%s has %d declared states", sink.Mark(ss.Entity), ss.Count))
	}
	for _, f := range report.Findings {
		sink.ListItem(fmt.Sprintf("[%s] %s: %s", f.Severity, f.Check, f.Message))
	}
}

func sortedFlowIDs(m *evaluator.Model) []string {
	out := make([]string, 0, len(m.Flows))
	for id := range m.Flows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
