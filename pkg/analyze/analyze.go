// Package analyze runs independent, read-only checks over an
// evaluator.Model and returns a severity-tagged report (spec §4.8). No
// single teacher file performs this kind of structural report over a
// decision-contract model; the shape (a fixed set of independent check
// functions each appending Finding values) follows the same
// "independent checks over the same input, findings collected into one
// report" pattern the teacher's conformance gates use
// (pkg/conform/gate.go), generalized from pass/fail gates to
// severity-tagged findings.
package analyze

import (
	"fmt"
	"sort"

	"github.com/riverline-labs/tenor/pkg/evaluator"
)

// Severity tags one analysis finding.
type Severity string

const (
	Info    Severity = "Info"
	Warning Severity = "Warning"
	Error   Severity = "Error"
)

// Finding is one independent observation about a model.
type Finding struct {
	Check    string
	Severity Severity
	Subject  string // entity/flow/verdict id the finding is about, "" if model-wide
	Message  string
}

// StateSpace reports how many declared states each entity has.
type StateSpace struct {
	Entity string
	Count  int
}

// Report is the full analyze pass output (spec §4.8).
type Report struct {
	StateSpaces      []StateSpace
	VerdictTypes     []string
	FlowPathCounts   map[string]int // flow id -> number of enumerated terminal paths (bounded)
	Findings         []Finding
}

const maxPathsPerFlow = 64
const maxPathDepth = 256

// Run executes every analyze check over m and returns one report (spec §4.8):
// state space, reachability, verdict coverage, flow path enumeration, and
// verdict uniqueness verification.
func Run(m *evaluator.Model) *Report {
	r := &Report{FlowPathCounts: map[string]int{}}
	r.stateSpace(m)
	r.reachability(m)
	r.verdictCoverage(m)
	r.flowPaths(m)
	r.verdictUniqueness(m)

	sort.Slice(r.Findings, func(i, j int) bool {
		if r.Findings[i].Check != r.Findings[j].Check {
			return r.Findings[i].Check < r.Findings[j].Check
		}
		return r.Findings[i].Subject < r.Findings[j].Subject
	})
	return r
}

func (r *Report) stateSpace(m *evaluator.Model) {
	names := sortedEntityNames(m)
	for _, name := range names {
		e := m.Entities[name]
		r.StateSpaces = append(r.StateSpaces, StateSpace{Entity: name, Count: len(e.States)})
	}
}

// reachability flags states that no transition (directly or
// transitively) ever leads to from the entity's declared initial state.
func (r *Report) reachability(m *evaluator.Model) {
	for _, name := range sortedEntityNames(m) {
		e := m.Entities[name]
		adjacency := map[string][]string{}
		for _, t := range e.Transitions {
			adjacency[t.From] = append(adjacency[t.From], t.To)
		}
		reached := map[string]bool{e.Initial: true}
		queue := []string{e.Initial}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adjacency[cur] {
				if !reached[next] {
					reached[next] = true
					queue = append(queue, next)
				}
			}
		}
		for _, s := range e.States {
			if !reached[s] {
				r.Findings = append(r.Findings, Finding{
					Check: "reachability", Severity: Warning, Subject: name,
					Message: fmt.Sprintf("state %q is unreachable from initial state %q", s, e.Initial),
				})
			}
		}
	}
}

func (r *Report) verdictCoverage(m *evaluator.Model) {
	seen := map[string]bool{}
	for _, rule := range m.Rules {
		if rule.VerdictType != "" {
			seen[rule.VerdictType] = true
		}
	}
	for t := range seen {
		r.VerdictTypes = append(r.VerdictTypes, t)
	}
	sort.Strings(r.VerdictTypes)
}

// verdictUniqueness independently re-verifies what elaboration's I6
// already enforces: exactly one producing rule per verdict type. A
// violation here means the model was constructed outside elaboration
// (e.g. hand-crafted interchange), not that elaboration has a bug.
func (r *Report) verdictUniqueness(m *evaluator.Model) {
	producers := map[string][]string{}
	for _, rule := range m.Rules {
		if rule.VerdictType != "" {
			producers[rule.VerdictType] = append(producers[rule.VerdictType], rule.ID)
		}
	}
	var types []string
	for t := range producers {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		ids := producers[t]
		if len(ids) > 1 {
			r.Findings = append(r.Findings, Finding{
				Check: "verdict_uniqueness", Severity: Error, Subject: t,
				Message: fmt.Sprintf("verdict type %q is produced by more than one rule: %v", t, ids),
			})
		}
	}
}

// flowPaths enumerates step paths from each flow's entry to a terminal
// outcome, bounded by maxPathsPerFlow/maxPathDepth (spec §4.8 "bounded;
// notes truncation"). ParallelStep branches end path enumeration at the
// step itself -- each branch is its own sub-graph (spec Design Notes
// §9), not part of the outer path space.
func (r *Report) flowPaths(m *evaluator.Model) {
	for _, flowID := range sortedFlowNames(m) {
		flow := m.Flows[flowID]
		truncated := false
		var paths [][]string
		var walk func(stepID string, path []string)
		walk = func(stepID string, path []string) {
			if truncated || len(paths) >= maxPathsPerFlow {
				truncated = true
				return
			}
			if len(path) >= maxPathDepth {
				truncated = true
				return
			}
			step, ok := flow.Steps[stepID]
			if !ok {
				return
			}
			path = append(path, stepID)
			switch step.StepKind {
			case "operation":
				labels := make([]string, 0, len(step.Outcomes))
				for label := range step.Outcomes {
					labels = append(labels, label)
				}
				sort.Strings(labels)
				for _, label := range labels {
					branch(step.Outcomes[label], path, &paths, walk)
				}
			case "branch":
				branch(step.IfTrue, path, &paths, walk)
				branch(step.IfFalse, path, &paths, walk)
			case "handoff":
				branch(step.Next, path, &paths, walk)
			case "sub_flow":
				branch(step.OnSuccess, path, &paths, walk)
			case "parallel":
				paths = append(paths, append([]string(nil), path...))
			}
		}
		walk(flow.Entry, nil)
		r.FlowPathCounts[flowID] = len(paths)
		if truncated {
			r.Findings = append(r.Findings, Finding{
				Check: "flow_paths", Severity: Info, Subject: flowID,
				Message: fmt.Sprintf("path enumeration truncated at %d paths / depth %d", maxPathsPerFlow, maxPathDepth),
			})
		}
	}
}

func branch(t *evaluator.StepTargetDef, path []string, paths *[][]string, walk func(string, []string)) {
	if t == nil {
		return
	}
	if t.Terminal {
		*paths = append(*paths, append([]string(nil), path...))
		return
	}
	walk(t.StepID, path)
}

func sortedEntityNames(m *evaluator.Model) []string {
	out := make([]string, 0, len(m.Entities))
	for n := range m.Entities {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sortedFlowNames(m *evaluator.Model) []string {
	out := make([]string, 0, len(m.Flows))
	for n := range m.Flows {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
