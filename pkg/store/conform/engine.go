package conform

import "time"

// Engine runs registered gates deterministically in registration order,
// grounded on the teacher's pkg/conform/engine.go Engine (gate registry
// plus an injectable clock, evidence-pack emission dropped -- see
// gate.go).
type Engine struct {
	gates   map[string]Gate
	ordered []string
	clock   func() time.Time
}

func NewEngine() *Engine {
	return &Engine{gates: map[string]Gate{}, clock: time.Now}
}

func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) RegisterGate(g Gate) {
	id := g.ID()
	if _, exists := e.gates[id]; !exists {
		e.ordered = append(e.ordered, id)
	}
	e.gates[id] = g
}

// ConformanceReport is the top-level result of a conformance run.
type ConformanceReport struct {
	Pass        bool
	GateResults []*GateResult
}

// Run executes every registered gate against a fresh store built by
// newStore, in registration order.
func (e *Engine) Run(ctx *RunContext) *ConformanceReport {
	report := &ConformanceReport{Pass: true}
	for _, id := range e.ordered {
		g := e.gates[id]
		result := g.Run(ctx)
		report.GateResults = append(report.GateResults, result)
		if !result.Pass {
			report.Pass = false
		}
	}
	return report
}
