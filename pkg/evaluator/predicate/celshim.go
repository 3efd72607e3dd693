// Package predicate hosts the one optional, pluggable alternative to
// the tenor-native predicate interpreter (pkg/evaluator's evalExpr):
// a CEL-backed Compiler for operators who want to author an
// Operation's precondition or a Rule's when body as CEL text instead
// of tenor surface syntax. The tenor-native interpreter remains
// required for every bundle the elaborator emits -- CEL has no
// built-in `verdict_present`, no notion of rule strata, and no
// declared-range multiplication check -- so this package is never on
// the path Elaborate/EvaluateRules/ExecuteFlow take; it exists purely
// as an embedding surface for a host application that wants to offer
// CEL as a second authoring language over the same fact namespace.
//
// Grounded on the teacher's pkg/governance/policy_evaluator_cel.go:
// one shared *cel.Env, a mutex-guarded program cache keyed by
// expression text, and a cost limit on every compiled program.
package predicate

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Compiler compiles CEL boolean expressions against a single dynamic
// `facts` map variable and caches compiled programs by source text.
type Compiler struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCompiler builds a Compiler whose CEL environment exposes one
// variable, `facts` (a dynamically-typed map), mirroring the tenor
// fact namespace a `fact_ref` node resolves against.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(cel.Variable("facts", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("predicate: build CEL environment: %w", err)
	}
	return &Compiler{env: env, cache: map[string]cel.Program{}}, nil
}

// Program is one compiled CEL predicate, ready to evaluate repeatedly
// against different fact maps.
type Program struct {
	prg cel.Program
}

// Compile parses and type-checks expr, returning a cached Program if
// this exact text was compiled before.
func (c *Compiler) Compile(expr string) (*Program, error) {
	c.mu.RLock()
	prg, hit := c.cache[expr]
	c.mu.RUnlock()
	if hit {
		return &Program{prg: prg}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, hit = c.cache[expr]; hit {
		return &Program{prg: prg}, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("predicate: compile %q: %w", expr, issues.Err())
	}
	p, err := c.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("predicate: program %q: %w", expr, err)
	}
	c.cache[expr] = p
	return &Program{prg: p}, nil
}

// Eval runs the compiled predicate against one fact map (fact id ->
// a CEL-native Go value: bool, int64, float64, string, or a nested
// map/list of those). The result must be a CEL bool.
func (p *Program) Eval(facts map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{"facts": facts})
	if err != nil {
		return false, fmt.Errorf("predicate: eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate: result %v is not a bool", out.Value())
	}
	return b, nil
}
