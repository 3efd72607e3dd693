// Package conform is the storage conformance harness (spec §4.7): a
// test suite parameterized on a backend factory that exercises every
// store.Store implementation against the same externally observable
// behavior, grounded on the teacher's pkg/conform/gate.go Gate
// interface. Evidence-pack file emission and cryptographic receipts
// (teacher's compliance-audit framing) are dropped -- spec §4.7 asks
// only for "a structured pass/fail record" per gate, not a signed,
// persisted artifact bundle, so RunContext carries just the backend
// factory and a clock.
package conform

import (
	"context"
	"time"

	"github.com/riverline-labs/tenor/pkg/store"
)

// Factory constructs a fresh, empty store.Store for one gate run.
type Factory func() store.Store

// RunContext provides the runtime context for gate execution.
type RunContext struct {
	Context context.Context
	NewStore Factory
	Clock    func() time.Time
}

// GateResult is the structured pass/fail record spec §4.7 requires.
type GateResult struct {
	GateID  string
	Pass    bool
	Reasons []string
}

// Gate is one conformance check (spec §4.7 "exercises every pair of
// (commit, abort) x (single entity, multi entity, ...)").
type Gate interface {
	ID() string
	Name() string
	Run(ctx *RunContext) *GateResult
}
