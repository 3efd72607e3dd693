package conform

import (
	"fmt"
	"time"

	"github.com/riverline-labs/tenor/pkg/store"
)

// SingleEntityCommitGate exercises P6: a successful update_entity_state
// advances the version by exactly 1 and a subsequent read observes it.
type SingleEntityCommitGate struct{}

func (SingleEntityCommitGate) ID() string   { return "G-SINGLE-COMMIT" }
func (SingleEntityCommitGate) Name() string { return "single entity commit advances version" }

func (SingleEntityCommitGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context

	snap, err := s.BeginSnapshot(ctx)
	if err != nil {
		return fail("G-SINGLE-COMMIT", "begin snapshot: %s", err)
	}
	if err := snap.InitializeEntity(ctx, "Order", "order-1", "initial"); err != nil {
		return fail("G-SINGLE-COMMIT", "initialize: %s", err)
	}
	if err := snap.Commit(ctx); err != nil {
		return fail("G-SINGLE-COMMIT", "commit init: %s", err)
	}

	snap2, _ := s.BeginSnapshot(ctx)
	newVersion, err := snap2.UpdateEntityState(ctx, "Order", "order-1", 0, "submitted", "", "")
	if err != nil {
		return fail("G-SINGLE-COMMIT", "update: %s", err)
	}
	if err := snap2.Commit(ctx); err != nil {
		return fail("G-SINGLE-COMMIT", "commit update: %s", err)
	}
	if newVersion != 1 {
		return fail("G-SINGLE-COMMIT", "expected version 1, got %d", newVersion)
	}

	es, err := s.GetEntityState(ctx, "Order", "order-1")
	if err != nil {
		return fail("G-SINGLE-COMMIT", "read: %s", err)
	}
	if es.State != "submitted" || es.Version != 1 {
		return fail("G-SINGLE-COMMIT", "expected submitted/v1, got %s/v%d", es.State, es.Version)
	}
	if es.UpdatedAt.IsZero() {
		return fail("G-SINGLE-COMMIT", "updated_at was not set")
	}
	return pass("G-SINGLE-COMMIT")
}

// AbortDiscardsWritesGate is spec §8 scenario S6: a full buffered
// pipeline (flow execution, operation execution, entity update,
// provenance) that is aborted leaves no trace.
type AbortDiscardsWritesGate struct{}

func (AbortDiscardsWritesGate) ID() string   { return "G-ABORT-FULL-PIPELINE" }
func (AbortDiscardsWritesGate) Name() string { return "abort discards the full buffered pipeline" }

func (AbortDiscardsWritesGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context

	snap, _ := s.BeginSnapshot(ctx)
	if err := snap.InitializeEntity(ctx, "Order", "order-1", "initial"); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "initialize: %s", err)
	}
	if err := snap.Commit(ctx); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "commit init: %s", err)
	}

	snap2, _ := s.BeginSnapshot(ctx)
	now := time.Now()
	if err := snap2.InsertFlowExecution(ctx, store.FlowExecutionRecord{ID: "flow-exec-1", FlowID: "f", ContractID: "c", Outcome: "ok", StartedAt: now, CompletedAt: now, SnapshotFacts: "{}", SnapshotVerdicts: "{}"}); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "insert flow exec: %s", err)
	}
	if err := snap2.InsertOperationExecution(ctx, store.OperationExecutionRecord{ID: "op-exec-1", FlowExecutionID: "flow-exec-1", OperationID: "approve", ExecutedAt: now}); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "insert op exec: %s", err)
	}
	if _, err := snap2.UpdateEntityState(ctx, "Order", "order-1", 0, "submitted", "flow-exec-1", "op-exec-1"); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "update: %s", err)
	}
	if err := snap2.InsertProvenanceRecord(ctx, store.ProvenanceRecord{ID: "prov-1", OperationExecutionID: "op-exec-1", FactRefs: []string{"amount"}}); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "insert provenance: %s", err)
	}
	if err := snap2.Abort(ctx); err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "abort: %s", err)
	}

	es, err := s.GetEntityState(ctx, "Order", "order-1")
	if err != nil || es.State != "initial" {
		return fail("G-ABORT-FULL-PIPELINE", "expected order-1 still initial, got state=%q err=%v", es.State, err)
	}
	if _, err := s.GetFlowExecution(ctx, "flow-exec-1"); err != store.ErrExecutionNotFound {
		return fail("G-ABORT-FULL-PIPELINE", "expected ErrExecutionNotFound for aborted flow execution, got %v", err)
	}
	prov, err := s.GetProvenance(ctx, "op-exec-1")
	if err != nil {
		return fail("G-ABORT-FULL-PIPELINE", "get provenance: %s", err)
	}
	if len(prov) != 0 {
		return fail("G-ABORT-FULL-PIPELINE", "expected no provenance after abort, got %d records", len(prov))
	}
	return pass("G-ABORT-FULL-PIPELINE")
}

// VersionConflictGate exercises concurrent snapshot semantics (spec §5
// "Storage concurrency"): two snapshots racing on the same (entity,
// instance) resolve to exactly one winner.
type VersionConflictGate struct{}

func (VersionConflictGate) ID() string   { return "G-VERSION-CONFLICT" }
func (VersionConflictGate) Name() string { return "overlapping updates resolve to one winner" }

func (VersionConflictGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context

	setup, _ := s.BeginSnapshot(ctx)
	_ = setup.InitializeEntity(ctx, "Order", "order-1", "initial")
	if err := setup.Commit(ctx); err != nil {
		return fail("G-VERSION-CONFLICT", "setup commit: %s", err)
	}

	snapA, _ := s.BeginSnapshot(ctx)
	snapB, _ := s.BeginSnapshot(ctx)
	if _, err := snapA.UpdateEntityState(ctx, "Order", "order-1", 0, "submitted", "", ""); err != nil {
		return fail("G-VERSION-CONFLICT", "snapA update: %s", err)
	}
	if _, err := snapB.UpdateEntityState(ctx, "Order", "order-1", 0, "cancelled", "", ""); err != nil {
		return fail("G-VERSION-CONFLICT", "snapB update: %s", err)
	}

	errA := snapA.Commit(ctx)
	errB := snapB.Commit(ctx)

	winners := 0
	if errA == nil {
		winners++
	}
	if errB == nil {
		winners++
	}
	if winners != 1 {
		return fail("G-VERSION-CONFLICT", "expected exactly one winner, got errA=%v errB=%v", errA, errB)
	}
	return pass("G-VERSION-CONFLICT")
}

// SequentialVersionsGate exercises three commits in a row against the
// same (entity, instance): each commit's returned version and the
// final read must agree on a strictly increasing sequence.
type SequentialVersionsGate struct{}

func (SequentialVersionsGate) ID() string   { return "G-SEQUENTIAL-VERSIONS" }
func (SequentialVersionsGate) Name() string { return "sequential updates increment version" }

func (SequentialVersionsGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context

	setup, _ := s.BeginSnapshot(ctx)
	if err := setup.InitializeEntity(ctx, "Order", "order-1", "initial"); err != nil {
		return fail("G-SEQUENTIAL-VERSIONS", "initialize: %s", err)
	}
	if err := setup.Commit(ctx); err != nil {
		return fail("G-SEQUENTIAL-VERSIONS", "commit init: %s", err)
	}

	states := []string{"submitted", "approved", "shipped"}
	for i, state := range states {
		snap, _ := s.BeginSnapshot(ctx)
		newVer, err := snap.UpdateEntityState(ctx, "Order", "order-1", int64(i), state, fmt.Sprintf("flow-%d", i+1), fmt.Sprintf("op-%d", i+1))
		if err != nil {
			return fail("G-SEQUENTIAL-VERSIONS", "update %d: %s", i+1, err)
		}
		if err := snap.Commit(ctx); err != nil {
			return fail("G-SEQUENTIAL-VERSIONS", "commit %d: %s", i+1, err)
		}
		if want := int64(i + 1); newVer != want {
			return fail("G-SEQUENTIAL-VERSIONS", "update %d expected version %d, got %d", i+1, want, newVer)
		}
	}

	rec, err := s.GetEntityState(ctx, "Order", "order-1")
	if err != nil {
		return fail("G-SEQUENTIAL-VERSIONS", "read: %s", err)
	}
	if rec.Version != 3 || rec.State != "shipped" {
		return fail("G-SEQUENTIAL-VERSIONS", "expected version 3/shipped, got %d/%s", rec.Version, rec.State)
	}
	return pass("G-SEQUENTIAL-VERSIONS")
}

// ListEntityStatesFilterGate exercises ListEntityStates' state filter:
// three instances, two moved to "active", filtering by each state
// returns exactly the matching count.
type ListEntityStatesFilterGate struct{}

func (ListEntityStatesFilterGate) ID() string   { return "G-LIST-ENTITY-STATES-FILTER" }
func (ListEntityStatesFilterGate) Name() string { return "list_entity_states filters by state" }

func (ListEntityStatesFilterGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context

	snap, _ := s.BeginSnapshot(ctx)
	for _, inst := range []string{"acct-1", "acct-2", "acct-3"} {
		if err := snap.InitializeEntity(ctx, "Account", inst, "pending"); err != nil {
			return fail("G-LIST-ENTITY-STATES-FILTER", "initialize %s: %s", inst, err)
		}
	}
	if err := snap.Commit(ctx); err != nil {
		return fail("G-LIST-ENTITY-STATES-FILTER", "commit init: %s", err)
	}

	snap2, _ := s.BeginSnapshot(ctx)
	if _, err := snap2.UpdateEntityState(ctx, "Account", "acct-1", 0, "active", "flow-1", "op-1"); err != nil {
		return fail("G-LIST-ENTITY-STATES-FILTER", "update acct-1: %s", err)
	}
	if _, err := snap2.UpdateEntityState(ctx, "Account", "acct-2", 0, "active", "flow-1", "op-2"); err != nil {
		return fail("G-LIST-ENTITY-STATES-FILTER", "update acct-2: %s", err)
	}
	if err := snap2.Commit(ctx); err != nil {
		return fail("G-LIST-ENTITY-STATES-FILTER", "commit update: %s", err)
	}

	active, err := s.ListEntityStates(ctx, "Account", "active")
	if err != nil {
		return fail("G-LIST-ENTITY-STATES-FILTER", "list active: %s", err)
	}
	if len(active) != 2 {
		return fail("G-LIST-ENTITY-STATES-FILTER", "expected 2 active accounts, got %d", len(active))
	}
	pending, err := s.ListEntityStates(ctx, "Account", "pending")
	if err != nil {
		return fail("G-LIST-ENTITY-STATES-FILTER", "list pending: %s", err)
	}
	if len(pending) != 1 {
		return fail("G-LIST-ENTITY-STATES-FILTER", "expected 1 pending account, got %d", len(pending))
	}
	return pass("G-LIST-ENTITY-STATES-FILTER")
}

// ListFlowExecutionsFilterGate exercises ListFlowExecutions' flow-id
// and outcome filters and its limit.
type ListFlowExecutionsFilterGate struct{}

func (ListFlowExecutionsFilterGate) ID() string { return "G-LIST-FLOW-EXECUTIONS-FILTER" }
func (ListFlowExecutionsFilterGate) Name() string {
	return "list_flow_executions filters by flow_id, outcome, and limit"
}

func (ListFlowExecutionsFilterGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context
	now := time.Now()

	mk := func(id, flowID, outcome string) store.FlowExecutionRecord {
		return store.FlowExecutionRecord{ID: id, FlowID: flowID, ContractID: "c", Outcome: outcome, StartedAt: now, CompletedAt: now, SnapshotFacts: "{}", SnapshotVerdicts: "{}"}
	}

	snap, _ := s.BeginSnapshot(ctx)
	recs := []store.FlowExecutionRecord{
		mk("fe-1", "checkout", "success"),
		mk("fe-2", "checkout", "success"),
		mk("fe-3", "onboarding", "failure"),
	}
	for _, r := range recs {
		if err := snap.InsertFlowExecution(ctx, r); err != nil {
			return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "insert %s: %s", r.ID, err)
		}
	}
	if err := snap.Commit(ctx); err != nil {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "commit: %s", err)
	}

	checkout, err := s.ListFlowExecutions(ctx, "checkout", "", 100)
	if err != nil {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "list by flow_id: %s", err)
	}
	if len(checkout) != 2 {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "expected 2 checkout flows, got %d", len(checkout))
	}

	successes, err := s.ListFlowExecutions(ctx, "", "success", 100)
	if err != nil {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "list by outcome: %s", err)
	}
	if len(successes) != 2 {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "expected 2 success flows, got %d", len(successes))
	}

	limited, err := s.ListFlowExecutions(ctx, "", "", 1)
	if err != nil {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "list with limit: %s", err)
	}
	if len(limited) != 1 {
		return fail("G-LIST-FLOW-EXECUTIONS-FILTER", "expected 1 flow with limit 1, got %d", len(limited))
	}
	return pass("G-LIST-FLOW-EXECUTIONS-FILTER")
}

// EmptySnapshotCommitsGate exercises the edge case of a begin/commit
// pair with no writes buffered in between -- it must not error.
type EmptySnapshotCommitsGate struct{}

func (EmptySnapshotCommitsGate) ID() string   { return "G-EMPTY-SNAPSHOT-COMMIT" }
func (EmptySnapshotCommitsGate) Name() string { return "commit with no buffered writes succeeds" }

func (EmptySnapshotCommitsGate) Run(rc *RunContext) *GateResult {
	s := rc.NewStore()
	ctx := rc.Context

	snap, err := s.BeginSnapshot(ctx)
	if err != nil {
		return fail("G-EMPTY-SNAPSHOT-COMMIT", "begin: %s", err)
	}
	if err := snap.Commit(ctx); err != nil {
		return fail("G-EMPTY-SNAPSHOT-COMMIT", "commit: %s", err)
	}
	return pass("G-EMPTY-SNAPSHOT-COMMIT")
}

func pass(id string) *GateResult { return &GateResult{GateID: id, Pass: true} }

func fail(id, format string, args ...any) *GateResult {
	return &GateResult{GateID: id, Pass: false, Reasons: []string{fmt.Sprintf(format, args...)}}
}

// DefaultGates returns the standard gate set run against every backend.
func DefaultGates() []Gate {
	return []Gate{
		SingleEntityCommitGate{},
		AbortDiscardsWritesGate{},
		VersionConflictGate{},
		SequentialVersionsGate{},
		ListEntityStatesFilterGate{},
		ListFlowExecutionsFilterGate{},
		EmptySnapshotCommitsGate{},
	}
}
