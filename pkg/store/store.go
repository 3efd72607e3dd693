// Package store implements the transactional snapshot API (spec §4.7):
// a unit-of-atomicity Snapshot that buffers writes until Commit, backed
// by either an in-memory (pkg/store/memstore) or relational
// (pkg/store/sqlstore) implementation behind the same Store interface,
// grounded on the teacher's pkg/store/ledger (types.go/ledger.go).
package store

import (
	"context"
	"errors"
	"time"
)

// Storage error variants (spec §7 "Storage errors").
var (
	ErrVersionConflict  = errors.New("store: version conflict")
	ErrExecutionNotFound = errors.New("store: execution not found")
	ErrEntityNotFound   = errors.New("store: entity not found")
)

// EntityState is the committed record for one (entity, instance) pair.
type EntityState struct {
	Entity          string
	Instance        string
	State           string
	Version         int64
	LastFlowID      string
	LastOperationID string
	UpdatedAt       time.Time
}

// FlowExecutionRecord is one flow invocation's append-only record (spec
// §6 "exact field list -- implementations must round-trip all fields").
// SnapshotFacts/SnapshotVerdicts are the JSON-encoded (facts, verdicts)
// pair frozen at flow initiation (spec §4.5.2), carried here so a
// stored execution can be replayed or audited without re-deriving the
// snapshot it actually ran against.
type FlowExecutionRecord struct {
	ID               string
	FlowID           string
	ContractID       string
	Outcome          string
	Persona          string
	StartedAt        time.Time
	CompletedAt      time.Time
	SnapshotFacts    string
	SnapshotVerdicts string
}

// OperationExecutionRecord references the flow execution it belongs to.
type OperationExecutionRecord struct {
	ID               string
	FlowExecutionID  string
	OperationID      string
	Persona          string
	Result           string
	ExecutedAt       time.Time
}

// EntityTransitionRecord names the entity/instance/from/to and the
// version pair an operation execution produced (spec §6 field list:
// id, operation_execution_id, entity_id, instance_id, from_state,
// to_state, from_version, to_version).
type EntityTransitionRecord struct {
	ID                   string
	OperationExecutionID string
	Entity               string
	Instance             string
	From                 string
	To                   string
	FromVersion          int64
	ToVersion            int64
}

// ProvenanceRecord references the operation execution it was collected
// during (spec §9 "Predicate evaluation side channel"; spec §6 field
// list: id, operation_execution_id, ...).
type ProvenanceRecord struct {
	ID                   string
	OperationExecutionID string
	FactRefs             []string
	VerdictRefs          []string
}

// Snapshot is the unit of atomicity: buffered writes are either all
// applied on Commit or all discarded on Abort (spec §4.7 invariants).
type Snapshot interface {
	InitializeEntity(ctx context.Context, entity, instance, state string) error
	UpdateEntityState(ctx context.Context, entity, instance string, expectedVersion int64, newState, flowExecID, opExecID string) (int64, error)
	InsertFlowExecution(ctx context.Context, rec FlowExecutionRecord) error
	InsertOperationExecution(ctx context.Context, rec OperationExecutionRecord) error
	InsertEntityTransition(ctx context.Context, rec EntityTransitionRecord) error
	InsertProvenanceRecord(ctx context.Context, rec ProvenanceRecord) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Store is the backend-agnostic entry point (spec §4.7); memstore and
// sqlstore both implement it.
type Store interface {
	BeginSnapshot(ctx context.Context) (Snapshot, error)

	GetEntityState(ctx context.Context, entity, instance string) (EntityState, error)
	ListEntityStates(ctx context.Context, entity string, state string) ([]EntityState, error)
	GetFlowExecution(ctx context.Context, id string) (FlowExecutionRecord, error)
	ListFlowExecutions(ctx context.Context, flowID, outcome string, limit int) ([]FlowExecutionRecord, error)
	GetProvenance(ctx context.Context, opExecID string) ([]ProvenanceRecord, error)
}
