// Package memstore is the in-memory store.Store backend used by tests
// and the conformance harness, grounded on the teacher's
// pkg/store/ledger/file_ledger.go (sync.RWMutex-guarded map, injectable
// clock), with JSON-file persistence dropped since spec §4.7 names only
// an in-memory conformance backend, not a durable single-file one.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riverline-labs/tenor/pkg/store"
)

type entityKey struct{ entity, instance string }

// Store is the in-memory store.Store implementation.
type Store struct {
	mu sync.RWMutex

	entities   map[entityKey]store.EntityState
	flowExecs  map[string]store.FlowExecutionRecord
	opExecs    map[string]store.OperationExecutionRecord
	transitions []store.EntityTransitionRecord
	provenance map[string][]store.ProvenanceRecord

	clock func() time.Time
}

func New() *Store { return NewWithClock(time.Now) }

func NewWithClock(clock func() time.Time) *Store {
	return &Store{
		entities:   map[entityKey]store.EntityState{},
		flowExecs:  map[string]store.FlowExecutionRecord{},
		opExecs:    map[string]store.OperationExecutionRecord{},
		provenance: map[string][]store.ProvenanceRecord{},
		clock:      clock,
	}
}

func (s *Store) BeginSnapshot(ctx context.Context) (store.Snapshot, error) {
	return &snapshot{store: s}, nil
}

func (s *Store) GetEntityState(ctx context.Context, entity, instance string) (store.EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es, ok := s.entities[entityKey{entity, instance}]
	if !ok {
		return store.EntityState{}, store.ErrEntityNotFound
	}
	return es, nil
}

func (s *Store) ListEntityStates(ctx context.Context, entity string, state string) ([]store.EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.EntityState
	for k, es := range s.entities {
		if k.entity != entity {
			continue
		}
		if state != "" && es.State != state {
			continue
		}
		out = append(out, es)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func (s *Store) GetFlowExecution(ctx context.Context, id string) (store.FlowExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.flowExecs[id]
	if !ok {
		return store.FlowExecutionRecord{}, store.ErrExecutionNotFound
	}
	return rec, nil
}

func (s *Store) ListFlowExecutions(ctx context.Context, flowID, outcome string, limit int) ([]store.FlowExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.FlowExecutionRecord
	for _, rec := range s.flowExecs {
		if flowID != "" && rec.FlowID != flowID {
			continue
		}
		if outcome != "" && rec.Outcome != outcome {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetProvenance(ctx context.Context, opExecID string) ([]store.ProvenanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.ProvenanceRecord(nil), s.provenance[opExecID]...), nil
}

// snapshot buffers writes until Commit applies them to the parent
// Store under a single lock, or Abort discards them untouched (spec
// §4.7 invariants, P7).
type snapshot struct {
	store *Store

	initEntities []store.EntityState
	updates      []pendingUpdate
	flowExecs    []store.FlowExecutionRecord
	opExecs      []store.OperationExecutionRecord
	transitions  []store.EntityTransitionRecord
	provenance   []store.ProvenanceRecord

	aborted   bool
	committed bool
}

type pendingUpdate struct {
	entity, instance string
	expectedVersion  int64
	newState         string
	flowExecID       string
	opExecID         string
}

func (sn *snapshot) InitializeEntity(ctx context.Context, entity, instance, state string) error {
	sn.initEntities = append(sn.initEntities, store.EntityState{
		Entity: entity, Instance: instance, State: state, Version: 0,
	})
	return nil
}

func (sn *snapshot) UpdateEntityState(ctx context.Context, entity, instance string, expectedVersion int64, newState, flowExecID, opExecID string) (int64, error) {
	sn.updates = append(sn.updates, pendingUpdate{entity, instance, expectedVersion, newState, flowExecID, opExecID})
	return expectedVersion + 1, nil
}

func (sn *snapshot) InsertFlowExecution(ctx context.Context, rec store.FlowExecutionRecord) error {
	sn.flowExecs = append(sn.flowExecs, rec)
	return nil
}

func (sn *snapshot) InsertOperationExecution(ctx context.Context, rec store.OperationExecutionRecord) error {
	sn.opExecs = append(sn.opExecs, rec)
	return nil
}

func (sn *snapshot) InsertEntityTransition(ctx context.Context, rec store.EntityTransitionRecord) error {
	sn.transitions = append(sn.transitions, rec)
	return nil
}

func (sn *snapshot) InsertProvenanceRecord(ctx context.Context, rec store.ProvenanceRecord) error {
	sn.provenance = append(sn.provenance, rec)
	return nil
}

// Commit validates every buffered expected-version check against the
// store's current committed state, then applies all buffered writes
// under a single lock (all-or-nothing, per spec §4.7). A conflict
// aborts the whole snapshot -- the loser's other writes are discarded.
func (sn *snapshot) Commit(ctx context.Context) error {
	s := sn.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if sn.committed || sn.aborted {
		return nil
	}

	for _, u := range sn.updates {
		key := entityKey{u.entity, u.instance}
		cur, ok := s.entities[key]
		if !ok {
			return store.ErrEntityNotFound
		}
		if cur.Version != u.expectedVersion {
			return store.ErrVersionConflict
		}
	}

	now := s.clock()
	for _, es := range sn.initEntities {
		es.UpdatedAt = now
		s.entities[entityKey{es.Entity, es.Instance}] = es
	}
	for _, u := range sn.updates {
		key := entityKey{u.entity, u.instance}
		cur := s.entities[key]
		cur.State = u.newState
		cur.Version = u.expectedVersion + 1
		cur.LastFlowID = u.flowExecID
		cur.LastOperationID = u.opExecID
		cur.UpdatedAt = now
		s.entities[key] = cur
	}
	for _, rec := range sn.flowExecs {
		s.flowExecs[rec.ID] = rec
	}
	for _, rec := range sn.opExecs {
		s.opExecs[rec.ID] = rec
	}
	s.transitions = append(s.transitions, sn.transitions...)
	for _, rec := range sn.provenance {
		s.provenance[rec.OperationExecutionID] = append(s.provenance[rec.OperationExecutionID], rec)
	}

	sn.committed = true
	return nil
}

func (sn *snapshot) Abort(ctx context.Context) error {
	sn.aborted = true
	sn.initEntities = nil
	sn.updates = nil
	sn.flowExecs = nil
	sn.opExecs = nil
	sn.transitions = nil
	sn.provenance = nil
	return nil
}
