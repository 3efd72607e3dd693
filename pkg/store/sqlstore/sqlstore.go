// Package sqlstore is the relational store.Store backend over
// database/sql (spec §4.7's production target), grounded on the
// teacher's pkg/store/ledger/sql_ledger.go: parameterized queries,
// exec/query against a context, sql.ErrNoRows mapped to a domain
// not-found error. Runs against either github.com/lib/pq (Postgres) or
// modernc.org/sqlite (pure-Go SQLite) -- callers supply an already-open
// *sql.DB using whichever driver they registered.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/riverline-labs/tenor/pkg/store"
)

// Store is the database/sql-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS entity_states (
	entity TEXT NOT NULL,
	instance TEXT NOT NULL,
	state TEXT NOT NULL,
	version BIGINT NOT NULL,
	last_flow_id TEXT,
	last_operation_id TEXT,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (entity, instance)
);

CREATE TABLE IF NOT EXISTS flow_executions (
	id TEXT PRIMARY KEY,
	flow_id TEXT NOT NULL,
	contract_id TEXT,
	outcome TEXT NOT NULL,
	persona TEXT,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	snapshot_facts TEXT,
	snapshot_verdicts TEXT
);

CREATE TABLE IF NOT EXISTS operation_executions (
	id TEXT PRIMARY KEY,
	flow_execution_id TEXT NOT NULL,
	operation_id TEXT NOT NULL,
	persona TEXT,
	result TEXT,
	executed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_transitions (
	id TEXT PRIMARY KEY,
	operation_execution_id TEXT NOT NULL,
	entity TEXT NOT NULL,
	instance TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	from_version BIGINT NOT NULL,
	to_version BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_records (
	id TEXT PRIMARY KEY,
	operation_execution_id TEXT NOT NULL,
	fact_refs TEXT NOT NULL,
	verdict_refs TEXT NOT NULL
);
`

// Init creates the backend schema if it does not already exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) BeginSnapshot(ctx context.Context) (store.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &snapshot{tx: tx}, nil
}

func (s *Store) GetEntityState(ctx context.Context, entity, instance string) (store.EntityState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT entity, instance, state, version, last_flow_id, last_operation_id, updated_at
		FROM entity_states WHERE entity = $1 AND instance = $2`, entity, instance)
	return scanEntityState(row)
}

func (s *Store) ListEntityStates(ctx context.Context, entity string, state string) ([]store.EntityState, error) {
	query := `SELECT entity, instance, state, version, last_flow_id, last_operation_id, updated_at
		FROM entity_states WHERE entity = $1`
	args := []any{entity}
	if state != "" {
		query += ` AND state = $2`
		args = append(args, state)
	}
	query += ` ORDER BY instance`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.EntityState
	for rows.Next() {
		es, err := scanEntityStateRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, es)
	}
	return out, rows.Err()
}

func (s *Store) GetFlowExecution(ctx context.Context, id string) (store.FlowExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, flow_id, contract_id, outcome, persona, started_at, completed_at, snapshot_facts, snapshot_verdicts
		FROM flow_executions WHERE id = $1`, id)
	rec, err := scanFlowExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.FlowExecutionRecord{}, store.ErrExecutionNotFound
	}
	return rec, err
}

func (s *Store) ListFlowExecutions(ctx context.Context, flowID, outcome string, limit int) ([]store.FlowExecutionRecord, error) {
	query := `SELECT id, flow_id, contract_id, outcome, persona, started_at, completed_at, snapshot_facts, snapshot_verdicts
		FROM flow_executions WHERE 1=1`
	var args []any
	if flowID != "" {
		args = append(args, flowID)
		query += ` AND flow_id = $` + placeholder(len(args))
	}
	if outcome != "" {
		args = append(args, outcome)
		query += ` AND outcome = $` + placeholder(len(args))
	}
	query += ` ORDER BY started_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.FlowExecutionRecord
	for rows.Next() {
		rec, err := scanFlowExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func scanFlowExecution(row rowScanner) (store.FlowExecutionRecord, error) {
	var rec store.FlowExecutionRecord
	var contractID, persona sql.NullString
	err := row.Scan(&rec.ID, &rec.FlowID, &contractID, &rec.Outcome, &persona, &rec.StartedAt, &rec.CompletedAt, &rec.SnapshotFacts, &rec.SnapshotVerdicts)
	rec.ContractID = contractID.String
	rec.Persona = persona.String
	return rec, err
}

func (s *Store) GetProvenance(ctx context.Context, opExecID string) ([]store.ProvenanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, operation_execution_id, fact_refs, verdict_refs
		FROM provenance_records WHERE operation_execution_id = $1 ORDER BY id`, opExecID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.ProvenanceRecord
	for rows.Next() {
		var rec store.ProvenanceRecord
		var facts, verdicts string
		if err := rows.Scan(&rec.ID, &rec.OperationExecutionID, &facts, &verdicts); err != nil {
			return nil, err
		}
		rec.FactRefs = splitCSV(facts)
		rec.VerdictRefs = splitCSV(verdicts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntityState(row *sql.Row) (store.EntityState, error) {
	return scanEntityStateRows(row)
}

func scanEntityStateRows(row rowScanner) (store.EntityState, error) {
	var es store.EntityState
	err := row.Scan(&es.Entity, &es.Instance, &es.State, &es.Version, &es.LastFlowID, &es.LastOperationID, &es.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.EntityState{}, store.ErrEntityNotFound
	}
	return es, err
}

func placeholder(n int) string {
	return string(rune('0' + n))
}

func joinCSV(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// snapshot is a thin wrapper over a *sql.Tx: every buffered write is a
// real statement executed inside the transaction immediately, so
// Commit is a plain tx.Commit and Abort a plain tx.Rollback (spec §4.7
// all-or-nothing via the database's own transaction boundary). The
// optimistic-concurrency check on UpdateEntityState is expressed as a
// conditional UPDATE whose affected-row count reveals a version
// mismatch, mirroring sql_ledger.go's AcquireLease idiom.
type snapshot struct {
	tx   *sql.Tx
	done bool
}

func (sn *snapshot) InitializeEntity(ctx context.Context, entity, instance, state string) error {
	_, err := sn.tx.ExecContext(ctx, `INSERT INTO entity_states (entity, instance, state, version, updated_at)
		VALUES ($1, $2, $3, 0, $4)`, entity, instance, state, time.Now())
	return err
}

func (sn *snapshot) UpdateEntityState(ctx context.Context, entity, instance string, expectedVersion int64, newState, flowExecID, opExecID string) (int64, error) {
	now := time.Now()
	res, err := sn.tx.ExecContext(ctx, `UPDATE entity_states SET state = $1, version = $2, last_flow_id = $3,
		last_operation_id = $4, updated_at = $5 WHERE entity = $6 AND instance = $7 AND version = $8`,
		newState, expectedVersion+1, flowExecID, opExecID, now, entity, instance, expectedVersion)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, store.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (sn *snapshot) InsertFlowExecution(ctx context.Context, rec store.FlowExecutionRecord) error {
	_, err := sn.tx.ExecContext(ctx, `INSERT INTO flow_executions
		(id, flow_id, contract_id, outcome, persona, started_at, completed_at, snapshot_facts, snapshot_verdicts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.FlowID, rec.ContractID, rec.Outcome, rec.Persona, rec.StartedAt, rec.CompletedAt, rec.SnapshotFacts, rec.SnapshotVerdicts)
	return err
}

func (sn *snapshot) InsertOperationExecution(ctx context.Context, rec store.OperationExecutionRecord) error {
	_, err := sn.tx.ExecContext(ctx, `INSERT INTO operation_executions (id, flow_execution_id, operation_id, persona, result, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, rec.ID, rec.FlowExecutionID, rec.OperationID, rec.Persona, rec.Result, rec.ExecutedAt)
	return err
}

func (sn *snapshot) InsertEntityTransition(ctx context.Context, rec store.EntityTransitionRecord) error {
	_, err := sn.tx.ExecContext(ctx, `INSERT INTO entity_transitions
		(id, operation_execution_id, entity, instance, from_state, to_state, from_version, to_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.OperationExecutionID, rec.Entity, rec.Instance, rec.From, rec.To, rec.FromVersion, rec.ToVersion)
	return err
}

func (sn *snapshot) InsertProvenanceRecord(ctx context.Context, rec store.ProvenanceRecord) error {
	_, err := sn.tx.ExecContext(ctx, `INSERT INTO provenance_records (id, operation_execution_id, fact_refs, verdict_refs)
		VALUES ($1, $2, $3, $4)`, rec.ID, rec.OperationExecutionID, joinCSV(rec.FactRefs), joinCSV(rec.VerdictRefs))
	return err
}

func (sn *snapshot) Commit(ctx context.Context) error {
	if sn.done {
		return nil
	}
	sn.done = true
	return sn.tx.Commit()
}

func (sn *snapshot) Abort(ctx context.Context) error {
	if sn.done {
		return nil
	}
	sn.done = true
	return sn.tx.Rollback()
}
