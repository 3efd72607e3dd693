// Command tenor is the thin CLI adapter spec.md §6 names: it is not
// part of the core (the core is the library packages under pkg/), it
// only exists to fix the error-code conventions described there.
// Dispatch follows the teacher's cmd/helm/main.go style: a plain
// switch on args[1], no CLI framework.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/riverline-labs/tenor/internal/config"
	"github.com/riverline-labs/tenor/pkg/analyze"
	"github.com/riverline-labs/tenor/pkg/diff"
	"github.com/riverline-labs/tenor/pkg/elaborate"
	"github.com/riverline-labs/tenor/pkg/evaluator"
	"github.com/riverline-labs/tenor/pkg/explain"
	"github.com/riverline-labs/tenor/pkg/interchange"
	"github.com/riverline-labs/tenor/pkg/store"
	"github.com/riverline-labs/tenor/pkg/store/conform"
	"github.com/riverline-labs/tenor/pkg/store/memstore"
	"github.com/riverline-labs/tenor/pkg/store/sqlstore"
)

// Exit codes (spec §6): 0 success; 1 user error (parse/type/validate);
// 2 runtime error (evaluation/storage/IO).
const (
	exitOK      = 0
	exitUser    = 1
	exitRuntime = 2
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing, mirroring the teacher's
// cmd/helm/main.go Run(args, stdout, stderr) int shape.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	if len(args) < 2 {
		printUsage(stderr)
		return exitUser
	}

	switch args[1] {
	case "elaborate":
		return runElaborate(args[2:], stdout, stderr)
	case "evaluate":
		return runEvaluate(args[2:], stdout, stderr, cfg)
	case "diff":
		return runDiff(args[2:], stdout, stderr)
	case "explain":
		return runExplain(args[2:], stdout, stderr)
	case "analyze":
		return runAnalyze(args[2:], stdout, stderr)
	case "conform":
		return runConform(args[2:], stdout, stderr, cfg)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitUser
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "tenor - decision contract toolchain")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: tenor <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  elaborate <source.tenor>                compile a source file to an interchange bundle")
	fmt.Fprintln(w, "  evaluate  <bundle.json> <request.json>  run a flow against a fact set")
	fmt.Fprintln(w, "  diff      <before.json> <after.json>    structurally diff and classify two bundles")
	fmt.Fprintln(w, "  explain   <bundle.json>                 render a narrative explanation (markdown)")
	fmt.Fprintln(w, "  analyze   <bundle.json>                 run static analysis checks")
	fmt.Fprintln(w, "  conform   [--driver memstore|sqlite]     run the storage conformance harness")
}

func loadBundle(path string) (*interchange.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	b, err := interchange.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := interchange.Validate(b); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return b, nil
}

func runElaborate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: tenor elaborate <source.tenor>")
		return exitUser
	}
	path := args[0]
	// path and every import path the elaborator derives from it are
	// already relative to the working directory (or absolute).
	bundle, diags := elaborate.Elaborate(path, elaborate.FileLoader(""))
	if diags.HasErrors() {
		enc := json.NewEncoder(stderr)
		for _, d := range diags {
			_ = enc.Encode(d)
		}
		return exitUser
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		fmt.Fprintf(stderr, "marshal bundle: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

func runDiff(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "usage: tenor diff <before.json> <after.json>")
		return exitUser
	}
	before, err := loadBundle(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}
	after, err := loadBundle(args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}

	result := diff.Diff(before, after)
	classification := diff.Classify(result)

	data, err := json.Marshal(classification)
	if err != nil {
		fmt.Fprintf(stderr, "marshal classification: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

// evaluateRequest is the JSON shape `tenor evaluate` reads: a fact set,
// an optional starting entity-state map, optional instance bindings, the
// acting persona, and the flow to run (spec §4.5).
type evaluateRequest struct {
	Facts        map[string]json.RawMessage `json:"facts"`
	EntityStates map[string]string          `json:"entity_states"` // "Entity:instance" -> state
	Bindings     map[string]string          `json:"bindings"`
	Persona      string                     `json:"persona"`
	Flow         string                     `json:"flow"`
}

func runEvaluate(args []string, stdout, stderr io.Writer, cfg *config.Config) int {
	persist := false
	var positional []string
	for _, a := range args {
		if a == "--persist" {
			persist = true
			continue
		}
		positional = append(positional, a)
	}
	if len(positional) < 2 {
		fmt.Fprintln(stderr, "usage: tenor evaluate [--persist] <bundle.json> <request.json>")
		return exitUser
	}
	bundle, err := loadBundle(positional[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}
	reqData, err := os.ReadFile(positional[1])
	if err != nil {
		fmt.Fprintf(stderr, "read %s: %v\n", positional[1], err)
		return exitUser
	}
	var req evaluateRequest
	if err := json.Unmarshal(reqData, &req); err != nil {
		fmt.Fprintf(stderr, "unmarshal request: %v\n", err)
		return exitUser
	}

	model, err := evaluator.BuildModel(bundle)
	if err != nil {
		fmt.Fprintf(stderr, "build model: %v\n", err)
		return exitUser
	}

	facts, err := decodeFacts(req.Facts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}

	verdicts, err := evaluator.EvaluateRules(model, facts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitRuntime
	}

	state := evaluator.NewEntityStateMap()
	for key, s := range req.EntityStates {
		entity, instance := splitEntityKey(key)
		state[evaluator.EntityKey{Entity: entity, Instance: instance}] = s
	}
	bindings := evaluator.InstanceBindingMap(req.Bindings)

	snapshot := evaluator.Snapshot{Facts: facts, Verdicts: verdicts}
	result, err := evaluator.ExecuteFlow(model, req.Flow, snapshot, state, bindings, req.Persona, cfg.MaxFlowSteps)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitRuntime
	}

	if persist {
		if err := persistExecution(cfg, bundle.ID, req.Flow, facts, verdicts, result); err != nil {
			fmt.Fprintf(stderr, "persist execution: %v\n", err)
			return exitRuntime
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(stderr, "marshal result: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

// persistExecution writes one flow invocation's append-only execution
// trail (spec §6 FlowExecutionRecord/OperationExecutionRecord/
// EntityTransitionRecord/ProvenanceRecord). The evaluator's FlowResult
// carries no per-step operation-execution id (Phase B is pure and
// deterministic -- spec §5 -- so it never mints one), so this adapter
// mints one operation execution per persisted flow invocation and
// attributes every effect/provenance record to it; a backend wanting
// per-step granularity would need the evaluator to expose StepRecord
// correlation, which spec §4.5.2 does not require of FlowResult.
func persistExecution(cfg *config.Config, contractID, flowID string, facts evaluator.FactSet, verdicts *evaluator.VerdictSet, result *evaluator.FlowResult) error {
	factory, cleanup, err := storeFactory(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx := context.Background()
	s := factory()
	snap, err := s.BeginSnapshot(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	flowExecID := uuid.New().String()
	snapshotFacts, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal snapshot facts: %w", err)
	}
	snapshotVerdicts, err := json.Marshal(verdicts.All())
	if err != nil {
		return fmt.Errorf("marshal snapshot verdicts: %w", err)
	}
	if err := snap.InsertFlowExecution(ctx, store.FlowExecutionRecord{
		ID: flowExecID, FlowID: flowID, ContractID: contractID, Outcome: result.Outcome,
		Persona: result.Persona, StartedAt: now, CompletedAt: now,
		SnapshotFacts: string(snapshotFacts), SnapshotVerdicts: string(snapshotVerdicts),
	}); err != nil {
		_ = snap.Abort(ctx)
		return err
	}

	opExecID := uuid.New().String()
	if err := snap.InsertOperationExecution(ctx, store.OperationExecutionRecord{
		ID: opExecID, FlowExecutionID: flowExecID, OperationID: flowID,
		Persona: result.Persona, Result: result.Outcome, ExecutedAt: now,
	}); err != nil {
		_ = snap.Abort(ctx)
		return err
	}

	for _, eff := range result.Effects {
		if err := snap.InsertEntityTransition(ctx, store.EntityTransitionRecord{
			ID: uuid.New().String(), OperationExecutionID: opExecID,
			Entity: eff.Entity, Instance: eff.Instance, From: eff.From, To: eff.To,
		}); err != nil {
			_ = snap.Abort(ctx)
			return err
		}
	}

	var factRefs, verdictRefs []string
	for _, v := range verdicts.All() {
		factRefs = append(factRefs, v.FactRefs...)
		verdictRefs = append(verdictRefs, v.VerdictRefs...)
	}
	if len(factRefs) > 0 || len(verdictRefs) > 0 {
		if err := snap.InsertProvenanceRecord(ctx, store.ProvenanceRecord{
			ID: uuid.New().String(), OperationExecutionID: opExecID,
			FactRefs: factRefs, VerdictRefs: verdictRefs,
		}); err != nil {
			_ = snap.Abort(ctx)
			return err
		}
	}

	return snap.Commit(ctx)
}

func splitEntityKey(key string) (entity, instance string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, evaluator.DefaultInstanceID
}

// decodeFacts converts the request's raw JSON fact values into runtime
// Values. Only JSON bool, number and string are accepted from the CLI
// surface, mapped to Bool, Int (a fractional part is truncated) and
// Text; there is no Decimal decoding, and Money and structured facts
// return a user error naming the offending fact, rather than being
// silently dropped.
func decodeFacts(raw map[string]json.RawMessage) (evaluator.FactSet, error) {
	out := evaluator.FactSet{}
	for id, msg := range raw {
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("fact %q: %w", id, err)
		}
		switch t := v.(type) {
		case bool:
			out[id] = evaluator.BoolValue(t)
		case float64:
			out[id] = evaluator.IntValue(int64(t))
		case string:
			out[id] = evaluator.TextValue(t)
		default:
			return nil, fmt.Errorf("fact %q: unsupported JSON shape for the CLI adapter (use bool/number/string)", id)
		}
	}
	return out, nil
}

func runExplain(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: tenor explain <bundle.json>")
		return exitUser
	}
	bundle, err := loadBundle(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}
	model, err := evaluator.BuildModel(bundle)
	if err != nil {
		fmt.Fprintf(stderr, "build model: %v\n", err)
		return exitUser
	}
	report := analyze.Run(model)
	sink := explain.NewMarkdownSink()
	explain.Run(model, report, sink)
	fmt.Fprint(stdout, sink.String())
	return exitOK
}

func runAnalyze(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: tenor analyze <bundle.json>")
		return exitUser
	}
	bundle, err := loadBundle(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}
	model, err := evaluator.BuildModel(bundle)
	if err != nil {
		fmt.Fprintf(stderr, "build model: %v\n", err)
		return exitUser
	}
	report := analyze.Run(model)
	data, err := json.Marshal(report)
	if err != nil {
		fmt.Fprintf(stderr, "marshal report: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

func runConform(args []string, stdout, stderr io.Writer, cfg *config.Config) int {
	driver := cfg.StoreDriver
	for i := 0; i < len(args); i++ {
		if args[i] == "--driver" && i+1 < len(args) {
			driver = args[i+1]
			i++
		}
	}

	factory, cleanup, err := storeFactory(driver, cfg.StoreDSN)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUser
	}
	if cleanup != nil {
		defer cleanup()
	}

	engine := conform.NewEngine()
	for _, g := range conform.DefaultGates() {
		engine.RegisterGate(g)
	}
	report := engine.Run(&conform.RunContext{Context: context.Background(), NewStore: factory})

	data, err := json.Marshal(report)
	if err != nil {
		fmt.Fprintf(stderr, "marshal report: %v\n", err)
		return exitRuntime
	}
	fmt.Fprintln(stdout, string(data))
	if !report.Pass {
		return exitRuntime
	}
	return exitOK
}

// storeFactory builds a conform.Factory for the requested backend. The
// memstore factory returns a fresh, empty store on every call. The
// sqlite/postgres drivers call sql.Open once up front, which checks the
// driver name but does not connect; every factory call then wraps that
// same *sql.DB in a new sqlstore and runs Init, so all gates share one
// database.
func storeFactory(driver, dsn string) (conform.Factory, func(), error) {
	switch driver {
	case "memstore", "":
		return func() store.Store { return memstore.New() }, nil, nil
	case "sqlite":
		path := dsn
		if path == "" {
			path = ":memory:"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return func() store.Store {
				s := sqlstore.New(db)
				_ = s.Init(context.Background())
				return s
			}, func() { _ = db.Close() }, nil
	case "postgres":
		if dsn == "" {
			return nil, nil, fmt.Errorf("--driver postgres requires TENOR_STORE_DSN")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return func() store.Store {
				s := sqlstore.New(db)
				_ = s.Init(context.Background())
				return s
			}, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
