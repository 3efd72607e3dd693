package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const factOnlySrc = `
fact Amount {
  type: Decimal{precision:10,scale:2},
  source: "loan.amount"
}
`

func writeSource(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "contract.tenor")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"tenor", "help"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "usage: tenor")
}

func TestRun_UnknownCommandIsUserError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"tenor", "nonsense"}, &stdout, &stderr)
	assert.Equal(t, exitUser, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRun_ElaborateMissingFileIsUserError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"tenor", "elaborate", "/no/such/file.tenor"}, &stdout, &stderr)
	assert.Equal(t, exitUser, code)
}

func TestRun_ElaborateThenAnalyzeAndExplain(t *testing.T) {
	path := writeSource(t, factOnlySrc)
	dir := t.TempDir()

	var elaborateOut, stderr bytes.Buffer
	code := Run([]string{"tenor", "elaborate", path}, &elaborateOut, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	bundlePath := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(bundlePath, elaborateOut.Bytes(), 0o644))

	var analyzeOut bytes.Buffer
	code = Run([]string{"tenor", "analyze", bundlePath}, &analyzeOut, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, analyzeOut.String(), "VerdictTypes")

	var explainOut bytes.Buffer
	code = Run([]string{"tenor", "explain", bundlePath}, &explainOut, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, explainOut.String(), "# Contract Summary")
	assert.Contains(t, explainOut.String(), "Facts: 1")
}

func TestRun_DiffOfBundleWithItselfIsEmpty(t *testing.T) {
	path := writeSource(t, factOnlySrc)
	dir := t.TempDir()

	var elaborateOut, stderr bytes.Buffer
	require.Equal(t, exitOK, Run([]string{"tenor", "elaborate", path}, &elaborateOut, &stderr), stderr.String())

	bundlePath := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(bundlePath, elaborateOut.Bytes(), 0o644))

	var diffOut bytes.Buffer
	code := Run([]string{"tenor", "diff", bundlePath, bundlePath}, &diffOut, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, diffOut.String(), `"BreakingCount":0`)
}

func TestRun_ConformMemstorePasses(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"tenor", "conform"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"Pass":true`)
}

// approvalFlowSrc is spec.md §8 scenario S1 (simple approval): an
// Order entity with one transition, one Operation gated on the Admin
// persona, and a one-step Flow routing its sole outcome to Terminal.
const approvalFlowSrc = `
persona Admin {}

entity Order {
  states: [Pending, Approved],
  initial: Pending,
  transitions: [(Pending -> Approved)]
}

operation Approve {
  allowed_personas: [Admin],
  precondition: true,
  effects: [(Order, Pending -> Approved)],
  outcomes: [done],
  error_contract: []
}

flow F {
  entry: s1,
  steps: {
    s1: {
      kind: operation,
      op: Approve,
      persona: Admin,
      outcomes: { done: terminal(ok) },
      on_failure: { kind: terminate, outcome: err }
    }
  }
}
`

func TestRun_EvaluateApprovalFlow(t *testing.T) {
	path := writeSource(t, approvalFlowSrc)
	dir := t.TempDir()

	var elaborateOut, stderr bytes.Buffer
	require.Equal(t, exitOK, Run([]string{"tenor", "elaborate", path}, &elaborateOut, &stderr), stderr.String())

	bundlePath := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(bundlePath, elaborateOut.Bytes(), 0o644))

	reqPath := filepath.Join(dir, "request.json")
	req := `{
		"facts": {},
		"entity_states": {"Order:order-1": "Pending"},
		"bindings": {"Order": "order-1"},
		"persona": "Admin",
		"flow": "F"
	}`
	require.NoError(t, os.WriteFile(reqPath, []byte(req), 0o644))

	var evalOut bytes.Buffer
	code := Run([]string{"tenor", "evaluate", "--persist", bundlePath, reqPath}, &evalOut, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, evalOut.String(), `"Outcome":"ok"`)
	assert.Contains(t, evalOut.String(), `"To":"Approved"`)
}
