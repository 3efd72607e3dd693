// Package elaborate implements the six-pass compiler that turns a parsed
// source tree into a validated interchange bundle (spec §4.3): import
// resolution, indexing, type-environment construction, resolve/type-check,
// global structural validation, and canonical serialization.
package elaborate

import (
	"fmt"
	"strings"
)

// Diagnostic is a single elaboration error, carrying everything needed to
// locate it: the pass that raised it, the construct/field it concerns,
// and the source position. Modeled on the teacher's ErrorIR convention of
// a stable, machine-checkable shape rather than a bare string.
type Diagnostic struct {
	Pass      int    `json:"pass"`
	Kind      string `json:"kind,omitempty"`
	Construct string `json:"construct,omitempty"`
	FieldPath string `json:"field_path,omitempty"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d: [pass %d %s] %s", d.File, d.Line, d.Pass, d.Code, d.Message)
}

// Diagnostics aggregates every diagnostic a pass collected before
// stopping. It implements error so passes can be threaded through
// ordinary Go error-handling while still exposing the full list.
type Diagnostics []*Diagnostic

func (ds Diagnostics) Error() string {
	if len(ds) == 1 {
		return ds[0].Error()
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.Error()
	}
	return fmt.Sprintf("%d elaboration errors:\n%s", len(ds), strings.Join(lines, "\n"))
}

func (ds Diagnostics) HasErrors() bool { return len(ds) > 0 }

// Diagnostic codes. Stable and machine-checkable, grounded on the
// teacher's ErrorIR.HELM.ErrorCode convention.
const (
	CodeLexError              = "TENOR/LEX/ERROR"
	CodeParseError             = "TENOR/PARSE/ERROR"
	CodeImportCycle            = "TENOR/IMPORT/CYCLE"
	CodeImportNotFound         = "TENOR/IMPORT/NOT_FOUND"
	CodeCrossFileDuplicate     = "TENOR/INDEX/CROSS_FILE_DUPLICATE"
	CodeDuplicateID            = "TENOR/INDEX/DUPLICATE_ID"
	CodeTypeDeclCycle          = "TENOR/TYPEENV/CYCLE"
	CodeUnknownTypeRef         = "TENOR/TYPEENV/UNKNOWN_REF"
	CodeUnresolvedFact         = "TENOR/RESOLVE/UNRESOLVED_FACT"
	CodeUnresolvedVerdict      = "TENOR/RESOLVE/UNRESOLVED_VERDICT"
	CodeUnresolvedPersona      = "TENOR/RESOLVE/UNRESOLVED_PERSONA"
	CodeUnresolvedEntity       = "TENOR/RESOLVE/UNRESOLVED_ENTITY"
	CodeUnresolvedStep         = "TENOR/RESOLVE/UNRESOLVED_STEP"
	CodeUnresolvedFlow         = "TENOR/RESOLVE/UNRESOLVED_FLOW"
	CodeUnresolvedOperation    = "TENOR/RESOLVE/UNRESOLVED_OPERATION"
	CodeUnboundVariable        = "TENOR/RESOLVE/UNBOUND_VARIABLE"
	CodeTypeMismatch           = "TENOR/RESOLVE/TYPE_MISMATCH"
	CodeNotARecord             = "TENOR/RESOLVE/NOT_A_RECORD"
	CodeNotAList               = "TENOR/RESOLVE/NOT_A_LIST"
	CodeInvalidMultiplication  = "TENOR/RESOLVE/INVALID_MULTIPLICATION"
	CodeRangeOverflow          = "TENOR/RESOLVE/RANGE_OVERFLOW"
	CodeStratumViolation       = "TENOR/VALIDATE/STRATUM_VIOLATION"
	CodeDuplicateVerdict       = "TENOR/VALIDATE/DUPLICATE_VERDICT_PRODUCER"
	CodeUndeclaredTransition   = "TENOR/VALIDATE/UNDECLARED_TRANSITION"
	CodeMissingOnFailure       = "TENOR/VALIDATE/MISSING_ON_FAILURE"
	CodeFlowStepCycle          = "TENOR/VALIDATE/FLOW_STEP_CYCLE"
	CodeCrossFlowCycle         = "TENOR/VALIDATE/CROSS_FLOW_CYCLE"
	CodeParallelBranchConflict = "TENOR/VALIDATE/PARALLEL_BRANCH_CONFLICT"
	CodeEntityHierarchyCycle   = "TENOR/VALIDATE/ENTITY_HIERARCHY_CYCLE"
	CodeTriggerCycle           = "TENOR/VALIDATE/TRIGGER_CYCLE"
	CodeOutcomesOverlap        = "TENOR/VALIDATE/OUTCOMES_ERROR_CONTRACT_OVERLAP"
	CodeMissingOutcomeLabel    = "TENOR/VALIDATE/EFFECT_MISSING_OUTCOME_LABEL"
	CodeInvalidEntryStep       = "TENOR/VALIDATE/INVALID_ENTRY_STEP"
)
