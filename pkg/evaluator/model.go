package evaluator

import (
	"sort"

	"github.com/riverline-labs/tenor/pkg/interchange"
)

// Model is the evaluator's typed view over a canonical bundle (spec
// §4.4 interchange -> §4.5 runtime). Bundle constructs travel as
// map[string]any trees (either built in-process by the elaborator or
// round-tripped through JSON, where numbers decode as float64); Model
// normalizes both shapes once at load time so the rest of the evaluator
// never needs a type switch on the wire representation.
type Model struct {
	Facts      map[string]*FactDef
	Entities   map[string]*EntityDef
	Rules      []*RuleDef // sorted ascending by (stratum, id)
	Operations map[string]*OperationDef
	Flows      map[string]*FlowDef
}

type FactDef struct {
	ID      string
	Type    map[string]any
	Default map[string]any // expr node, optional
}

type EntityDef struct {
	ID          string
	States      []string
	Initial     string
	Transitions []Transition
	Parent      string
}

type Transition struct{ From, To string }

type RuleDef struct {
	ID           string
	Stratum      int64
	When         map[string]any
	VerdictType  string
	PayloadValue map[string]any
}

type OperationDef struct {
	ID              string
	AllowedPersonas []string
	Precondition    map[string]any
	Effects         []EffectDef
	Outcomes        []string
	ErrorContract   []string
}

type EffectDef struct {
	Entity, From, To string
	Outcome          string // "" if none declared
}

type FlowDef struct {
	ID    string
	Entry string
	Steps map[string]*StepDef
}

type StepTargetDef struct {
	Terminal bool
	Outcome  string
	StepID   string
}

type HandlerDef struct {
	Kind              string // terminate | compensate | escalate
	Outcome           string
	CompensationSteps []string
	Then              *StepTargetDef
	ToPersona         string
	Next              *StepTargetDef
}

type BranchDef struct {
	ID    string
	Entry string
	Steps map[string]*StepDef
}

type StepDef struct {
	ID       string
	StepKind string

	Op        string
	Persona   string
	Outcomes  map[string]*StepTargetDef
	OnFailure *HandlerDef

	Condition map[string]any
	IfTrue    *StepTargetDef
	IfFalse   *StepTargetDef

	FromPersona string
	ToPersona   string
	Next        *StepTargetDef

	Flow      string
	OnSuccess *StepTargetDef

	Join     JoinDef
	Branches []BranchDef
}

// JoinDef is a ParallelStep's routing table: each continuation is
// independently optional (spec §3, §4.5.2).
type JoinDef struct {
	OnAllSuccess  *StepTargetDef
	OnAnyFailure  *HandlerDef
	OnAllComplete *StepTargetDef
}

// BuildModel decodes a canonical bundle's constructs into the typed
// shapes above.
func BuildModel(b *interchange.Bundle) (*Model, error) {
	m := &Model{
		Facts:      map[string]*FactDef{},
		Entities:   map[string]*EntityDef{},
		Operations: map[string]*OperationDef{},
		Flows:      map[string]*FlowDef{},
	}
	for _, c := range b.Constructs {
		kind, _ := c["kind"].(string)
		id, _ := c["id"].(string)
		switch kind {
		case "Fact":
			fd := &FactDef{ID: id}
			fd.Type, _ = c["type"].(map[string]any)
			fd.Default, _ = c["default"].(map[string]any)
			m.Facts[id] = fd
		case "Entity":
			ed := &EntityDef{ID: id, Initial: asString(c["initial"])}
			ed.States = asStringSlice(c["states"])
			ed.Parent = asString(c["parent"])
			for _, t := range asMapSlice(c["transitions"]) {
				ed.Transitions = append(ed.Transitions, Transition{From: asString(t["from"]), To: asString(t["to"])})
			}
			m.Entities[id] = ed
		case "Rule":
			rd := &RuleDef{ID: id, Stratum: asInt64(c["stratum"])}
			rd.When, _ = c["when"].(map[string]any)
			if prod, ok := c["produce"].(map[string]any); ok {
				rd.VerdictType = asString(prod["verdict_type"])
				rd.PayloadValue, _ = prod["payload_value"].(map[string]any)
			}
			m.Rules = append(m.Rules, rd)
		case "Operation":
			od := &OperationDef{ID: id}
			od.AllowedPersonas = asStringSlice(c["allowed_personas"])
			od.Precondition, _ = c["precondition"].(map[string]any)
			od.Outcomes = asStringSlice(c["outcomes"])
			od.ErrorContract = asStringSlice(c["error_contract"])
			for _, e := range asMapSlice(c["effects"]) {
				od.Effects = append(od.Effects, EffectDef{
					Entity: asString(e["entity"]), From: asString(e["from"]), To: asString(e["to"]),
					Outcome: asString(e["outcome"]),
				})
			}
			m.Operations[id] = od
		case "Flow":
			fl := &FlowDef{ID: id, Entry: asString(c["entry"])}
			fl.Steps = decodeSteps(asMapSlice(c["steps"]))
			m.Flows[id] = fl
		}
	}
	sort.SliceStable(m.Rules, func(i, j int) bool {
		if m.Rules[i].Stratum != m.Rules[j].Stratum {
			return m.Rules[i].Stratum < m.Rules[j].Stratum
		}
		return m.Rules[i].ID < m.Rules[j].ID
	})
	return m, nil
}

func decodeSteps(raw []map[string]any) map[string]*StepDef {
	out := map[string]*StepDef{}
	for _, s := range raw {
		sd := decodeStep(s)
		out[sd.ID] = sd
	}
	return out
}

func decodeStep(s map[string]any) *StepDef {
	sd := &StepDef{ID: asString(s["id"]), StepKind: asString(s["step_kind"])}
	switch sd.StepKind {
	case "operation":
		sd.Op = asString(s["op"])
		sd.Persona = asString(s["persona"])
		sd.Outcomes = map[string]*StepTargetDef{}
		if om, ok := s["outcomes"].(map[string]any); ok {
			for label, t := range om {
				sd.Outcomes[label] = decodeTarget(t)
			}
		}
		sd.OnFailure = decodeHandler(s["on_failure"])
	case "branch":
		sd.Condition, _ = s["condition"].(map[string]any)
		sd.Persona = asString(s["persona"])
		sd.IfTrue = decodeTarget(s["if_true"])
		sd.IfFalse = decodeTarget(s["if_false"])
	case "handoff":
		sd.FromPersona = asString(s["from_persona"])
		sd.ToPersona = asString(s["to_persona"])
		sd.Next = decodeTarget(s["next"])
	case "sub_flow":
		sd.Flow = asString(s["flow"])
		sd.Persona = asString(s["persona"])
		sd.OnSuccess = decodeTarget(s["on_success"])
		sd.OnFailure = decodeHandler(s["on_failure"])
	case "parallel":
		sd.Join = decodeJoin(s["join"])
		for _, br := range asMapSlice(s["branches"]) {
			sd.Branches = append(sd.Branches, BranchDef{
				ID:    asString(br["id"]),
				Entry: asString(br["entry"]),
				Steps: decodeSteps(asMapSlice(br["steps"])),
			})
		}
	}
	return sd
}

func decodeJoin(raw any) JoinDef {
	m, ok := raw.(map[string]any)
	if !ok {
		return JoinDef{}
	}
	return JoinDef{
		OnAllSuccess:  decodeTarget(m["on_all_success"]),
		OnAnyFailure:  decodeHandler(m["on_any_failure"]),
		OnAllComplete: decodeTarget(m["on_all_complete"]),
	}
}

func decodeTarget(raw any) *StepTargetDef {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	kind := asString(m["kind"])
	if kind == "terminal" {
		return &StepTargetDef{Terminal: true, Outcome: asString(m["outcome"])}
	}
	return &StepTargetDef{StepID: asString(m["step"])}
}

func decodeHandler(raw any) *HandlerDef {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	hd := &HandlerDef{Kind: asString(m["kind"])}
	switch hd.Kind {
	case "terminate":
		hd.Outcome = asString(m["outcome"])
	case "compensate":
		hd.CompensationSteps = asStringSlice(m["steps"])
		hd.Then = decodeTarget(m["then"])
	case "escalate":
		hd.ToPersona = asString(m["to_persona"])
		hd.Next = decodeTarget(m["next"])
	}
	return hd
}

// --- loose JSON-shape decoding helpers ---

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if ok {
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			out = append(out, asString(e))
		}
		return out
	}
	if ss, ok := v.([]string); ok {
		return ss
	}
	return nil
}

func asMapSlice(v any) []map[string]any {
	arr, ok := v.([]any)
	if ok {
		out := make([]map[string]any, 0, len(arr))
		for _, e := range arr {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	if ms, ok := v.([]map[string]any); ok {
		return ms
	}
	return nil
}
