// Package ast defines the raw, unresolved construct tree the parser
// produces (spec §4.2). Every node that can later be the locus of a
// validation error carries a Provenance. Construct kinds are modeled as
// a Go sum type (a marker method + exhaustive type switch at each pass)
// per the Design Notes' preference for tagged unions over inheritance.
package ast

import "fmt"

// Provenance pins a node to the source file and line of its opening token.
type Provenance struct {
	File string
	Line int
}

func (p Provenance) String() string { return fmt.Sprintf("%s:%d", p.File, p.Line) }

// Ident is a bare identifier reference with its own provenance, used
// wherever a field is "just a name" (persona refs, state names, entity
// refs) but still needs a line for diagnostics.
type Ident struct {
	Name string
	Prov Provenance
}

// Construct is the sum type of every top-level declaration a file can
// contain. Kind() and ConstructID() let passes index and dispatch
// without a type switch when only identity is needed.
type Construct interface {
	Kind() string
	ConstructID() string
	Provenance() Provenance
}

// Import is a raw `import "path"` declaration (spec §6). It has no id
// of its own and never participates in the (kind,id) uniqueness space.
type Import struct {
	Path string
	Prov Provenance
}

func (i *Import) Kind() string           { return "Import" }
func (i *Import) ConstructID() string    { return i.Path }
func (i *Import) Provenance() Provenance { return i.Prov }

// Fact is a raw `fact <id> { type, source, default? }` declaration.
type Fact struct {
	ID      string
	Prov    Provenance
	Type    *Type
	Source  Source
	Default *Expr // optional
}

func (f *Fact) Kind() string           { return "Fact" }
func (f *Fact) ConstructID() string    { return f.ID }
func (f *Fact) Provenance() Provenance { return f.Prov }

// Source is a fact's external binding: either free-text "system.field"
// or the structured {system_id, path} form (spec §3).
type Source struct {
	FreeText string // non-empty when the free-text form was used
	SystemID string
	Path     string
	Prov     Provenance
}

// Transition is a raw (from,to) pair on an Entity.
type Transition struct {
	From, To Ident
	Prov     Provenance
}

// Entity is a raw `entity <id> { states, initial, transitions, parent? }`.
type Entity struct {
	ID          string
	Prov        Provenance
	States      []Ident
	Initial     Ident
	Transitions []Transition
	Parent      *Ident // optional
}

func (e *Entity) Kind() string           { return "Entity" }
func (e *Entity) ConstructID() string    { return e.ID }
func (e *Entity) Provenance() Provenance { return e.Prov }

// Rule is a raw `rule <id> { stratum, when, produce }`.
type Rule struct {
	ID      string
	Prov    Provenance
	Stratum IntLit
	When    *Expr
	Produce Produce
}

func (r *Rule) Kind() string           { return "Rule" }
func (r *Rule) ConstructID() string    { return r.ID }
func (r *Rule) Provenance() Provenance { return r.Prov }

// IntLit is a parsed integer field with its own provenance (needed for
// stratum-specific diagnostics).
type IntLit struct {
	Value int64
	Prov  Provenance
}

// Produce is a Rule's `produce { verdict_type, payload_type, payload_value }`.
type Produce struct {
	VerdictType  Ident
	PayloadType  *Type
	PayloadValue *Expr
	Prov         Provenance
}

// Effect is a raw operation effect tuple (entity, from, to, outcome?).
type Effect struct {
	Entity, From, To Ident
	Outcome          *Ident // optional outcome label
	Prov             Provenance
}

// Operation is a raw `operation <id> { allowed_personas, precondition,
// effects, outcomes, error_contract }`.
type Operation struct {
	ID              string
	Prov            Provenance
	AllowedPersonas []Ident
	Precondition    *Expr
	Effects         []Effect
	Outcomes        []Ident
	ErrorContract   []Ident
}

func (o *Operation) Kind() string           { return "Operation" }
func (o *Operation) ConstructID() string    { return o.ID }
func (o *Operation) Provenance() Provenance { return o.Prov }

// TypeDecl is a raw named record type declaration.
type TypeDecl struct {
	ID         string
	Prov       Provenance
	Fields     map[string]*Type
	FieldOrder []string
}

func (t *TypeDecl) Kind() string           { return "TypeDecl" }
func (t *TypeDecl) ConstructID() string    { return t.ID }
func (t *TypeDecl) Provenance() Provenance { return t.Prov }

// Persona is a raw `persona <id> {}` declaration — name only.
type Persona struct {
	ID   string
	Prov Provenance
}

func (p *Persona) Kind() string           { return "Persona" }
func (p *Persona) ConstructID() string    { return p.ID }
func (p *Persona) Provenance() Provenance { return p.Prov }

// Trigger binds one member contract's flow completion to another's entry.
type Trigger struct {
	FromMember, FromFlow Ident
	ToMember, ToFlow     Ident
	Prov                 Provenance
}

// System is a raw `system <id> { members, triggers, shared_personas,
// shared_entities }` declaration (optional, spec §3).
type System struct {
	ID             string
	Prov           Provenance
	Members        []Ident
	Triggers       []Trigger
	SharedPersonas []Ident
	SharedEntities []Ident
}

func (s *System) Kind() string           { return "System" }
func (s *System) ConstructID() string    { return s.ID }
func (s *System) Provenance() Provenance { return s.Prov }

// File is everything parsed from one source file, in source order.
type File struct {
	Path       string
	Imports    []*Import
	Constructs []Construct
}
