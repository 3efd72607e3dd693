// Package interchange implements the canonical JSON wire form shared by
// every back-end — evaluator, diff, explain, analyze, storage (spec
// §4.4). Constructs are represented as plain map[string]any trees: Go's
// encoding/json sorts map[string]V keys alphabetically when marshaling,
// which is exactly the ascending-key-order rule (P1) the spec requires,
// with no custom MarshalJSON needed anywhere in the tree.
package interchange

import (
	"encoding/json"
	"fmt"

	"github.com/riverline-labs/tenor/pkg/canonicalize"
)

// SchemaVersion is the `tenor` envelope tag emitted by every bundle this
// toolchain produces.
const SchemaVersion = "tenor/1"

// Bundle is the canonical interchange artifact: an envelope with fixed
// keys `constructs, id, kind, tenor` wrapping a canonically ordered
// construct array built during elaborator pass 6.
type Bundle struct {
	ID         string           `json:"-"`
	Tenor      string           `json:"-"`
	Constructs []map[string]any `json:"-"`
}

func New(id string, constructs []map[string]any) *Bundle {
	return &Bundle{ID: id, Tenor: SchemaVersion, Constructs: constructs}
}

// envelope returns the map[string]any whose alphabetical key order
// happens to equal the spec's required envelope order: constructs, id,
// kind, tenor.
func (b *Bundle) envelope() map[string]any {
	constructs := b.Constructs
	if constructs == nil {
		constructs = []map[string]any{}
	}
	return map[string]any{
		"constructs": constructs,
		"id":         b.ID,
		"kind":       "Bundle",
		"tenor":      b.Tenor,
	}
}

// MarshalJSON emits the canonical envelope with ascending-ordered keys at
// every nesting level.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.envelope())
}

// ContentHash is the JCS content hash of the bundle's canonical
// envelope. The storage layer does not use it: flow execution records
// carry the bundle id as their ContractID.
func (b *Bundle) ContentHash() (string, error) {
	return canonicalize.CanonicalHash(b.envelope())
}

// Unmarshal parses a canonical bundle back into its envelope fields (the
// L1 round-trip law: parse ∘ emit ∘ elaborate = elaborate).
func Unmarshal(data []byte) (*Bundle, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("interchange: invalid bundle JSON: %w", err)
	}
	kind, _ := raw["kind"].(string)
	if kind != "Bundle" {
		return nil, fmt.Errorf("interchange: expected kind \"Bundle\", got %q", kind)
	}
	id, _ := raw["id"].(string)
	tenor, _ := raw["tenor"].(string)
	rawConstructs, _ := raw["constructs"].([]any)
	constructs := make([]map[string]any, 0, len(rawConstructs))
	for _, c := range rawConstructs {
		cm, ok := c.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("interchange: construct entry is not an object")
		}
		constructs = append(constructs, cm)
	}
	return &Bundle{ID: id, Tenor: tenor, Constructs: constructs}, nil
}

// ByKindAndID indexes the bundle's constructs by (kind, id), the
// diff/reference key used throughout the spec.
func (b *Bundle) ByKindAndID() map[[2]string]map[string]any {
	out := make(map[[2]string]map[string]any, len(b.Constructs))
	for _, c := range b.Constructs {
		kind, _ := c["kind"].(string)
		id, _ := c["id"].(string)
		out[[2]string{kind, id}] = c
	}
	return out
}
