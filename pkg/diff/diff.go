// Package diff computes a structural, key-indexed difference between
// two interchange bundles and classifies each change's severity (spec
// §4.6). The diff is deliberately shallow -- one FieldDiff per
// differing top-level construct field -- since severity classification
// operates at that granularity, not at arbitrary nesting depth.
package diff

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/riverline-labs/tenor/pkg/interchange"
)

// ignoredFields never participate in comparison: provenance is
// metadata about where a construct was authored, not what it means.
var ignoredFields = map[string]bool{
	"line":       true,
	"provenance": true,
}

// Key identifies one construct by (kind, id), the diff's indexing unit.
type Key struct {
	Kind string
	ID   string
}

func (k Key) Less(o Key) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.ID < o.ID
}

// FieldDiff is one differing top-level field within a changed construct.
type FieldDiff struct {
	Field  string
	Before any
	After  any
}

// Changed is one construct present in both bundles with differing
// normalized JSON, plus the field-level breakdown.
type Changed struct {
	Key    Key
	Fields []FieldDiff
}

// Result is the output of Diff: three deterministically ordered sets
// (spec §4.6).
type Result struct {
	Added   []map[string]any
	Removed []map[string]any
	Changed []Changed
}

func constructKey(c map[string]any) Key {
	kind, _ := c["kind"].(string)
	id, _ := c["id"].(string)
	return Key{Kind: kind, ID: id}
}

func indexByKey(b *interchange.Bundle) map[Key]map[string]any {
	out := make(map[Key]map[string]any, len(b.Constructs))
	for _, c := range b.Constructs {
		out[constructKey(c)] = c
	}
	return out
}

// Diff computes the structural diff between bundles A and B (spec
// §4.6). The result is always sorted by (kind, id), and within a
// Changed entry, by field name, so repeated diffs of identical inputs
// are byte-identical (L2).
func Diff(a, b *interchange.Bundle) *Result {
	ai := indexByKey(a)
	bi := indexByKey(b)

	res := &Result{}
	var addedKeys, removedKeys, changedKeys []Key

	for k := range bi {
		if _, ok := ai[k]; !ok {
			addedKeys = append(addedKeys, k)
		}
	}
	for k := range ai {
		if _, ok := bi[k]; !ok {
			removedKeys = append(removedKeys, k)
		}
	}
	for k, av := range ai {
		bv, ok := bi[k]
		if !ok {
			continue
		}
		if !normalizedEqual(av, bv) {
			changedKeys = append(changedKeys, k)
		}
	}

	sortKeys(addedKeys)
	sortKeys(removedKeys)
	sortKeys(changedKeys)

	for _, k := range addedKeys {
		res.Added = append(res.Added, bi[k])
	}
	for _, k := range removedKeys {
		res.Removed = append(res.Removed, ai[k])
	}
	for _, k := range changedKeys {
		res.Changed = append(res.Changed, Changed{Key: k, Fields: fieldDiffs(ai[k], bi[k])})
	}
	return res
}

func sortKeys(ks []Key) {
	sort.Slice(ks, func(i, j int) bool { return ks[i].Less(ks[j]) })
}

// normalize strips ignored fields and, for arrays whose every element
// is a JSON primitive, treats the array as a set (sorted by its JSON
// encoding) so element reordering alone does not register as a change
// (spec §4.6 "sort arrays of primitives ... preserve order for arrays
// of objects").
func normalize(c map[string]any) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		if ignoredFields[k] {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if !allPrimitive(arr) {
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = normalizeValue(e)
		}
		return out
	}
	cp := make([]any, len(arr))
	copy(cp, arr)
	sort.Slice(cp, func(i, j int) bool { return jsonString(cp[i]) < jsonString(cp[j]) })
	return cp
}

func allPrimitive(arr []any) bool {
	for _, e := range arr {
		switch e.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func normalizedEqual(a, b map[string]any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func fieldDiffs(a, b map[string]any) []FieldDiff {
	na, nb := normalize(a), normalize(b)
	names := map[string]bool{}
	for k := range na {
		names[k] = true
	}
	for k := range nb {
		names[k] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var out []FieldDiff
	for _, n := range sorted {
		av, aok := na[n]
		bv, bok := nb[n]
		if aok && bok && reflect.DeepEqual(av, bv) {
			continue
		}
		out = append(out, FieldDiff{Field: n, Before: av, After: bv})
	}
	return out
}
