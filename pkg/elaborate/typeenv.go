package elaborate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riverline-labs/tenor/pkg/ast"
)

// refEdge is one TypeDecl -> TypeDecl dependency, tagged with the field
// that introduced it (for cycle-chain diagnostics).
type refEdge struct {
	Field  string
	Target string
}

func collectFieldRefs(td *ast.TypeDecl) []refEdge {
	var out []refEdge
	for _, fname := range td.FieldOrder {
		for _, target := range collectTypeRefs(td.Fields[fname]) {
			out = append(out, refEdge{Field: fname, Target: target})
		}
	}
	return out
}

// collectTypeRefs returns every TypeDecl name referenced anywhere inside
// t, however deeply nested (inside List/Record/TaggedUnion).
func collectTypeRefs(t *ast.Type) []string {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case ast.TRef:
		return []string{t.RefName}
	case ast.TRecord:
		var out []string
		for _, fn := range t.FieldOrder {
			out = append(out, collectTypeRefs(t.Fields[fn])...)
		}
		return out
	case ast.TList:
		return collectTypeRefs(t.Element)
	case ast.TTaggedUnion:
		var out []string
		for _, vn := range t.VariantOrder {
			out = append(out, collectTypeRefs(t.Variants[vn])...)
		}
		return out
	default:
		return nil
	}
}

func sortedTypeDeclNames(m map[string]*ast.TypeDecl) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// detectTypeDeclCycles walks the TypeDecl reference graph via DFS with an
// explicit path stack (spec §4.3 pass 3). On a back edge it reports the
// chain A -> B -> ... -> A and the field of the last node that closes it.
func (e *Elaborator) detectTypeDeclCycles() Diagnostics {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := map[string]int{}
	var path []string

	var diag *Diagnostic
	var dfs func(name string)
	dfs = func(name string) {
		if diag != nil {
			return
		}
		td, ok := e.typeDecls[name]
		if !ok {
			return // unknown reference surfaces during pass 4 resolution
		}
		if state[name] == inStack {
			idx := 0
			for i, n := range path {
				if n == name {
					idx = i
					break
				}
			}
			chain := append(append([]string{}, path[idx:]...), name)
			diag = &Diagnostic{
				Pass: 3, Kind: "TypeDeclCycle", Construct: name,
				File: td.Prov.File, Line: td.Prov.Line,
				Message: fmt.Sprintf("TypeDecl cycle: %s", strings.Join(chain, " -> ")),
				Code:    CodeTypeDeclCycle,
			}
			return
		}
		if state[name] == done {
			return
		}
		state[name] = inStack
		path = append(path, name)
		for _, edge := range collectFieldRefs(td) {
			dfs(edge.Target)
			if diag != nil {
				if diag.FieldPath == "" {
					diag.FieldPath = edge.Field
				}
				return
			}
		}
		path = path[:len(path)-1]
		state[name] = done
	}

	for _, name := range sortedTypeDeclNames(e.typeDecls) {
		if state[name] == unvisited {
			dfs(name)
			if diag != nil {
				return Diagnostics{diag}
			}
		}
	}
	return nil
}

// resolveTypeDecls produces, for every TypeDecl name, a fully concrete
// BaseType (a Record built from its fields, each field itself resolved).
// Must run after detectTypeDeclCycles confirms the graph is acyclic.
func (e *Elaborator) resolveTypeDecls() Diagnostics {
	e.resolvedTypes = map[string]*ast.Type{}
	var diags Diagnostics

	for _, name := range sortedTypeDeclNames(e.typeDecls) {
		e.resolveTypeDeclName(name, &diags, e.typeDecls[name].Prov)
	}
	return diags
}

// resolveTypeDeclName resolves (and memoizes) the concrete type for one
// TypeDecl name, recursing through nested field types.
func (e *Elaborator) resolveTypeDeclName(name string, diags *Diagnostics, at ast.Provenance) *ast.Type {
	if rt, ok := e.resolvedTypes[name]; ok {
		return rt
	}
	td, ok := e.typeDecls[name]
	if !ok {
		*diags = append(*diags, &Diagnostic{
			Pass: 3, Kind: "UnknownTypeRef", File: at.File, Line: at.Line,
			Message: fmt.Sprintf("unknown type reference %q", name), Code: CodeUnknownTypeRef,
		})
		return &ast.Type{Kind: ast.TRef, Prov: at, RefName: name}
	}
	// Placeholder breaks runaway recursion if called before cycle check;
	// detectTypeDeclCycles always runs first in the pipeline.
	placeholder := &ast.Type{Kind: ast.TRecord, Prov: td.Prov, Fields: map[string]*ast.Type{}}
	e.resolvedTypes[name] = placeholder

	fields := make(map[string]*ast.Type, len(td.Fields))
	for _, fn := range td.FieldOrder {
		fields[fn] = e.resolveTypeTree(td.Fields[fn], diags)
	}
	placeholder.Fields = fields
	placeholder.FieldOrder = append([]string{}, td.FieldOrder...)
	return placeholder
}

// resolveTypeTree resolves every TRef reachable inside t.
func (e *Elaborator) resolveTypeTree(t *ast.Type, diags *Diagnostics) *ast.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case ast.TRef:
		return e.resolveTypeDeclName(t.RefName, diags, t.Prov)
	case ast.TRecord:
		fields := make(map[string]*ast.Type, len(t.Fields))
		for _, fn := range t.FieldOrder {
			fields[fn] = e.resolveTypeTree(t.Fields[fn], diags)
		}
		return &ast.Type{Kind: ast.TRecord, Prov: t.Prov, Fields: fields, FieldOrder: append([]string{}, t.FieldOrder...)}
	case ast.TList:
		return &ast.Type{Kind: ast.TList, Prov: t.Prov, Element: e.resolveTypeTree(t.Element, diags), ListMax: t.ListMax}
	case ast.TTaggedUnion:
		variants := make(map[string]*ast.Type, len(t.Variants))
		for _, vn := range t.VariantOrder {
			variants[vn] = e.resolveTypeTree(t.Variants[vn], diags)
		}
		return &ast.Type{Kind: ast.TTaggedUnion, Prov: t.Prov, Variants: variants, VariantOrder: append([]string{}, t.VariantOrder...)}
	default:
		return t
	}
}
