package elaborate

import (
	"fmt"

	"github.com/riverline-labs/tenor/pkg/ast"
)

// buildIndex is pass 2: walk every loaded file's constructs, build
// id -> construct maps per kind, and the verdict-type index used by the
// stratum checks. A duplicate id within a kind is reported here, citing
// both lines; cross-file duplicates never reach this pass, because pass
// 1 already rejected them, so what remains are same-file duplicates.
func (e *Elaborator) buildIndex() Diagnostics {
	var diags Diagnostics
	seen := map[[2]string]ast.Provenance{}

	for _, path := range e.loadOrder {
		for _, c := range e.files[path].Constructs {
			key := [2]string{c.Kind(), c.ConstructID()}
			if prov, dup := seen[key]; dup {
				diags = append(diags, &Diagnostic{
					Pass: 2, Kind: "DuplicateID", Construct: c.ConstructID(),
					File: c.Provenance().File, Line: c.Provenance().Line,
					Message: fmt.Sprintf("duplicate %s id %q (also declared at %s)", c.Kind(), c.ConstructID(), prov.String()),
					Code:    CodeDuplicateID,
				})
				continue
			}
			seen[key] = c.Provenance()

			switch v := c.(type) {
			case *ast.Fact:
				e.facts[v.ID] = v
			case *ast.Entity:
				e.entities[v.ID] = v
			case *ast.Rule:
				e.rules[v.ID] = v
				e.ruleOrder = append(e.ruleOrder, v.ID)
			case *ast.Operation:
				e.operations[v.ID] = v
			case *ast.Flow:
				e.flows[v.ID] = v
			case *ast.TypeDecl:
				e.typeDecls[v.ID] = v
			case *ast.Persona:
				e.personas[v.ID] = v
			case *ast.System:
				e.systems[v.ID] = v
			}
		}
	}

	e.verdictProducer = map[string]string{}
	e.verdictStratum = map[string]int64{}
	for _, rid := range e.ruleOrder {
		r := e.rules[rid]
		vt := r.Produce.VerdictType.Name
		if existing, dup := e.verdictProducer[vt]; dup {
			diags = append(diags, &Diagnostic{
				Pass: 2, Kind: "DuplicateVerdictProducer", Construct: rid,
				File: r.Prov.File, Line: r.Produce.Prov.Line,
				Message: fmt.Sprintf("verdict type %q already produced by rule %q (I6)", vt, existing),
				Code:    CodeDuplicateVerdict,
			})
			continue
		}
		e.verdictProducer[vt] = rid
		e.verdictStratum[vt] = r.Stratum.Value
	}
	return diags
}
