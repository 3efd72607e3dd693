package elaborate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/riverline-labs/tenor/pkg/lexer"
	"github.com/riverline-labs/tenor/pkg/parser"
)

// loadImports is pass 0 + pass 1: parse the root file, then
// depth-first load its imports (paths relative to the declaring file's
// directory), detecting cycles via a stack of canonical paths. After
// loading, run the cross-file duplicate check.
func (e *Elaborator) loadImports(root string) Diagnostics {
	inStack := map[string]bool{}
	var stack []string
	var diag *Diagnostic

	var dfs func(path string)
	dfs = func(path string) {
		if diag != nil {
			return
		}
		if inStack[path] {
			chain := append(append([]string{}, stack...), path)
			diag = &Diagnostic{
				Pass: 1, Kind: "ImportCycle", File: path, Line: 0,
				Message: fmt.Sprintf("import cycle: %s", strings.Join(chain, " -> ")),
				Code:    CodeImportCycle,
			}
			return
		}
		if _, already := e.files[path]; already {
			return
		}

		src, err := e.load(path)
		if err != nil {
			diag = &Diagnostic{
				Pass: 1, Kind: "ImportNotFound", File: path, Line: 0,
				Message: fmt.Sprintf("cannot load %q: %s", path, err), Code: CodeImportNotFound,
			}
			return
		}
		toks, lexErr := lexer.Lex(path, src)
		if lexErr != nil {
			line := 0
			if le, ok := lexErr.(*lexer.Error); ok {
				line = le.Line
			}
			diag = &Diagnostic{Pass: 0, Kind: "LexError", File: path, Line: line, Message: lexErr.Error(), Code: CodeLexError}
			return
		}
		f, parseErr := parser.New(path, toks).Parse()
		if parseErr != nil {
			line := 0
			if pe, ok := parseErr.(*parser.Error); ok {
				line = pe.Line
			}
			diag = &Diagnostic{Pass: 0, Kind: "ParseError", File: path, Line: line, Message: parseErr.Error(), Code: CodeParseError}
			return
		}

		e.files[path] = f
		e.loadOrder = append(e.loadOrder, path)

		inStack[path] = true
		stack = append(stack, path)
		dir := filepath.Dir(path)
		for _, imp := range f.Imports {
			childPath := imp.Path
			if !filepath.IsAbs(childPath) {
				childPath = filepath.Join(dir, childPath)
			}
			dfs(childPath)
			if diag != nil {
				break
			}
		}
		stack = stack[:len(stack)-1]
		inStack[path] = false
	}

	dfs(root)
	if diag != nil {
		return Diagnostics{diag}
	}
	return e.crossFileDuplicateCheck()
}

// crossFileDuplicateCheck rejects a (kind, id) declared in more than one
// file, naming the first-declared file. Root-file constructs count as
// first declared, so an imported clash always surfaces at the import
// site rather than the root. Same-file duplicates are left to pass 2.
func (e *Elaborator) crossFileDuplicateCheck() Diagnostics {
	var diags Diagnostics
	for _, path := range e.loadOrder {
		f := e.files[path]
		for _, c := range f.Constructs {
			key := [2]string{c.Kind(), c.ConstructID()}
			if firstFile, ok := e.firstDeclaredFile[key]; ok {
				if firstFile != path {
					diags = append(diags, &Diagnostic{
						Pass: 1, Kind: "CrossFileDuplicate", Construct: c.ConstructID(),
						File: path, Line: c.Provenance().Line,
						Message: fmt.Sprintf("%s %q already declared in %s", c.Kind(), c.ConstructID(), firstFile),
						Code:    CodeCrossFileDuplicate,
					})
				}
				continue
			}
			e.firstDeclaredFile[key] = path
		}
	}
	return diags
}
