package elaborate

import (
	"os"
	"path/filepath"

	"github.com/riverline-labs/tenor/pkg/ast"
	"github.com/riverline-labs/tenor/pkg/interchange"
)

// Loader reads the source text at path. FileLoader adapts the local
// filesystem; tests and embedders may supply an in-memory implementation.
type Loader func(path string) (string, error)

// FileLoader reads source files relative to baseDir off the local disk.
func FileLoader(baseDir string) Loader {
	return func(path string) (string, error) {
		full := path
		if !filepath.IsAbs(path) {
			full = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// Elaborator carries all state threaded through the six passes (spec
// §4.3). It is single-use: construct one per Elaborate call.
type Elaborator struct {
	load Loader

	files     map[string]*ast.File
	loadOrder []string

	firstDeclaredFile map[[2]string]string

	facts      map[string]*ast.Fact
	entities   map[string]*ast.Entity
	rules      map[string]*ast.Rule
	ruleOrder  []string
	operations map[string]*ast.Operation
	flows      map[string]*ast.Flow
	typeDecls  map[string]*ast.TypeDecl
	personas   map[string]*ast.Persona
	systems    map[string]*ast.System

	verdictProducer map[string]string // verdict type name -> rule id
	verdictStratum  map[string]int64  // verdict type name -> producing rule's stratum

	resolvedTypes map[string]*ast.Type // TypeDecl name -> concrete BaseType

	exprTypes map[*ast.Expr]*ExprInfo // pass 4 annotations, keyed by node identity
}

// ExprInfo is the type-checker's per-node annotation, analogous to
// go/types.Info but scoped to this toolchain's small expression language.
type ExprInfo struct {
	ValueType      *ast.Type // the expression's resolved BaseType
	ComparisonType *ast.Type // set on ExprCompare when operand promotion occurred (§4.4)
	ResultType     *ast.Type // set on ExprMul: the computed Int range type
}

func newElaborator(load Loader) *Elaborator {
	return &Elaborator{
		load:              load,
		files:             map[string]*ast.File{},
		firstDeclaredFile: map[[2]string]string{},
		facts:             map[string]*ast.Fact{},
		entities:          map[string]*ast.Entity{},
		rules:             map[string]*ast.Rule{},
		operations:        map[string]*ast.Operation{},
		flows:             map[string]*ast.Flow{},
		typeDecls:         map[string]*ast.TypeDecl{},
		personas:          map[string]*ast.Persona{},
		systems:           map[string]*ast.System{},
		exprTypes:         map[*ast.Expr]*ExprInfo{},
	}
}

// Elaborate runs all six passes against the root file, short-circuiting
// at the first pass that reports diagnostics.
func Elaborate(rootPath string, load Loader) (*interchange.Bundle, Diagnostics) {
	e := newElaborator(load)

	if diags := e.loadImports(rootPath); diags.HasErrors() {
		return nil, diags
	}
	if diags := e.buildIndex(); diags.HasErrors() {
		return nil, diags
	}
	if diags := e.detectTypeDeclCycles(); diags.HasErrors() {
		return nil, diags
	}
	if diags := e.resolveTypeDecls(); diags.HasErrors() {
		return nil, diags
	}
	if diags := e.resolveAndTypeCheck(); diags.HasErrors() {
		return nil, diags
	}
	if diags := e.validate(); diags.HasErrors() {
		return nil, diags
	}
	bundle, diags := e.serialize(rootPath)
	if diags.HasErrors() {
		return nil, diags
	}
	return bundle, nil
}
