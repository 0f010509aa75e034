// Package symgraph builds the import/export graph of a FileSet and checks that every
// local import resolves and every named import is exported by its target.
package symgraph

import (
	"fmt"

	"assemblyline/internal/artifact"
	"assemblyline/internal/lang"
)

// Edge is one import statement together with where it resolved.
type Edge struct {
	From       string
	Import     artifact.ImportRecord
	Resolution lang.Resolution
}

// Local reports whether the import points inside the project.
func (e Edge) Local() bool { return !e.Resolution.External }

type Graph struct {
	Files   []string
	Imports map[string][]artifact.ImportRecord
	Exports map[string][]artifact.ExportRecord
	Edges   []Edge

	adapter lang.Adapter
	files   lang.Files
	source  map[string]bool
}

// Build parses every source file of files with adapter and resolves each import.
func Build(files lang.Files, adapter lang.Adapter) *Graph {
	fs := adapter.FileStructure()
	g := &Graph{
		Imports: map[string][]artifact.ImportRecord{},
		Exports: map[string][]artifact.ExportRecord{},
		adapter: adapter,
		files:   files,
		source:  map[string]bool{},
	}
	for _, p := range files.Paths() {
		if !fs.IsSource(p) {
			continue
		}
		content, _ := files.Get(p)
		g.Files = append(g.Files, p)
		g.source[p] = true
		g.Imports[p] = adapter.ParseImports(content, p)
		g.Exports[p] = adapter.ParseExports(content, p)
	}
	for _, p := range g.Files {
		for _, imp := range g.Imports[p] {
			g.Edges = append(g.Edges, Edge{
				From:       p,
				Import:     imp,
				Resolution: adapter.ResolveImportPath(imp.ModuleSpecifier, p, files),
			})
		}
	}
	return g
}

// ExportNames returns every symbol exported by the module a resolution points at:
// the file, its peers, and one hop of star re-exports. Stars found in the re-exported
// module are not followed.
func (g *Graph) ExportNames(res lang.Resolution) artifact.SymbolSet {
	out := artifact.SymbolSet{}
	for _, f := range moduleFiles(res) {
		for _, e := range g.Exports[f] {
			if !e.IsStar() {
				out.Add(e.SymbolName)
				continue
			}
			target := g.adapter.ResolveImportPath(e.From, f, g.files)
			if target.External || target.Missing {
				continue
			}
			for _, tf := range moduleFiles(target) {
				for _, te := range g.Exports[tf] {
					if te.IsStar() || te.Kind == artifact.ExportDefault {
						continue
					}
					out.Add(te.SymbolName)
				}
			}
		}
	}
	return out
}

func moduleFiles(res lang.Resolution) []string {
	if res.Path == "" {
		return nil
	}
	return append([]string{res.Path}, res.Peers...)
}

// Unresolved returns local edges whose target file does not exist.
func (g *Graph) Unresolved() []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Local() && e.Resolution.Missing {
			out = append(out, e)
		}
	}
	return out
}

// ImportersOf returns the resolved local edges that point at path (directly or as a peer).
func (g *Graph) ImportersOf(path string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if !e.Local() || e.Resolution.Missing {
			continue
		}
		for _, f := range moduleFiles(e.Resolution) {
			if f == path {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// ExpectedOf lists the named symbols other files import from path.
func (g *Graph) ExpectedOf(path string) []string {
	set := artifact.SymbolSet{}
	for _, e := range g.ImportersOf(path) {
		set.Add(e.Import.NamedSymbols()...)
	}
	return set.Sorted()
}

// Check reports unresolved local imports and named imports missing from their target.
func (g *Graph) Check() []artifact.ValidationError {
	var out []artifact.ValidationError
	for _, e := range g.Edges {
		if !e.Local() {
			continue
		}
		spec := e.Import.ModuleSpecifier
		if e.Resolution.Missing {
			out = append(out, artifact.ValidationError{
				File:     e.From,
				Line:     e.Import.SourceLine,
				Message:  fmt.Sprintf("cannot resolve module '%s' (expected at %s)", spec, e.Resolution.Path),
				Severity: artifact.SeverityError,
				Fixable:  true,
				Kind:     artifact.KindSymbol,
			})
			continue
		}
		if !g.source[e.Resolution.Path] {
			continue
		}
		names := g.ExportNames(e.Resolution)
		for _, sym := range e.Import.NamedSymbols() {
			if names.Has(sym) {
				continue
			}
			out = append(out, artifact.ValidationError{
				File:     e.From,
				Line:     e.Import.SourceLine,
				Message:  fmt.Sprintf("'%s' is not exported by '%s' (%s)", sym, spec, e.Resolution.Path),
				Severity: artifact.SeverityError,
				Fixable:  true,
				Kind:     artifact.KindSymbol,
			})
		}
	}
	artifact.SortErrors(out)
	return out
}

// MissingSymbols maps each resolved target file to the named imports it fails to provide.
func (g *Graph) MissingSymbols() map[string][]string {
	acc := map[string]artifact.SymbolSet{}
	for _, e := range g.Edges {
		if !e.Local() || e.Resolution.Missing || !g.source[e.Resolution.Path] {
			continue
		}
		names := g.ExportNames(e.Resolution)
		for _, sym := range e.Import.NamedSymbols() {
			if names.Has(sym) {
				continue
			}
			if acc[e.Resolution.Path] == nil {
				acc[e.Resolution.Path] = artifact.SymbolSet{}
			}
			acc[e.Resolution.Path].Add(sym)
		}
	}
	out := make(map[string][]string, len(acc))
	for p, set := range acc {
		out[p] = set.Sorted()
	}
	return out
}

// Dependents returns the files importing any of paths, sorted.
func (g *Graph) Dependents(paths ...string) []string {
	set := artifact.SymbolSet{}
	for _, p := range paths {
		for _, e := range g.ImportersOf(p) {
			set.Add(e.From)
		}
	}
	return set.Sorted()
}
