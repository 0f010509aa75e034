// Package lang defines the per-stack grammar the assembly engine consumes.
//
// The engine never inspects source syntax itself. Everything stack specific
// (import/export extraction, path resolution, manifest parsing, per-file
// validation and canonical layout) is delegated to an Adapter looked up by
// stack ID in a Registry.
package lang

import (
	"assemblyline/internal/artifact"
)

// Files is the read view of a FileSet handed to adapters.
type Files interface {
	Has(path string) bool
	Get(path string) (string, bool)
	Paths() []string
}

// Resolution is the outcome of resolving one module specifier.
//
// External specifiers (packages, builtins) are never reported as gaps.
// When Missing is set, Path is the location where the module is expected to live.
// Peers lists other files whose exports belong to the same module (e.g. a Go package).
type Resolution struct {
	Path     string
	Peers    []string
	Missing  bool
	External bool
}

type Adapter interface {
	ID() string
	ParseImports(content, path string) []artifact.ImportRecord
	ParseExports(content, path string) []artifact.ExportRecord
	ResolveImportPath(specifier, fromFile string, files Files) Resolution
	ParsePackageDependencies(manifest string) ([]string, error)
	ValidateFile(content, path string) []artifact.ValidationError
	FileStructure() FileStructure
}

type ScaffoldOptions struct {
	ProjectName string
}

// Scaffolder seeds stack boilerplate before fragments are merged.
type Scaffolder interface {
	Scaffold(opts ScaffoldOptions) []artifact.GeneratedFile
}

// Wirer produces deterministic glue files (barrels, registries) after generation.
type Wirer interface {
	Wire(files Files) []artifact.GeneratedFile
}

// ExportFixer supports the deterministic named-export repair.
type ExportFixer interface {
	// CatchAllExport reports whether the file exposes a single catch-all export
	// and no named exports.
	CatchAllExport(content, path string) bool
	// DeclaredSymbols lists top-level names declared in content, exported or not.
	DeclaredSymbols(content, path string) []string
	AppendNamedExports(content string, names []string) string
}

type Dependency struct {
	Name    string
	Version string
	Dev     bool
}

// ManifestPatcher edits the stack's dependency manifest.
type ManifestPatcher interface {
	// PackageName maps an import specifier to an installable package name, or "" when
	// the specifier is local or a builtin.
	PackageName(specifier string) string
	AddDependencies(manifest string, deps []Dependency) (string, []string, error)
}

// Commands are argv vectors run inside the working directory. Empty vectors are skipped.
type Commands struct {
	Install   []string
	TypeCheck []string
	Lint      []string
}

// Commander exposes the default toolchain invocation for the stack.
type Commander interface {
	Commands() Commands
}
