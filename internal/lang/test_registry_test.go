package lang

import (
	"errors"
	"testing"

	"assemblyline/internal/artifact"
	"assemblyline/internal/tester"
)

type stubAdapter struct{ id string }

func (s stubAdapter) ID() string                                           { return s.id }
func (stubAdapter) ParseImports(string, string) []artifact.ImportRecord    { return nil }
func (stubAdapter) ParseExports(string, string) []artifact.ExportRecord    { return nil }
func (stubAdapter) ResolveImportPath(string, string, Files) Resolution     { return Resolution{} }
func (stubAdapter) ParsePackageDependencies(string) ([]string, error)      { return nil, nil }
func (stubAdapter) ValidateFile(string, string) []artifact.ValidationError { return nil }
func (stubAdapter) FileStructure() FileStructure                           { return FileStructure{} }

func TestRegistryDuplicateAndDefault(t *testing.T) {
	r := NewRegistry()
	tester.NoErr(t, r.Register(stubAdapter{id: "typescript"}))
	tester.NoErr(t, r.Register(stubAdapter{id: "go"}))

	err := r.Register(stubAdapter{id: "TypeScript"})
	tester.True(t, errors.Is(err, ErrDuplicateAdapter), "duplicate registration must fail")

	def, err := r.Default()
	tester.NoErr(t, err)
	tester.Eq(t, def.ID(), "typescript")

	tester.NoErr(t, r.SetDefault("go"))
	def, err = r.Lookup("")
	tester.NoErr(t, err)
	tester.Eq(t, def.ID(), "go")

	_, err = r.Lookup("cobol")
	tester.True(t, errors.Is(err, ErrUnknownStack))
	tester.Eq(t, r.IDs(), []string{"go", "typescript"})
}

type mapFiles map[string]string

func (m mapFiles) Has(p string) bool           { _, ok := m[p]; return ok }
func (m mapFiles) Get(p string) (string, bool) { v, ok := m[p]; return v, ok }
func (m mapFiles) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}

func TestResolveCandidatesOrder(t *testing.T) {
	fs := FileStructure{SourceExtensions: []string{".ts", ".tsx"}, IndexNames: []string{"index"}}
	files := mapFiles{
		"src/lib/util.ts":          "",
		"src/components/index.tsx": "",
		"src/exact.js":             "",
	}
	got, ok := ResolveCandidates("src/lib/util", fs, files)
	tester.True(t, ok)
	tester.Eq(t, got, "src/lib/util.ts")

	got, ok = ResolveCandidates("src/components", fs, files)
	tester.True(t, ok)
	tester.Eq(t, got, "src/components/index.tsx")

	got, ok = ResolveCandidates("src/exact.js", fs, files)
	tester.True(t, ok)
	tester.Eq(t, got, "src/exact.js")

	_, ok = ResolveCandidates("src/nope", fs, files)
	tester.False(t, ok)
}

func TestStructureRouteAndIsSource(t *testing.T) {
	fs := FileStructure{
		Dirs: map[Role]string{
			RoleServices: "src/services",
			RoleUtils:    "src/lib",
		},
		SourceGlobs: []string{"**/*.{ts,tsx}"},
		IgnoreGlobs: []string{"node_modules/**"},
	}
	tester.Eq(t, fs.Route("userService.ts"), "src/services/userService.ts")
	tester.Eq(t, fs.Route("format.ts"), "src/lib/format.ts")
	tester.Eq(t, fs.Route("src/x/format.ts"), "src/x/format.ts")
	tester.True(t, fs.IsSource("a.ts"))
	tester.True(t, fs.IsSource("src/deep/b.tsx"))
	tester.False(t, fs.IsSource("node_modules/x/index.ts"))
	tester.False(t, fs.IsSource("README.md"))
}
