package golang

import (
	"strings"
	"testing"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainSrc = `package main

import (
	"fmt"
	_ "embed"
	"example.com/shop/internal/store"
	cfg "example.com/shop/internal/config"
)

func main() {
	s := store.New(cfg.Load())
	fmt.Println(s, store.DefaultLimit)
}
`

func TestParseImports(t *testing.T) {
	got := New().ParseImports(mainSrc, "cmd/shop/main.go")
	require.Len(t, got, 4)
	bySpec := map[string]artifact.ImportRecord{}
	for _, r := range got {
		bySpec[r.ModuleSpecifier] = r
	}
	assert.Equal(t, []string{"Println"}, bySpec["fmt"].ImportedSymbols)
	assert.Nil(t, bySpec["embed"].ImportedSymbols)
	assert.Equal(t, []string{"DefaultLimit", "New"}, bySpec["example.com/shop/internal/store"].ImportedSymbols)
	assert.Equal(t, []string{"Load"}, bySpec["example.com/shop/internal/config"].ImportedSymbols)
	assert.Equal(t, 6, bySpec["example.com/shop/internal/store"].SourceLine)
}

func TestParseExports(t *testing.T) {
	src := `package store

type Store struct{}

type item struct{}

const DefaultLimit, hidden = 10, 1

var ErrGone = errors.New("gone")

func New(c any) *Store { return &Store{} }

func (s *Store) Get() {}

func helper() {}
`
	names := map[string]artifact.ExportKind{}
	for _, e := range New().ParseExports(src, "internal/store/store.go") {
		names[e.SymbolName] = e.Kind
	}
	assert.Equal(t, map[string]artifact.ExportKind{
		"Store":        artifact.ExportType,
		"DefaultLimit": artifact.ExportValue,
		"ErrGone":      artifact.ExportValue,
		"New":          artifact.ExportValue,
	}, names)
}

func TestResolveImportPath(t *testing.T) {
	a := New()
	files := fileset.New()
	for p, c := range map[string]string{
		"go.mod":                       "module example.com/shop\n\ngo 1.22\n",
		"internal/store/store.go":      "package store\n",
		"internal/store/item.go":       "package store\n",
		"internal/store/store_test.go": "package store\n",
		"cmd/shop/main.go":             mainSrc,
	} {
		require.NoError(t, files.Set(p, c))
	}

	assert.Equal(t, lang.Resolution{Path: "internal/store/item.go", Peers: []string{"internal/store/store.go"}},
		a.ResolveImportPath("example.com/shop/internal/store", "cmd/shop/main.go", files))
	assert.Equal(t, lang.Resolution{Path: "internal/config/config.go", Missing: true},
		a.ResolveImportPath("example.com/shop/internal/config", "cmd/shop/main.go", files))
	assert.Equal(t, lang.Resolution{External: true}, a.ResolveImportPath("fmt", "cmd/shop/main.go", files))
	assert.Equal(t, lang.Resolution{External: true}, a.ResolveImportPath("github.com/google/uuid", "cmd/shop/main.go", files))
}

func TestValidateFile(t *testing.T) {
	a := New()
	assert.Empty(t, a.ValidateFile("package x\n\nfunc F() {}\n", "x/x.go"))
	errs := a.ValidateFile("package x\n\nfunc F() {\n", "x/x.go")
	require.NotEmpty(t, errs)
	assert.Equal(t, artifact.SeverityError, errs[0].Severity)
	assert.True(t, errs[0].Fixable)
	assert.Contains(t, errs[0].Message, "syntax error")
	assert.Empty(t, a.ValidateFile("anything", "README.md"))
}

func TestManifest(t *testing.T) {
	a := New()
	gomod := "module example.com/shop\n\ngo 1.22\n\nrequire github.com/google/uuid v1.6.0\n"
	deps, err := a.ParsePackageDependencies(gomod)
	require.NoError(t, err)
	assert.Equal(t, []string{"github.com/google/uuid"}, deps)

	updated, added, err := a.AddDependencies(gomod, []lang.Dependency{
		{Name: "github.com/google/uuid", Version: "v1.6.0"},
		{Name: "gopkg.in/yaml.v3", Version: "v3.0.1"},
		{Name: "github.com/spf13/cobra"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gopkg.in/yaml.v3"}, added)
	assert.Contains(t, updated, "gopkg.in/yaml.v3 v3.0.1")
	assert.NotContains(t, updated, "cobra")

	for spec, want := range map[string]string{
		"fmt":                            "",
		"net/http":                       "",
		"github.com/jackc/pgx/v5/stdlib": "github.com/jackc/pgx/v5",
		"github.com/google/uuid":         "github.com/google/uuid",
		"golang.org/x/sync/errgroup":     "golang.org/x/sync",
		"gopkg.in/yaml.v3":               "gopkg.in/yaml.v3",
		"connectrpc.com/connect":         "connectrpc.com/connect",
		"google.golang.org/genai":        "google.golang.org/genai",
	} {
		assert.Equal(t, want, a.PackageName(spec), spec)
	}
}

func TestScaffold(t *testing.T) {
	out := New().Scaffold(lang.ScaffoldOptions{ProjectName: "Example.com/Shop"})
	require.NotEmpty(t, out)
	assert.Equal(t, "go.mod", out[0].Path)
	assert.True(t, strings.HasPrefix(out[0].Content, "module example.com/shop\n"))
	assert.Contains(t, out[0].Content, "go 1.22")
}
