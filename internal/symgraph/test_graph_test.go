package symgraph

import (
	"testing"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang/golang"
	"assemblyline/internal/lang/typescript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filesOf(t *testing.T, kv map[string]string) *fileset.FileSet {
	t.Helper()
	fs := fileset.New()
	for p, c := range kv {
		require.NoError(t, fs.Set(p, c))
	}
	return fs
}

func TestMissingNamedExportIsSingleError(t *testing.T) {
	files := filesOf(t, map[string]string{
		"src/a.ts": "import { foo } from './b';\nexport const a = foo;\n",
		"src/b.ts": "export const bar = 1;\n",
	})
	errs := Build(files, typescript.New()).Check()
	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, "src/a.ts", e.File)
	assert.Equal(t, 1, e.Line)
	assert.Equal(t, artifact.SeverityError, e.Severity)
	assert.Equal(t, artifact.KindSymbol, e.Kind)
	assert.True(t, e.Fixable)
	assert.Contains(t, e.Message, "foo")
	assert.Contains(t, e.Message, "./b")
}

func TestDefaultAndNamespaceImportsNeverMissing(t *testing.T) {
	files := filesOf(t, map[string]string{
		"src/a.ts": "import b from './b';\nimport * as all from './b';\n",
		"src/b.ts": "export const bar = 1;\n",
	})
	assert.Empty(t, Build(files, typescript.New()).Check())
}

func TestUnresolvedImport(t *testing.T) {
	files := filesOf(t, map[string]string{
		"src/app.ts": "import { helper } from '@/lib/missing';\nimport express from 'express';\n",
	})
	g := Build(files, typescript.New())
	errs := g.Check()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "@/lib/missing")
	assert.Contains(t, errs[0].Message, "src/lib/missing.ts")

	unresolved := g.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "src/lib/missing.ts", unresolved[0].Resolution.Path)
}

func TestStarReExportIsFollowedOneHop(t *testing.T) {
	files := filesOf(t, map[string]string{
		"src/index.ts": "export * from './mid';\n",
		"src/mid.ts":   "export * from './leaf';\nexport const mid = 1;\nexport default mid;\n",
		"src/leaf.ts":  "export const deep = 1;\n",
		"src/app.ts":   "import { mid } from './index';\nimport { deep } from './index';\nimport { deep as d2 } from './mid';\n",
	})
	g := Build(files, typescript.New())
	names := g.ExportNames(g.Edges[0].Resolution)
	assert.True(t, names.Has("mid"))
	assert.False(t, names.Has("default"), "default is not re-exported by a star")

	errs := g.Check()
	require.Len(t, errs, 1, "two-hop star chains are not followed")
	assert.Equal(t, 2, errs[0].Line)
	assert.Contains(t, errs[0].Message, "deep")
}

func TestImportingContext(t *testing.T) {
	files := filesOf(t, map[string]string{
		"src/a.ts":   "import { x, y } from './lib';\n",
		"src/b.ts":   "import { z } from './lib';\nimport lib from './lib';\n",
		"src/lib.ts": "export const x = 1;\n",
	})
	g := Build(files, typescript.New())
	assert.Equal(t, []string{"x", "y", "z"}, g.ExpectedOf("src/lib.ts"))
	assert.Equal(t, []string{"src/a.ts", "src/b.ts"}, g.Dependents("src/lib.ts"))
	assert.Equal(t, map[string][]string{"src/lib.ts": {"y", "z"}}, g.MissingSymbols())
}

func TestGoPackageExportsSpanPeers(t *testing.T) {
	files := filesOf(t, map[string]string{
		"go.mod":                  "module example.com/shop\n\ngo 1.22\n",
		"internal/store/store.go": "package store\n\ntype Store struct{}\n",
		"internal/store/new.go":   "package store\n\nfunc New() *Store { return &Store{} }\n",
		"main.go":                 "package main\n\nimport \"example.com/shop/internal/store\"\n\nfunc main() { _ = store.New(); _ = store.Open }\n",
	})
	errs := Build(files, golang.New()).Check()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "'Open'")
}
