package typescript

import (
	"strings"
	"testing"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filesOf(t *testing.T, kv ...string) *fileset.FileSet {
	t.Helper()
	fs := fileset.New()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, fs.Set(kv[i], kv[i+1]))
	}
	return fs
}

func TestParseImports(t *testing.T) {
	src := `import React from 'react';
import { foo, bar as baz } from './b';
import type { T } from "@/types/t";
import Def, { named } from '../x';
import * as ns from './ns';
import './side-effect';
// import { commented } from './commented';
export { reexp } from './re';
export * from './all';
const { a1, b1: renamed } = require('./cjs');
const whole = require('lodash');
`
	got := New().ParseImports(src, "src/a.ts")
	type rec struct {
		spec    string
		line    int
		symbols []string
	}
	var simplified []rec
	for _, r := range got {
		assert.Equal(t, "src/a.ts", r.ImportingFile)
		simplified = append(simplified, rec{r.ModuleSpecifier, r.SourceLine, r.ImportedSymbols})
	}
	assert.Equal(t, []rec{
		{"react", 1, []string{"default"}},
		{"./b", 2, []string{"foo", "bar"}},
		{"@/types/t", 3, []string{"T"}},
		{"../x", 4, []string{"default", "named"}},
		{"./ns", 5, []string{"*"}},
		{"./side-effect", 6, nil},
		{"./re", 8, []string{"reexp"}},
		{"./all", 9, []string{"*"}},
		{"./cjs", 10, []string{"a1", "b1"}},
		{"lodash", 11, []string{"default"}},
	}, simplified)
}

func TestParseImportsMultiline(t *testing.T) {
	src := "import {\n  one,\n  two,\n} from './multi';\n"
	got := New().ParseImports(src, "src/a.ts")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"one", "two"}, got[0].ImportedSymbols)
	assert.Equal(t, 1, got[0].SourceLine)
}

func TestParseExports(t *testing.T) {
	src := `export function alpha() {}
export async function beta() {}
export const gamma = () => 1;
export class Delta {}
export interface Epsilon { x: number }
export type Zeta = string;
export enum Eta { A }
const hidden = 1;
const local = 2;
export { local as theta, hidden };
export default Delta;
export * from './more';
export * as grouped from './grouped';
export const { iota, kappa: lambda } = obj;
`
	got := New().ParseExports(src, "src/mod.ts")
	kinds := map[string]artifact.ExportKind{}
	var stars []string
	for _, e := range got {
		if e.IsStar() {
			stars = append(stars, e.From)
			continue
		}
		kinds[e.SymbolName] = e.Kind
	}
	assert.Equal(t, map[string]artifact.ExportKind{
		"alpha":   artifact.ExportValue,
		"beta":    artifact.ExportValue,
		"gamma":   artifact.ExportValue,
		"Delta":   artifact.ExportValue,
		"Epsilon": artifact.ExportType,
		"Zeta":    artifact.ExportType,
		"Eta":     artifact.ExportValue,
		"iota":    artifact.ExportValue,
		"lambda":  artifact.ExportValue,
		"default": artifact.ExportDefault,
		"theta":   artifact.ExportValue,
		"hidden":  artifact.ExportValue,
		"grouped": artifact.ExportValue,
	}, kinds)
	assert.Equal(t, []string{"./more"}, stars)
}

func TestResolveImportPath(t *testing.T) {
	a := New()
	files := filesOf(t,
		"src/a.ts", "",
		"src/b.ts", "",
		"src/util.ts", "",
		"src/components/index.tsx", "",
		"tsconfig.json", `{
  // comments and trailing commas are tolerated
  "compilerOptions": {
    "baseUrl": ".",
    "paths": { "#lib/*": ["src/lib/*"], },
  },
}`,
		"src/lib/x.ts", "",
	)

	cases := []struct {
		spec, from string
		want       lang.Resolution
	}{
		{"./b", "src/a.ts", lang.Resolution{Path: "src/b.ts"}},
		{"./components", "src/app.tsx", lang.Resolution{Path: "src/components/index.tsx"}},
		{"./util.js", "src/a.ts", lang.Resolution{Path: "src/util.ts"}},
		{"@/lib/missing", "src/app.ts", lang.Resolution{Path: "src/lib/missing.ts", Missing: true}},
		{"./Button", "src/pages/Home.tsx", lang.Resolution{Path: "src/pages/Button.tsx", Missing: true}},
		{"#lib/x", "src/a.ts", lang.Resolution{Path: "src/lib/x.ts"}},
		{"react", "src/a.ts", lang.Resolution{External: true}},
		{"../../outside", "src/a.ts", lang.Resolution{External: true}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, a.ResolveImportPath(tc.spec, tc.from, files), tc.spec)
	}
}

func TestValidateFile(t *testing.T) {
	a := New()

	assert.Empty(t, a.ValidateFile("export const ok = 1;\n", "src/lib/ok.ts"))
	assert.Empty(t, a.ValidateFile("not source", "README.md"))

	errs := a.ValidateFile("export const x =\n", "src/lib/t.ts")
	require.Len(t, errs, 1)
	assert.Equal(t, artifact.SeverityError, errs[0].Severity)
	assert.Contains(t, errs[0].Message, "likely truncated")

	errs = a.ValidateFile("export function f() {\n  return 1;\n", "src/lib/open.ts")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "1 unclosed braces")

	errs = a.ValidateFile("<<<<<<< HEAD\nexport const a = 1;\n=======\nexport const a = 2;\n>>>>>>> branch\n", "src/lib/c.ts")
	assert.Equal(t, 3, artifact.CountErrors(errs))

	errs = a.ValidateFile("export function f() {\n  console.log('x');\n}\n", "src/lib/log.ts")
	require.Len(t, errs, 1)
	assert.Equal(t, artifact.SeverityWarning, errs[0].Severity)
	assert.Equal(t, 2, errs[0].Line)

	assert.Empty(t, a.ValidateFile("console.log('boot');\n", "src/index.ts"))
}

func TestManifestHelpers(t *testing.T) {
	a := New()
	manifest := `{"name":"x","dependencies":{"react":"^18"},"devDependencies":{"typescript":"^5"}}`
	deps, err := a.ParsePackageDependencies(manifest)
	require.NoError(t, err)
	assert.Equal(t, []string{"react", "typescript"}, deps)

	updated, added, err := a.AddDependencies(manifest, []lang.Dependency{
		{Name: "react"},
		{Name: "express"},
		{Name: "@types/express", Dev: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"express", "@types/express"}, added)
	deps, err = a.ParsePackageDependencies(updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"@types/express", "express", "react", "typescript"}, deps)

	same, added, err := a.AddDependencies(updated, []lang.Dependency{{Name: "express"}})
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, updated, same)

	for spec, want := range map[string]string{
		"@scope/pkg/sub": "@scope/pkg",
		"lodash/fp":      "lodash",
		"express":        "express",
		"fs":             "",
		"node:path":      "",
		"./local":        "",
		"@/lib/x":        "",
	} {
		assert.Equal(t, want, a.PackageName(spec), spec)
	}
}

func TestExportFixerHelpers(t *testing.T) {
	a := New()
	src := "const a = 1;\nfunction helper() {}\nexport default { a, helper };\n"
	assert.True(t, a.CatchAllExport(src, "src/lib/m.ts"))
	assert.False(t, a.CatchAllExport("export const a = 1;\nexport default a;\n", "src/lib/m.ts"))
	assert.Equal(t, []string{"a", "helper"}, a.DeclaredSymbols(src, "src/lib/m.ts"))

	fixed := a.AppendNamedExports(strings.TrimSuffix(src, "\n"), []string{"a", "helper"})
	assert.True(t, strings.HasSuffix(fixed, "\nexport { a, helper };\n"))
	names := map[string]bool{}
	for _, e := range a.ParseExports(fixed, "src/lib/m.ts") {
		names[e.SymbolName] = true
	}
	assert.True(t, names["a"] && names["helper"])
}

func TestWireRoutesIndex(t *testing.T) {
	a := New()
	files := filesOf(t,
		"src/routes/users.ts", "const router = {};\nexport default router;\n",
		"src/routes/health.ts", "export const health = () => 'ok';\n",
		"src/lib/x.ts", "export const x = 1;\n",
	)
	out := a.Wire(files)
	require.Len(t, out, 1)
	assert.Equal(t, "src/routes/index.ts", out[0].Path)
	assert.Contains(t, out[0].Content, "export * from './health';")
	assert.Contains(t, out[0].Content, "export { default as users } from './users';")

	require.NoError(t, files.Set("src/routes/index.ts", "export {};\n"))
	assert.Empty(t, a.Wire(files), "hand-written index must be kept")
}

func TestScaffoldProjectName(t *testing.T) {
	out := New().Scaffold(lang.ScaffoldOptions{ProjectName: "My Shop!"})
	require.NotEmpty(t, out)
	assert.Equal(t, "package.json", out[0].Path)
	assert.Contains(t, out[0].Content, `"name": "my-shop"`)
}
