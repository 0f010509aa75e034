package dedup

import (
	"testing"

	"assemblyline/internal/fileset"
	"assemblyline/internal/lang/golang"
	"assemblyline/internal/lang/typescript"
	"assemblyline/internal/symgraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet(string, ...any) {}

func TestKey(t *testing.T) {
	for in, want := range map[string]string{
		"tasks":  "task",
		"Task":   "task",
		"class":  "class",
		"status": "statu",
		"s":      "s",
		"index":  "index",
	} {
		assert.Equal(t, want, Key(in), in)
	}
}

func TestSingularSurvivesRegardlessOfOrder(t *testing.T) {
	orders := [][]string{
		{"src/models/item.ts", "src/models/items.ts"},
		{"src/models/items.ts", "src/models/item.ts"},
	}
	for _, order := range orders {
		fs := fileset.New()
		for i, p := range order {
			require.NoError(t, fs.Set(p, "export const v"+string(rune('a'+i))+" = 1;\n"))
		}
		res := Run(fs, typescript.New(), quiet)
		assert.Equal(t, []string{"src/models/item.ts"}, fs.Paths(), "order %v", order)
		require.Len(t, res.Removals, 1)
		assert.Equal(t, Removal{Removed: "src/models/items.ts", Kept: "src/models/item.ts"}, res.Removals[0])
	}
}

func TestDifferentExtensionsAreNotVariants(t *testing.T) {
	fs := fileset.New()
	require.NoError(t, fs.Set("src/lib/config.ts", "export const port = 3000;\n"))
	require.NoError(t, fs.Set("src/lib/config.js", "module.exports = { port: 3000 };\n"))
	require.NoError(t, fs.Set("src/lib/configs.ts", "export const all = [];\n"))

	res := Run(fs, typescript.New(), quiet)
	require.Len(t, res.Removals, 1)
	assert.Equal(t, Removal{Removed: "src/lib/configs.ts", Kept: "src/lib/config.ts"}, res.Removals[0])
	assert.Equal(t, []string{"src/lib/config.js", "src/lib/config.ts"}, fs.Paths())
}

func TestCasingVariantsCollapse(t *testing.T) {
	fs := fileset.New()
	require.NoError(t, fs.Set("src/components/Button.tsx", "export default function Button() {}\n"))
	require.NoError(t, fs.Set("src/components/button.tsx", "export default function Button() {}\n"))
	require.NoError(t, fs.Set("src/components/Buttons.tsx", "export default function Buttons() {}\n"))
	require.NoError(t, fs.Set("src/pages/Home.tsx", "import Button from '../components/button';\n"))

	res := Run(fs, typescript.New(), quiet)
	assert.Len(t, res.Removals, 2)
	// button.tsx has an importer, so it wins the tie between the two singular casings.
	assert.True(t, fs.Has("src/components/button.tsx"))
	assert.False(t, fs.Has("src/components/Button.tsx"))
	assert.False(t, fs.Has("src/components/Buttons.tsx"))
	assert.Empty(t, res.Rewritten)
}

func TestImportersAreRewritten(t *testing.T) {
	fs := fileset.New()
	require.NoError(t, fs.Set("src/services/task.ts", "export const createTask = () => 1;\n"))
	require.NoError(t, fs.Set("src/services/tasks.ts", "export const listTasks = () => [];\n"))
	require.NoError(t, fs.Set("src/routes/api.ts", "import { createTask } from '../services/tasks';\nimport { x } from \"@/services/tasks.js\";\n"))
	require.NoError(t, fs.Set("src/routes/other.ts", "import { createTask } from '../services/task';\n"))

	ts := typescript.New()
	res := Run(fs, ts, quiet)
	assert.Equal(t, []string{"src/routes/api.ts"}, res.Rewritten)
	content, _ := fs.Get("src/routes/api.ts")
	assert.Equal(t, "import { createTask } from '../services/task';\nimport { x } from \"@/services/task.js\";\n", content)

	g := symgraph.Build(fs, ts)
	assert.Empty(t, g.Unresolved(), "no importer may point at the deleted variant")
}

func TestNonSourceAndDistinctNamesUntouched(t *testing.T) {
	fs := fileset.New()
	require.NoError(t, fs.Set("docs/notes.md", "a"))
	require.NoError(t, fs.Set("docs/note.md", "b"))
	require.NoError(t, fs.Set("src/lib/class.ts", "export const c = 1;\n"))
	require.NoError(t, fs.Set("src/lib/clas.ts", "export const d = 1;\n"))
	require.NoError(t, fs.Set("src/a/user.ts", "export const u = 1;\n"))
	require.NoError(t, fs.Set("src/b/users.ts", "export const u = 1;\n"))

	res := Run(fs, typescript.New(), quiet)
	assert.Empty(t, res.Removals)
	assert.Equal(t, 6, fs.Len())
}

func TestGoPackagesAreLeftAlone(t *testing.T) {
	fs := fileset.New()
	require.NoError(t, fs.Set("internal/store/user.go", "package store\n"))
	require.NoError(t, fs.Set("internal/store/users.go", "package store\n"))
	res := Run(fs, golang.New(), quiet)
	assert.Empty(t, res.Removals)
	assert.Equal(t, 2, fs.Len())
}
