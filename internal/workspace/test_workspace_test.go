package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assemblyline/internal/fileset"
)

func set(t *testing.T, files map[string]string) *fileset.FileSet {
	t.Helper()
	fs := fileset.New()
	for p, c := range files {
		require.NoError(t, fs.Set(p, c))
	}
	return fs
}

func read(t *testing.T, p string) string {
	t.Helper()
	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(raw)
}

func TestSyncMirrorsFileSet(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)
	d, err := m.RunDir("run-1")
	require.NoError(t, err)
	ctx := context.Background()

	files := set(t, map[string]string{"src/a.ts": "a", "src/b.ts": "b", "package.json": "{}"})
	require.NoError(t, d.Sync(ctx, files))
	assert.Equal(t, "a", read(t, filepath.Join(d.Path, "src", "a.ts")))

	// Files the toolchain created survive; files removed from the set go away.
	require.NoError(t, os.MkdirAll(filepath.Join(d.Path, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "node_modules", "x.js"), []byte("x"), 0o644))
	files.Delete("src/b.ts")
	require.NoError(t, files.Set("src/a.ts", "a2"))
	require.NoError(t, d.Sync(ctx, files))

	assert.Equal(t, "a2", read(t, filepath.Join(d.Path, "src", "a.ts")))
	assert.NoFileExists(t, filepath.Join(d.Path, "src", "b.ts"))
	assert.FileExists(t, filepath.Join(d.Path, "node_modules", "x.js"))
}

func TestSyncRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	m, err := New(t.TempDir())
	require.NoError(t, err)
	d, err := m.RunDir("run-1")
	require.NoError(t, err)
	if err := os.Symlink(outside, filepath.Join(d.Path, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	err = d.Sync(context.Background(), set(t, map[string]string{"link/pwned.ts": "x"}))
	assert.ErrorIs(t, err, ErrOutsideRoot)
	assert.NoFileExists(t, filepath.Join(outside, "pwned.ts"))
}

func TestResolve(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)
	d, err := m.RunDir("r")
	require.NoError(t, err)

	p, err := d.Resolve("src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Path, "src", "a.ts"), p)

	_, err = d.Resolve("../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = m.RunDir("../x")
	assert.Error(t, err)
}

func TestScratchLifecycle(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)
	s, err := m.NewScratch()
	require.NoError(t, err)
	_, err = uuid.Parse(s.Handle)
	require.NoError(t, err)
	require.NoError(t, s.Sync(context.Background(), set(t, map[string]string{"a.ts": "a"})))

	again, err := m.Scratch(s.Handle)
	require.NoError(t, err)
	assert.Equal(t, s.Path, again.Path)

	_, err = m.Scratch("not-a-handle")
	assert.ErrorIs(t, err, ErrUnknownHandle)
	_, err = m.Scratch(uuid.NewString())
	assert.ErrorIs(t, err, ErrUnknownHandle)

	require.NoError(t, s.Remove())
	assert.NoDirExists(t, s.Path)
	_, err = m.Scratch(s.Handle)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestPromote(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)
	s, err := m.NewScratch()
	require.NoError(t, err)
	files := set(t, map[string]string{"src/a.ts": "a", "src/b.ts": "b"})
	require.NoError(t, s.Sync(context.Background(), files))

	d, err := m.Promote(s, "run-9")
	require.NoError(t, err)
	assert.NoDirExists(t, s.Path)
	assert.Equal(t, "b", read(t, filepath.Join(d.Path, "src", "b.ts")))

	// The promoted dir still knows what it wrote.
	files.Delete("src/b.ts")
	require.NoError(t, d.Sync(context.Background(), files))
	assert.NoFileExists(t, filepath.Join(d.Path, "src", "b.ts"))

	raw, err := d.ReadFile("src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "a", string(raw))

	other, err := m.NewScratch()
	require.NoError(t, err)
	_, err = m.Promote(other, "run-9")
	assert.Error(t, err)
}

func TestWriteAtomicReplaces(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, WriteAtomic(p, []byte("one"), 0o644))
	require.NoError(t, WriteAtomic(p, []byte("two"), 0o600))
	assert.Equal(t, "two", read(t, p))
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
