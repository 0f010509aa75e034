// Package workspace owns the on-disk directories runs build in: one working
// directory per durable run and disposable scratch directories for previews.
// Every path handed in is resolved against the directory root and may not leave it.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"assemblyline/internal/fileset"
)

var (
	ErrUnknownHandle = errors.New("workspace: unknown scratch handle")
	ErrOutsideRoot   = errors.New("workspace: path escapes the directory")
)

const (
	runsDir    = "runs"
	scratchDir = "scratch"
)

type Manager struct {
	root string
}

// New prepares root (created when missing) and returns a manager bound to its
// absolute, symlink-free form.
func New(root string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace: empty root")
	}
	for _, sub := range []string{runsDir, scratchDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string { return m.root }

// RunDir returns the working directory of a durable run, creating it on demand.
func (m *Manager) RunDir(runID string) (*Dir, error) {
	if err := checkName(runID); err != nil {
		return nil, err
	}
	p := filepath.Join(m.root, runsDir, runID)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return newDir(p, ""), nil
}

// NewScratch creates a scratch directory under a fresh handle.
func (m *Manager) NewScratch() (*Dir, error) {
	handle := uuid.NewString()
	p := filepath.Join(m.root, scratchDir, handle)
	if err := os.Mkdir(p, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return newDir(p, handle), nil
}

// Scratch reopens an existing scratch directory.
func (m *Manager) Scratch(handle string) (*Dir, error) {
	if _, err := uuid.Parse(handle); err != nil {
		return nil, ErrUnknownHandle
	}
	p := filepath.Join(m.root, scratchDir, handle)
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return nil, ErrUnknownHandle
	}
	return newDir(p, handle), nil
}

// Promote moves a scratch directory into place as the working directory of runID.
func (m *Manager) Promote(scratch *Dir, runID string) (*Dir, error) {
	if err := checkName(runID); err != nil {
		return nil, err
	}
	target := filepath.Join(m.root, runsDir, runID)
	if _, err := os.Stat(target); err == nil {
		return nil, fmt.Errorf("workspace: run dir %s already exists", runID)
	}
	if err := os.Rename(scratch.Path, target); err != nil {
		return nil, fmt.Errorf("workspace: promote %s: %w", scratch.Handle, err)
	}
	d := newDir(target, "")
	scratch.mu.Lock()
	for k, v := range scratch.written {
		d.written[k] = v
	}
	scratch.mu.Unlock()
	return d, nil
}

// Dir is one run's directory. Sync mirrors a FileSet into it.
type Dir struct {
	Path   string
	Handle string

	mu      sync.Mutex
	written map[string]string
}

func newDir(p, handle string) *Dir {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return &Dir{Path: p, Handle: handle, written: map[string]string{}}
}

// Resolve maps a repo-relative path to an absolute one inside the directory.
func (d *Dir) Resolve(rel string) (string, error) {
	clean, err := fileset.NormalizePath(rel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutsideRoot, err)
	}
	full := filepath.Join(d.Path, filepath.FromSlash(clean))
	if !hasPathPrefix(full, d.Path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return full, nil
}

// Sync writes every changed file of files and removes the files an earlier Sync
// wrote that are no longer in the set. Files created by the toolchain are left
// alone.
func (d *Dir) Sync(ctx context.Context, files *fileset.FileSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	present := map[string]bool{}
	for _, f := range files.Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		present[f.Path] = true
		if prev, ok := d.written[f.Path]; ok && prev == f.Content {
			continue
		}
		full, err := d.Resolve(f.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := d.checkParent(full); err != nil {
			return err
		}
		if err := WriteAtomic(full, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
		d.written[f.Path] = f.Content
	}

	stale := make([]string, 0)
	for p := range d.written {
		if !present[p] {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)
	for _, p := range stale {
		full, err := d.Resolve(p)
		if err != nil {
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
		delete(d.written, p)
		log.Printf("workspace: removed %s", p)
	}
	return nil
}

// checkParent rejects writes whose directory is a symlink pointing outside.
func (d *Dir) checkParent(full string) error {
	parent, err := filepath.EvalSymlinks(filepath.Dir(full))
	if err != nil {
		return err
	}
	if !hasPathPrefix(parent, d.Path) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, full)
	}
	return nil
}

func (d *Dir) ReadFile(rel string) ([]byte, error) {
	full, err := d.Resolve(rel)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return nil, err
	}
	if !hasPathPrefix(resolved, d.Path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return os.ReadFile(resolved)
}

// Remove deletes the directory and everything in it.
func (d *Dir) Remove() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = map[string]string{}
	return os.RemoveAll(d.Path)
}

func checkName(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("workspace: invalid run id %q", id)
	}
	return nil
}

func hasPathPrefix(p, root string) bool {
	p = filepath.Clean(p)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
		root = strings.ToLower(root)
	}
	if p == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(p, root)
}
