package runstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"assemblyline/internal/artifact"
	"assemblyline/internal/workspace"
)

// FileStore writes one JSON document per run under dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(_ context.Context, r *artifact.AssemblyRun) error {
	raw, id, err := encode(r)
	if err != nil {
		return err
	}
	return workspace.WriteAtomic(s.path(id), raw, 0o644)
}

func (s *FileStore) Load(_ context.Context, id string) (*artifact.AssemblyRun, error) {
	id, err := checkID(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	return decode(raw)
}

func (s *FileStore) List(ctx context.Context, limit int) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.Load(ctx, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, Summarize(r))
	}
	return sortAndLimit(out, limit), nil
}
