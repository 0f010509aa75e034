package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore keeps files under root/<runID>/<path>.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: strings.TrimSpace(root)}
}

func (s *DiskStore) Put(_ context.Context, runID, path string, content []byte) error {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

func (s *DiskStore) Get(_ context.Context, runID, path string) ([]byte, error) {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (s *DiskStore) List(_ context.Context, runID string) ([]string, error) {
	runRoot, err := s.runRoot(runID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, 32)
	walkErr := filepath.WalkDir(runRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(runRoot, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, walkErr
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DiskStore) runRoot(runID string) (string, error) {
	if s.root == "" {
		return "", fmt.Errorf("root is required")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	if strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("invalid run_id: %s", runID)
	}
	return filepath.Join(s.root, runID), nil
}

func (s *DiskStore) pathFor(runID, path string) (string, error) {
	runRoot, err := s.runRoot(runID)
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: %s", path)
	}
	return filepath.Join(runRoot, clean), nil
}
