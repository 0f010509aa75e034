// Package storage persists the final file tree of durable runs, keyed by run ID.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assemblyline/internal/artifact"
)

var ErrNotFound = errors.New("storage: file not found")

// Store keeps files per run. Paths are repo-relative and use forward slashes.
type Store interface {
	Put(ctx context.Context, runID, path string, content []byte) error
	Get(ctx context.Context, runID, path string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// PutFiles writes every file of a run and stops at the first failure.
func PutFiles(ctx context.Context, s Store, runID string, files []artifact.GeneratedFile) error {
	for _, f := range files {
		if err := s.Put(ctx, runID, f.Path, []byte(f.Content)); err != nil {
			return fmt.Errorf("put %s: %w", f.Path, err)
		}
	}
	return nil
}

// GetFiles reads back every file stored for a run, in path order.
func GetFiles(ctx context.Context, s Store, runID string) ([]artifact.GeneratedFile, error) {
	paths, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]artifact.GeneratedFile, 0, len(paths))
	for _, p := range paths {
		raw, err := s.Get(ctx, runID, p)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", p, err)
		}
		out = append(out, artifact.GeneratedFile{Path: p, Content: string(raw)})
	}
	return out, nil
}

func checkKey(runID, path string) (string, string, error) {
	runID = strings.TrimSpace(runID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if runID == "" {
		return "", "", fmt.Errorf("run_id is required")
	}
	if path == "" {
		return "", "", fmt.Errorf("path is required")
	}
	return runID, path, nil
}

func fileKey(runID, path string) string {
	return strings.TrimSpace(runID) + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}
