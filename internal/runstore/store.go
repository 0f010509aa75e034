// Package runstore persists AssemblyRun records.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"assemblyline/internal/artifact"
)

var (
	ErrNotFound  = errors.New("runstore: run not found")
	ErrInvalidID = errors.New("runstore: invalid run id")
	reValidRunID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

type Store interface {
	Save(ctx context.Context, run *artifact.AssemblyRun) error
	Load(ctx context.Context, id string) (*artifact.AssemblyRun, error)
	// List returns summaries newest first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]Summary, error)
}

type Summary struct {
	ID        string             `json:"id"`
	Stack     string             `json:"stack"`
	Mode      artifact.RunMode   `json:"mode"`
	Status    artifact.RunStatus `json:"status"`
	Success   bool               `json:"success"`
	Files     int                `json:"files"`
	CreatedAt time.Time          `json:"created_at"`
}

func Summarize(r *artifact.AssemblyRun) Summary {
	return Summary{
		ID:        r.ID,
		Stack:     r.Stack,
		Mode:      r.Mode,
		Status:    r.Status,
		Success:   r.Success,
		Files:     len(r.Files),
		CreatedAt: r.CreatedAt,
	}
}

func checkID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || !reValidRunID.MatchString(id) {
		return "", fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return id, nil
}

func encode(r *artifact.AssemblyRun) ([]byte, string, error) {
	if r == nil {
		return nil, "", fmt.Errorf("runstore: run is nil")
	}
	id, err := checkID(r.ID)
	if err != nil {
		return nil, "", err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, "", fmt.Errorf("encode run %s: %w", id, err)
	}
	return raw, id, nil
}

func decode(raw []byte) (*artifact.AssemblyRun, error) {
	var r artifact.AssemblyRun
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &r, nil
}

func sortAndLimit(out []Summary, limit int) []Summary {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
