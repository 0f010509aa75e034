package runstore

import (
	"context"
	"sync"

	"assemblyline/internal/artifact"
)

// MemoryStore keeps encoded copies so callers never share a record with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string][]byte{}}
}

func (s *MemoryStore) Save(_ context.Context, r *artifact.AssemblyRun) error {
	raw, id, err := encode(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.runs[id] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*artifact.AssemblyRun, error) {
	id, err := checkID(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(raw)
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.runs))
	for _, raw := range s.runs {
		r, err := decode(raw)
		if err != nil {
			continue
		}
		out = append(out, Summarize(r))
	}
	return sortAndLimit(out, limit), nil
}
