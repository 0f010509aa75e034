package lang

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicateAdapter = errors.New("lang: adapter already registered")
	ErrUnknownStack     = errors.New("lang: unknown stack")
)

// Registry maps stack IDs to adapters. It is constructed explicitly and injected;
// there is no package-level registry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	def      string
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Register adds a. The first registered adapter becomes the default.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("lang: nil adapter")
	}
	id := normalizeID(a.ID())
	if id == "" {
		return fmt.Errorf("lang: adapter has empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapter, id)
	}
	r.adapters[id] = a
	if r.def == "" {
		r.def = id
	}
	return nil
}

func (r *Registry) SetDefault(id string) error {
	id = normalizeID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStack, id)
	}
	r.def = id
	return nil
}

// Lookup returns the adapter for id; an empty id selects the default.
func (r *Registry) Lookup(id string) (Adapter, error) {
	id = normalizeID(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.def
	}
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStack, id)
	}
	return a, nil
}

func (r *Registry) Default() (Adapter, error) {
	return r.Lookup("")
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
