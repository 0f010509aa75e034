package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

const (
	BackendMemory   = "memory"
	BackendDisk     = "disk"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

type Config struct {
	// Backend selects the origin store. Empty picks s3 when its config is complete,
	// then postgres when DatabaseURL is set, then disk when Dir is set, then memory.
	Backend     string      `yaml:"backend"`
	Dir         string      `yaml:"dir"`
	DatabaseURL string      `yaml:"database_url"`
	S3          S3Config    `yaml:"s3"`
	Cache       CacheConfig `yaml:"cache"`
	NoCache     bool        `yaml:"no_cache"`
}

// Resolve returns the backend Open would use for cfg.
func (c Config) Resolve() string {
	if b := strings.ToLower(strings.TrimSpace(c.Backend)); b != "" {
		return b
	}
	switch {
	case c.S3.Complete():
		return BackendS3
	case strings.TrimSpace(c.DatabaseURL) != "":
		return BackendPostgres
	case strings.TrimSpace(c.Dir) != "":
		return BackendDisk
	default:
		return BackendMemory
	}
}

// Open builds the configured origin store, wrapped in a CachedStore unless disabled.
// The memory backend is never cached.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var origin Store
	switch backend := cfg.Resolve(); backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendDisk:
		if strings.TrimSpace(cfg.Dir) == "" {
			return nil, fmt.Errorf("storage: disk backend needs a directory")
		}
		origin = NewDiskStore(cfg.Dir)
	case BackendPostgres:
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		pg := NewPostgresStore(db)
		pg.ownsDB = true
		origin = pg
	case BackendS3:
		s3, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		log.Printf("storage: s3 bucket=%s endpoint=%s", cfg.S3.Bucket, cfg.S3.Endpoint)
		origin = s3
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
	if cfg.NoCache {
		return origin, nil
	}
	return NewCachedStore(origin, cfg.Cache), nil
}

// Factory constructs a store on demand.
type Factory func(ctx context.Context) (Store, error)

// LazyStore defers construction until the first call. A failed construction is
// retried on the next call.
type LazyStore struct {
	name    string
	factory Factory

	mu    sync.Mutex
	store Store
}

func Lazy(name string, factory Factory) *LazyStore {
	return &LazyStore{name: name, factory: factory}
}

func (l *LazyStore) get(ctx context.Context) (Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		return l.store, nil
	}
	s, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", l.name, err)
	}
	log.Printf("storage: %s initialized", l.name)
	l.store = s
	return s, nil
}

func (l *LazyStore) Put(ctx context.Context, runID, path string, content []byte) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Put(ctx, runID, path, content)
}

func (l *LazyStore) Get(ctx context.Context, runID, path string) ([]byte, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, runID, path)
}

func (l *LazyStore) List(ctx context.Context, runID string) ([]string, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, runID)
}

// Initialized reports whether the underlying store has been built.
func (l *LazyStore) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store != nil
}

func (l *LazyStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
