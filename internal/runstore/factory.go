package runstore

import (
	"context"
	"path/filepath"
	"strings"

	"assemblyline/internal/storage"
)

type Config struct {
	Dir         string
	DatabaseURL string
	CacheSize   int
}

// Open picks Postgres when a database URL is set, a file store when a directory
// is set, and memory otherwise.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		db, err := storage.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgresStore(db, cfg.CacheSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	}
	if dir := strings.TrimSpace(cfg.Dir); dir != "" {
		return NewFileStore(filepath.Clean(dir))
	}
	return NewMemoryStore(), nil
}
