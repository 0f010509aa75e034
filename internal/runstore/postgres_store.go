package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"assemblyline/internal/artifact"
)

const defaultCacheSize = 256

// PostgresStore keeps runs in the assembly_runs table with an LRU of encoded
// records in front of Load.
type PostgresStore struct {
	db    *sql.DB
	cache *lru.Cache[string, []byte]

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB, cacheSize int) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("runstore: db is nil")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, cache: cache}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS assembly_runs (
    id TEXT PRIMARY KEY,
    stack TEXT NOT NULL,
    mode TEXT NOT NULL,
    status TEXT NOT NULL,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    files INTEGER NOT NULL DEFAULT 0,
    data JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS assembly_runs_created_at_idx ON assembly_runs (created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Save(ctx context.Context, r *artifact.AssemblyRun) error {
	raw, id, err := encode(r)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO assembly_runs (id, stack, mode, status, success, files, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id)
DO UPDATE SET status=EXCLUDED.status, success=EXCLUDED.success, files=EXCLUDED.files,
    data=EXCLUDED.data, updated_at=EXCLUDED.updated_at
`, id, r.Stack, string(r.Mode), string(r.Status), r.Success, len(r.Files), raw, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		s.cache.Remove(id)
		return fmt.Errorf("save run %s: %w", id, err)
	}
	s.cache.Add(id, raw)
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*artifact.AssemblyRun, error) {
	id, err := checkID(id)
	if err != nil {
		return nil, err
	}
	if raw, ok := s.cache.Get(id); ok {
		return decode(raw)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM assembly_runs WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	s.cache.Add(id, raw)
	return decode(raw)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q := `SELECT id, stack, mode, status, success, files, created_at FROM assembly_runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var (
			sum          Summary
			mode, status string
		)
		if err := rows.Scan(&sum.ID, &sum.Stack, &mode, &status, &sum.Success, &sum.Files, &sum.CreatedAt); err != nil {
			return nil, err
		}
		sum.Mode = artifact.RunMode(mode)
		sum.Status = artifact.RunStatus(status)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
