package storage

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	FileTTL        time.Duration `yaml:"file_ttl"`
	FileMaxEntries int           `yaml:"file_max_entries"`
	ListTTL        time.Duration `yaml:"list_ttl"`
	ListMaxEntries int           `yaml:"list_max_entries"`
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		FileTTL:        5 * time.Minute,
		FileMaxEntries: 1024,
		ListTTL:        30 * time.Second,
		ListMaxEntries: 512,
	}
}

type MetricsSnapshot struct {
	FileHits       uint64 `json:"file_hits"`
	FileMisses     uint64 `json:"file_misses"`
	ListHits       uint64 `json:"list_hits"`
	ListMisses     uint64 `json:"list_misses"`
	OriginReads    uint64 `json:"origin_reads"`
	OriginWrites   uint64 `json:"origin_writes"`
	OriginReadErr  uint64 `json:"origin_read_errors"`
	OriginWriteErr uint64 `json:"origin_write_errors"`
}

type metrics struct {
	fileHits, fileMisses          atomic.Uint64
	listHits, listMisses          atomic.Uint64
	originReads, originWrites     atomic.Uint64
	originReadErr, originWriteErr atomic.Uint64
}

// CachedStore is a read-through cache in front of a slower origin. Writes go to the
// origin first and then refresh the cache.
type CachedStore struct {
	origin  Store
	files   *expirable.LRU[string, []byte]
	lists   *expirable.LRU[string, []string]
	metrics metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.FileTTL <= 0 {
		cfg.FileTTL = def.FileTTL
	}
	if cfg.FileMaxEntries <= 0 {
		cfg.FileMaxEntries = def.FileMaxEntries
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.ListMaxEntries <= 0 {
		cfg.ListMaxEntries = def.ListMaxEntries
	}
	return &CachedStore{
		origin: origin,
		files:  expirable.NewLRU[string, []byte](cfg.FileMaxEntries, nil, cfg.FileTTL),
		lists:  expirable.NewLRU[string, []string](cfg.ListMaxEntries, nil, cfg.ListTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, runID, path string, content []byte) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, runID, path, content); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	s.files.Add(fileKey(runID, path), append([]byte(nil), content...))
	s.lists.Remove(strings.TrimSpace(runID))
	return nil
}

func (s *CachedStore) Get(ctx context.Context, runID, path string) ([]byte, error) {
	key := fileKey(runID, path)
	if raw, ok := s.files.Get(key); ok {
		s.metrics.fileHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.metrics.fileMisses.Add(1)
	s.metrics.originReads.Add(1)
	raw, err := s.origin.Get(ctx, runID, path)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.files.Add(key, append([]byte(nil), raw...))
	return raw, nil
}

func (s *CachedStore) List(ctx context.Context, runID string) ([]string, error) {
	runID = strings.TrimSpace(runID)
	if list, ok := s.lists.Get(runID); ok {
		s.metrics.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)
	list, err := s.origin.List(ctx, runID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.lists.Add(runID, append([]string(nil), list...))
	return list, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	m := &s.metrics
	return MetricsSnapshot{
		FileHits:       m.fileHits.Load(),
		FileMisses:     m.fileMisses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

func (s *CachedStore) Close() error {
	if c, ok := s.origin.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
