package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"assemblyline/internal/artifact"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOriginStore struct {
	mu   sync.Mutex
	data map[string][]byte

	getCalls  int
	putCalls  int
	listCalls int
	failPut   bool
}

func newFakeOriginStore() *fakeOriginStore {
	return &fakeOriginStore{data: map[string][]byte{}}
}

func (s *fakeOriginStore) Put(_ context.Context, runID, path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.failPut {
		return fmt.Errorf("put failed")
	}
	s.data[runID+"/"+path] = append([]byte(nil), content...)
	return nil
}

func (s *fakeOriginStore) Get(_ context.Context, runID, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	raw, ok := s.data[runID+"/"+path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *fakeOriginStore) List(_ context.Context, runID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []string
	prefix := runID + "/"
	for k := range s.data {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	sort.Strings(out)
	return out, nil
}

func TestStoresRoundTrip(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"disk":   NewDiskStore(t.TempDir()),
		"cached": NewCachedStore(NewMemoryStore(), DefaultCacheConfig()),
	}
	ctx := context.Background()
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			files := []artifact.GeneratedFile{
				{Path: "src/b.ts", Content: "export const b = 2;\n"},
				{Path: "package.json", Content: "{}"},
				{Path: "src/a.ts", Content: "export const a = 1;\n"},
			}
			require.NoError(t, PutFiles(ctx, s, "run-1", files))
			require.NoError(t, s.Put(ctx, "run-2", "other.ts", []byte("x")))

			got, err := GetFiles(ctx, s, "run-1")
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "package.json", got[0].Path)
			assert.Equal(t, "src/a.ts", got[1].Path)
			assert.Equal(t, "export const b = 2;\n", got[2].Content)

			_, err = s.Get(ctx, "run-1", "missing.ts")
			assert.ErrorIs(t, err, ErrNotFound)

			paths, err := s.List(ctx, "never-written")
			require.NoError(t, err)
			assert.Empty(t, paths)

			assert.Error(t, s.Put(ctx, "", "a.ts", nil))
			assert.Error(t, s.Put(ctx, "run-1", " ", nil))
		})
	}
}

func TestDiskStoreRejectsEscapes(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	ctx := context.Background()
	assert.Error(t, s.Put(ctx, "run", "../../etc/passwd", []byte("x")))
	assert.Error(t, s.Put(ctx, "../run", "a.ts", []byte("x")))
	assert.Error(t, s.Put(ctx, "a/b", "a.ts", []byte("x")))
}

func TestCachedStoreReadThroughAndMetrics(t *testing.T) {
	origin := newFakeOriginStore()
	origin.data["r1/a.txt"] = []byte("hello")
	store := NewCachedStore(origin, CacheConfig{FileTTL: time.Minute, FileMaxEntries: 8, ListTTL: time.Minute, ListMaxEntries: 8})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		raw, err := store.Get(ctx, "r1", "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(raw))
	}
	assert.Equal(t, 1, origin.getCalls)

	_, err := store.List(ctx, "r1")
	require.NoError(t, err)
	_, err = store.List(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, origin.listCalls)

	// A write invalidates the listing and refreshes the file.
	require.NoError(t, store.Put(ctx, "r1", "b.txt", []byte("world")))
	paths, err := store.List(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, paths)
	assert.Equal(t, 2, origin.listCalls)
	raw, err := store.Get(ctx, "r1", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "world", string(raw))
	assert.Equal(t, 1, origin.getCalls)

	m := store.Metrics()
	assert.Equal(t, uint64(3), m.FileHits)
	assert.Equal(t, uint64(1), m.FileMisses)
	assert.Equal(t, uint64(1), m.ListHits)
	assert.Equal(t, uint64(2), m.ListMisses)
	assert.Equal(t, uint64(1), m.OriginWrites)
}

func TestCachedStoreDoesNotCacheFailedWrites(t *testing.T) {
	origin := newFakeOriginStore()
	origin.failPut = true
	store := NewCachedStore(origin, DefaultCacheConfig())
	ctx := context.Background()

	require.Error(t, store.Put(ctx, "r1", "a.txt", []byte("x")))
	_, err := store.Get(ctx, "r1", "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, uint64(1), store.Metrics().OriginWriteErr)
}

func TestCachedStoreReturnsCopies(t *testing.T) {
	store := NewCachedStore(newFakeOriginStore(), DefaultCacheConfig())
	ctx := context.Background()
	content := []byte("abc")
	require.NoError(t, store.Put(ctx, "r", "f", content))
	content[0] = 'X'
	raw, err := store.Get(ctx, "r", "f")
	require.NoError(t, err)
	raw[1] = 'Y'
	again, _ := store.Get(ctx, "r", "f")
	assert.Equal(t, "abc", string(again))
}

func TestConfigResolve(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{}, BackendMemory},
		{Config{Dir: "/tmp/x"}, BackendDisk},
		{Config{Dir: "/tmp/x", DatabaseURL: "postgres://x"}, BackendPostgres},
		{Config{DatabaseURL: "postgres://x", S3: S3Config{Endpoint: "e", AccessKey: "a", SecretKey: "s", Bucket: "b"}}, BackendS3},
		{Config{Backend: "Disk"}, BackendDisk},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cfg.Resolve(), "%+v", tc.cfg)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &CachedStore{}, s)

	s, err = Open(ctx, Config{Dir: t.TempDir(), NoCache: true})
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, s)

	_, err = Open(ctx, Config{Backend: "tape"})
	assert.ErrorContains(t, err, "unknown backend")

	_, err = Open(ctx, Config{Backend: BackendS3})
	assert.Error(t, err)
}

func TestLazyRetriesFailedConstruction(t *testing.T) {
	calls := 0
	l := Lazy("test", func(context.Context) (Store, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("db down")
		}
		return NewMemoryStore(), nil
	})
	ctx := context.Background()
	assert.False(t, l.Initialized())

	err := l.Put(ctx, "r", "a.ts", []byte("x"))
	assert.ErrorContains(t, err, "db down")
	assert.False(t, l.Initialized())

	require.NoError(t, l.Put(ctx, "r", "a.ts", []byte("x")))
	raw, err := l.Get(ctx, "r", "a.ts")
	require.NoError(t, err)
	assert.Equal(t, "x", string(raw))
	assert.True(t, l.Initialized())
	assert.Equal(t, 2, calls)
	assert.NoError(t, l.Close())
}
