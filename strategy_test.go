package stratacache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
)

// mapSource is a map-backed Source standing in for a database.
type mapSource struct {
	mu       sync.Mutex
	data     map[string][]byte
	loads    int
	stores   int
	storeErr error
	onStore  func(key string)
}

func newMapSource() *mapSource {
	return &mapSource{data: make(map[string][]byte)}
}

var errSourceMiss = errors.New("key not found in source")

func (s *mapSource) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	v, ok := s.data[key]
	if !ok {
		return nil, errSourceMiss
	}
	return v, nil
}

func (s *mapSource) Store(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	s.stores++
	if s.storeErr != nil {
		s.mu.Unlock()
		return s.storeErr
	}
	s.data[key] = payload
	hook := s.onStore
	s.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return nil
}

func (s *mapSource) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *mapSource) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *mapSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func baseCfg() *config.Cache {
	return &config.Cache{Store: config.StoreCfg{SizeBytes: 10 * 1024 * 1024}}
}

func newTestCache(t *testing.T, cfg *config.Cache, src Source) *Cache {
	t.Helper()
	c, err := New(context.Background(), cfg, src, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestCache_Get_CacheAside runs the loader once and serves hits after.
func TestCache_Get_CacheAside(t *testing.T) {
	c := newTestCache(t, baseCfg(), nil)

	calls := 0
	loader := func(Item) ([]byte, error) {
		calls++
		return []byte("v"), nil
	}

	for i := 0; i < 3; i++ {
		data, err := c.Get("k", loader)
		require.NoError(t, err)
		require.Equal(t, []byte("v"), data)
	}
	require.Equal(t, 1, calls)

	stats := c.Stats()
	require.Equal(t, int64(2), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

// TestCache_Fetch_ReadThrough loads through the source once.
func TestCache_Fetch_ReadThrough(t *testing.T) {
	src := newMapSource()
	src.data["user:1"] = []byte("alice")
	c := newTestCache(t, baseCfg(), src)

	for i := 0; i < 3; i++ {
		data, err := c.Fetch(context.Background(), "user:1")
		require.NoError(t, err)
		require.Equal(t, []byte("alice"), data)
	}
	require.Equal(t, 1, src.loadCount())
}

// TestCache_Fetch_SourceErrorPropagates a source miss caches nothing.
func TestCache_Fetch_SourceErrorPropagates(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	_, err := c.Fetch(context.Background(), "missing")
	require.ErrorIs(t, err, errSourceMiss)
	require.Equal(t, int64(0), c.Len())
}

// TestCache_Fetch_NoSource errors without a bound source.
func TestCache_Fetch_NoSource(t *testing.T) {
	c := newTestCache(t, baseCfg(), nil)
	_, err := c.Fetch(context.Background(), "k")
	require.ErrorIs(t, err, ErrNoSource)
}

// TestCache_SetThrough_WritesSourceFirst stores and caches on success.
func TestCache_SetThrough_WritesSourceFirst(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	require.NoError(t, c.SetThrough(context.Background(), "k", []byte("v")))

	stored, ok := src.get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), stored)

	// cached copy serves without touching the source again
	data, err := c.Fetch(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)
	require.Equal(t, 0, src.loadCount())
}

// TestCache_SetThrough_ReplacesSimilarPayload a rewrite differing from the
// cached payload by a single inner byte must be served back, not the original.
func TestCache_SetThrough_ReplacesSimilarPayload(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	v1 := make([]byte, 40)
	v2 := make([]byte, 40)
	v2[10] = 0xff

	require.NoError(t, c.SetThrough(context.Background(), "k", v1))
	require.NoError(t, c.SetThrough(context.Background(), "k", v2))

	data, err := c.Fetch(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, v2, data, "the cache must serve the rewritten payload")
	require.Equal(t, 0, src.loadCount())
}

// TestCache_SetThrough_SourceErrorAborts leaves the cache untouched.
func TestCache_SetThrough_SourceErrorAborts(t *testing.T) {
	src := newMapSource()
	src.storeErr = errors.New("db down")
	c := newTestCache(t, baseCfg(), src)

	require.Error(t, c.SetThrough(context.Background(), "k", []byte("v")))
	require.Equal(t, int64(0), c.Len())
}

// TestCache_SetAround_InvalidatesCache writes the source and drops the entry.
func TestCache_SetAround_InvalidatesCache(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	require.NoError(t, c.SetThrough(context.Background(), "k", []byte("v1")))
	require.Equal(t, int64(1), c.Len())

	require.NoError(t, c.SetAround(context.Background(), "k", []byte("v2")))
	require.Equal(t, int64(0), c.Len(), "write-around must evict the cached entry")

	stored, _ := src.get("k")
	require.Equal(t, []byte("v2"), stored)
}

// TestCache_SetBehind_FlushesAsync caches dirty and flushes in background.
func TestCache_SetBehind_FlushesAsync(t *testing.T) {
	src := newMapSource()
	cfg := baseCfg()
	cfg.WriteBehind = &config.WriteBehindCfg{
		Workers:       1,
		QueueCapacity: 16,
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
	}
	c := newTestCache(t, cfg, src)

	require.NoError(t, c.SetBehind(context.Background(), "k", []byte("v")))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := src.get("k"); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	stored, ok := src.get("k")
	require.True(t, ok, "the flusher must write the entry")
	require.Equal(t, []byte("v"), stored)
}

// TestCache_SetBehind_DisabledFallsBackToSync degrades to a synchronous
// store when write-behind is off.
func TestCache_SetBehind_DisabledFallsBackToSync(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	require.NoError(t, c.SetBehind(context.Background(), "k", []byte("v")))

	stored, ok := src.get("k")
	require.True(t, ok, "the write must land synchronously")
	require.Equal(t, []byte("v"), stored)
}

// TestCache_Invalidate removes the cached entry.
func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(t, baseCfg(), nil)

	_, err := c.Get("k", func(Item) ([]byte, error) { return []byte("v"), nil })
	require.NoError(t, err)
	require.Equal(t, int64(1), c.Len())

	c.Invalidate("k")
	require.Equal(t, int64(0), c.Len())
}

// TestCache_Warm_PrimesKeys bulk-loads keys through the source.
func TestCache_Warm_PrimesKeys(t *testing.T) {
	src := newMapSource()
	src.data["a"] = []byte("1")
	src.data["b"] = []byte("2")
	c := newTestCache(t, baseCfg(), src)

	loaded, failed, err := c.Warm(context.Background(), []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded)
	require.Equal(t, int64(1), failed)
	require.Equal(t, int64(2), c.Len())

	// primed keys serve without further source loads
	before := src.loadCount()
	_, err = c.Fetch(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, before, src.loadCount())
}

// TestCache_Warm_NoSource errors without a source.
func TestCache_Warm_NoSource(t *testing.T) {
	c := newTestCache(t, baseCfg(), nil)
	_, _, err := c.Warm(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrNoSource)
}

// TestCache_Flush_WritesAllDirty drains every dirty entry synchronously.
func TestCache_Flush_WritesAllDirty(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	// with write-behind disabled SetBehind is synchronous, so dirty the
	// entries through the internal write path instead
	c.cacher.Put("a", []byte("1"), true)
	c.cacher.Put("b", []byte("2"), true)

	require.NoError(t, c.Flush(context.Background()))

	for _, k := range []string{"a", "b"} {
		v, ok := src.get(k)
		require.True(t, ok)
		require.NotEmpty(t, v)
	}

	// a second flush finds nothing dirty
	before := src.stores
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, before, src.stores)
}

// TestCache_Flush_SourceMayTouchCache the source can call back into the
// cache while being flushed; writes happen outside the shard locks.
func TestCache_Flush_SourceMayTouchCache(t *testing.T) {
	src := newMapSource()
	c := newTestCache(t, baseCfg(), src)

	c.cacher.Put("k", []byte("v"), true)
	src.onStore = func(key string) { c.Invalidate(key) }

	done := make(chan error, 1)
	go func() { done <- c.Flush(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("flush deadlocked on a source that touches the cache")
	}

	stored, ok := src.get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), stored)
}

// TestCache_Close_FlushesDirty Close must not lose pending writes.
func TestCache_Close_FlushesDirty(t *testing.T) {
	src := newMapSource()
	c, err := New(context.Background(), baseCfg(), src, slog.Default())
	require.NoError(t, err)

	c.cacher.Put("k", []byte("v"), true)
	require.NoError(t, c.Close())

	stored, ok := src.get("k")
	require.True(t, ok, "Close must flush dirty entries")
	require.Equal(t, []byte("v"), stored)
}

// TestCache_SnapshotAcrossRestart persists entries over a simulated restart.
func TestCache_SnapshotAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	snapCfg := func() *config.Cache {
		cfg := baseCfg()
		cfg.Snapshot = &config.SnapshotCfg{Dir: dir, Name: "test", MaxVersions: 2}
		return cfg
	}

	first, err := New(context.Background(), snapCfg(), nil, slog.Default())
	require.NoError(t, err)
	_, err = first.Get("k", func(Item) ([]byte, error) { return []byte("v"), nil })
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(context.Background(), snapCfg(), nil, slog.Default())
	require.NoError(t, err)
	defer second.Close()

	require.Equal(t, int64(1), second.Len())
	data, err := second.Get("k", func(Item) ([]byte, error) {
		t.Fatal("restored entry must not hit the loader")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)
}

// TestCache_Stats_TracksLenAndMem bookkeeping reflects resident entries.
func TestCache_Stats_TracksLenAndMem(t *testing.T) {
	c := newTestCache(t, baseCfg(), nil)

	_, _ = c.Get("k", func(Item) ([]byte, error) { return []byte("payload"), nil })

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Len)
	require.Greater(t, stats.Mem, int64(0))
	require.Equal(t, c.Len(), stats.Len)
	require.Equal(t, c.Mem(), stats.Mem)
}

// TestCache_MetricsCollector_Registers the collector registers cleanly.
func TestCache_MetricsCollector_Registers(t *testing.T) {
	c := newTestCache(t, baseCfg(), nil)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c.MetricsCollector("strata_test")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

// TestNew_NilConfig rejects a nil configuration.
func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil, slog.Default())
	require.Error(t, err)
}
