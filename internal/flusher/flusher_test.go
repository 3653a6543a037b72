package flusher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

// fakeStore resolves hashes to entries like the cache does.
type fakeStore struct {
	mu      sync.Mutex
	entries map[uint64]*model.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[uint64]*model.Entry)}
}

func (s *fakeStore) add(key string, payload []byte, dirty bool) uint64 {
	e := model.NewEntry(key, 0, nil)
	e.SetPayload(payload)
	if dirty {
		e.MarkDirty()
	}
	s.mu.Lock()
	s.entries[e.Key().Value()] = e
	s.mu.Unlock()
	return e.Key().Value()
}

func (s *fakeStore) Entry(hash uint64) (*model.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[hash]
	return e, ok
}

// recordingSink counts writes and fails the first failN calls.
type recordingSink struct {
	mu     sync.Mutex
	writes map[string][]byte
	calls  int
	failN  int
}

func newRecordingSink(failN int) *recordingSink {
	return &recordingSink{writes: make(map[string][]byte), failN: failN}
}

func (s *recordingSink) sink(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		return errors.New("source unavailable")
	}
	s.writes[key] = payload
	return nil
}

func (s *recordingSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *recordingSink) written(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.writes[key]
	return p, ok
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// advance lets the worker reach its timer before moving the mock clock.
func advance(mock *clock.Mock, d time.Duration) {
	time.Sleep(20 * time.Millisecond)
	mock.Add(d)
}

func flusherCfg() *config.WriteBehindCfg {
	return &config.WriteBehindCfg{
		Workers:       1,
		QueueCapacity: 16,
		MaxAttempts:   3,
		RetryBackoff:  10 * time.Millisecond,
	}
}

// TestFlusher_FlushesDirtyEntry writes a dirty entry and clears the flag.
func TestFlusher_FlushesDirtyEntry(t *testing.T) {
	store := newFakeStore()
	sink := newRecordingSink(0)

	f := New(context.Background(), flusherCfg(), slog.Default(), store, sink.sink, clock.New())
	defer f.Close()

	hash := store.add("k", []byte("payload"), true)
	require.True(t, f.Enqueue(hash))

	waitFor(t, func() bool {
		p, ok := sink.written("k")
		return ok && string(p) == "payload"
	})

	entry, _ := store.Entry(hash)
	waitFor(t, func() bool { return !entry.IsDirty() })

	flushed, _, failed, _ := f.Metrics()
	require.Equal(t, int64(1), flushed)
	require.Equal(t, int64(0), failed)
}

// TestFlusher_SkipsCleanEntry coalesces: a clean entry is not written.
func TestFlusher_SkipsCleanEntry(t *testing.T) {
	store := newFakeStore()
	sink := newRecordingSink(0)

	f := New(context.Background(), flusherCfg(), slog.Default(), store, sink.sink, clock.New())
	defer f.Close()

	hash := store.add("k", []byte("payload"), false)
	require.True(t, f.Enqueue(hash))

	// give the consumer a moment; nothing should arrive
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, sink.callCount())
}

// TestFlusher_RetriesWithBackoff retries through the mock clock and succeeds.
func TestFlusher_RetriesWithBackoff(t *testing.T) {
	store := newFakeStore()
	sink := newRecordingSink(2) // first two attempts fail
	mock := clock.NewMock()

	f := New(context.Background(), flusherCfg(), slog.Default(), store, sink.sink, mock)
	defer f.Close()

	hash := store.add("k", []byte("payload"), true)
	require.True(t, f.Enqueue(hash))

	// first attempt fails, worker waits 10ms on the mock clock
	waitFor(t, func() bool { return sink.callCount() == 1 })
	advance(mock, 10*time.Millisecond)

	// second attempt fails, backoff doubles to 20ms
	waitFor(t, func() bool { return sink.callCount() == 2 })
	advance(mock, 20*time.Millisecond)

	waitFor(t, func() bool {
		_, ok := sink.written("k")
		return ok
	})

	flushed, retries, failed, _ := f.Metrics()
	require.Equal(t, int64(1), flushed)
	require.Equal(t, int64(2), retries)
	require.Equal(t, int64(0), failed)
}

// TestFlusher_ExhaustedAttemptsRequeuesOnce a persistently failing entry gets
// one more round and then stays dirty.
func TestFlusher_ExhaustedAttemptsRequeuesOnce(t *testing.T) {
	store := newFakeStore()
	sink := newRecordingSink(1 << 30) // never succeeds
	mock := clock.NewMock()

	f := New(context.Background(), flusherCfg(), slog.Default(), store, sink.sink, mock)
	defer f.Close()

	hash := store.add("k", []byte("payload"), true)
	require.True(t, f.Enqueue(hash))

	// two rounds of MaxAttempts=3 with doubling backoffs in between
	for round := 0; round < 2; round++ {
		base := 10 * time.Millisecond
		for i := 0; i < 2; i++ {
			target := round*3 + i + 1
			waitFor(t, func() bool { return sink.callCount() >= target })
			advance(mock, base)
			base *= 2
		}
	}

	waitFor(t, func() bool {
		_, _, failed, _ := f.Metrics()
		return failed >= 2
	})

	_, _, failed, requeued := f.Metrics()
	require.Equal(t, int64(1), requeued, "exactly one requeue round")
	require.GreaterOrEqual(t, failed, int64(2))

	entry, _ := store.Entry(hash)
	require.True(t, entry.IsDirty(), "the entry must stay dirty for synchronous flushing")
}

// TestFlusher_DisabledIsNoOp nil config yields an inert flusher.
func TestFlusher_DisabledIsNoOp(t *testing.T) {
	f := New(context.Background(), nil, slog.Default(), newFakeStore(), nil, clock.New())
	require.IsType(t, NoOp{}, f)
	require.False(t, f.Enqueue(1), "NoOp must report a full queue so callers write synchronously")
	require.NoError(t, f.Close())
}
