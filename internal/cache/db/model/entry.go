package model

import (
	"sync/atomic"
	"time"
)

// Item is the view of an entry handed to loaders, so a loader can tune the
// lifetime of the value it produced.
type Item interface {
	SetTTL(ttl time.Duration)
}

// Loader fetches a fresh payload for an entry. It runs on the cache-aside
// miss path and again on background refresh.
type Loader func(item Item) ([]byte, error)

// Entry is a cached value. Timestamps, TTL and flags are atomics so hot-path
// readers never take the shard lock for bookkeeping.
type Entry struct {
	key           *Key
	origin        string                  // caller-supplied key, needed for source writes and snapshots
	touchedAt     int64                   // atomic: unix nano, LRU recency
	updatedAt     int64                   // atomic: unix nano of last successful load/write
	ttl           int64                   // atomic: lifetime in nanoseconds, 0 = never expires
	refreshQueued int32                   // atomic bool: sitting in a shard refresh queue
	dirty         int32                   // atomic bool: pending write-behind flush
	flushFailures int32                   // atomic: consecutive failed flush rounds
	payload       *atomic.Pointer[[]byte] // atomic payload pointer
	loader        atomic.Pointer[Loader]  // adopted lazily by concurrent readers
}

// NewEntry builds an empty entry for origin. The payload is set later via
// SetPayload once the loader or the caller produced it.
func NewEntry(origin string, cfgTTL int64, loader Loader) *Entry {
	e := &Entry{
		key:     NewKey(origin),
		origin:  origin,
		ttl:     cfgTTL,
		payload: &atomic.Pointer[[]byte]{},
	}
	if loader != nil {
		e.loader.Store(&loader)
	}
	return e
}

// Origin returns the caller-supplied string key.
func (e *Entry) Origin() string { return e.origin }

// Refreshable reports whether the entry can re-fetch itself.
func (e *Entry) Refreshable() bool { return e.loader.Load() != nil }

// Refresh re-invokes the loader and swaps the payload in on success.
func (e *Entry) Refresh() error {
	loader := e.loader.Load()
	if loader == nil {
		return ErrNotRefreshable
	}
	payload, err := (*loader)(e)
	if err != nil {
		return err
	}
	e.SetPayload(payload)
	return nil
}

// AdoptLoader attaches a loader to an entry created through a write path, so
// a later read-through can make it refreshable. Concurrent hits may race to
// adopt; the first loader wins.
func (e *Entry) AdoptLoader(loader Loader) {
	if loader != nil {
		e.loader.CompareAndSwap(nil, &loader)
	}
}

// MarkDirty flags the entry for write-behind. Reports false if it was
// already dirty.
func (e *Entry) MarkDirty() bool {
	return atomic.CompareAndSwapInt32(&e.dirty, 0, 1)
}

// ClearDirty lifts the write-behind flag after a successful flush.
func (e *Entry) ClearDirty() {
	atomic.StoreInt32(&e.dirty, 0)
}

// IsDirty reports whether a flush is still owed to the source.
func (e *Entry) IsDirty() bool {
	return atomic.LoadInt32(&e.dirty) == 1
}

// FlushFailed bumps and returns the consecutive failed flush round count.
// A successful flush resets it via ClearDirty callers.
func (e *Entry) FlushFailed() int32 {
	return atomic.AddInt32(&e.flushFailures, 1)
}

// ResetFlushFailures clears the failed round count.
func (e *Entry) ResetFlushFailures() {
	atomic.StoreInt32(&e.flushFailures, 0)
}
