package stratacache

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
	"github.com/stratacache/go-strata-cache/internal/telemetry"
	"github.com/stratacache/go-strata-cache/internal/warmer"
)

// Get is the cache-aside read: a hit serves the resident payload, a miss
// invokes loader and caches its result. A loader error caches nothing and
// propagates unchanged.
func (c *Cache) Get(key string, loader Loader) ([]byte, error) {
	return c.cacher.Get(key, loader.internal())
}

// Fetch is the read-through read: Get with the loader bound to the source.
func (c *Cache) Fetch(ctx context.Context, key string) ([]byte, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}
	return c.Get(key, func(Item) ([]byte, error) {
		return c.source.Load(ctx, key)
	})
}

// SetThrough is the write-through write: the source is written first and the
// cache only on success, so the cache never holds a value the source lost.
func (c *Cache) SetThrough(ctx context.Context, key string, payload []byte) error {
	if c.source == nil {
		return ErrNoSource
	}
	if err := c.source.Store(ctx, key, payload); err != nil {
		return err
	}
	c.cacher.Put(key, payload, false)
	return nil
}

// SetAround is the write-around write: the source is written and the cached
// entry dropped, leaving rarely-read keys out of the cache entirely.
func (c *Cache) SetAround(ctx context.Context, key string, payload []byte) error {
	if c.source == nil {
		return ErrNoSource
	}
	if err := c.source.Store(ctx, key, payload); err != nil {
		return err
	}
	c.cacher.Del(key)
	return nil
}

// SetBehind is the write-behind write: the payload is cached dirty and queued
// for async flushing. When the entry cannot be queued, because admission
// rejected it or the queue is full, the write happens synchronously instead;
// a dirty write is never dropped.
func (c *Cache) SetBehind(ctx context.Context, key string, payload []byte) error {
	if c.source == nil {
		return ErrNoSource
	}

	hash, stored := c.cacher.Put(key, payload, true)
	if stored && c.flusher.Enqueue(hash) {
		return nil
	}

	if err := c.source.Store(ctx, key, payload); err != nil {
		return err
	}
	if entry, ok := c.cacher.Entry(hash); ok && entry.Origin() == key {
		entry.ClearDirty()
	}
	return nil
}

// Invalidate removes the entry for key, if any.
func (c *Cache) Invalidate(key string) {
	c.cacher.Del(key)
}

// Warm primes the cache by reading keys through the source with bounded
// concurrency. It reports how many keys loaded and how many failed.
func (c *Cache) Warm(ctx context.Context, keys []string) (loaded, failed int64, err error) {
	if c.source == nil {
		return 0, 0, ErrNoSource
	}
	loaded, failed = warmer.Warm(ctx, c.logger, keys, 0, func(ctx context.Context, key string) error {
		_, err := c.Fetch(ctx, key)
		return err
	})
	return loaded, failed, nil
}

// Flush synchronously writes every remaining dirty entry to the source. It is
// the drain used by Close and is safe to call at any time. Dirty entries are
// collected first and written after the shard locks are released, so a slow
// source never stalls writers.
func (c *Cache) Flush(ctx context.Context) error {
	if c.source == nil {
		return ErrNoSource
	}

	var mu sync.Mutex
	var dirty []*model.Entry
	c.cacher.WalkEntries(ctx, func(e *model.Entry) bool {
		if e.IsDirty() {
			mu.Lock()
			dirty = append(dirty, e)
			mu.Unlock()
		}
		return true
	}, false)

	var failures int64
	for _, e := range dirty {
		if ctx.Err() != nil {
			failures++
			continue
		}
		if err := c.source.Store(ctx, e.Origin(), e.PayloadBytes()); err != nil {
			failures++
			c.logger.Error("flush write failed", "key", e.Origin(), "error", err)
			continue
		}
		e.ClearDirty()
		e.ResetFlushFailures()
	}

	if failures > 0 {
		return fmt.Errorf("flush finished with %d errors", failures)
	}
	return nil
}

// Clear drops every entry. Counters keep running.
func (c *Cache) Clear() { c.cacher.Clear() }

// Len returns the number of resident entries.
func (c *Cache) Len() int64 { return c.cacher.Len() }

// Mem returns the approximate resident payload memory in bytes.
func (c *Cache) Mem() int64 { return c.cacher.Mem() }

// Stats is a point-in-time reading of the cache counters.
type Stats struct {
	Len               int64
	Mem               int64
	Hits              int64
	Misses            int64
	HitRatio          float64
	AdmissionAllowed  int64
	AdmissionRejected int64
	EvictedItems      int64
	EvictedBytes      int64
	Refreshed         int64
	RefreshErrors     int64
	Flushed           int64
	FlushRetries      int64
	FlushFailed       int64
}

// Stats samples every counter source in one pass.
func (c *Cache) Stats() Stats {
	s := c.sampler.Sample()
	return Stats{
		Len:               s.Len,
		Mem:               s.Mem,
		Hits:              s.Hits,
		Misses:            s.Misses,
		HitRatio:          s.HitRatio(),
		AdmissionAllowed:  s.AdmissionAllowed,
		AdmissionRejected: s.AdmissionRejected,
		EvictedItems:      s.HardEvictedItems + s.SoftEvictedItems,
		EvictedBytes:      s.HardEvictedBytes + s.SoftEvictedBytes,
		Refreshed:         s.Refreshed,
		RefreshErrors:     s.RefreshErrors,
		Flushed:           s.Flushed,
		FlushRetries:      s.FlushRetries,
		FlushFailed:       s.FlushFailed,
	}
}

// MetricsCollector returns a Prometheus collector over the cache counters.
// Registration is left to the caller.
func (c *Cache) MetricsCollector(namespace string) prometheus.Collector {
	return telemetry.NewCollector(namespace, c.sampler)
}
