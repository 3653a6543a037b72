// Package cache is the strategy-level layer over the sharded store: key
// hashing with collision checks, hit/miss accounting, admission gating and
// inline hard-limit eviction.
package cache

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache/db"
	"github.com/stratacache/go-strata-cache/internal/cache/db/admission"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

const victimShardsSample, victimKeysSample, hardEvictSpins = 2, 8, 32

type Cacher interface {
	Get(key string, loader model.Loader) ([]byte, error)
	Put(key string, payload []byte, dirty bool) (hash uint64, stored bool)
	Del(key string) bool
	Entry(hash uint64) (*model.Entry, bool)
	Metrics() (hits, misses, admissionAllowed, admissionRejected, hardEvictedItems, hardEvictedBytes int64)
	Clear()
	Len() int64
	Mem() int64
}

// Cache respects the given ctx; background iteration stops once it ends.
type Cache struct {
	admitter admission.Admitter
	cfg      *config.Cache
	db       *db.Map
	logger   *slog.Logger
	counters *counters
}

func New(ctx context.Context, cfg *config.Cache, logger *slog.Logger) *Cache {
	return &Cache{
		cfg:      cfg,
		logger:   logger,
		counters: newCounters(),
		db:       db.NewMap(ctx, cfg),
		admitter: admission.New(cfg.Admission),
	}
}

// Get is the cache-aside read: serve the resident payload on a hit, invoke
// the loader and admit the result on a miss. A loader error caches nothing.
func (c *Cache) Get(key string, loader model.Loader) ([]byte, error) {
	k := model.NewKey(key)
	if entry, ok := c.get(k.Value()); ok {
		if entry.Key().IsTheSame(k) {
			c.counters.hits.Add(1)
			entry.AdoptLoader(loader)
			return entry.PayloadBytes(), nil
		}
		// 64-bit collision with a different key: serve from the loader but
		// leave the resident entry alone.
		c.counters.misses.Add(1)
		entry := model.NewEntry(key, c.cfgTTLNanoseconds(), loader)
		return loader(entry)
	}
	c.counters.misses.Add(1)

	entry := model.NewEntry(key, c.cfgTTLNanoseconds(), loader)
	resp, err := loader(entry)
	if err != nil {
		return nil, err
	}
	entry.SetPayload(resp)
	c.set(entry)

	return resp, nil
}

// Put installs a payload through a write path. An existing entry is updated
// in place so its loader survives; dirty flags the entry for write-behind.
// Writes compare payloads exactly: sampled equality could mistake a changed
// payload for the resident one and keep serving the stale value.
func (c *Cache) Put(key string, payload []byte, dirty bool) (hash uint64, stored bool) {
	k := model.NewKey(key)
	hash = k.Value()

	if old, ok := c.db.Get(hash); ok && old.Key().IsTheSame(k) {
		if bytes.Equal(old.PayloadBytes(), payload) {
			c.touch(old)
		} else {
			in := model.NewEntry(key, c.cfgTTLNanoseconds(), nil)
			in.SetPayload(payload)
			c.update(old, in)
		}
		if dirty {
			old.MarkDirty()
		}
		return hash, true
	}

	entry := model.NewEntry(key, c.cfgTTLNanoseconds(), nil)
	entry.SetPayload(payload)
	if dirty {
		entry.MarkDirty()
	}
	return hash, c.set(entry)
}

func (c *Cache) Del(key string) bool {
	k := model.NewKey(key)

	if entry, ok := c.get(k.Value()); ok {
		if entry.Key().IsTheSame(k) {
			_, ok = c.remove(entry)
			return ok
		}
		// collision: the resident entry belongs to someone else
	}

	return true
}

// Entry resolves a raw hash to its entry; the flusher uses it to read the
// current payload at flush time rather than the one queued.
func (c *Cache) Entry(hash uint64) (*model.Entry, bool) {
	return c.db.Get(hash)
}

// OnTTL applies the configured TTL policy to an expired entry. Entries that
// cannot refresh themselves are removed regardless of mode.
func (c *Cache) OnTTL(entry *model.Entry) error {
	if c.cfg.Lifetime.IsRemoveOnTTL || !entry.Refreshable() {
		c.remove(entry)
		return nil
	}
	return entry.Refresh()
}

func (c *Cache) Len() int64 { return c.db.Len() }
func (c *Cache) Mem() int64 { return c.db.Mem() }
func (c *Cache) Clear()     { c.db.Clear() }

func (c *Cache) Metrics() (hits, misses, admissionAllowed, admissionRejected, hardEvictedItems, hardEvictedBytes int64) {
	return c.counters.snapshot()
}

// WalkEntries iterates all entries with bounded shard concurrency.
func (c *Cache) WalkEntries(ctx context.Context, fn func(entry *model.Entry) bool, rw bool) {
	c.db.WalkShardsConcurrent(ctx, runtime.GOMAXPROCS(0), func(_ uint64, shard *db.Shard) {
		walk := shard.WalkR
		if rw {
			walk = shard.WalkW
		}
		walk(ctx, func(_ uint64, e *model.Entry) bool { return fn(e) })
	})
}

// WalkShards exposes shard iteration for the snapshot writer.
func (c *Cache) WalkShards(ctx context.Context, fn func(id uint64, shard *db.Shard)) {
	c.db.WalkShardsConcurrent(ctx, runtime.GOMAXPROCS(0), fn)
}

// Restore installs a snapshot-loaded entry, bypassing admission: the entry
// earned its place before the restart.
func (c *Cache) Restore(entry *model.Entry) {
	c.db.Set(entry.Key().Value(), entry)
}

func (c *Cache) SoftEvictUntilWithinLimit(backoff int64) (freed, evicted int64) {
	if c.cfg.Eviction.Enabled() {
		freed, evicted = c.db.EvictUntilWithinLimit(c.cfg.Eviction.SoftMemoryLimitBytes, backoff)
	}
	return
}

func (c *Cache) SoftMemoryLimitOvercome() bool {
	return c.cfg.Eviction.Enabled() && c.db.Len() > 0 && c.db.Mem() > c.cfg.Eviction.SoftMemoryLimitBytes
}

func (c *Cache) PeekExpired() (*model.Entry, bool) {
	return c.db.PeekExpired()
}

/**
 * Private API.
 */

func (c *Cache) get(key uint64) (*model.Entry, bool) {
	if entry, found := c.db.Get(key); found {
		return c.touch(entry), true
	}
	return nil, false
}

func (c *Cache) set(entry *model.Entry) bool {
	key := entry.Key().Value()
	c.admitter.Record(key)

	if old, found := c.db.Get(key); found {
		// 64-bit collision with a different 128-bit key: the resident entry
		// keeps its identity and payload
		if !old.Key().IsTheSame(entry.Key()) {
			return false
		}
		if old.IsTheSamePayload(entry) {
			c.touch(old)
		} else {
			c.update(old, entry)
		}
		return true
	}

	if c.admissionActive() {
		_, victim, found := c.db.PickVictim(victimShardsSample, victimKeysSample)
		if !found || !c.admitter.Allow(key, victim.Key().Value()) {
			c.counters.admissionRejected.Add(1)
			return false
		}
		c.counters.admissionAllowed.Add(1)
	}

	if c.hardMemoryLimitOvercome() {
		freedBytes, items := c.hardEvictUntilWithinLimit()
		if freedBytes > 0 || items > 0 {
			c.counters.hardEvictedItems.Add(items)
			c.counters.hardEvictedBytes.Add(freedBytes)
		}
	}

	c.db.Set(key, entry)
	return true
}

func (c *Cache) touch(existing *model.Entry) *model.Entry {
	existing.RenewTouchedAt()
	c.db.Touch(existing.Key().Value())
	// expired entries go to the per-shard refresh queue on access
	if existing.IsExpired(c.cfg.Lifetime) && existing.EnqueueRefresh() {
		if !c.db.EnqueueExpired(existing.Key().Value()) {
			existing.DequeueRefresh()
		}
	}
	return existing
}

func (c *Cache) update(existing, in *model.Entry) {
	c.db.AddMem(existing.Key().Value(), existing.SwapPayloads(in))
	existing.RenewTouchedAt()
	existing.RenewUpdatedAt()
	existing.DequeueRefresh()
	c.db.Touch(existing.Key().Value())
}

func (c *Cache) remove(entry *model.Entry) (int64, bool) {
	return c.db.Remove(entry.Key().Value())
}

func (c *Cache) cfgTTLNanoseconds() int64 {
	if c.cfg.Lifetime.Enabled() {
		return c.cfg.Lifetime.TTL.Nanoseconds()
	}
	return 0
}

func (c *Cache) hardEvictUntilWithinLimit() (freed, evicted int64) {
	if c.cfg.Eviction.Enabled() {
		freed, evicted = c.db.EvictUntilWithinLimit(c.cfg.Store.SizeBytes, hardEvictSpins)
	}
	return
}

func (c *Cache) hardMemoryLimitOvercome() bool {
	return c.cfg.Eviction.Enabled() && c.db.Len() > 0 && c.db.Mem() > c.cfg.Store.SizeBytes
}

func (c *Cache) admissionActive() bool {
	return c.cfg.Admission.Enabled() && c.db.Len() > 0 && c.db.Mem() > 0
}
