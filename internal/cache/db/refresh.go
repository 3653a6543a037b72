package db

import (
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

const rLockSpins, rwLockSpins = 8, 16

// PeekExpired returns the next refresh candidate: queued keys first, random
// sampling as the fallback when the queues run dry.
func (m *Map) PeekExpired() (*model.Entry, bool) {
	if v, ok := m.nextQueuedExpired(); ok {
		return v, true
	}
	const defaultSample = 32
	return m.sampleExpired(defaultSample)
}

// EnqueueExpired puts a key on its shard's refresh queue.
func (m *Map) EnqueueExpired(key uint64) bool { return m.Shard(key).EnqueueRefresh(key) }

// nextQueuedExpired pops queued keys round-robin across shards, re-validating
// freshness before handing an entry out.
func (m *Map) nextQueuedExpired() (*model.Entry, bool) {
	start := int((atomic.AddUint64(&m.iter, 1) - 1) & shardMask)
	for i := 0; i < NumOfShards; i++ {
		sh := m.shards[(start+i)&shardMask]
		if k, ok := sh.DequeueRefresh(); ok {
			if v, ok2 := sh.Get(k); ok2 {
				if v.IsExpired(m.cfg.Lifetime) {
					// caller refreshes; the queued flag clears on success
					return v, true
				}
				// refreshed by someone else in the meantime
				v.DequeueRefresh()
			}
		}
	}
	return nil, false
}

// sampleExpired probes shards for expired entries and returns the stalest of
// up to `sample` hits.
func (m *Map) sampleExpired(sample int) (*model.Entry, bool) {
	var (
		best    *model.Entry
		seen    int
		hits    int
		found   bool
		maxSeen = sample * rwLockSpins
	)

loop:
	for probe := 0; probe < maxSeen; probe++ {
		sh := m.NextShard()
		if sh.Len() == 0 || !sh.tryRLock() {
			continue
		}

		for _, entry := range sh.items {
			if seen >= maxSeen || hits >= sample {
				sh.RUnlock()
				break loop
			}
			if entry.IsExpired(m.cfg.Lifetime) {
				hits++
				if !found || best.UpdatedAt() > entry.UpdatedAt() {
					best = entry
					found = true
				}
			}
			seen++
		}
		sh.RUnlock()
	}

	return best, found
}
