package db

import (
	"runtime"
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

const shardsSample, keysSample = 4, 8

// EvictUntilWithinLimit removes victims until memory drops under limit or the
// backoff budget runs out; the budget keeps a single call from hogging locks.
func (m *Map) EvictUntilWithinLimit(limit, backoff int64) (freed, evicted int64) {
	if m.mode == Listing {
		return m.evictByList(limit, backoff)
	}
	return m.evictBySample(limit, backoff)
}

func (m *Map) evictByList(limit, backoff int64) (freed, evicted int64) {
	if m.mode != Listing {
		return 0, 0
	}

	for backoff > 0 {
		if atomic.LoadInt64(&m.mem) <= limit || m.Len() == 0 {
			return freed, evicted
		}
		sh := m.NextShard()
		if sh.Len() == 0 {
			backoff--
			runtime.Gosched()
			continue
		}
		if _, v, ok := sh.lruPopTail(); ok {
			w := v.Weight()
			atomic.AddInt64(&m.mem, -w)
			atomic.AddInt64(&m.len, -1)
			freed += w
			evicted++
		}
		backoff--
	}
	return
}

func (m *Map) evictBySample(limit, backoff int64) (freed, evicted int64) {
	if m.mode != Sampling || m.Mem() <= limit || m.Len() <= 0 {
		return 0, 0
	}

	for atomic.LoadInt64(&m.mem) > limit && backoff > 0 {
		sh, victim, found := m.pickVictimBySample(shardsSample, keysSample)
		if !found || !sh.tryLock() {
			backoff--
			continue
		}
		bytesFreed, hit := sh.RemoveUnlocked(victim.Key().Value())
		sh.Unlock()
		if hit {
			atomic.AddInt64(&m.mem, -bytesFreed)
			atomic.AddInt64(&m.len, -1)
			freed += bytesFreed
			evicted++
		}
		backoff--
	}
	return freed, evicted
}

// PickVictim returns the least recently used candidate under the current
// mode. Admission control compares new inserts against it.
func (m *Map) PickVictim(shardsSample, keysSample int64) (bestShard *Shard, victim *model.Entry, ok bool) {
	if m.mode == Listing {
		return m.pickVictimByList()
	}
	return m.pickVictimBySample(shardsSample, keysSample)
}

func (m *Map) pickVictimByList() (bestShard *Shard, victim *model.Entry, ok bool) {
	if m.mode != Listing {
		return nil, nil, false
	}

	const probes = 8
	start := int((atomic.AddUint64(&m.iter, 1) - 1) & shardMask)

	var (
		haveBest bool
		bestAt   int64
		bestV    *model.Entry
		bestSh   *Shard
	)

	for i := 0; i < probes; i++ {
		sh := m.shards[(start+i)&shardMask]
		if sh.Len() == 0 {
			continue
		}
		if _, v, ok2 := sh.lruPeekTail(); ok2 {
			at := v.TouchedAt()
			if !haveBest || at < bestAt {
				haveBest, bestAt, bestV, bestSh = true, at, v, sh
			}
		}
	}

	if !haveBest {
		return nil, nil, false
	}
	return bestSh, bestV, true
}

func (m *Map) pickVictimBySample(shardsSample, keysSample int64) (bestShard *Shard, victim *model.Entry, ok bool) {
	if m.mode != Sampling {
		return
	}

	var (
		bestV    *model.Entry
		bestAt   int64
		bestSh   *Shard
		haveBest bool
	)

	for i := int64(0); i < shardsSample; i++ {
		sh := m.NextShard()
		if sh.Len() == 0 {
			continue
		} else if !sh.tryRLock() {
			runtime.Gosched()
			continue
		}

		toScan := keysSample
		if shardLen := sh.Len(); toScan > shardLen {
			toScan = shardLen
		}

		for _, candidate := range sh.items {
			at := candidate.TouchedAt()
			if !haveBest || at < bestAt {
				bestV, bestAt, bestSh, haveBest = candidate, at, sh, true
			}

			if toScan--; toScan <= 0 {
				break
			}
		}
		sh.RUnlock()
	}

	if !haveBest {
		return nil, nil, false
	}
	return bestSh, bestV, true
}
