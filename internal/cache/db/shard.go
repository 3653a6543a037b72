package db

import (
	"container/list"
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
	"github.com/stratacache/go-strata-cache/internal/shared/queue"
)

const refreshQueueCap = 4096

// Shard is an independent segment of the sharded map. Its counters are read
// with atomics so global readers avoid the lock.
type Shard struct {
	sync.RWMutex
	items map[uint64]*model.Entry

	id  uint64
	mem int64 // payload weight in bytes (atomic)
	len int64 // number of items (atomic)

	// LRU bookkeeping (listing mode only)
	lruOn bool
	lru   *list.List
	lidx  map[uint64]*list.Element

	rq queue.Ring // refresh candidates
}

func NewShard(id uint64) *Shard {
	sh := &Shard{id: id, items: make(map[uint64]*model.Entry)}
	sh.rq.Init(refreshQueueCap)
	return sh
}

func (sh *Shard) ID() uint64         { return sh.id }
func (sh *Shard) Weight() int64      { return atomic.LoadInt64(&sh.mem) }
func (sh *Shard) Len() int64         { return atomic.LoadInt64(&sh.len) }
func (sh *Shard) AddMem(delta int64) { atomic.AddInt64(&sh.mem, delta) }

// Set inserts or updates a key and returns deltas for global aggregation.
func (sh *Shard) Set(key uint64, entry *model.Entry) (bytesDelta, lenDelta int64) {
	sh.Lock()
	if old, hit := sh.items[key]; hit {
		sh.items[key] = entry
		sh.lruOnAccessUnlocked(key)

		bytesDelta = entry.Weight() - old.Weight()
		atomic.AddInt64(&sh.mem, bytesDelta)
	} else {
		sh.items[key] = entry
		sh.lruOnInsertUnlocked(key)

		lenDelta = 1
		bytesDelta = entry.Weight()
		atomic.AddInt64(&sh.len, lenDelta)
		atomic.AddInt64(&sh.mem, bytesDelta)
	}
	sh.Unlock()
	return
}

func (sh *Shard) Get(key uint64) (entry *model.Entry, hit bool) {
	sh.RLock()
	entry, hit = sh.items[key]
	sh.RUnlock()
	return
}

func (sh *Shard) Remove(key uint64) (freedBytes int64, hit bool) {
	sh.Lock()
	freedBytes, hit = sh.RemoveUnlocked(key)
	sh.Unlock()
	return
}

// RemoveUnlocked deletes a key while the caller holds the write lock.
func (sh *Shard) RemoveUnlocked(key uint64) (freedBytes int64, hit bool) {
	var old *model.Entry
	if old, hit = sh.items[key]; hit {
		delete(sh.items, key)
		sh.lruOnDeleteUnlocked(key)

		freedBytes = old.Weight()
		atomic.AddInt64(&sh.mem, -freedBytes)
		atomic.AddInt64(&sh.len, -1)
	}
	return
}

// Clear drops every entry; the refresh ring is left as is, stale keys are
// validated and skipped on pop.
func (sh *Shard) Clear() (freedBytes int64, items int64) {
	sh.Lock()
	items = atomic.LoadInt64(&sh.len)
	freedBytes = atomic.LoadInt64(&sh.mem)

	sh.items = make(map[uint64]*model.Entry, items)

	atomic.StoreInt64(&sh.len, 0)
	atomic.StoreInt64(&sh.mem, 0)
	if sh.lru != nil {
		sh.lru.Init()
	}
	if sh.lidx != nil {
		clear(sh.lidx)
	}
	sh.Unlock()
	return
}

// WalkR iterates entries under the read lock. The callback must be light.
func (sh *Shard) WalkR(ctx context.Context, fn func(uint64, *model.Entry) bool) {
	sh.RLock()
	defer sh.RUnlock()
	for k, v := range sh.items {
		select {
		case <-ctx.Done():
			return
		default:
			if !fn(k, v) {
				return
			}
		}
	}
}

// WalkW iterates under the write lock. Use with care.
func (sh *Shard) WalkW(ctx context.Context, fn func(uint64, *model.Entry) bool) {
	sh.Lock()
	defer sh.Unlock()
	for k, v := range sh.items {
		select {
		case <-ctx.Done():
			return
		default:
			if !fn(k, v) {
				return
			}
		}
	}
}

// EnqueueRefresh queues a key as a refresh candidate.
func (sh *Shard) EnqueueRefresh(key uint64) bool { return sh.rq.TryPush(key) }

// DequeueRefresh pops the next queued refresh candidate.
func (sh *Shard) DequeueRefresh() (uint64, bool) { return sh.rq.TryPop() }

func (sh *Shard) tryRLock() bool {
	for i := 0; i < rLockSpins; i++ {
		if sh.TryRLock() {
			return true
		}
		runtime.Gosched()
	}
	return false
}

func (sh *Shard) tryLock() bool {
	for i := 0; i < rwLockSpins; i++ {
		if sh.TryLock() {
			return true
		}
		runtime.Gosched()
	}
	return false
}
