package db

import (
	"container/list"
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

type LRUMode int

const (
	Listing LRUMode = iota
	Sampling
)

func (sh *Shard) enableLRU() {
	sh.Lock()
	if sh.lru == nil {
		sh.lru = list.New()
		if sh.lidx == nil {
			sh.lidx = make(map[uint64]*list.Element, len(sh.items))
		}
		for k := range sh.items {
			sh.lidx[k] = sh.lru.PushFront(k)
		}
	}
	sh.lruOn = true
	sh.Unlock()
}

func (sh *Shard) disableLRU() {
	sh.Lock()
	sh.lruOn = false
	sh.lru = nil
	sh.lidx = nil
	sh.Unlock()
}

// lruOnInsertUnlocked mutates the list; the caller must hold the write lock.
func (sh *Shard) lruOnInsertUnlocked(key uint64) {
	if !sh.lruOn || sh.lru == nil {
		return
	}
	if el := sh.lidx[key]; el != nil {
		sh.lru.MoveToFront(el)
		return
	}
	sh.lidx[key] = sh.lru.PushFront(key)
}

// lruOnAccessUnlocked mutates the list; the caller must hold the write lock.
// Lock-free callers go through touchLRU instead.
func (sh *Shard) lruOnAccessUnlocked(key uint64) {
	if !sh.lruOn || sh.lru == nil {
		return
	}
	if el := sh.lidx[key]; el != nil {
		sh.lru.MoveToFront(el)
	}
}

// lruOnDeleteUnlocked mutates the list; the caller must hold the write lock.
func (sh *Shard) lruOnDeleteUnlocked(key uint64) {
	if !sh.lruOn || sh.lru == nil {
		return
	}
	if el := sh.lidx[key]; el != nil {
		sh.lru.Remove(el)
		delete(sh.lidx, key)
	}
}

// touchLRU is a best-effort promotion: if the lock is contended the touch is
// skipped rather than stalling a read.
func (sh *Shard) touchLRU(key uint64) {
	if !sh.lruOn || sh.lru == nil {
		return
	}
	if sh.TryLock() {
		if el := sh.lidx[key]; el != nil {
			sh.lru.MoveToFront(el)
		}
		sh.Unlock()
	}
}

func (sh *Shard) lruPeekTail() (key uint64, val *model.Entry, ok bool) {
	if !sh.lruOn || sh.lru == nil {
		return 0, nil, false
	}
	sh.RLock()
	defer sh.RUnlock()
	el := sh.lru.Back()
	if el == nil {
		return 0, nil, false
	}
	k := el.Value.(uint64)
	v, ok := sh.items[k]
	if !ok {
		return 0, nil, false
	}
	return k, v, true
}

func (sh *Shard) lruPopTail() (key uint64, val *model.Entry, ok bool) {
	if !sh.lruOn || sh.lru == nil {
		return 0, nil, false
	}
	sh.Lock()
	defer sh.Unlock()
	el := sh.lru.Back()
	if el == nil {
		return 0, nil, false
	}
	k := el.Value.(uint64)
	v, ok := sh.items[k]
	if !ok {
		// index drifted from the map; repair and report nothing
		sh.lru.Remove(el)
		delete(sh.lidx, k)
		return 0, nil, false
	}
	delete(sh.items, k)
	atomic.AddInt64(&sh.len, -1)
	atomic.AddInt64(&sh.mem, -v.Weight())
	sh.lru.Remove(el)
	delete(sh.lidx, k)
	return k, v, true
}
