package model

import (
	"sync/atomic"
	"unsafe"

	sharedbytes "github.com/stratacache/go-strata-cache/internal/shared/bytes"
	"github.com/stratacache/go-strata-cache/internal/shared/cachedtime"
)

// Weight is the accounted size of the entry: struct header plus payload
// capacity. Map/shard bookkeeping runs on these numbers.
func (e *Entry) Weight() int64 {
	return int64(unsafe.Sizeof(*e)) + int64(len(e.origin)) + int64(cap(e.PayloadBytes()))
}

func (e *Entry) PayloadBytes() []byte {
	if ptr := e.payload.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

// SetPayload installs a payload and renews both timestamps; the entry leaves
// any refresh queue it sat in.
func (e *Entry) SetPayload(p []byte) {
	now := cachedtime.UnixNano()
	atomic.StoreInt64(&e.touchedAt, now)
	atomic.StoreInt64(&e.updatedAt, now)
	atomic.StoreInt32(&e.refreshQueued, 0)
	e.payload.Store(&p)
}

// IsTheSamePayload reports payload equality via sampled hashing.
func (e *Entry) IsTheSamePayload(other *Entry) bool {
	a, b := e.PayloadBytes(), other.PayloadBytes()
	if a == nil {
		return b == nil
	}
	if b == nil {
		return false
	}
	return sharedbytes.Equal(a, b)
}

// SwapPayloads moves the other entry's payload into e and returns the weight
// delta for counter adjustment.
func (e *Entry) SwapPayloads(other *Entry) (weightDiff int64) {
	newWeight := other.Weight()
	oldWeight := e.Weight()
	e.payload.Swap(other.payload.Load())
	return newWeight - oldWeight
}
