package model

import (
	"sync/atomic"
	"time"

	"github.com/stratacache/go-strata-cache/internal/shared/cachedtime"
)

func (e *Entry) SetTTL(ttl time.Duration) {
	atomic.StoreInt64(&e.ttl, ttl.Nanoseconds())
}

func (e *Entry) TTL() int64 {
	return atomic.LoadInt64(&e.ttl)
}

func (e *Entry) UpdatedAt() int64 {
	return atomic.LoadInt64(&e.updatedAt)
}

func (e *Entry) TouchedAt() int64 {
	return atomic.LoadInt64(&e.touchedAt)
}

func (e *Entry) RenewTouchedAt() {
	atomic.StoreInt64(&e.touchedAt, cachedtime.UnixNano())
}

func (e *Entry) RenewUpdatedAt() {
	atomic.StoreInt64(&e.updatedAt, cachedtime.UnixNano())
}

// ForceExpire backdates updatedAt past the TTL so the next expiry check
// fires. Used by tests and ops hooks.
func (e *Entry) ForceExpire() {
	atomic.StoreInt64(&e.updatedAt, cachedtime.UnixNano()-atomic.LoadInt64(&e.ttl)-1)
}
