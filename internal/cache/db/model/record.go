package model

import (
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/internal/shared/cachedtime"
)

// Record is the snapshot form of an entry, encoded with msgpack by the
// snapshot package.
type Record struct {
	Origin    string `msgpack:"k"`
	Payload   []byte `msgpack:"p"`
	TTL       int64  `msgpack:"t"`
	UpdatedAt int64  `msgpack:"u"`
	TouchedAt int64  `msgpack:"a"`
	Dirty     bool   `msgpack:"d"`
}

// ToRecord captures the entry state for persistence.
func (e *Entry) ToRecord() Record {
	return Record{
		Origin:    e.origin,
		Payload:   e.PayloadBytes(),
		TTL:       atomic.LoadInt64(&e.ttl),
		UpdatedAt: atomic.LoadInt64(&e.updatedAt),
		TouchedAt: atomic.LoadInt64(&e.touchedAt),
		Dirty:     e.IsDirty(),
	}
}

// Expired reports whether the recorded TTL elapsed by now. The snapshot
// loader uses it to drop entries that went stale while the process was down.
func (r Record) Expired() bool {
	if r.TTL == 0 {
		return false
	}
	return cachedtime.UnixNano()-r.UpdatedAt > r.TTL
}

// FromRecord rebuilds an entry from its snapshot form. The loader is gone
// after a restart; a later read-through may re-attach one via AdoptLoader.
func FromRecord(r Record) *Entry {
	e := NewEntry(r.Origin, r.TTL, nil)
	p := r.Payload
	e.payload.Store(&p)
	atomic.StoreInt64(&e.updatedAt, r.UpdatedAt)
	atomic.StoreInt64(&e.touchedAt, r.TouchedAt)
	if r.Dirty {
		atomic.StoreInt32(&e.dirty, 1)
	}
	return e
}
