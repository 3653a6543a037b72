package model

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/zeebo/xxh3"
)

var ErrNotRefreshable = errors.New("entry has no loader")

// Key is the xxh3 identity of an entry: the 64-bit sum indexes the shard map,
// hi/lo carry the full 128-bit digest to tell collisions apart.
type Key struct {
	v  uint64
	hi uint64
	lo uint64
}

var hasherPool = sync.Pool{New: func() any { return xxh3.New() }}

// NewKey hashes a string key without copying it.
func NewKey(key string) *Key {
	return buildKey(unsafe.Slice(unsafe.StringData(key), len(key)))
}

func buildKey(key []byte) *Key {
	hasher := hasherPool.Get().(*xxh3.Hasher)
	hasher.Reset()
	_, _ = hasher.Write(key)

	u128 := hasher.Sum128()
	k := &Key{v: hasher.Sum64(), hi: u128.Hi, lo: u128.Lo}

	hasherPool.Put(hasher)
	return k
}

// Value returns the 64-bit map index.
func (k *Key) Value() uint64 { return k.v }

// IsTheSame compares full 128-bit identities; two keys with equal Value but
// different hi/lo are a hash collision, not the same entry.
func (k *Key) IsTheSame(other *Key) bool {
	return k.v == other.v && k.hi == other.hi && k.lo == other.lo
}

func (e *Entry) Key() *Key {
	if e == nil {
		return nil
	}
	return e.key
}
