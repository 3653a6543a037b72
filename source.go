package stratacache

import (
	"context"
	"errors"
)

// ErrNoSource is returned by operations that need a backing store when the
// cache was built without one.
var ErrNoSource = errors.New("no source is bound to the cache")

// Source is the backing store behind the cache. Read-through, write-through,
// write-around and write-behind all funnel into these three calls; a cache
// built with a nil Source supports only the cache-aside surface.
type Source interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}
