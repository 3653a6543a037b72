package stratacache

import (
	"time"

	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

// Item is the view of a cached entry handed to loaders. A loader may override
// the configured TTL for the value it produced.
type Item interface {
	SetTTL(ttl time.Duration)
}

// Loader fetches a fresh payload for a key. It runs on the miss path and
// again when the refresher renews the entry.
type Loader func(item Item) ([]byte, error)

func (l Loader) internal() model.Loader {
	if l == nil {
		return nil
	}
	return func(item model.Item) ([]byte, error) { return l(item) }
}
