package evictor

import "time"

// NoOp is used when the eviction section is absent; the store is unbounded.
type NoOp struct{}

// ForceCall does nothing and returns nil.
func (NoOp) ForceCall(time.Duration) error { return nil }

// Metrics always returns zero values.
func (NoOp) Metrics() (scans, hits, evictedItems, evictedBytes int64) {
	return 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOp) Close() error { return nil }
