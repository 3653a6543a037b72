package cache

import "sync/atomic"

type counters struct {
	hits              atomic.Int64
	misses            atomic.Int64
	admissionAllowed  atomic.Int64
	admissionRejected atomic.Int64
	hardEvictedItems  atomic.Int64
	hardEvictedBytes  atomic.Int64
}

func newCounters() *counters {
	return &counters{}
}

func (c *counters) snapshot() (hits, misses, allowed, rejected, hardEvictedItems, hardEvictedBytes int64) {
	return c.hits.Load(),
		c.misses.Load(),
		c.admissionAllowed.Load(),
		c.admissionRejected.Load(),
		c.hardEvictedItems.Load(),
		c.hardEvictedBytes.Load()
}
