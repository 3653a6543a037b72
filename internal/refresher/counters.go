package refresher

import "sync/atomic"

type refresherCounters struct {
	affected   atomic.Int64 // successful refresh/remove operations
	errors     atomic.Int64 // failed refresh loads
	scans      atomic.Int64 // total scan attempts
	scanHits   atomic.Int64 // scans that yielded an expired entry
	scanMisses atomic.Int64 // scans that found nothing
}

func newRefresherCounters() *refresherCounters {
	return &refresherCounters{}
}

func (c *refresherCounters) snapshot() (affected, errors, scans, hits, misses int64) {
	return c.affected.Load(), c.errors.Load(), c.scans.Load(), c.scanHits.Load(), c.scanMisses.Load()
}
