package flusher

import "sync/atomic"

type flusherCounters struct {
	flushed  atomic.Int64 // entries written to the source
	retries  atomic.Int64 // individual retry waits
	failed   atomic.Int64 // flush rounds that exhausted MaxAttempts
	requeued atomic.Int64 // failed entries granted a second round
}

func newFlusherCounters() *flusherCounters {
	return &flusherCounters{}
}

func (c *flusherCounters) snapshot() (flushed, retries, failed, requeued int64) {
	return c.flushed.Load(), c.retries.Load(), c.failed.Load(), c.requeued.Load()
}
