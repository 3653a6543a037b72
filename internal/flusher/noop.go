package flusher

// NoOp is used when write-behind is disabled or no source is bound. Enqueue
// reports false so callers take the synchronous path.
type NoOp struct{}

// Enqueue always reports false.
func (NoOp) Enqueue(uint64) bool { return false }

// Metrics always returns zero values.
func (NoOp) Metrics() (flushed, retries, failed, requeued int64) {
	return 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOp) Close() error { return nil }
