package refresher

// NoOp is used when the lifetime section is absent: entries never expire and
// no background refresh runs.
type NoOp struct{}

// Metrics always returns zero values.
func (NoOp) Metrics() (affected, errors, scans, hits, misses int64) {
	return 0, 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOp) Close() error {
	return nil
}
