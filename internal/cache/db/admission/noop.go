package admission

// NoOp admits everything; used when the admission section is absent.
type NoOp struct{}

func (NoOp) Record(uint64)          {}
func (NoOp) Allow(_, _ uint64) bool { return true }
func (NoOp) Estimate(uint64) uint8  { return 0 }
func (NoOp) Reset()                 {}
