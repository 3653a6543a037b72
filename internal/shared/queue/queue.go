// Package queue holds a fixed-capacity ring buffer of key hashes. Shards use
// it for refresh candidates and the flusher for dirty keys; overflow is
// reported to the caller instead of growing the buffer.
package queue

import "sync"

type Ring struct {
	mu         sync.Mutex
	buf        []uint64
	head, tail int
}

func (q *Ring) Init(capacity int) {
	if capacity < 2 {
		capacity = 2
	}
	q.buf = make([]uint64, capacity)
	q.head, q.tail = 0, 0
}

// TryPush enqueues k, returning false when the ring is full.
func (q *Ring) TryPush(k uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := (q.head + 1) % len(q.buf)
	if next == q.tail {
		return false
	}
	q.buf[q.head] = k
	q.head = next
	return true
}

// TryPop dequeues the oldest key, returning false when empty.
func (q *Ring) TryPop() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail {
		return 0, false
	}
	v := q.buf[q.tail]
	q.tail = (q.tail + 1) % len(q.buf)
	return v, true
}

// Len reports the number of queued keys.
func (q *Ring) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= q.tail {
		return q.head - q.tail
	}
	return len(q.buf) - q.tail + q.head
}
