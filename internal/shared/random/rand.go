// Package random implements a sharded, lock-free SplitMix64 generator.
// The stochastic expiry check runs on every cache read, so the generator has
// to scale with cores; math/rand's global source serializes on a mutex.
package random

import (
	"runtime"
	"sync/atomic"
	"time"
)

type source struct {
	state uint64 // SplitMix64 state, advanced via CAS
}

var (
	sources []source
	mask    uint32
	cursor  uint32
)

// Init sizes the shard set. n <= 0 picks GOMAXPROCS*4, rounded up to a power
// of two for mask indexing.
func Init(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0) * 4
		if n < 1 {
			n = 1
		}
	}
	p := 1
	for p < n {
		p <<= 1
	}

	sources = make([]source, p)
	mask = uint32(p - 1)

	seed := seedState(time.Now().UnixNano())
	for i := range sources {
		sources[i].state = next(&seed)
		if sources[i].state == 0 {
			sources[i].state = golden
		}
	}
	atomic.StoreUint32(&cursor, 0)
}

// Float64 returns a uniform value in [0,1) built from 53 random bits.
func Float64() float64 {
	i := atomic.AddUint32(&cursor, 1) & mask
	x := next(&sources[i].state)
	const inv53 = 1.0 / (1 << 53)
	return float64(x>>11) * inv53
}

// Canonical SplitMix64 constants (Steele et al., public domain).
const (
	golden = 0x9e3779b97f4a7c15
	mul1   = 0xbf58476d1ce4e5b9
	mul2   = 0x94d049bb133111eb
)

func next(s *uint64) uint64 {
	for {
		old := atomic.LoadUint64(s)
		x := old + golden
		if atomic.CompareAndSwapUint64(s, old, x) {
			return mix(x)
		}
	}
}

func mix(z uint64) uint64 {
	z ^= z >> 30
	z *= mul1
	z ^= z >> 27
	z *= mul2
	return z ^ (z >> 31)
}

func seedState(seed int64) uint64 {
	z := mix(uint64(seed) + golden)
	if z == 0 {
		z = golden
	}
	return z
}

func init() { Init(0) }
