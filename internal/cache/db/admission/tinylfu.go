package admission

import (
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/config"
)

// sharded splits the sketch and doorkeeper across independent segments keyed
// by the low hash bits, trading a little accuracy for less CAS contention.
type sharded struct {
	mask   uint64
	shards []segment
}

type segment struct {
	sketch sketch
	door   doorkeeper
	_      [64]byte // cacheline padding between segments
}

func newSharded(cfg *config.AdmissionCfg) *sharded {
	shards := nextPow2(cfg.Shards)
	perShard := cfg.Capacity / shards
	if perShard < 1 {
		perShard = 1
	}

	tblLen := nextPow2(perShard)
	if tblLen < cfg.MinTableLenPerShard {
		tblLen = nextPow2(cfg.MinTableLenPerShard)
	}

	out := &sharded{
		mask:   uint64(shards - 1),
		shards: make([]segment, shards),
	}
	for i := range out.shards {
		out.shards[i].sketch.init(uint32(tblLen), uint32(cfg.SampleMultiplier))
		out.shards[i].door.init(uint32(tblLen * cfg.DoorBitsPerCounter))
	}
	return out
}

// Record bumps the sketch only for keys the doorkeeper has seen before, so a
// single stray access costs one bit, not four counters.
func (a *sharded) Record(h uint64) {
	seg := &a.shards[h&a.mask]
	if seg.door.seenOrAdd(h) {
		seg.sketch.increment(h)
	}
}

// Allow admits a candidate only when its estimated frequency strictly beats
// the victim's. Unseen candidates are rejected outright; ties keep the
// resident entry to avoid churn.
func (a *sharded) Allow(candidate, victim uint64) bool {
	if candidate == victim {
		return true
	}

	candSeg := &a.shards[candidate&a.mask]
	if !candSeg.door.probablySeen(candidate) {
		return false
	}

	cf := candSeg.sketch.estimate(candidate)
	vf := a.shards[victim&a.mask].sketch.estimate(victim)
	return cf > vf
}

func (a *sharded) Estimate(h uint64) uint8 {
	return a.shards[h&a.mask].sketch.estimate(h)
}

func (a *sharded) Reset() {
	for i := range a.shards {
		a.shards[i].sketch.age()
		a.shards[i].door.reset()
	}
}

// sketch is a count-min sketch of 4-bit counters, 16 packed per word. Each
// key touches four mixed indices; the estimate is the minimum of the four.
// Counters halve once the access window fills (TinyLFU aging).
type sketch struct {
	words   []uint64
	mask    uint32
	adds    atomic.Uint64
	resetAt uint64
	aging   atomic.Uint32
}

const (
	nibbleMask    = 0xF
	halvedMask    = 0x7777777777777777 // keeps nibble lanes intact after >>1
	defaultWindow = 10
)

func (s *sketch) init(tableLenPow2, sampleMultiplier uint32) {
	if tableLenPow2 == 0 || tableLenPow2&(tableLenPow2-1) != 0 {
		panic("admission: sketch table length must be a power of two")
	}
	s.words = make([]uint64, (tableLenPow2+15)/16)
	s.mask = tableLenPow2 - 1
	if sampleMultiplier == 0 {
		sampleMultiplier = defaultWindow
	}
	s.resetAt = uint64(sampleMultiplier) * uint64(tableLenPow2)
}

func (s *sketch) indices(h uint64) (i0, i1, i2, i3 uint32) {
	i0 = uint32(h) & s.mask
	h = mix(h)
	i1 = uint32(h) & s.mask
	h = mix(h)
	i2 = uint32(h) & s.mask
	h = mix(h)
	i3 = uint32(h) & s.mask
	return
}

func (s *sketch) increment(h uint64) {
	s.maybeAge()
	i0, i1, i2, i3 := s.indices(h)
	s.bump(i0)
	s.bump(i1)
	s.bump(i2)
	s.bump(i3)
	s.adds.Add(1)
}

func (s *sketch) estimate(h uint64) uint8 {
	i0, i1, i2, i3 := s.indices(h)
	est := s.lane(i0)
	if c := s.lane(i1); c < est {
		est = c
	}
	if c := s.lane(i2); c < est {
		est = c
	}
	if c := s.lane(i3); c < est {
		est = c
	}
	return est
}

// bump saturates the nibble at 15. Losing an increment to a CAS race is fine
// for an approximate counter.
func (s *sketch) bump(idx uint32) {
	word, shift := idx>>4, uint((idx&0xF)<<2)
	ptr := &s.words[word]
	for {
		old := atomic.LoadUint64(ptr)
		if (old>>shift)&nibbleMask == nibbleMask {
			return
		}
		if atomic.CompareAndSwapUint64(ptr, old, old+(1<<shift)) {
			return
		}
	}
}

func (s *sketch) lane(idx uint32) uint8 {
	word, shift := idx>>4, uint((idx&0xF)<<2)
	return uint8((atomic.LoadUint64(&s.words[word]) >> shift) & nibbleMask)
}

// maybeAge halves all counters once per window; a single goroutine performs
// the pass while others continue unblocked.
func (s *sketch) maybeAge() {
	if s.adds.Load() < s.resetAt {
		return
	}
	if s.aging.CompareAndSwap(0, 1) {
		if s.adds.Load() >= s.resetAt {
			s.age()
			s.adds.Store(0)
		}
		s.aging.Store(0)
	}
}

func (s *sketch) age() {
	for i := range s.words {
		ptr := &s.words[i]
		for {
			old := atomic.LoadUint64(ptr)
			if atomic.CompareAndSwapUint64(ptr, old, (old>>1)&halvedMask) {
				break
			}
		}
	}
}

// doorkeeper is a bloom-style bitset answering "was this key seen this
// window". Three probed bits per key; reset together with sketch aging.
type doorkeeper struct {
	bits []uint64
	mask uint32
}

func (d *doorkeeper) init(totalBits uint32) {
	if totalBits == 0 {
		totalBits = 1
	}
	n := nextPow2(int(totalBits))
	d.bits = make([]uint64, (n+63)/64)
	d.mask = uint32(n - 1)
}

func (d *doorkeeper) reset() {
	for i := range d.bits {
		atomic.StoreUint64(&d.bits[i], 0)
	}
}

func (d *doorkeeper) probes(h uint64) (i0, i1, i2 uint32) {
	i0 = uint32(h) & d.mask
	h = mix(h)
	i1 = uint32(h) & d.mask
	h = mix(h)
	i2 = uint32(h) & d.mask
	return
}

func (d *doorkeeper) probablySeen(h uint64) bool {
	i0, i1, i2 := d.probes(h)
	return d.bit(i0) && d.bit(i1) && d.bit(i2)
}

// seenOrAdd reports whether the key was probably seen; if not, it sets the
// bits and returns false.
func (d *doorkeeper) seenOrAdd(h uint64) bool {
	i0, i1, i2 := d.probes(h)
	if d.bit(i0) && d.bit(i1) && d.bit(i2) {
		return true
	}
	d.setBit(i0)
	d.setBit(i1)
	d.setBit(i2)
	return false
}

func (d *doorkeeper) bit(i uint32) bool {
	return atomic.LoadUint64(&d.bits[i>>6])&(1<<(i&63)) != 0
}

func (d *doorkeeper) setBit(i uint32) {
	ptr := &d.bits[i>>6]
	b := uint64(1) << (i & 63)
	for {
		old := atomic.LoadUint64(ptr)
		if old&b != 0 || atomic.CompareAndSwapUint64(ptr, old, old|b) {
			return
		}
	}
}

// mix is the SplitMix64 finalizer; it derives pseudo-independent probe
// indices from one 64-bit hash.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	return x + 1
}
