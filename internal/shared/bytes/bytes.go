package bytes

import (
	"bytes"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Equal compares payloads. Short slices are compared exactly; longer ones by
// hashing three 8-byte samples (head, middle, tail), which is enough to dedup
// repeated writes of the same response body without touching every byte.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) < 32 {
		return bytes.Equal(a, b)
	}

	ha := xxh3.Hash(a[:8]) ^ xxh3.Hash(a[len(a)/2:len(a)/2+8]) ^ xxh3.Hash(a[len(a)-8:])
	hb := xxh3.Hash(b[:8]) ^ xxh3.Hash(b[len(b)/2:len(b)/2+8]) ^ xxh3.Hash(b[len(b)-8:])
	return ha == hb
}

// FmtMem renders a byte count as a two-unit human string, e.g. "3MB 212KB".
func FmtMem(n uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)

	switch {
	case n >= tb:
		return fmt.Sprintf("%dTB %dGB", n/tb, (n%tb)/gb)
	case n >= gb:
		return fmt.Sprintf("%dGB %dMB", n/gb, (n%gb)/mb)
	case n >= mb:
		return fmt.Sprintf("%dMB %dKB", n/mb, (n%mb)/kb)
	case n >= kb:
		return fmt.Sprintf("%dKB %dB", n/kb, n%kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
