// Package admission implements TinyLFU-style frequency admission: a
// doorkeeper bitset gates one-hit wonders, a 4-bit count-min sketch estimates
// frequency, and a candidate only displaces a victim it beats.
package admission

import (
	"github.com/stratacache/go-strata-cache/config"
)

type Admitter interface {
	// Record observes an access to key hash h.
	Record(h uint64)
	// Allow reports whether candidate should replace victim.
	Allow(candidate, victim uint64) bool
	// Estimate exposes the sketch frequency for diagnostics.
	Estimate(h uint64) uint8
	// Reset forces aging and clears the doorkeeper.
	Reset()
}

func New(cfg *config.AdmissionCfg) Admitter {
	if cfg.Enabled() {
		return newSharded(cfg)
	}
	return NoOp{}
}
