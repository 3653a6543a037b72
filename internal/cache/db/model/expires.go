package model

import (
	"math"
	"sync/atomic"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/shared/cachedtime"
	"github.com/stratacache/go-strata-cache/internal/shared/random"
)

// IsExpired reports whether the entry is due for refresh or removal.
// With stochastic refresh enabled the answer is probabilistic: staleness
// raises the odds, so a population of entries created together spreads its
// refreshes instead of expiring as one block.
func (e *Entry) IsExpired(cfg *config.LifetimeCfg) bool {
	if e == nil || !cfg.Enabled() {
		return false
	}
	if cfg.StochasticRefreshEnabled {
		return e.isProbablyExpired(cfg.Beta, cfg.Coefficient)
	}
	return e.isExpired()
}

func (e *Entry) isExpired() bool {
	ttl := atomic.LoadInt64(&e.ttl)
	if ttl == 0 {
		return false
	}
	elapsed := cachedtime.UnixNano() - atomic.LoadInt64(&e.updatedAt)
	return elapsed > ttl
}

// isProbablyExpired draws against the exponential CDF p = 1 - exp(-beta * x)
// where x = elapsed/ttl, after a hard floor of coefficient*ttl. The scheme
// follows the stochastic cache expiration approach from Google's staleness
// paper and RFC 5861.
func (e *Entry) isProbablyExpired(beta, coefficient float64) bool {
	i64TTL := atomic.LoadInt64(&e.ttl)
	if i64TTL == 0 {
		return false
	}

	ttl := float64(i64TTL)
	elapsed := cachedtime.UnixNano() - atomic.LoadInt64(&e.updatedAt)
	if int64(ttl*coefficient) > elapsed {
		return false
	}

	probability := 1 - math.Exp(-beta*(float64(elapsed)/ttl))
	return random.Float64() < probability
}

// EnqueueRefresh claims the refresh-queue slot; only one queue position per
// entry at a time.
func (e *Entry) EnqueueRefresh() bool {
	return atomic.CompareAndSwapInt32(&e.refreshQueued, 0, 1)
}

// DequeueRefresh releases the refresh-queue slot.
func (e *Entry) DequeueRefresh() {
	atomic.StoreInt32(&e.refreshQueued, 0)
}
