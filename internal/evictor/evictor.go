// Package evictor runs the soft-limit eviction worker. The hard limit is
// enforced inline on insert; this worker trims proactively once usage crosses
// the soft threshold so inserts rarely hit the hard path.
package evictor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache"
)

var ErrEvictorNotResponded = errors.New("evictor not responded")

type Evictor interface {
	ForceCall(timeout time.Duration) error
	Metrics() (scans, hits, evictedItems, evictedBytes int64)
	Close() error
}

type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.EvictionCfg
	logger   *slog.Logger
	cache    *cache.Cache
	counters *evictorCounters
	invokeCh chan struct{}
}

func New(
	ctx context.Context,
	cfg *config.EvictionCfg,
	logger *slog.Logger,
	cache *cache.Cache,
) Evictor {
	if !cfg.Enabled() {
		return NoOp{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&Worker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		counters: newEvictorCounters(),
		invokeCh: make(chan struct{}),
	}).run()
}

// ForceCall triggers an eviction cycle out of band, e.g. from an ops hook.
func (w *Worker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrEvictorNotResponded
	}
	return nil
}

func (w *Worker) Metrics() (scans, hits, evictedItems, evictedBytes int64) {
	return w.counters.snapshot()
}

func (w *Worker) Close() error {
	w.cancel()
	return nil
}

func (w *Worker) run() *Worker {
	w.logger.Info("evictor is running", "calls_per_sec", w.cfg.CallsPerSec, "backoff_spins", w.cfg.BackoffSpinsPerCall)

	go func() {
		defer w.logger.Info("evictor is stopped")
		var wg sync.WaitGroup
		for i := 0; i <= runtime.GOMAXPROCS(0); i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.consumer()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.provider()
		}()
		wg.Wait()
	}()

	return w
}

// provider wakes consumers whenever usage crosses the soft limit.
func (w *Worker) provider() {
	callsPerSec := w.cfg.CallsPerSec
	if callsPerSec <= 0 {
		callsPerSec = 1
	}

	tick := time.NewTicker(time.Second / time.Duration(callsPerSec))
	defer tick.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-tick.C:
			if w.cache.Len() > 0 && w.cache.Mem() > 0 {
				w.counters.scans.Add(1)
				if w.cache.SoftMemoryLimitOvercome() {
					select {
					case <-w.ctx.Done():
						return
					case w.invokeCh <- struct{}{}:
						w.counters.scanHits.Add(1)
					}
				}
			}
		}
	}
}

// consumer evicts until within the soft limit or the spin budget runs out.
func (w *Worker) consumer() {
	spins := w.cfg.BackoffSpinsPerCall
	if spins <= 0 {
		const defaultSpins = 2048
		spins = defaultSpins
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.invokeCh:
			if w.cache.Len() > 0 && w.cache.Mem() > 0 {
				freedBytes, items := w.cache.SoftEvictUntilWithinLimit(spins)
				if items > 0 || freedBytes > 0 {
					w.counters.evictedItems.Add(items)
					w.counters.evictedBytes.Add(freedBytes)
				}
			}
		}
	}
}
