// Package refresher runs the refresh-ahead worker: it scans for entries past
// (or probabilistically near) their TTL and either reloads them through their
// loader or removes them, depending on the configured TTL mode.
package refresher

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
	"github.com/stratacache/go-strata-cache/internal/shared/rate"
)

// Scan pacing for remove mode, where per-op cost is trivial.
const removeModeRate = 100_000

type Refresher interface {
	Metrics() (affected, errors, scans, hits, misses int64)
	Close() error
}

type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.LifetimeCfg
	cache    *cache.Cache
	logger   *slog.Logger
	jitter   *rate.Jitter
	counters *refresherCounters
	invokeCh chan *model.Entry
}

func New(
	ctx context.Context,
	cfg *config.LifetimeCfg,
	logger *slog.Logger,
	cache *cache.Cache,
) Refresher {
	if !cfg.Enabled() {
		return NoOp{}
	}

	ctx, cancel := context.WithCancel(ctx)

	limit := cfg.Rate
	if cfg.OnTTL != config.TTLModeRefresh {
		limit = removeModeRate
	}

	invokeCap := cfg.Rate
	if invokeCap <= 0 {
		invokeCap = 1
	}

	return (&Worker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		cache:    cache,
		logger:   logger,
		jitter:   rate.NewJitter(ctx, limit),
		counters: newRefresherCounters(),
		invokeCh: make(chan *model.Entry, invokeCap),
	}).run()
}

func (w *Worker) Metrics() (affected, errors, scans, hits, misses int64) {
	return w.counters.snapshot()
}

func (w *Worker) Close() error {
	w.cancel()
	return nil
}

func (w *Worker) run() *Worker {
	w.logger.Info("refresher is running", "mode", w.cfg.OnTTL, "rate", w.cfg.Rate)

	go func() {
		defer w.logger.Info("refresher is stopped")
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

// provider scans for expired entries at the paced rate and feeds consumers.
func (w *Worker) provider() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.jitter.Chan():
			if w.cache.Len() == 0 {
				continue
			}
			w.counters.scans.Add(1)
			entry, ok := w.cache.PeekExpired()
			if !ok {
				w.counters.scanMisses.Add(1)
				continue
			}
			w.counters.scanHits.Add(1)

			select {
			case <-w.ctx.Done():
				return
			case w.invokeCh <- entry:
			}
		}
	}
}

// consumer applies the TTL policy to scanned entries.
func (w *Worker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case entry := <-w.invokeCh:
			if err := w.cache.OnTTL(entry); err == nil {
				w.counters.affected.Add(1)
			} else {
				w.counters.errors.Add(1)
			}
		}
	}
}
