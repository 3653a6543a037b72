// Package stratacache is an embeddable in-process cache for web backends.
// It layers the classic caching strategies over one sharded store: cache-aside
// and read-through on the read path, write-through, write-around and
// write-behind on the write path, with refresh-ahead, TinyLFU admission,
// memory-bound eviction, priming, persistence across restarts and built-in
// hit/miss telemetry.
package stratacache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
	"github.com/stratacache/go-strata-cache/internal/evictor"
	"github.com/stratacache/go-strata-cache/internal/flusher"
	"github.com/stratacache/go-strata-cache/internal/refresher"
	"github.com/stratacache/go-strata-cache/internal/shared/cachedtime"
	"github.com/stratacache/go-strata-cache/internal/snapshot"
	"github.com/stratacache/go-strata-cache/internal/telemetry"
)

const defaultStatsLogsInterval = time.Minute

// Cache is the strategy facade over the store and its workers. Safe for
// concurrent use; Close must be called to stop workers and persist state.
type Cache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Cache
	logger    *slog.Logger
	source    Source
	cacher    *cache.Cache
	evictor   evictor.Evictor
	refresher refresher.Refresher
	flusher   flusher.Flusher
	snapshots *snapshot.Manager
	sampler   *telemetry.Sampler
	reporter  *telemetry.Reporter
}

// New builds a cache from cfg. source may be nil, which disables the
// read-through and write strategies; snapshot restore runs before New
// returns, so a warm restart serves from memory immediately.
func New(ctx context.Context, cfg *config.Cache, source Source, logger *slog.Logger) (*Cache, error) {
	if cfg == nil {
		return nil, errors.New("nil cache config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Adjust()

	ctx, cancel := context.WithCancel(ctx)
	if cfg.Store.CachedTimeEnabled {
		cachedtime.StopOnDone(ctx)
	}

	cacher := cache.New(ctx, cfg, logger)
	eviction := evictor.New(ctx, cfg.Eviction, logger, cacher)
	lifetime := refresher.New(ctx, cfg.Lifetime, logger, cacher)

	var sink flusher.Sink
	if source != nil {
		sink = source.Store
	}
	flushing := flusher.New(ctx, cfg.WriteBehind, logger, cacher, sink, clock.New())

	c := &Cache{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		logger:    logger,
		source:    source,
		cacher:    cacher,
		evictor:   eviction,
		refresher: lifetime,
		flusher:   flushing,
		sampler:   telemetry.NewSampler(cacher, eviction, lifetime, flushing),
	}

	if cfg.Store.StatsLogsEnabled {
		interval := cfg.Store.StatsLogsInterval
		if interval <= 0 {
			interval = defaultStatsLogsInterval
		}
		c.reporter = telemetry.NewReporter(ctx, c.sampler, logger, interval)
	}

	if cfg.Snapshot.Enabled() {
		c.snapshots = snapshot.NewManager(cfg.Snapshot, cacher)
		if err := c.snapshots.Load(ctx); err != nil {
			// a missing snapshot on first start is expected
			logger.Warn("snapshot restore skipped", "error", err)
		} else {
			c.requeueDirty(ctx)
		}
	}

	return c, nil
}

// Close flushes every dirty entry, dumps a snapshot when persistence is on
// and stops all workers. The cache must not be used afterwards.
func (c *Cache) Close() error {
	var errs []error

	if c.source != nil {
		if err := c.Flush(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if c.snapshots != nil {
		if err := c.snapshots.Dump(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, c.flusher.Close(), c.refresher.Close(), c.evictor.Close())
	if c.reporter != nil {
		errs = append(errs, c.reporter.Close())
	}
	c.cancel()

	return errors.Join(errs...)
}

// requeueDirty hands snapshot-restored dirty entries back to the flusher, so
// writes that were pending at the previous shutdown still reach the source.
func (c *Cache) requeueDirty(ctx context.Context) {
	var requeued atomic.Int64
	c.cacher.WalkEntries(ctx, func(e *model.Entry) bool {
		if e.IsDirty() && c.flusher.Enqueue(e.Key().Value()) {
			requeued.Add(1)
		}
		return true
	}, false)
	if n := requeued.Load(); n > 0 {
		c.logger.Info("restored dirty entries requeued for flushing", "count", n)
	}
}
