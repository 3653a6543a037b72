// Package flusher runs the write-behind worker: dirty entries are queued by
// hash and written to the backing source asynchronously, with capped
// exponential retry on source failures.
package flusher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

// Store is the slice of the cache the flusher needs: resolving a queued hash
// to its live entry at flush time, so coalesced writes ship the latest
// payload.
type Store interface {
	Entry(hash uint64) (*model.Entry, bool)
}

// Sink writes one payload to the backing source.
type Sink func(ctx context.Context, key string, payload []byte) error

type Flusher interface {
	// Enqueue schedules a dirty entry for flushing; false means the queue is
	// full and the caller must write synchronously instead.
	Enqueue(hash uint64) bool
	Metrics() (flushed, retries, failed, requeued int64)
	Close() error
}

type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.WriteBehindCfg
	logger   *slog.Logger
	store    Store
	sink     Sink
	clk      clock.Clock
	counters *flusherCounters
	queue    chan uint64
}

func New(
	ctx context.Context,
	cfg *config.WriteBehindCfg,
	logger *slog.Logger,
	store Store,
	sink Sink,
	clk clock.Clock,
) Flusher {
	if !cfg.Enabled() || sink == nil {
		return NoOp{}
	}

	ctx, cancel := context.WithCancel(ctx)

	queueCap := cfg.QueueCapacity
	if queueCap < 1 {
		queueCap = 1024
	}

	return (&Worker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		sink:     sink,
		clk:      clk,
		counters: newFlusherCounters(),
		queue:    make(chan uint64, queueCap),
	}).run()
}

func (w *Worker) Enqueue(hash uint64) bool {
	select {
	case w.queue <- hash:
		return true
	default:
		return false
	}
}

func (w *Worker) Metrics() (flushed, retries, failed, requeued int64) {
	return w.counters.snapshot()
}

func (w *Worker) Close() error {
	w.cancel()
	return nil
}

func (w *Worker) run() *Worker {
	w.logger.Info("flusher is running", "workers", w.cfg.Workers, "queue_capacity", cap(w.queue))

	go func() {
		defer w.logger.Info("flusher is stopped")
		var wg sync.WaitGroup
		for i := 0; i < w.cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.consumer()
			}()
		}
		wg.Wait()
	}()

	return w
}

func (w *Worker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case hash := <-w.queue:
			w.flush(hash)
		}
	}
}

// flush writes one entry out. Entries that got evicted or flushed by another
// path in the meantime are skipped; that is the write coalescing working.
func (w *Worker) flush(hash uint64) {
	entry, ok := w.store.Entry(hash)
	if !ok || !entry.IsDirty() {
		return
	}

	key := entry.Origin()
	payload := entry.PayloadBytes()
	backoff := w.cfg.RetryBackoff

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err := w.sink(w.ctx, key, payload)
		if err == nil {
			entry.ClearDirty()
			entry.ResetFlushFailures()
			w.counters.flushed.Add(1)
			return
		}

		if attempt == w.cfg.MaxAttempts {
			w.fail(entry, hash, err)
			return
		}

		w.counters.retries.Add(1)
		timer := w.clk.Timer(backoff)
		select {
		case <-w.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
	}
}

// fail records an exhausted flush. The entry stays dirty so a later Flush or
// Close can still ship it; one requeue gets a second round through the
// backoff schedule before the entry is left for the synchronous paths.
func (w *Worker) fail(entry *model.Entry, hash uint64, err error) {
	w.counters.failed.Add(1)
	rounds := entry.FlushFailed()

	if rounds < 2 && w.Enqueue(hash) {
		w.counters.requeued.Add(1)
		w.logger.Warn("flush failed, requeued", "key", entry.Origin(), "error", err)
		return
	}

	w.logger.Error("flush failed, entry left dirty", "key", entry.Origin(), "rounds", rounds, "error", err)
}
