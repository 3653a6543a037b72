package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sharedbytes "github.com/stratacache/go-strata-cache/internal/shared/bytes"
)

// Reporter logs a counter summary on a fixed interval: the running totals
// plus the delta since the previous line, so a log tail reads as rates.
type Reporter struct {
	ctx      context.Context
	cancel   context.CancelFunc
	sampler  *Sampler
	logger   *slog.Logger
	interval time.Duration
}

func NewReporter(ctx context.Context, sampler *Sampler, logger *slog.Logger, interval time.Duration) *Reporter {
	ctx, cancel := context.WithCancel(ctx)
	r := &Reporter{
		ctx:      ctx,
		cancel:   cancel,
		sampler:  sampler,
		logger:   logger,
		interval: interval,
	}
	go r.run()
	return r
}

func (r *Reporter) Close() error {
	r.cancel()
	return nil
}

func (r *Reporter) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	prev := r.sampler.Sample()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			cur := r.sampler.Sample()
			r.report(cur, cur.Delta(prev))
			prev = cur
		}
	}
}

func (r *Reporter) report(total, delta Sample) {
	r.logger.Info("cache stats",
		"len", total.Len,
		"mem", sharedbytes.FmtMem(uint64(total.Mem)),
		"hit_ratio", fmt.Sprintf("%.4f", total.HitRatio()),
		"hits", total.Hits, "hits_d", delta.Hits,
		"misses", total.Misses, "misses_d", delta.Misses,
		"rejected", total.AdmissionRejected, "rejected_d", delta.AdmissionRejected,
		"evicted_items", total.HardEvictedItems+total.SoftEvictedItems,
		"evicted_items_d", delta.HardEvictedItems+delta.SoftEvictedItems,
		"refreshed", total.Refreshed, "refreshed_d", delta.Refreshed,
		"refresh_errors", total.RefreshErrors,
		"flushed", total.Flushed, "flushed_d", delta.Flushed,
		"flush_failed", total.FlushFailed,
	)
}
