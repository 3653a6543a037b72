// Package warmer primes the cache: a bounded worker pool pushes keys through
// a read-through fetch so a cold process can take traffic with a warm cache.
package warmer

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Fetch loads one key through the cache.
type Fetch func(ctx context.Context, key string) error

// Warm fans keys out over min(concurrency, len(keys)) workers. It returns
// how many keys loaded and how many failed; a cancelled ctx stops the rest.
func Warm(ctx context.Context, logger *slog.Logger, keys []string, concurrency int, fetch Fetch) (loaded, failed int64) {
	if len(keys) == 0 {
		return 0, 0
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	if concurrency > len(keys) {
		concurrency = len(keys)
	}

	var (
		wg     sync.WaitGroup
		ch     = make(chan string, len(keys))
		okCnt  atomic.Int64
		errCnt atomic.Int64
	)

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for key := range ch {
				if ctx.Err() != nil {
					return
				}
				if err := fetch(ctx, key); err != nil {
					errCnt.Add(1)
					logger.Warn("warm key failed", "key", key, "error", err)
					continue
				}
				okCnt.Add(1)
			}
		}()
	}

	for _, key := range keys {
		select {
		case <-ctx.Done():
			close(ch)
			wg.Wait()
			return okCnt.Load(), errCnt.Load()
		case ch <- key:
		}
	}
	close(ch)
	wg.Wait()

	logger.Info("cache warmed", "loaded", okCnt.Load(), "failed", errCnt.Load())
	return okCnt.Load(), errCnt.Load()
}
