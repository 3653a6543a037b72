package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

func refreshCfg(mode config.TTLMode) *config.Cache {
	cfg := &config.Cache{
		Store: config.StoreCfg{SizeBytes: 10 * 1024 * 1024},
		Lifetime: &config.LifetimeCfg{
			OnTTL: mode,
			TTL:   50 * time.Millisecond,
			Rate:  1000,
		},
	}
	cfg.Adjust()
	return cfg
}

// TestWorker_RefreshMode_ReloadsExpired the worker scans expired entries and
// re-invokes their loaders without any further reads.
func TestWorker_RefreshMode_ReloadsExpired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := refreshCfg(config.TTLModeRefresh)
	c := cache.New(ctx, cfg, slog.Default())

	var loads atomic.Int64
	for i := 0; i < 20; i++ {
		_, err := c.Get(fmt.Sprintf("key-%d", i), func(item model.Item) ([]byte, error) {
			loads.Add(1)
			return make([]byte, 128), nil
		})
		require.NoError(t, err)
	}

	w := New(ctx, cfg.Lifetime, slog.Default(), c)
	defer w.Close()

	const wantAtLeast = int64(40) // initial 20 loads plus a refresh round
	checkEach := time.NewTicker(20 * time.Millisecond)
	defer checkEach.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("refreshes never happened; loads: %d", loads.Load())
		case <-checkEach.C:
			if loads.Load() >= wantAtLeast {
				affected, errs, scans, _, _ := w.Metrics()
				require.GreaterOrEqual(t, affected, int64(20))
				require.Equal(t, int64(0), errs)
				require.Greater(t, scans, int64(0))
				require.Equal(t, int64(20), c.Len(), "refresh mode must keep entries resident")
				return
			}
		}
	}
}

// TestWorker_RemoveMode_DropsExpired remove mode empties the cache once the
// TTL elapses.
func TestWorker_RemoveMode_DropsExpired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := refreshCfg(config.TTLModeRemove)
	c := cache.New(ctx, cfg, slog.Default())

	for i := 0; i < 20; i++ {
		_, err := c.Get(fmt.Sprintf("key-%d", i), func(item model.Item) ([]byte, error) {
			return make([]byte, 128), nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, int64(20), c.Len())

	w := New(ctx, cfg.Lifetime, slog.Default(), c)
	defer w.Close()

	checkEach := time.NewTicker(20 * time.Millisecond)
	defer checkEach.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("entries never removed; len: %d", c.Len())
		case <-checkEach.C:
			if c.Len() == 0 {
				affected, _, _, _, _ := w.Metrics()
				require.GreaterOrEqual(t, affected, int64(20))
				return
			}
		}
	}
}

// TestNew_Disabled a nil lifetime config yields an inert no-op.
func TestNew_Disabled(t *testing.T) {
	cfg := &config.Cache{Store: config.StoreCfg{SizeBytes: 1 << 20}}
	cfg.Adjust()
	c := cache.New(context.Background(), cfg, slog.Default())

	w := New(context.Background(), nil, slog.Default(), c)
	require.IsType(t, NoOp{}, w)

	affected, errs, scans, hits, misses := w.Metrics()
	require.Zero(t, affected+errs+scans+hits+misses)
	require.NoError(t, w.Close())
}
