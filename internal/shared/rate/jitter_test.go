package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestJitter_PacesTakes spaces tokens out at roughly the configured rate.
func TestJitter_PacesTakes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := NewJitter(ctx, 100)

	start := time.Now()
	for i := 0; i < 20; i++ {
		j.Take()
	}
	elapsed := time.Since(start)

	// 20 tokens at 100/s is ~200ms minus the burst buffer; generous bounds
	// keep the test stable under CI jitter.
	require.Greater(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)
}

// TestJitter_ChanClosesOnCancel closes the token channel on cancellation.
func TestJitter_ChanClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := NewJitter(ctx, 1000)

	j.Take()
	cancel()

	select {
	case <-time.After(2 * time.Second):
		t.Fatal("token channel did not close after cancel")
	case _, ok := <-j.Chan():
		for ok {
			_, ok = <-j.Chan()
		}
	}
}

// TestJitter_MinimumLimit clamps a non-positive limit to one per second.
func TestJitter_MinimumLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := NewJitter(ctx, 0)
	require.Equal(t, 1, j.limit)
}
