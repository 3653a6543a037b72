// Package cachedtime provides a coarse wall clock updated on a background
// ticker. Entry timestamp bookkeeping calls it on every access, so a 10ms
// resolution trade against time.Now() syscalls is acceptable there.
package cachedtime

import (
	"context"
	"sync/atomic"
	"time"
)

const resolution = 10 * time.Millisecond

var (
	nowUnix atomic.Int64
	stopped atomic.Bool
	done    = make(chan struct{})
)

func init() {
	nowUnix.Store(time.Now().UnixNano())
	ticker := time.NewTicker(resolution)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case tt, ok := <-ticker.C:
				if !ok {
					return
				}
				nowUnix.Store(tt.UnixNano())
			case <-done:
				return
			}
		}
	}()
}

// Now returns the cached wall clock; falls back to time.Now after shutdown.
func Now() time.Time {
	if stopped.Load() {
		return time.Now()
	}
	return time.Unix(0, nowUnix.Load())
}

// UnixNano returns the cached clock reading in nanoseconds.
func UnixNano() int64 {
	if stopped.Load() {
		return time.Now().UnixNano()
	}
	return nowUnix.Load()
}

// Since mirrors time.Since on the cached clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// StopOnDone shuts the updater down once ctx is cancelled. After that all
// readers degrade to the real clock.
func StopOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		if stopped.CompareAndSwap(false, true) {
			close(done)
		}
	}()
}
