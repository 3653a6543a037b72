// Package rate adapts go.uber.org/ratelimit to a token channel so workers can
// select on pacing alongside ctx cancellation.
package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

// NewJitter paces callers at limit ops/sec with a small burst buffer.
func NewJitter(ctx context.Context, limit int) *Jitter {
	if limit < 1 {
		limit = 1
	}
	burst := int(float64(limit) * 0.1)
	if burst < 1 {
		burst = 1
	}
	j := &Jitter{
		limit: limit,
		ch:    make(chan struct{}, burst),
		l:     ratelimit.New(limit),
	}
	go j.provide(ctx)
	return j
}

func (j *Jitter) provide(ctx context.Context) {
	defer close(j.ch)
	for {
		j.l.Take()
		select {
		case <-ctx.Done():
			return
		case j.ch <- struct{}{}:
		}
	}
}

// Take blocks until a token is available.
func (j *Jitter) Take() { <-j.ch }

// Chan exposes the token channel for select loops. The channel closes when
// the owning context is cancelled.
func (j *Jitter) Chan() <-chan struct{} { return j.ch }
