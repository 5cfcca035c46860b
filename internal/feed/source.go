package feed

import (
	"context"
	"time"
)

// Source delivers raw live messages. Run blocks until ctx is done, calling
// deliver sequentially in arrival order. Connection handling, including
// reconnects, stays inside the source.
type Source interface {
	Run(ctx context.Context, deliver func([]byte)) error
}

// Pump feeds every message of src into the router until ctx is done.
func Pump(ctx context.Context, src Source, r *Router) error {
	return src.Run(ctx, func(raw []byte) {
		r.Handle(ctx, raw)
	})
}

// backoff doubles the reconnect delay up to a ceiling.
type backoff struct {
	min, max time.Duration
	cur      time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &backoff{min: min, max: max}
}

func (b *backoff) reset() { b.cur = 0 }

// wait sleeps for the next delay. It returns false if ctx ended first.
func (b *backoff) wait(ctx context.Context) bool {
	if b.cur == 0 {
		b.cur = b.min
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	t := time.NewTimer(b.cur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
