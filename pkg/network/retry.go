package network

import (
	"context"
	"time"
)

const retry = 500 * time.Millisecond

// Retry is a doubling backoff for dialing.
type Retry struct {
	t   time.Duration
	max time.Duration
}

func NewRetry(max time.Duration) Retry { return Retry{t: retry, max: max} }

// Fail waits for the current backoff and doubles it.
// It returns false when the context ends first.
func (r *Retry) Fail(ctx context.Context) bool {
	timer := time.NewTimer(r.t)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.t *= 2
	if r.max > 0 && r.t > r.max {
		r.t = r.max
	}
	return true
}

func (r *Retry) Success()            { r.t = retry }
func (r *Retry) Time() time.Duration { return r.t }
