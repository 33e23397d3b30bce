// Package ratelimit provides the token bucket shared by every outbound fetch.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned when a permit cannot be obtained within the timeout
var ErrTimeout = errors.New("rate limit: permit wait timed out")

// Limiter hands out N permits per period. Acquire blocks for at most timeout.
type Limiter struct {
	bucket  *rate.Limiter
	timeout time.Duration
}

// New creates a limiter refilling permits tokens every period, with burst = permits
func New(permits int, period, timeout time.Duration) *Limiter {
	if permits < 1 {
		permits = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Every(period/time.Duration(permits)), permits),
		timeout: timeout,
	}
}

// Acquire takes one permit, waiting up to the configured timeout.
// A cancelled parent context returns its own error; otherwise ErrTimeout.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := l.bucket.Wait(waitCtx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

// Timeout returns the maximum wait per permit
func (l *Limiter) Timeout() time.Duration {
	return l.timeout
}
