package resilience

import (
	"context"
	"time"
)

// defaultRetryDelay is the bounded backoff before the single retry.
const defaultRetryDelay = 250 * time.Millisecond

// Retry runs fn and, on failure, retries it exactly once after delay.
// A delay <= 0 uses the default. Context cancellation during the backoff
// aborts with the context error; the first attempt's error is dropped in
// favour of the second's.
//
// One retry is all a live voice turn can afford — anything longer is better
// spent apologizing and re-listening.
func Retry[R any](ctx context.Context, delay time.Duration, fn func(context.Context) (R, error)) (R, error) {
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	if delay <= 0 {
		delay = defaultRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	case <-timer.C:
	}

	return fn(ctx)
}
