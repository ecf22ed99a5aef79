package settlement

import (
	"context"
	"time"
)

// withRetry calls fn once and then up to retries more times, waiting backoff
// between tries. Returns nil on the first success, the last error otherwise.
func withRetry(ctx context.Context, retries int, backoff time.Duration, fn func(try int) error) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return lastErr
}

// sleepCtx suspends for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
