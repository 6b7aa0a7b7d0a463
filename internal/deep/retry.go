package deep

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	backoffInitial    = 200 * time.Millisecond
	backoffMax        = 2 * time.Second
	backoffJitterFrac = 0.2
)

// withRetry retries fn on transient failures with capped exponential backoff.
// maxRetries counts extra attempts beyond the first.
func withRetry(ctx context.Context, maxRetries int, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) || attempt >= maxRetries {
			return err
		}

		t := time.NewTimer(backoffSleep(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

func backoffSleep(attempt int) time.Duration {
	sleep := backoffInitial
	for i := 0; i < attempt && sleep < backoffMax; i++ {
		sleep *= 2
		if sleep > backoffMax {
			sleep = backoffMax
			break
		}
	}
	// Apply +/- jitter.
	j := 1 + (rand.Float64()*2-1)*backoffJitterFrac
	return time.Duration(float64(sleep) * j)
}
