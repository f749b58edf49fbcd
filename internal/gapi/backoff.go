package gapi

import (
	"context"
	"math/rand"
	"time"
)

const (
	backoffAttempts = 5
	backoffBase     = 500 * time.Millisecond
	backoffCap      = 8 * time.Second
)

// Retry runs fn, retrying on Sheets/Drive rate-limit responses (429) with
// exponential backoff and full jitter. Other failures return immediately;
// the gateway's callers own retry policy for everything that is not a
// quota rejection.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < backoffAttempts; attempt++ {
		err = fn()
		if err == nil || StatusCode(err) != 429 {
			return err
		}
		delay := backoffBase << attempt
		if delay > backoffCap {
			delay = backoffCap
		}
		delay = time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
