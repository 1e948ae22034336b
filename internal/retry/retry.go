// Package retry provides a bounded exponential-backoff combinator for calls
// against the external generation API.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls retry behaviour. Attempts is the total number of tries,
// Delay the wait before the second try, and Backoff the multiplier applied to
// the delay after every failed try.
type Config struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64
}

// DefaultConfig matches the service-wide retry policy for transient API
// failures.
var DefaultConfig = Config{Attempts: 3, Delay: 2 * time.Second, Backoff: 2.0}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops retrying and returns it immediately.
// Timeouts and validation-class failures should be marked permanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do invokes fn until it succeeds, a permanent error is returned, the attempt
// budget is exhausted, or ctx is cancelled. The last error is returned
// unwrapped from any Permanent marker.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.Backoff
	if backoff < 1 {
		backoff = 1
	}

	delay := cfg.Delay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * backoff)
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
