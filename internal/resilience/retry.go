package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls how a remote call is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the second attempt. It doubles for every
	// further attempt, capped at MaxBackoff.
	Backoff time.Duration

	// MaxBackoff caps the delay between attempts. Zero means 10s.
	MaxBackoff time.Duration

	// Timeout bounds each individual attempt. Zero means no timeout.
	Timeout time.Duration
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that [Retry] returns it immediately. A nil err
// stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with [Permanent].
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// delay returns the wait before attempt n (1-based, n >= 2).
func (p Policy) delay(n int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = 10 * time.Second
	}
	d := p.Backoff
	for i := 2; i < n; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

// Retry calls fn until it succeeds, returns a [Permanent] error, ctx ends or
// MaxAttempts is exhausted. Each attempt gets its own context bounded by
// Timeout. The last error is returned wrapped with the attempt count.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is [Retry] for calls that produce a result.
func RetryValue[R any](ctx context.Context, p Policy, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	attempts := max(p.MaxAttempts, 1)

	var (
		lastErr error
		tried   int
	)
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			if err := sleep(ctx, p.delay(n)); err != nil {
				return zero, fmt.Errorf("resilience: retry aborted after %d attempts: %w", n-1, errors.Join(lastErr, err))
			}
		}

		tried = n
		res, err := attempt(ctx, p.Timeout, fn)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, fmt.Errorf("resilience: aborted after %d attempts: %w", n, errors.Join(err, ctx.Err()))
		}
		if IsPermanent(err) {
			break
		}
	}
	if tried == 1 || IsPermanent(lastErr) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("resilience: giving up after %d attempts: %w", tried, lastErr)
}

func attempt[R any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

func sleep(ctx context.Context, d time.Duration) error {
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
