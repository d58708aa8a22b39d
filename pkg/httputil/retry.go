package httputil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, 5xx responses) with this type
// so that [RetryWithBackoff] knows to attempt the operation again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped with RetryableError.
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// AttemptError describes a failed attempt. It is passed to the retry
// callbacks and returned once retries are exhausted, so callers can tell
// "ran out of retries" apart from other failures with errors.As.
type AttemptError struct {
	Err           error
	AttemptNumber int
	RetriesLeft   int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d failed (%d retries left): %v", e.AttemptNumber, e.RetriesLeft, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// RetryOptions configures [Retry].
type RetryOptions struct {
	// Retries is the number of additional attempts after the first.
	Retries int

	// Factor multiplies the delay after each failed attempt. Defaults to 2.
	Factor float64

	// MinTimeout is the delay before the first retry. Defaults to 1s.
	MinTimeout time.Duration

	// MaxTimeout caps the delay. Defaults to no cap.
	MaxTimeout time.Duration

	// OnFailedAttempt is called after every failed attempt, including the last.
	OnFailedAttempt func(*AttemptError)

	// OnRetry is called after OnFailedAttempt when another attempt follows,
	// with the delay about to be slept.
	OnRetry func(*AttemptError, time.Duration)

	// ShouldRetry decides whether an error is worth another attempt.
	// Errors it rejects are returned unchanged. Defaults to retrying everything.
	ShouldRetry func(error) bool

	sleep func(context.Context, time.Duration) error
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Factor <= 0 {
		o.Factor = 2
	}
	if o.MinTimeout <= 0 {
		o.MinTimeout = time.Second
	}
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = time.Duration(math.MaxInt64)
	}
	if o.MaxTimeout < o.MinTimeout {
		o.MaxTimeout = o.MinTimeout
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o
}

// policy returns an exponential schedule of MinTimeout * Factor^(n-1),
// capped at MaxTimeout, without jitter.
func (o RetryOptions) policy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.MinTimeout
	b.Multiplier = o.Factor
	b.MaxInterval = o.MaxTimeout
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Retry invokes fn until it succeeds, ShouldRetry rejects its error, the
// context is cancelled, or Retries additional attempts have failed. On
// exhaustion it returns an *AttemptError wrapping the last error with
// RetriesLeft == 0.
func Retry[T any](ctx context.Context, fn func(context.Context) (T, error), opts RetryOptions) (T, error) {
	opts = opts.withDefaults()
	schedule := opts.policy()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return zero, err
		}

		ae := &AttemptError{
			Err:           err,
			AttemptNumber: attempt,
			RetriesLeft:   max(opts.Retries-attempt+1, 0),
		}
		if opts.OnFailedAttempt != nil {
			opts.OnFailedAttempt(ae)
		}
		if ae.RetriesLeft == 0 {
			return zero, ae
		}

		delay := schedule.NextBackOff()
		if opts.OnRetry != nil {
			opts.OnRetry(ae, delay)
		}
		if err := opts.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Do is [Retry] for functions without a result.
func Do(ctx context.Context, opts RetryOptions, fn func(context.Context) error) error {
	_, err := Retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts)
	return err
}

// RetryWithBackoff retries fn up to 3 times with a 1 second initial delay
// that doubles after each attempt. Only errors wrapped with [RetryableError]
// trigger retries; the last error is returned unwrapped from the attempt
// bookkeeping, or ctx.Err() if cancelled.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	err := Do(ctx, RetryOptions{
		Retries:     2,
		Factor:      2,
		MinTimeout:  time.Second,
		ShouldRetry: IsRetryable,
	}, func(context.Context) error { return fn() })

	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Err
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
