package query

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
)

// RetryPolicy decides whether a failed fetch attempt is retried.
// failureCount is the number of failed attempts so far, starting at 1.
type RetryPolicy func(failureCount int, err error) bool

// RetryDelay returns the wait before the next attempt.
type RetryDelay func(failureCount int, err error) time.Duration

// DefaultRetryCount is the number of additional attempts DefaultRetry allows.
const DefaultRetryCount = 2

// DefaultRetry retries everything except authentication and client errors,
// up to DefaultRetryCount additional attempts.
func DefaultRetry(failureCount int, err error) bool {
	return RetryCount(DefaultRetryCount)(failureCount, err)
}

// RetryCount retries transient failures up to n additional attempts.
// Authentication and client errors are never retried.
func RetryCount(n int) RetryPolicy {
	return func(failureCount int, err error) bool {
		if !retryable(err) {
			return false
		}
		return failureCount <= n
	}
}

// RetryNever disables retries.
func RetryNever(int, error) bool { return false }

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch Classify(err) {
	case ClassAuth, ClassClient:
		return false
	}
	return true
}

// ConstantDelay waits d between attempts.
func ConstantDelay(d time.Duration) RetryDelay {
	return func(int, error) time.Duration { return d }
}

// delayBackOff adapts a RetryDelay to backoff.BackOff.
type delayBackOff struct {
	delay    RetryDelay
	failures *int
	lastErr  *error
}

func (b delayBackOff) NextBackOff() time.Duration {
	return b.delay(*b.failures, *b.lastErr)
}

func (b delayBackOff) Reset() {}

func newDefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0
	return b
}

// retryFetch runs fn until it succeeds or opts.retry gives up. onFailure is
// called after every failed attempt with the running failure count.
func retryFetch(ctx context.Context, fn QueryFunc, opts fetchOptions, onFailure func(failures int, err error, retrying bool)) (any, error) {
	var (
		failures int
		lastErr  error
	)
	var b backoff.BackOff
	if opts.retryDelay != nil {
		b = delayBackOff{delay: opts.retryDelay, failures: &failures, lastErr: &lastErr}
	} else {
		b = newDefaultBackOff()
	}
	policy := opts.retry
	if policy == nil {
		policy = RetryNever
	}
	operation := func() (any, error) {
		data, err := callQueryFunc(ctx, fn)
		if err == nil {
			return data, nil
		}
		failures++
		lastErr = err
		retrying := ctx.Err() == nil && policy(failures, err)
		if onFailure != nil {
			onFailure(failures, err, retrying)
		}
		if !retrying {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
}

// callQueryFunc converts a panicking query function into an error so one
// bad fetch cannot take down the process.
func callQueryFunc(ctx context.Context, fn QueryFunc) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("query function panicked: %v", r)
		}
	}()
	return fn(ctx)
}
