package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds adapter-internal retries of transient failures.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Attempts   uint
	MaxElapsed time.Duration
}

// DefaultPolicy: base 1s doubling to a 30s cap, at most 5 attempts.
var DefaultPolicy = Policy{Initial: time.Second, Max: 30 * time.Second, Attempts: 5}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = 2
	return b
}

// Retry runs op until it succeeds, fails with a non-transient class, or the
// policy is exhausted. Cancellation of ctx stops it between attempts.
func Retry[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return retryIf(ctx, policy, func(err error) bool { return ClassOf(err) == ClassTransient }, op)
}

func retryIf[T any](ctx context.Context, policy Policy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	opts := []backoff.RetryOption{backoff.WithBackOff(policy.backOff())}
	if policy.Attempts > 0 {
		opts = append(opts, backoff.WithMaxTries(policy.Attempts))
	}
	if policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsed))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return res, err
}
