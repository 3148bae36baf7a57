package common

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is exponential backoff with randomized (jittered) intervals
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  45 * time.Second,
		MaxRetries:      4,
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2

	var bo backoff.BackOff = b
	if p.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxRetries)
	}
	return backoff.WithContext(bo, ctx)
}

// IsRetryable reports whether err is worth another attempt: HTTP 429, 5xx and transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// Retry runs op until it succeeds, returns a non-retryable error, or the policy gives up.
// onRetry is called before each sleep and may be nil.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error, onRetry func(err error, wait time.Duration)) error {
	wrapped := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, d time.Duration) { onRetry(err, d) }
	}
	return backoff.RetryNotify(wrapped, policy.newBackOff(ctx), notify)
}
