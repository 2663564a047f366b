// Package retry re-runs operations that failed with a retryable store error.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"orgauth/backend/internal/platform/apperr"
)

// Policy bounds the exponential backoff used by Do.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultPolicy retries up to 3 times within 5s.
var DefaultPolicy = Policy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  5 * time.Second,
	MaxRetries:      3,
}

// Do runs op and retries it only while it fails with apperr.CodeStoreUnavailable.
// Invariant, permission, and every other failure is returned on the first attempt.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	var last error
	err := backoff.Retry(func() error {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if !apperr.IsRetryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, bo)
	if err != nil && last != nil {
		return last
	}
	return err
}
