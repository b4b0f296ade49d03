package workflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Alias1177/MerchantScope/internal/model"
)

// RetryPolicy is applied around every call into an external data source.
// Only errors accepted by Retriable are attempted again; everything else
// fails the call immediately.
type RetryPolicy struct {
	MaxRetries      int // retries after the first attempt
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Retriable       func(error) bool
	OnRetry         func(err error, wait time.Duration)
}

// DefaultRetryPolicy retries transient data source failures with exponential backoff
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Retriable:       model.IsRetriable,
	}
}

// Do runs op until it succeeds, fails permanently, exhausts the retries or
// ctx is done. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	retriable := p.Retriable
	if retriable == nil {
		retriable = model.IsRetriable
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := op(ctx)
		if err != nil && !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.InitialInterval = p.InitialInterval
	backoffStrategy.MaxInterval = p.MaxInterval
	backoffStrategy.Multiplier = p.Multiplier
	backoffStrategy.MaxElapsedTime = 0 // bounded by MaxRetries and ctx

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoffStrategy, uint64(maxRetries)), ctx)

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = p.OnRetry
	}

	err := backoff.RetryNotify(operation, b, notify)
	return attempts, err
}
