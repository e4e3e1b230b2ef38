package cron

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

const (
	defaultRetryMaxAttempts = 4
	defaultRetryBaseDelay   = 200 * time.Millisecond
)

// RetryPolicy bounds how often a failed job run is retried within one cycle.
type RetryPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultRetryMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	return p
}

// runWithRetry executes op, retrying with jittered exponential backoff while
// the failure is transient. Lock timeouts and dependency outages qualify;
// domain errors surface immediately.
func runWithRetry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	policy = policy.normalized()
	backoff := retry.NewExponential(policy.BaseDelay)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(policy.MaxAttempts, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
