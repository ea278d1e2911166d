package applier

import (
	"context"
	"time"
)

// RetryPolicy bounds the retries of one action.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries up to five attempts, starting at 200ms and
// capping at 5s between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// calculateBackoff computes the delay before the attempt following attempt.
func (p RetryPolicy) calculateBackoff(attempt int) time.Duration {
	if attempt > 30 {
		return p.MaxBackoff
	}

	// Exponential backoff: initial * 2^(attempt-1)
	backoff := p.InitialBackoff * time.Duration(1<<uint(attempt-1))

	// Cap at max backoff
	if backoff > p.MaxBackoff || backoff <= 0 {
		backoff = p.MaxBackoff
	}

	return backoff
}

// do runs fn until it succeeds, fails permanently, runs out of attempts or
// ctx is done. It returns the number of attempts made and the last error.
func (p RetryPolicy) do(ctx context.Context, onRetry func(attempt int, err error), fn func(context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= maxAttempts {
			return attempt, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		timer := time.NewTimer(p.calculateBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
}
