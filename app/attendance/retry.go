package attendance

import (
	"context"
	"time"
)

// RetryPolicy bounds the render-completeness retries of the classifier
// and carries the fixed pause between attempts. Tests inject a zero-delay
// policy so classification runs without wall-clock waits.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// wait sleeps for the policy delay, returning early if ctx is done.
func (p RetryPolicy) wait(ctx context.Context) {
	if p.Delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.Delay):
	}
}
