package snaprestore

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 1 * time.Second
	defaultRetryMax    = 1 * time.Minute
)

// RetryPolicy bounds in-process retries of handler execution errors.
// MaxAttempts is the total number of handler invocations before the
// orchestrator escalates.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		Base:        defaultRetryBase,
		Max:         defaultRetryMax,
	}
}

// Backoff returns the delay before the given retry attempt (1-indexed),
// doubling per attempt and capped at Max.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}

	if p.Max > 0 && d > p.Max {
		return p.Max
	}

	return d
}

// wait blocks for d using the provided clock so tests can control time.
func wait(ctx context.Context, cl clock.Clock, d time.Duration) error {
	if d == 0 {
		return nil
	}

	t := cl.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
