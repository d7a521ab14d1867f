package agent

import (
	"context"
	"math"
	"time"

	"github.com/fyrsmithlabs/planify/internal/config"
)

// RetryPolicy controls how failed backend calls are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// RetryPolicyFrom converts the configured policy.
func RetryPolicyFrom(p config.RetryPolicy) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    p.MaxAttempts,
		InitialBackoff: p.InitialBackoff.Duration(),
		MaxBackoff:     p.MaxBackoff.Duration(),
		Multiplier:     p.Multiplier,
	}
}

// Backoff returns the wait before retry n (1-based):
// initial * multiplier^(n-1), capped at MaxBackoff.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(n-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
