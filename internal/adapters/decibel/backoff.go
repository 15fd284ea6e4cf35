package decibel

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
)

// backoffFor returns the delay after the given failed attempt (1-based):
// initial × multiplier^(attempt-1), jittered by ±20% and capped at max.
func backoffFor(policy domain.RetryConfig, attempt int, jitter func() float64) time.Duration {
	if attempt <= 0 {
		return policy.InitialBackoff
	}

	backoff := float64(policy.InitialBackoff) * math.Pow(policy.Multiplier, float64(attempt-1))

	if policy.Jitter && jitter != nil {
		backoff = backoff * (0.8 + jitter()*0.4)
	}

	if policy.MaxBackoff > 0 && backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}
	return time.Duration(backoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var defaultJitter = rand.Float64
