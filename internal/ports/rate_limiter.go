package ports

import (
	"context"
	"time"
)

type RateLimiterConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	WaitTimeout       time.Duration `json:"wait_timeout" yaml:"wait_timeout"`
	KeyExpiry         time.Duration `json:"key_expiry" yaml:"key_expiry"`
}

type RateLimiterMetrics struct {
	AllowedRequests int64 `json:"allowed_requests"`
	DeniedRequests  int64 `json:"denied_requests"`
	ActiveKeys      int   `json:"active_keys"`
}

// RateLimiter paces callers per key. Wait blocks until a token is available,
// the context ends, or the configured wait timeout passes.
type RateLimiter interface {
	Allow(key string) bool
	Wait(ctx context.Context, key string) error
	Metrics() RateLimiterMetrics
	Close()
}
