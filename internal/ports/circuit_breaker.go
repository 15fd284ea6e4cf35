package ports

import (
	"context"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
)

type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	MaxRequests      int
	Interval         time.Duration
	OnStateChange    func(name string, from, to CircuitBreakerState)
}

func CircuitBreakerConfigFrom(cfg domain.CircuitBreakerConfig) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          cfg.Timeout,
		MaxRequests:      cfg.MaxRequests,
		Interval:         cfg.Interval,
	}
}

type CircuitBreakerMetrics struct {
	State              CircuitBreakerState `json:"state"`
	FailureCount       int64               `json:"failure_count"`
	SuccessCount       int64               `json:"success_count"`
	ConsecutiveSuccess int64               `json:"consecutive_success"`
	ConsecutiveFailure int64               `json:"consecutive_failure"`
	LastStateChange    time.Time           `json:"last_state_change"`
	TotalRequests      int64               `json:"total_requests"`
	RequestsAllowed    int64               `json:"requests_allowed"`
	RequestsRejected   int64               `json:"requests_rejected"`
}

type CircuitBreaker interface {
	Call(ctx context.Context, fn func(context.Context) error) error
	State() CircuitBreakerState
	Metrics() CircuitBreakerMetrics
	Reset()
}
