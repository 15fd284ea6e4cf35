package circuit_breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/chainflow/internal/ports"
)

var (
	ErrOpen    = errors.New("circuit breaker is open")
	ErrTimeout = errors.New("circuit breaker request timeout")
)

// Breaker guards calls to one upstream API. A call counts against the
// breaker when it errors, times out, or when ShouldTrip accepts its error.
type Breaker struct {
	name       string
	config     ports.CircuitBreakerConfig
	shouldTrip func(error) bool
	logger     *slog.Logger
	now        func() time.Time

	mu               sync.Mutex
	state            ports.CircuitBreakerState
	metrics          ports.CircuitBreakerMetrics
	openedUntil      time.Time
	halfOpenInFlight int
}

type Option func(*Breaker)

// WithTripFilter limits which errors count as upstream failures. Errors the
// filter rejects are returned to the caller without affecting state.
func WithTripFilter(fn func(error) bool) Option {
	return func(b *Breaker) {
		b.shouldTrip = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

func New(name string, config ports.CircuitBreakerConfig, logger *slog.Logger, opts ...Option) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}

	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}

	b := &Breaker{
		name:       name,
		config:     config,
		shouldTrip: func(error) bool { return true },
		logger:     logger.With("component", "circuit-breaker", "name", name),
		now:        time.Now,
		state:      ports.StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.metrics.LastStateChange = b.now()
	return b
}

func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if !b.admit() {
		b.logger.Debug("request rejected", "state", b.State().String())
		return ErrOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		b.record(true)
		return nil
	}

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		b.record(false)
		return errors.Join(ErrTimeout, err)
	}

	if b.shouldTrip(err) {
		b.record(false)
	} else {
		b.release()
	}
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++

	if b.state == ports.StateOpen && b.now().After(b.openedUntil) {
		b.transition(ports.StateHalfOpen)
	}

	switch b.state {
	case ports.StateClosed:
	case ports.StateHalfOpen:
		if b.halfOpenInFlight >= b.config.MaxRequests {
			b.metrics.RequestsRejected++
			return false
		}
		b.halfOpenInFlight++
	default:
		b.metrics.RequestsRejected++
		return false
	}

	b.metrics.RequestsAllowed++
	return true
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == ports.StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == ports.StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if success {
		b.metrics.SuccessCount++
		b.metrics.ConsecutiveSuccess++
		b.metrics.ConsecutiveFailure = 0
		if b.state == ports.StateHalfOpen && b.metrics.ConsecutiveSuccess >= int64(b.config.SuccessThreshold) {
			b.transition(ports.StateClosed)
		}
		return
	}

	b.metrics.FailureCount++
	b.metrics.ConsecutiveFailure++
	b.metrics.ConsecutiveSuccess = 0

	switch b.state {
	case ports.StateClosed:
		if b.metrics.ConsecutiveFailure >= int64(b.config.FailureThreshold) {
			b.transition(ports.StateOpen)
		}
	case ports.StateHalfOpen:
		b.transition(ports.StateOpen)
	}
}

func (b *Breaker) transition(to ports.CircuitBreakerState) {
	from := b.state
	if from == to {
		return
	}

	b.logger.Info("circuit breaker state change",
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", b.metrics.ConsecutiveFailure)

	b.state = to
	b.metrics.LastStateChange = b.now()
	b.halfOpenInFlight = 0

	switch to {
	case ports.StateOpen:
		b.openedUntil = b.now().Add(b.config.Interval)
	case ports.StateHalfOpen:
		b.metrics.ConsecutiveSuccess = 0
	case ports.StateClosed:
		b.openedUntil = time.Time{}
		b.metrics.ConsecutiveFailure = 0
	}

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) State() ports.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Metrics() ports.CircuitBreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.metrics
	m.State = b.state
	return m
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("circuit breaker reset")
	b.metrics = ports.CircuitBreakerMetrics{LastStateChange: b.now()}
	b.transition(ports.StateClosed)
}

var _ ports.CircuitBreaker = (*Breaker)(nil)
