package rate_limiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/eleven-am/chainflow/internal/ports"
)

var ErrWaitTimeout = errors.New("wait timeout exceeded")

type entry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// Limiter keeps one token bucket per key and drops buckets that have been
// idle for longer than KeyExpiry.
type Limiter struct {
	name    string
	config  ports.RateLimiterConfig
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]*entry
	allowed atomic.Int64
	denied  atomic.Int64
	done    chan struct{}
	once    sync.Once
}

func NewRateLimiter(name string, config ports.RateLimiterConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 5 * time.Second
	}
	if config.KeyExpiry <= 0 {
		config.KeyExpiry = 10 * time.Minute
	}

	rl := &Limiter{
		name:    name,
		config:  config,
		logger:  logger.With("component", "rate-limiter", "name", name),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *Limiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.entries[key] = e
	}
	e.lastSeen.Store(time.Now().UnixNano())
	return e.limiter
}

func (rl *Limiter) Allow(key string) bool {
	if rl.get(key).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.denied.Add(1)
	return false
}

func (rl *Limiter) Wait(ctx context.Context, key string) error {
	waitCtx, cancel := context.WithTimeout(ctx, rl.config.WaitTimeout)
	defer cancel()

	if err := rl.get(key).Wait(waitCtx); err != nil {
		rl.denied.Add(1)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrWaitTimeout
	}
	rl.allowed.Add(1)
	return nil
}

func (rl *Limiter) Metrics() ports.RateLimiterMetrics {
	rl.mu.Lock()
	active := len(rl.entries)
	rl.mu.Unlock()

	return ports.RateLimiterMetrics{
		AllowedRequests: rl.allowed.Load(),
		DeniedRequests:  rl.denied.Load(),
		ActiveKeys:      active,
	}
}

func (rl *Limiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *Limiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.KeyExpiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.expire(time.Now())
		}
	}
}

func (rl *Limiter) expire(now time.Time) {
	cutoff := now.Add(-rl.config.KeyExpiry).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, e := range rl.entries {
		if e.lastSeen.Load() < cutoff {
			delete(rl.entries, key)
		}
	}
}

var _ ports.RateLimiter = (*Limiter)(nil)
