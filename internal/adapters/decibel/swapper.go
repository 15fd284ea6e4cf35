package decibel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const (
	outcomeSuccess     = "success"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
	outcomeExhausted   = "exhausted"
	outcomeExpired     = "expired"
)

// Swapper settles a quote. Settlement is a placeholder transfer of a fixed
// number of octas to the destination; it is coupled to the quote only by id
// and expiry. Rate-limited submissions are retried with backoff, anything
// else fails on the first attempt.
type Swapper struct {
	submitter ports.Submitter
	cfg       domain.DecibelConfig
	limiter   ports.RateLimiter
	metrics   ports.MetricsRecorder
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	jitter    func() float64
}

type SwapperOption func(*Swapper)

func WithSwapperMetrics(metrics ports.MetricsRecorder) SwapperOption {
	return func(s *Swapper) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithSwapperClock(now func() time.Time) SwapperOption {
	return func(s *Swapper) {
		s.now = now
	}
}

func WithSleep(sleep func(context.Context, time.Duration) error) SwapperOption {
	return func(s *Swapper) {
		s.sleep = sleep
	}
}

func NewSwapper(submitter ports.Submitter, cfg domain.DecibelConfig, limiter ports.RateLimiter, logger *slog.Logger, opts ...SwapperOption) *Swapper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}

	s := &Swapper{
		submitter: submitter,
		cfg:       cfg,
		limiter:   limiter,
		metrics:   ports.NoopMetrics{},
		logger:    logger.With("component", "decibel-swapper"),
		now:       time.Now,
		sleep:     sleepContext,
		jitter:    defaultJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Swapper) ExecuteSwap(ctx context.Context, req ports.SwapRequest) domain.TxResult {
	quote := req.Quote
	if quote == nil {
		return domain.TxResult{Error: "Trade execution failed: no quote"}
	}

	destination := req.Destination
	if destination == "" {
		destination = s.cfg.DestinationAddress
	}

	logger := s.logger.With("quote_id", quote.QuoteID, "destination", destination)
	logger.Info("executing swap", "settlement_octas", s.cfg.SettlementOctas)

	var lastErr error
	var lastHash string
	policy := s.cfg.Retry

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		// Backoff can outlive the quote.
		if quote.Expired(s.now()) {
			s.metrics.SwapAttempt(outcomeExpired)
			logger.Warn("refusing expired quote", "attempt", attempt, "expired_at", quote.ExpiresAt)
			return domain.TxResult{TransactionHash: lastHash, Error: fmt.Sprintf("%s: %s", domain.ErrQuoteExpired.Error(), quote.QuoteID)}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, limiterKey); err != nil {
				return domain.TxResult{Error: fmt.Sprintf("swap paced out: %v", err)}
			}
		}

		hash, err := s.submitter.SubmitTransfer(ctx, destination, s.cfg.SettlementOctas)
		if err == nil {
			s.metrics.SwapAttempt(outcomeSuccess)
			logger.Info("swap settled", "tx_hash", hash, "attempt", attempt)
			return domain.TxResult{Success: true, TransactionHash: hash}
		}

		lastErr, lastHash = err, hash
		if !domain.IsRateLimited(err) {
			s.metrics.SwapAttempt(outcomeFailed)
			logger.Warn("swap failed", "attempt", attempt, "error", err.Error())
			return domain.TxResult{TransactionHash: hash, Error: err.Error()}
		}

		s.metrics.SwapAttempt(outcomeRateLimited)
		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoffFor(policy, attempt, s.jitter)
		logger.Warn("swap rate limited, backing off",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay)

		if err := s.sleep(ctx, delay); err != nil {
			return domain.TxResult{Error: fmt.Sprintf("swap cancelled after %d attempts: %v", attempt, err)}
		}
	}

	s.metrics.SwapAttempt(outcomeExhausted)
	logger.Error("swap retries exhausted", "attempts", policy.MaxAttempts, "error", lastErr.Error())
	return domain.TxResult{TransactionHash: lastHash, Error: lastErr.Error()}
}

var _ ports.SwapPort = (*Swapper)(nil)
