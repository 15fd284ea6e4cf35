package decibel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

const limiterKey = "decibel"

// Quoter prices swaps either from the Decibel HTTP API or from a static
// price table. Any failure is logged and reported as a nil quote.
type Quoter struct {
	cfg     domain.DecibelConfig
	prices  map[string]float64
	client  *http.Client
	limiter ports.RateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

type QuoterOption func(*Quoter)

func WithHTTPClient(client *http.Client) QuoterOption {
	return func(q *Quoter) {
		if client != nil {
			q.client = client
		}
	}
}

func WithQuoterClock(now func() time.Time) QuoterOption {
	return func(q *Quoter) {
		q.now = now
	}
}

func NewQuoter(cfg domain.DecibelConfig, limiter ports.RateLimiter, logger *slog.Logger, opts ...QuoterOption) *Quoter {
	if logger == nil {
		logger = slog.Default()
	}

	prices := make(map[string]float64, len(cfg.Prices))
	for pair, price := range cfg.Prices {
		if from, to, ok := strings.Cut(pair, "/"); ok {
			prices[pairKey(from, to)] = price
		}
	}

	q := &Quoter{
		cfg:     cfg,
		prices:  prices,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		logger:  logger.With("component", "decibel-quoter", "source", cfg.QuoteSource),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Quoter) GetQuote(ctx context.Context, req ports.QuoteRequest) *ports.Quote {
	q.logger.Debug("fetching quote",
		"from_token", req.FromToken,
		"to_token", req.ToToken,
		"amount", req.Amount)

	if q.cfg.QuoteSource == domain.QuoteSourceAPI {
		quote, err := q.fetch(ctx, req)
		if err != nil {
			q.logger.Error("error fetching quote", "error", err.Error())
			return nil
		}
		return quote
	}
	return q.simulate(req)
}

func (q *Quoter) simulate(req ports.QuoteRequest) *ports.Quote {
	price, ok := q.prices[pairKey(req.FromToken, req.ToToken)]
	if !ok {
		price = q.cfg.DefaultPrice
	}

	now := q.now()
	return &ports.Quote{
		QuoteID:      fmt.Sprintf("quote_%d", now.UnixMilli()),
		FromToken:    req.FromToken,
		ToToken:      req.ToToken,
		FromAmount:   req.Amount,
		ToAmount:     req.Amount * price,
		Price:        price,
		EstimatedGas: q.cfg.EstimatedGas,
		Route:        []interface{}{},
		Slippage:     req.Slippage,
		ExpiresAt:    q.expiry(now),
	}
}

type quoteRequestBody struct {
	FromToken string  `json:"fromToken"`
	ToToken   string  `json:"toToken"`
	Amount    float64 `json:"amount"`
	Slippage  float64 `json:"slippage"`
}

func (q *Quoter) fetch(ctx context.Context, req ports.QuoteRequest) (*ports.Quote, error) {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx, limiterKey); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	body, err := xjson.Marshal(quoteRequestBody{
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		Amount:    req.Amount,
		Slippage:  req.Slippage,
	})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(q.cfg.APIURL, "/") + "/quote"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("quote request failed: %s", msg)
	}

	return q.parse(raw, req)
}

// parse accepts the quote either at the top level or under "data".
func (q *Quoter) parse(raw []byte, req ports.QuoteRequest) (*ports.Quote, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid quote response")
	}

	doc := gjson.ParseBytes(raw)
	if data := doc.Get("data"); data.IsObject() {
		doc = data
	}

	quoteID := doc.Get("quoteId").String()
	if quoteID == "" {
		return nil, fmt.Errorf("quote response missing quoteId")
	}

	now := q.now()
	quote := &ports.Quote{
		QuoteID:      quoteID,
		FromToken:    stringOr(doc.Get("fromToken"), req.FromToken),
		ToToken:      stringOr(doc.Get("toToken"), req.ToToken),
		FromAmount:   floatOr(doc.Get("fromAmount"), req.Amount),
		ToAmount:     doc.Get("toAmount").Float(),
		Price:        doc.Get("price").Float(),
		EstimatedGas: doc.Get("estimatedGas").Float(),
		Route:        []interface{}{},
		Slippage:     floatOr(doc.Get("slippage"), req.Slippage),
		ExpiresAt:    q.expiry(now),
	}

	if route, ok := doc.Get("route").Value().([]interface{}); ok {
		quote.Route = route
	}
	if expires := doc.Get("expiresAt"); expires.Exists() {
		if t, err := time.Parse(time.RFC3339, expires.String()); err == nil {
			quote.ExpiresAt = t
		}
	}
	return quote, nil
}

func (q *Quoter) expiry(now time.Time) time.Time {
	if q.cfg.QuoteTTL <= 0 {
		return time.Time{}
	}
	return now.Add(q.cfg.QuoteTTL)
}

func pairKey(from, to string) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to)
}

func stringOr(v gjson.Result, fallback string) string {
	if v.Exists() && v.String() != "" {
		return v.String()
	}
	return fallback
}

func floatOr(v gjson.Result, fallback float64) float64 {
	if v.Exists() {
		return v.Float()
	}
	return fallback
}

var _ ports.QuotePort = (*Quoter)(nil)
