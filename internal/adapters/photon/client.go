package photon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/eleven-am/chainflow/internal/adapters/circuit_breaker"
	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

const (
	campaignEventPath = "/attribution/events/campaign"

	errNotConfigured   = "Photon API Key not configured"
	errInvalidResponse = "Invalid response from Photon API"
)

// upstreamError carries the HTTP status so the breaker can ignore client
// errors that say nothing about upstream health.
type upstreamError struct {
	status  int
	message string
}

func (e *upstreamError) Error() string {
	return e.message
}

func tripsBreaker(err error) bool {
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		return upstream.status >= 500 || upstream.status == http.StatusTooManyRequests
	}
	return true
}

// Client posts campaign events to the Photon attribution API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker ports.CircuitBreaker
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithBreaker(breaker ports.CircuitBreaker) Option {
	return func(c *Client) {
		if breaker != nil {
			c.breaker = breaker
		}
	}
}

func NewClient(cfg domain.PhotonConfig, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = domain.DefaultPhotonAPIURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger.With("component", "photon-client"),
		now:     time.Now,
	}
	c.breaker = circuit_breaker.New("photon", ports.CircuitBreakerConfigFrom(cfg.CircuitBreaker), logger,
		circuit_breaker.WithTripFilter(tripsBreaker))

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RewardEvent(ctx context.Context, event ports.RewardEvent) ports.RewardResult {
	if c.apiKey == "" {
		return ports.RewardResult{Error: errNotConfigured}
	}

	if event.Metadata == nil {
		event.Metadata = map[string]interface{}{}
	}
	if event.Timestamp == "" {
		event.Timestamp = c.now().UTC().Format(time.RFC3339)
	}

	var result ports.RewardResult
	err := c.breaker.Call(ctx, func(callCtx context.Context) error {
		var err error
		result, err = c.post(callCtx, event)
		return err
	})
	if err != nil {
		c.logger.Error("photon reward event error",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error())
		return ports.RewardResult{Error: err.Error()}
	}

	c.logger.Info("photon reward event accepted",
		"event_id", result.EventID,
		"token_amount", result.TokenAmount)
	return result
}

func (c *Client) post(ctx context.Context, event ports.RewardEvent) (ports.RewardResult, error) {
	body, err := xjson.Marshal(event)
	if err != nil {
		return ports.RewardResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+campaignEventPath, bytes.NewReader(body))
	if err != nil {
		return ports.RewardResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.RewardResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ports.RewardResult{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return ports.RewardResult{}, &upstreamError{status: resp.StatusCode, message: msg}
	}

	doc := gjson.ParseBytes(raw)
	data := doc.Get("data")
	if !doc.Get("success").Bool() || !data.Exists() {
		return ports.RewardResult{}, &upstreamError{status: resp.StatusCode, message: errInvalidResponse}
	}

	return ports.RewardResult{
		Success:     true,
		EventID:     data.Get("event_id").String(),
		TokenAmount: data.Get("token_amount").Float(),
	}, nil
}

// BreakerState reports the circuit breaker guarding the Photon API.
func (c *Client) BreakerState() ports.CircuitBreakerState {
	return c.breaker.State()
}

var _ ports.RewardPort = (*Client)(nil)
