package ports

import (
	"context"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
)

type TransferRequest struct {
	RecipientAddress string
	Amount           float64
}

// TransferPort moves the native asset from the process signing identity.
type TransferPort interface {
	Transfer(ctx context.Context, req TransferRequest) domain.TxResult
}

// Submitter sends a raw native-asset transfer in octas and waits for it to
// land. Errors keep the upstream text so callers can classify them.
type Submitter interface {
	SubmitTransfer(ctx context.Context, recipient string, octas uint64) (string, error)
}

type QuoteRequest struct {
	FromToken string
	ToToken   string
	Amount    float64
	Slippage  float64
}

type Quote struct {
	QuoteID      string        `json:"quoteId"`
	FromToken    string        `json:"fromToken"`
	ToToken      string        `json:"toToken"`
	FromAmount   float64       `json:"fromAmount"`
	ToAmount     float64       `json:"toAmount"`
	Price        float64       `json:"price"`
	EstimatedGas float64       `json:"estimatedGas"`
	Route        []interface{} `json:"route"`
	Slippage     float64       `json:"slippage"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

func (q *Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}

// QuotePort returns nil on any fetch failure.
type QuotePort interface {
	GetQuote(ctx context.Context, req QuoteRequest) *Quote
}

type SwapRequest struct {
	Quote       *Quote
	Destination string
}

type SwapPort interface {
	ExecuteSwap(ctx context.Context, req SwapRequest) domain.TxResult
}

type RewardEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	ClientUserID string                 `json:"client_user_id"`
	CampaignID   string                 `json:"campaign_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
	Timestamp    string                 `json:"timestamp"`
}

type RewardResult struct {
	Success     bool    `json:"success"`
	EventID     string  `json:"eventId,omitempty"`
	TokenAmount float64 `json:"tokenAmount,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type RewardPort interface {
	RewardEvent(ctx context.Context, event RewardEvent) RewardResult
}

type WalletInfo struct {
	Address   string `json:"address"`
	Network   string `json:"network"`
	Ephemeral bool   `json:"ephemeral"`
	Balance   uint64 `json:"balanceOctas"`
}

type WalletPort interface {
	Info(ctx context.Context) (WalletInfo, error)
	Fund(ctx context.Context, octas uint64) error
}
