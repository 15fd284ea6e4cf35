package nodes

import (
	"context"
	"log/slog"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const DefaultSlippage = 0.5

type TradeHandler struct {
	quotes      ports.QuotePort
	swaps       ports.SwapPort
	destination string
	logger      *slog.Logger
}

func NewTradeHandler(quotes ports.QuotePort, swaps ports.SwapPort, destination string, logger *slog.Logger) *TradeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if destination == "" {
		destination = domain.PlaceholderSwapDest
	}
	return &TradeHandler{
		quotes:      quotes,
		swaps:       swaps,
		destination: destination,
		logger:      logger.With("component", "trade-handler"),
	}
}

func (h *TradeHandler) NodeType() domain.NodeType {
	return domain.NodeTypeDecibelTrade
}

func (h *TradeHandler) Execute(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
	cfg := req.Node.Config

	fromToken := stringValue(cfg, "fromToken")
	toToken := stringValue(cfg, "toToken")
	amount, ok := numberValue(cfg, "amount")
	if fromToken == "" || toToken == "" || !ok || amount <= 0 {
		return domain.Failed("Trade configuration incomplete"), nil
	}
	slippage := numberValueOr(cfg, "slippage", DefaultSlippage)

	quote := h.quotes.GetQuote(ctx, ports.QuoteRequest{
		FromToken: fromToken,
		ToToken:   toToken,
		Amount:    amount,
		Slippage:  slippage,
	})
	if quote == nil {
		return domain.Failed("Failed to get quote from Decibel"), nil
	}

	h.logger.Info("got quote",
		"quote_id", quote.QuoteID,
		"price", quote.Price,
		"from_token", fromToken,
		"to_token", toToken)

	result := h.swaps.ExecuteSwap(ctx, ports.SwapRequest{
		Quote:       quote,
		Destination: h.destination,
	})
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Trade execution failed"
		}
		return domain.Failed(msg), nil
	}

	output := map[string]interface{}{
		"quoteId":         quote.QuoteID,
		"fromToken":       quote.FromToken,
		"toToken":         quote.ToToken,
		"fromAmount":      quote.FromAmount,
		"toAmount":        quote.ToAmount,
		"price":           quote.Price,
		"estimatedGas":    quote.EstimatedGas,
		"route":           quote.Route,
		"slippage":        quote.Slippage,
		"transactionHash": result.TransactionHash,
		"status":          "completed",
	}
	return domain.SucceededWithTx(output, result.TransactionHash), nil
}
