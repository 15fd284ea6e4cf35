package nodes

import (
	"context"
	"sync"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

type fakeTransfers struct {
	mu     sync.Mutex
	calls  []ports.TransferRequest
	result domain.TxResult
}

func (f *fakeTransfers) Transfer(ctx context.Context, req ports.TransferRequest) domain.TxResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.result
}

type fakeQuotes struct {
	quote *ports.Quote
	seen  []ports.QuoteRequest
}

func (f *fakeQuotes) GetQuote(ctx context.Context, req ports.QuoteRequest) *ports.Quote {
	f.seen = append(f.seen, req)
	return f.quote
}

type fakeSwaps struct {
	seen   []ports.SwapRequest
	result domain.TxResult
}

func (f *fakeSwaps) ExecuteSwap(ctx context.Context, req ports.SwapRequest) domain.TxResult {
	f.seen = append(f.seen, req)
	return f.result
}

type fakeRewards struct {
	seen   []ports.RewardEvent
	result ports.RewardResult
}

func (f *fakeRewards) RewardEvent(ctx context.Context, event ports.RewardEvent) ports.RewardResult {
	f.seen = append(f.seen, event)
	return f.result
}

func request(nodeType domain.NodeType, cfg map[string]interface{}) *ports.NodeRequest {
	return &ports.NodeRequest{
		Node:    domain.Node{ID: "n1", Type: nodeType, Label: "node", Config: cfg},
		Context: domain.NewExecutionContext("wf-1", "run-1", domain.TriggerManual, nil),
	}
}
