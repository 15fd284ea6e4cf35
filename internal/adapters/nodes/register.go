package nodes

import (
	"log/slog"

	"github.com/eleven-am/chainflow/internal/ports"
)

type Dependencies struct {
	Transfers       ports.TransferPort
	Quotes          ports.QuotePort
	Swaps           ports.SwapPort
	Rewards         ports.RewardPort
	SwapDestination string
	RewardEvent     string
	Logger          *slog.Logger
}

// RegisterAll installs one handler per node type of the workflow model.
func RegisterAll(registry ports.NodeRegistryPort, deps Dependencies) error {
	handlers := append(TriggerHandlers(),
		NewTransferHandler(deps.Transfers),
		NewTradeHandler(deps.Quotes, deps.Swaps, deps.SwapDestination, deps.Logger),
		NewRewardHandler(deps.Rewards, deps.RewardEvent),
		NewConditionalHandler(),
	)

	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			return err
		}
	}
	return nil
}
