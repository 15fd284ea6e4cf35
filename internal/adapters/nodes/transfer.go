package nodes

import (
	"context"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const NativeToken = "APT"

type TransferHandler struct {
	transfers ports.TransferPort
}

func NewTransferHandler(transfers ports.TransferPort) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

func (h *TransferHandler) NodeType() domain.NodeType {
	return domain.NodeTypeAptosTransfer
}

func (h *TransferHandler) Execute(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
	cfg := req.Node.Config

	recipient := stringValue(cfg, "recipientAddress")
	if recipient == "" {
		return domain.Failed("Recipient address is required"), nil
	}

	amount, ok := numberValue(cfg, "amount")
	if !ok || amount <= 0 {
		return domain.Failed("Valid amount is required"), nil
	}

	tokenType := stringValueOr(cfg, "tokenType", NativeToken)
	if tokenType != NativeToken {
		return domain.Failed("Only APT transfers are supported currently"), nil
	}

	result := h.transfers.Transfer(ctx, ports.TransferRequest{
		RecipientAddress: recipient,
		Amount:           amount,
	})
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Transfer failed"
		}
		return domain.Failed(msg), nil
	}

	return domain.SucceededWithTx(map[string]interface{}{
		"recipientAddress": recipient,
		"amount":           amount,
		"tokenType":        tokenType,
		"transactionHash":  result.TransactionHash,
	}, result.TransactionHash), nil
}
