package nodes

import (
	"context"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

var triggerMessages = map[domain.NodeType]string{
	domain.NodeTypeSchedule:         "Schedule configured",
	domain.NodeTypeWebhookTrigger:   "Webhook configured",
	domain.NodeTypePriceTrigger:     "Price trigger (not implemented)",
	domain.NodeTypeQRPaymentTrigger: "QR payment (not implemented)",
}

// TriggerHandler marks the entry point of a run. It never evaluates a
// condition; it only reports how the run was started.
type TriggerHandler struct {
	nodeType domain.NodeType
}

func NewTriggerHandler(nodeType domain.NodeType) *TriggerHandler {
	return &TriggerHandler{nodeType: nodeType}
}

func (h *TriggerHandler) NodeType() domain.NodeType {
	return h.nodeType
}

func (h *TriggerHandler) Execute(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
	output := map[string]interface{}{
		"message": triggerMessages[h.nodeType],
	}

	if req.Context != nil {
		if req.Context.TriggerType != "" {
			output["triggerType"] = string(req.Context.TriggerType)
		}
		if len(req.Context.TriggerPayload) > 0 {
			output["payload"] = req.Context.TriggerPayload
		}
	}

	return domain.Succeeded(output), nil
}

func TriggerHandlers() []ports.NodeHandler {
	handlers := make([]ports.NodeHandler, 0, len(triggerMessages))
	for _, nodeType := range domain.TriggerTypes() {
		handlers = append(handlers, NewTriggerHandler(nodeType))
	}
	return handlers
}
