package nodes

import (
	"context"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

type RewardHandler struct {
	rewards      ports.RewardPort
	defaultEvent string
	now          func() time.Time
}

// NewRewardHandler wires photonReward nodes to rewards. A nil rewards port
// keeps the node as a static placeholder.
func NewRewardHandler(rewards ports.RewardPort, defaultEvent string) *RewardHandler {
	return &RewardHandler{
		rewards:      rewards,
		defaultEvent: defaultEvent,
		now:          time.Now,
	}
}

func (h *RewardHandler) NodeType() domain.NodeType {
	return domain.NodeTypePhotonReward
}

func (h *RewardHandler) Execute(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
	if h.rewards == nil {
		return domain.Succeeded(map[string]interface{}{
			"message": "Photon reward (not implemented)",
		}), nil
	}

	cfg := req.Node.Config

	clientUserID := stringValue(cfg, "clientUserId")
	if clientUserID == "" {
		return domain.Failed("Client user id is required"), nil
	}

	eventID := stringValue(cfg, "eventId")
	if eventID == "" && req.Context != nil {
		eventID = req.Context.RunID + ":" + req.Node.ID
	}

	metadata := make(map[string]interface{})
	for k, v := range mapValue(cfg, "metadata") {
		metadata[k] = v
	}
	if req.Context != nil {
		metadata["workflow_id"] = req.Context.WorkflowID
		metadata["run_id"] = req.Context.RunID
	}

	event := ports.RewardEvent{
		EventID:      eventID,
		EventType:    stringValueOr(cfg, "eventType", h.defaultEvent),
		ClientUserID: clientUserID,
		CampaignID:   stringValue(cfg, "campaignId"),
		Metadata:     metadata,
		Timestamp:    h.now().UTC().Format(time.RFC3339),
	}

	result := h.rewards.RewardEvent(ctx, event)
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Failed to trigger reward event"
		}
		return domain.Failed(msg), nil
	}

	return domain.Succeeded(map[string]interface{}{
		"eventId":      result.EventID,
		"eventType":    event.EventType,
		"clientUserId": clientUserID,
		"campaignId":   event.CampaignID,
		"tokenAmount":  result.TokenAmount,
	}), nil
}
