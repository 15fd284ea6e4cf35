package ports

import (
	"context"

	"github.com/eleven-am/chainflow/internal/domain"
)

type RunOptions struct {
	TriggerType    domain.TriggerType
	TriggerPayload map[string]interface{}
}

// WorkflowRunner is the single trigger invocation surface of the engine.
type WorkflowRunner interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, def *domain.Definition) domain.RunResult
	ExecuteWorkflowWithOptions(ctx context.Context, workflowID string, def *domain.Definition, opts RunOptions) domain.RunResult
}

type NodeDispatcher interface {
	Dispatch(ctx context.Context, node domain.Node, execCtx *domain.ExecutionContext, input interface{}) *domain.NodeResult
}

type HealthStatus struct {
	Healthy bool                   `json:"healthy"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type HealthCheckProvider interface {
	GetHealth() HealthStatus
}
