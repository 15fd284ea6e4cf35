package ports

import (
	"context"

	"github.com/eleven-am/chainflow/internal/domain"
)

// WorkflowService is the trigger and query surface exposed to transports.
// Execute methods return a domain error only when no run could be started
// for the request; run failures are reported through RunResult.
type WorkflowService interface {
	SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error
	GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error

	ExecuteStored(ctx context.Context, workflowID string, opts RunOptions) (domain.RunResult, error)
	TestWorkflow(ctx context.Context, def *domain.Definition) domain.RunResult

	GetRunDetail(ctx context.Context, runID string) (*domain.RunDetail, error)
	ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error)

	GetHealth() HealthStatus
}
