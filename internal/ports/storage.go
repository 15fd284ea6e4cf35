package ports

import (
	"context"

	"github.com/eleven-am/chainflow/internal/domain"
)

// RunStore persists runs and their per-node execution records. Every method
// must be safe for concurrent use by independent runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	// FinishRun applies the single terminal transition of a run and returns
	// domain.ErrRunFinalized if the run already reached a terminal status.
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, logs string) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error)

	CreateExecution(ctx context.Context, record *domain.ExecutionRecord) error
	FinishExecution(ctx context.Context, recordID string, outcome domain.ExecutionOutcome) error
	ListExecutions(ctx context.Context, runID string) ([]*domain.ExecutionRecord, error)
}

type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error
	GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error
}

type Store interface {
	RunStore
	WorkflowStore
	Close() error
}
