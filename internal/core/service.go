package core

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const testWorkflowPrefix = "test-"

// ExecuteWorkflow runs def under workflowID with trigger type manual.
func (m *Manager) ExecuteWorkflow(ctx context.Context, workflowID string, def *domain.Definition) domain.RunResult {
	return m.ExecuteWorkflowWithOptions(ctx, workflowID, def, ports.RunOptions{TriggerType: domain.TriggerManual})
}

// ExecuteWorkflowWithOptions is the trigger entry point shared by every
// caller. Runs started here are tracked so Stop can wait for them.
func (m *Manager) ExecuteWorkflowWithOptions(ctx context.Context, workflowID string, def *domain.Definition, opts ports.RunOptions) domain.RunResult {
	done, err := m.drain.Begin()
	if err != nil {
		return domain.RunResult{Success: false, Error: err.Error()}
	}
	defer done()

	return m.engine.ExecuteWorkflowWithOptions(ctx, workflowID, def, opts)
}

// ExecuteStored loads the stored definition of workflowID and runs it.
// Webhook and schedule triggers only fire active workflows.
func (m *Manager) ExecuteStored(ctx context.Context, workflowID string, opts ports.RunOptions) (domain.RunResult, error) {
	if strings.TrimSpace(workflowID) == "" {
		return domain.RunResult{}, domain.NewValidationError("Workflow ID is required", nil)
	}
	if m.drain.IsDraining() {
		return domain.RunResult{}, domain.ErrDraining
	}

	workflow, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.RunResult{}, err
	}
	if workflow.Definition == nil {
		return domain.RunResult{}, domain.NewValidationError("Invalid workflow definition", map[string]interface{}{
			"workflow_id": workflowID,
		})
	}
	if !workflow.IsActive && opts.TriggerType != domain.TriggerManual {
		return domain.RunResult{}, domain.NewValidationError("Workflow is not active", map[string]interface{}{
			"workflow_id": workflowID,
		})
	}

	return m.ExecuteWorkflowWithOptions(ctx, workflowID, workflow.Definition, opts), nil
}

// TestWorkflow runs an unsaved definition under a throwaway workflow id.
func (m *Manager) TestWorkflow(ctx context.Context, def *domain.Definition) domain.RunResult {
	return m.ExecuteWorkflowWithOptions(ctx, testWorkflowPrefix+uuid.NewString(), def, ports.RunOptions{
		TriggerType: domain.TriggerTest,
	})
}

func (m *Manager) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if workflow == nil || strings.TrimSpace(workflow.ID) == "" {
		return domain.NewValidationError("Workflow ID is required", nil)
	}
	if workflow.Definition == nil {
		return domain.NewConfigError("json_definition", domain.ErrInvalidInput)
	}
	if err := workflow.Definition.Validate(); err != nil {
		return err
	}

	if err := m.store.SaveWorkflow(ctx, workflow); err != nil {
		return err
	}
	m.resync(ctx)
	return nil
}

func (m *Manager) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	return m.store.GetWorkflow(ctx, workflowID)
}

func (m *Manager) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	return m.store.ListWorkflows(ctx)
}

func (m *Manager) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if err := m.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return err
	}
	m.resync(ctx)
	return nil
}

func (m *Manager) GetRunDetail(ctx context.Context, runID string) (*domain.RunDetail, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	executions, err := m.store.ListExecutions(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &domain.RunDetail{Run: run, Executions: executions}, nil
}

func (m *Manager) ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error) {
	return m.store.ListRuns(ctx, workflowID, limit)
}

func (m *Manager) GetHealth() ports.HealthStatus {
	return m.health.GetHealth()
}

// resync applies workflow edits to the schedule without waiting for the
// next periodic sync.
func (m *Manager) resync(ctx context.Context) {
	if !m.config.Scheduler.Enabled {
		return
	}
	if err := m.scheduler.Sync(ctx); err != nil {
		m.logger.Warn("schedule resync failed", "error", err.Error())
	}
}

var (
	_ ports.WorkflowService = (*Manager)(nil)
	_ ports.WorkflowRunner  = (*Manager)(nil)
)
