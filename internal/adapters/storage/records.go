package storage

import (
	"sort"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/xjson"
)

var now = func() time.Time { return time.Now().UTC() }

func validateNewRun(run *domain.Run) error {
	if run == nil || run.ID == "" || run.WorkflowID == "" {
		return domain.NewStorageError("create_run", "", domain.ErrInvalidInput)
	}
	if run.Status != domain.RunStatusPending && run.Status != domain.RunStatusRunning {
		return domain.NewStorageError("create_run", run.ID, domain.ErrInvalidInput)
	}
	return nil
}

func validateNewExecution(record *domain.ExecutionRecord) error {
	if record == nil || record.ID == "" || record.RunID == "" || record.NodeID == "" {
		return domain.NewStorageError("create_execution", "", domain.ErrInvalidInput)
	}
	if record.Status != domain.RunStatusRunning {
		return domain.NewStorageError("create_execution", record.ID, domain.ErrInvalidInput)
	}
	return nil
}

func validateWorkflow(workflow *domain.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return domain.NewStorageError("save_workflow", "", domain.ErrInvalidInput)
	}
	if workflow.Definition == nil {
		return domain.NewStorageError("save_workflow", workflow.ID, domain.ErrInvalidInput)
	}
	return nil
}

func applyOutcome(record *domain.ExecutionRecord, outcome domain.ExecutionOutcome) {
	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = now()
	}
	record.Status = outcome.Status
	record.OutputData = outcome.OutputData
	record.ErrorMessage = outcome.ErrorMessage
	record.TransactionHash = outcome.TransactionHash
	record.CompletedAt = &completedAt
}

func copyRun(run *domain.Run) *domain.Run {
	out := *run
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func copyExecution(record *domain.ExecutionRecord) *domain.ExecutionRecord {
	out := *record
	out.InputData = cloneValue(record.InputData)
	out.OutputData = cloneValue(record.OutputData)
	if record.CompletedAt != nil {
		t := *record.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func copyWorkflow(workflow *domain.Workflow) *domain.Workflow {
	out := *workflow
	if workflow.Definition != nil {
		out.Definition = workflow.Definition.Clone()
	}
	return &out
}

func cloneValue(v interface{}) interface{} {
	out, err := xjson.Normalize(v)
	if err != nil {
		return v
	}
	return out
}

func sortRunsNewestFirst(runs []*domain.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].ExecutedAt.After(runs[j].ExecutedAt)
	})
}

func applyLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
