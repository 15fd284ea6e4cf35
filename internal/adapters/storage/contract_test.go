package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Run("run lifecycle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		run := &domain.Run{
			ID:          "run-1",
			WorkflowID:  "wf-1",
			Status:      domain.RunStatusRunning,
			TriggerType: domain.TriggerManual,
			ExecutedAt:  time.Now().UTC(),
		}
		require.NoError(t, store.CreateRun(ctx, run))

		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusRunning, got.Status)
		assert.Nil(t, got.CompletedAt)

		require.NoError(t, store.FinishRun(ctx, "run-1", domain.RunStatusCompleted, "done"))

		got, err = store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, got.Status)
		assert.Equal(t, "done", got.Logs)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("finish run only once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateRun(ctx, &domain.Run{
			ID: "run-1", WorkflowID: "wf-1", Status: domain.RunStatusRunning, ExecutedAt: time.Now(),
		}))
		require.NoError(t, store.FinishRun(ctx, "run-1", domain.RunStatusFailed, "first"))

		err := store.FinishRun(ctx, "run-1", domain.RunStatusCompleted, "second")
		assert.ErrorIs(t, err, domain.ErrRunFinalized)

		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, got.Status)
		assert.Equal(t, "first", got.Logs)
	})

	t.Run("finish run rejects non-terminal status", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateRun(ctx, &domain.Run{
			ID: "run-1", WorkflowID: "wf-1", Status: domain.RunStatusRunning, ExecutedAt: time.Now(),
		}))
		assert.ErrorIs(t, store.FinishRun(ctx, "run-1", domain.RunStatusRunning, ""), domain.ErrInvalidInput)
	})

	t.Run("missing run", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetRun(ctx, "ghost")
		assert.True(t, domain.IsNotFound(err))
		assert.True(t, domain.IsNotFound(store.FinishRun(ctx, "ghost", domain.RunStatusFailed, "")))
	})

	t.Run("list runs newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, id := range []string{"r1", "r2", "r3"} {
			require.NoError(t, store.CreateRun(ctx, &domain.Run{
				ID: id, WorkflowID: "wf-1", Status: domain.RunStatusRunning,
				ExecutedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, store.CreateRun(ctx, &domain.Run{
			ID: "other", WorkflowID: "wf-2", Status: domain.RunStatusRunning, ExecutedAt: base.Add(time.Hour),
		}))

		runs, err := store.ListRuns(ctx, "wf-1", 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "r3", runs[0].ID)
		assert.Equal(t, "r1", runs[2].ID)

		runs, err = store.ListRuns(ctx, "wf-1", 2)
		require.NoError(t, err)
		assert.Len(t, runs, 2)

		runs, err = store.ListRuns(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 4)
		assert.Equal(t, "other", runs[0].ID)
	})

	t.Run("lists match ids exactly", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, store.CreateRun(ctx, &domain.Run{
			ID: "r1", WorkflowID: "team", Status: domain.RunStatusRunning, ExecutedAt: base,
		}))
		require.NoError(t, store.CreateRun(ctx, &domain.Run{
			ID: "r1:retry", WorkflowID: "team:ops", Status: domain.RunStatusRunning, ExecutedAt: base.Add(time.Minute),
		}))

		runs, err := store.ListRuns(ctx, "team", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "r1", runs[0].ID)

		runs, err = store.ListRuns(ctx, "team:ops", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "r1:retry", runs[0].ID)

		for _, rec := range []struct{ id, runID, workflowID string }{
			{"e1", "r1", "team"},
			{"e2", "r1:retry", "team:ops"},
		} {
			require.NoError(t, store.CreateExecution(ctx, &domain.ExecutionRecord{
				ID:         rec.id,
				WorkflowID: rec.workflowID,
				RunID:      rec.runID,
				NodeID:     "node",
				NodeType:   domain.NodeTypeAptosTransfer,
				Status:     domain.RunStatusRunning,
				StartedAt:  base,
			}))
		}

		records, err := store.ListExecutions(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "e1", records[0].ID)
	})

	t.Run("execution records", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateRun(ctx, &domain.Run{
			ID: "run-1", WorkflowID: "wf-1", Status: domain.RunStatusRunning, ExecutedAt: time.Now(),
		}))

		started := time.Now().UTC()
		for _, id := range []string{"e1", "e2", "e3"} {
			require.NoError(t, store.CreateExecution(ctx, &domain.ExecutionRecord{
				ID:         id,
				WorkflowID: "wf-1",
				RunID:      "run-1",
				NodeID:     "node-" + id,
				NodeType:   domain.NodeTypeAptosTransfer,
				Status:     domain.RunStatusRunning,
				InputData:  map[string]interface{}{"amount": 1.5},
				StartedAt:  started,
			}))
		}

		require.NoError(t, store.FinishExecution(ctx, "e1", domain.ExecutionOutcome{
			Status:          domain.RunStatusCompleted,
			OutputData:      map[string]interface{}{"transactionHash": "0xabc"},
			TransactionHash: "0xabc",
		}))
		require.NoError(t, store.FinishExecution(ctx, "e2", domain.ExecutionOutcome{
			Status:       domain.RunStatusFailed,
			ErrorMessage: "Transfer failed",
		}))

		err := store.FinishExecution(ctx, "e1", domain.ExecutionOutcome{Status: domain.RunStatusFailed})
		assert.ErrorIs(t, err, domain.ErrRecordFinalized)
		assert.True(t, domain.IsNotFound(store.FinishExecution(ctx, "ghost", domain.ExecutionOutcome{Status: domain.RunStatusFailed})))

		records, err := store.ListExecutions(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, "e1", records[0].ID)
		assert.Equal(t, domain.RunStatusCompleted, records[0].Status)
		assert.Equal(t, "0xabc", records[0].TransactionHash)
		assert.Equal(t, map[string]interface{}{"transactionHash": "0xabc"}, records[0].OutputData)
		assert.Equal(t, map[string]interface{}{"amount": 1.5}, records[0].InputData)
		require.NotNil(t, records[0].CompletedAt)

		assert.Equal(t, "e2", records[1].ID)
		assert.Equal(t, domain.RunStatusFailed, records[1].Status)
		assert.Equal(t, "Transfer failed", records[1].ErrorMessage)

		assert.Equal(t, "e3", records[2].ID)
		assert.Equal(t, domain.RunStatusRunning, records[2].Status)
		assert.Nil(t, records[2].CompletedAt)

		empty, err := store.ListExecutions(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("rejects malformed records", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		assert.ErrorIs(t, store.CreateRun(ctx, &domain.Run{ID: "r"}), domain.ErrInvalidInput)
		assert.ErrorIs(t, store.CreateExecution(ctx, &domain.ExecutionRecord{ID: "e", RunID: "r", NodeID: "n"}), domain.ErrInvalidInput)
	})

	t.Run("workflows", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		wf := &domain.Workflow{
			ID:       "wf-b",
			Name:     "Payroll",
			IsActive: true,
			Definition: &domain.Definition{
				Nodes: []domain.Node{{ID: "t", Type: domain.NodeTypeSchedule, Config: map[string]interface{}{"interval": 60.0}}},
			},
		}
		require.NoError(t, store.SaveWorkflow(ctx, wf))
		require.NoError(t, store.SaveWorkflow(ctx, &domain.Workflow{ID: "wf-a", Definition: &domain.Definition{}}))

		got, err := store.GetWorkflow(ctx, "wf-b")
		require.NoError(t, err)
		assert.Equal(t, "Payroll", got.Name)
		assert.True(t, got.IsActive)
		require.Len(t, got.Definition.Nodes, 1)
		assert.Equal(t, 60.0, got.Definition.Nodes[0].Config["interval"])

		list, err := store.ListWorkflows(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "wf-a", list[0].ID)

		require.NoError(t, store.DeleteWorkflow(ctx, "wf-a"))
		assert.True(t, domain.IsNotFound(store.DeleteWorkflow(ctx, "wf-a")))

		_, err = store.GetWorkflow(ctx, "wf-a")
		assert.True(t, domain.IsNotFound(err))
	})
}
