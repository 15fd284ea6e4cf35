package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/chainflow/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStore(sqlx.NewDb(db, "sqlmock"), nil), mock
}

func TestApplySchema_ExecutesAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range schemaStatements {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, ApplySchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	store, mock := newMockStore(t)
	executedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_runs")).
		WithArgs("run-1", "wf-1", "running", "manual", sqlmock.AnyArg(), executedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateRun(context.Background(), &domain.Run{
		ID:          "run-1",
		WorkflowID:  "wf-1",
		Status:      domain.RunStatusRunning,
		TriggerType: domain.TriggerManual,
		ExecutedAt:  executedAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	t.Run("updates open run", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_runs")).
			WithArgs("run-1", "completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.FinishRun(context.Background(), "run-1", domain.RunStatusCompleted, "ok"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already finalized", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_runs")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("run-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.FinishRun(context.Background(), "run-1", domain.RunStatusFailed, "late")
		assert.ErrorIs(t, err, domain.ErrRunFinalized)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing run", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_runs")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := store.FinishRun(context.Background(), "ghost", domain.RunStatusFailed, "")
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestPostgresStore_GetRun(t *testing.T) {
	store, mock := newMockStore(t)
	executedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	completedAt := executedAt.Add(time.Second)

	rows := sqlmock.NewRows([]string{"id", "workflow_id", "status", "trigger_type", "logs", "executed_at", "completed_at"}).
		AddRow("run-1", "wf-1", "completed", "schedule", "Workflow completed successfully. Executed 2 nodes.", executedAt, completedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, domain.TriggerSchedule, run.TriggerType)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, completedAt, *run.CompletedAt)
}

func TestPostgresStore_GetRunNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_runs WHERE id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workflow_id", "status", "trigger_type", "logs", "executed_at", "completed_at"}))

	_, err := store.GetRun(context.Background(), "ghost")
	assert.True(t, domain.IsNotFound(err))
}

func TestPostgresStore_ExecutionRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_executions")).
		WithArgs("e1", "wf-1", "run-1", "n1", "aptosTransfer", "running", `{"amount":2}`, started, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.CreateExecution(ctx, &domain.ExecutionRecord{
		ID:         "e1",
		WorkflowID: "wf-1",
		RunID:      "run-1",
		NodeID:     "n1",
		NodeType:   domain.NodeTypeAptosTransfer,
		Status:     domain.RunStatusRunning,
		InputData:  map[string]interface{}{"amount": 2},
		StartedAt:  started,
	}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_executions")).
		WithArgs("e1", "completed", `{"transactionHash":"0xabc"}`, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.FinishExecution(ctx, "e1", domain.ExecutionOutcome{
		Status:          domain.RunStatusCompleted,
		OutputData:      map[string]interface{}{"transactionHash": "0xabc"},
		TransactionHash: "0xabc",
	}))

	columns := []string{"id", "workflow_id", "run_id", "node_id", "node_type", "status", "input_data", "output_data",
		"error_message", "transaction_hash", "started_at", "completed_at", "metadata"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_executions")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"e1", "wf-1", "run-1", "n1", "aptosTransfer", "completed",
			[]byte(`{"amount":2}`), []byte(`{"transactionHash":"0xabc"}`),
			nil, "0xabc", started, started.Add(time.Second), nil,
		))

	records, err := store.ListExecutions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.RunStatusCompleted, records[0].Status)
	assert.Equal(t, "0xabc", records[0].TransactionHash)
	assert.Equal(t, map[string]interface{}{"amount": 2.0}, records[0].InputData)
	assert.Empty(t, records[0].ErrorMessage)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishExecutionTwice(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_executions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM workflow_executions")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.FinishExecution(context.Background(), "e1", domain.ExecutionOutcome{Status: domain.RunStatusFailed})
	assert.ErrorIs(t, err, domain.ErrRecordFinalized)
}

func TestPostgresStore_Workflows(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflows")).
		WithArgs("wf-1", "Payroll", sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveWorkflow(ctx, &domain.Workflow{
		ID:         "wf-1",
		Name:       "Payroll",
		IsActive:   true,
		Definition: &domain.Definition{Nodes: []domain.Node{{ID: "t", Type: domain.NodeTypeSchedule}}},
	}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM workflows WHERE id = $1")).
		WithArgs("wf-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "json_definition", "is_active"}).
			AddRow("wf-1", "Payroll", []byte(`{"nodes":[{"id":"t","type":"schedule","config":{"interval":30}}],"edges":[]}`), true))

	wf, err := store.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, wf.Definition.Nodes, 1)
	assert.Equal(t, domain.NodeTypeSchedule, wf.Definition.Nodes[0].Type)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workflows")).
		WithArgs("wf-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, domain.IsNotFound(store.DeleteWorkflow(ctx, "wf-missing")))

	require.NoError(t, mock.ExpectationsWereMet())
}
