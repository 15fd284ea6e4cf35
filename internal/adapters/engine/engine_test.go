package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/chainflow/internal/adapters/node_registry"
	"github.com/eleven-am/chainflow/internal/adapters/storage"
	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

type callLog struct {
	mu     sync.Mutex
	calls  []string
	inputs map[string]interface{}
}

func (c *callLog) record(req *ports.NodeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req.Node.ID)
	if c.inputs == nil {
		c.inputs = make(map[string]interface{})
	}
	c.inputs[req.Node.ID] = req.Input
}

func (c *callLog) count(nodeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, id := range c.calls {
		if id == nodeID {
			n++
		}
	}
	return n
}

type harness struct {
	engine   *Engine
	store    *storage.MemoryStore
	registry *node_registry.Manager
	calls    *callLog
	metrics  *Metrics
}

// newHarness wires a schedule trigger and a transfer action that fails for
// node ids listed in failOn and panics for ids listed in panicOn.
func newHarness(t *testing.T, failOn, panicOn map[string]bool) *harness {
	t.Helper()

	calls := &callLog{}
	registry := node_registry.NewManager(nil)

	registry.MustRegister(ports.NodeHandlerFunc{
		Type: domain.NodeTypeSchedule,
		Fn: func(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
			calls.record(req)
			return domain.Succeeded(map[string]interface{}{
				"message": "Schedule configured",
				"payload": req.Context.TriggerPayload,
			}), nil
		},
	})
	registry.MustRegister(ports.NodeHandlerFunc{
		Type: domain.NodeTypeAptosTransfer,
		Fn: func(ctx context.Context, req *ports.NodeRequest) (*domain.NodeResult, error) {
			calls.record(req)
			if panicOn[req.Node.ID] {
				panic("handler exploded")
			}
			if failOn[req.Node.ID] {
				return nil, errors.New("boom")
			}
			hash := "0x" + req.Node.ID
			return domain.SucceededWithTx(map[string]interface{}{"node": req.Node.ID, "transactionHash": hash}, hash), nil
		},
	})

	store := storage.NewMemoryStore(nil)
	metrics := NewMetrics(nil)
	dispatcher := NewDispatcher(registry, store, nil, WithDispatcherMetrics(metrics))

	return &harness{
		engine:   NewEngine(dispatcher, store, Config{}, nil, WithMetrics(metrics)),
		store:    store,
		registry: registry,
		calls:    calls,
		metrics:  metrics,
	}
}

func (h *harness) records(t *testing.T, runID string) []*domain.ExecutionRecord {
	t.Helper()
	records, err := h.store.ListExecutions(context.Background(), runID)
	require.NoError(t, err)
	return records
}

func (h *harness) run(t *testing.T, runID string) *domain.Run {
	t.Helper()
	run, err := h.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	return run
}

func trigger(id string) domain.Node {
	return domain.Node{ID: id, Type: domain.NodeTypeSchedule, Label: "Trigger"}
}

func transfer(id, label string) domain.Node {
	return domain.Node{ID: id, Type: domain.NodeTypeAptosTransfer, Label: label, Config: map[string]interface{}{}}
}

func edge(source, target string) domain.Edge {
	return domain.Edge{ID: source + "-" + target, Source: source, Target: target}
}

func chain(n int) *domain.Definition {
	def := &domain.Definition{Nodes: []domain.Node{trigger("t")}}
	prev := "t"
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("a%d", i)
		def.Nodes = append(def.Nodes, transfer(id, fmt.Sprintf("Step %d", i)))
		def.Edges = append(def.Edges, edge(prev, id))
		prev = id
	}
	return def
}

func TestEngine_LinearChainCreatesOneRecordPerAction(t *testing.T) {
	h := newHarness(t, nil, nil)

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", chain(3))

	require.True(t, result.Success, result.Error)
	require.NotEmpty(t, result.RunID)

	run := h.run(t, result.RunID)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, "Workflow completed successfully. Executed 4 nodes.", run.Logs)
	assert.Equal(t, domain.TriggerManual, run.TriggerType)
	require.NotNil(t, run.CompletedAt)

	records := h.records(t, result.RunID)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, fmt.Sprintf("a%d", i+1), record.NodeID)
		assert.Equal(t, domain.RunStatusCompleted, record.Status)
		assert.Equal(t, "0x"+record.NodeID, record.TransactionHash)
		assert.Equal(t, "wf-1", record.WorkflowID)
		require.NotNil(t, record.CompletedAt)
	}
}

func TestEngine_NoTrigger(t *testing.T) {
	h := newHarness(t, nil, nil)
	def := &domain.Definition{
		Nodes: []domain.Node{transfer("a1", "Pay"), transfer("a2", "Pay again")},
		Edges: []domain.Edge{edge("a1", "a2")},
	}

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	assert.False(t, result.Success)
	assert.Equal(t, "No trigger node found in workflow", result.Error)
	require.NotEmpty(t, result.RunID)

	run := h.run(t, result.RunID)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, "No trigger node found", run.Logs)
	assert.Empty(t, h.records(t, result.RunID))
	assert.Empty(t, h.calls.calls)
}

func TestEngine_FirstTriggerWins(t *testing.T) {
	h := newHarness(t, nil, nil)
	def := &domain.Definition{
		Nodes: []domain.Node{transfer("a1", "Pay"), trigger("t1"), trigger("t2"), transfer("a2", "Other")},
		Edges: []domain.Edge{edge("t1", "a1"), edge("t2", "a2")},
	}

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	require.True(t, result.Success)
	assert.Equal(t, 1, h.calls.count("t1"))
	assert.Equal(t, 0, h.calls.count("t2"))
	assert.Equal(t, 0, h.calls.count("a2"))
}

func TestEngine_DiamondRunsJoinOnce(t *testing.T) {
	h := newHarness(t, nil, nil)
	def := &domain.Definition{
		Nodes: []domain.Node{trigger("t"), transfer("b", "B"), transfer("c", "C"), transfer("d", "D")},
		Edges: []domain.Edge{edge("t", "b"), edge("t", "c"), edge("b", "d"), edge("c", "d")},
	}

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	require.True(t, result.Success)
	assert.Equal(t, 1, h.calls.count("d"))
	assert.Equal(t, []string{"t", "b", "c", "d"}, h.calls.calls)
	assert.Len(t, h.records(t, result.RunID), 3)
	assert.Equal(t, "Workflow completed successfully. Executed 4 nodes.", h.run(t, result.RunID).Logs)
}

func TestEngine_CycleIsCutAfterOnePass(t *testing.T) {
	h := newHarness(t, nil, nil)
	def := &domain.Definition{
		Nodes: []domain.Node{trigger("t"), transfer("a", "A"), transfer("b", "B")},
		Edges: []domain.Edge{edge("t", "a"), edge("a", "b"), edge("b", "a"), edge("b", "t")},
	}

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	require.True(t, result.Success)
	assert.Equal(t, 1, h.calls.count("t"))
	assert.Equal(t, 1, h.calls.count("a"))
	assert.Equal(t, 1, h.calls.count("b"))
	assert.Equal(t, "Workflow completed successfully. Executed 3 nodes.", h.run(t, result.RunID).Logs)
}

func TestEngine_FailFastAtKthNode(t *testing.T) {
	h := newHarness(t, map[string]bool{"a3": true}, nil)

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", chain(5))

	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)

	run := h.run(t, result.RunID)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, "Node Step 3 failed: boom", run.Logs)

	records := h.records(t, result.RunID)
	require.Len(t, records, 3)
	assert.Equal(t, domain.RunStatusCompleted, records[0].Status)
	assert.Equal(t, domain.RunStatusCompleted, records[1].Status)
	assert.Equal(t, domain.RunStatusFailed, records[2].Status)
	assert.Equal(t, "boom", records[2].ErrorMessage)

	assert.Equal(t, 0, h.calls.count("a4"))
	assert.Equal(t, 0, h.calls.count("a5"))
}

func TestEngine_FailureLogFallsBackToNodeID(t *testing.T) {
	h := newHarness(t, map[string]bool{"a1": true}, nil)
	def := chain(1)
	def.Nodes[1].Label = ""

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	assert.False(t, result.Success)
	assert.Equal(t, "Node a1 failed: boom", h.run(t, result.RunID).Logs)
}

func TestEngine_SkipsDanglingEdgeTargets(t *testing.T) {
	h := newHarness(t, nil, nil)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := NewEngine(NewDispatcher(h.registry, h.store, nil), h.store, Config{}, logger)

	def := &domain.Definition{
		Nodes: []domain.Node{trigger("t"), transfer("a1", "Pay")},
		Edges: []domain.Edge{edge("t", "ghost"), edge("t", "a1")},
	}

	result := engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	require.True(t, result.Success)
	assert.Len(t, h.records(t, result.RunID), 1)
	assert.Equal(t, "Workflow completed successfully. Executed 2 nodes.", h.run(t, result.RunID).Logs)
	assert.Contains(t, logs.String(), `level=DEBUG msg="skipping edge target missing from definition"`)
	assert.NotContains(t, logs.String(), `level=WARN msg="skipping edge target`)
}

func TestEngine_UnknownNodeType(t *testing.T) {
	h := newHarness(t, nil, nil)
	def := &domain.Definition{
		Nodes: []domain.Node{trigger("t"), {ID: "x", Type: "bogus", Label: "Mystery"}},
		Edges: []domain.Edge{edge("t", "x")},
	}

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", def)

	assert.False(t, result.Success)
	assert.Equal(t, "Unknown node type: bogus", result.Error)
	assert.Equal(t, "Node Mystery failed: Unknown node type: bogus", h.run(t, result.RunID).Logs)

	records := h.records(t, result.RunID)
	require.Len(t, records, 1)
	assert.Equal(t, domain.RunStatusFailed, records[0].Status)
}

func TestEngine_HandlerPanicFailsNodeAndRun(t *testing.T) {
	h := newHarness(t, nil, map[string]bool{"a2": true})

	result := h.engine.ExecuteWorkflow(context.Background(), "wf-1", chain(3))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "handler exploded")

	records := h.records(t, result.RunID)
	require.Len(t, records, 2)
	assert.Equal(t, domain.RunStatusFailed, records[1].Status)
	assert.Contains(t, records[1].ErrorMessage, "panicked")
	require.NotNil(t, records[1].CompletedAt)

	assert.Equal(t, domain.RunStatusFailed, h.run(t, result.RunID).Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.nodePanics.WithLabelValues(string(domain.NodeTypeAptosTransfer))))
}

func TestEngine_ThreadsPreviousOutputAsInput(t *testing.T) {
	h := newHarness(t, nil, nil)

	result := h.engine.ExecuteWorkflowWithOptions(context.Background(), "wf-1", chain(2), ports.RunOptions{
		TriggerType:    domain.TriggerWebhook,
		TriggerPayload: map[string]interface{}{"amount": 3.0},
	})
	require.True(t, result.Success)

	triggerInput := h.calls.inputs["t"]
	assert.Nil(t, triggerInput)

	a1Input, ok := h.calls.inputs["a1"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Schedule configured", a1Input["message"])
	assert.Equal(t, map[string]interface{}{"amount": 3.0}, a1Input["payload"])

	a2Input, ok := h.calls.inputs["a2"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a1", a2Input["node"])

	records := h.records(t, result.RunID)
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[1].InputData.(map[string]interface{})["node"])
	assert.Equal(t, domain.TriggerWebhook, h.run(t, result.RunID).TriggerType)
}

func TestEngine_RejectsMissingInputs(t *testing.T) {
	h := newHarness(t, nil, nil)

	result := h.engine.ExecuteWorkflow(context.Background(), "", chain(1))
	assert.False(t, result.Success)
	assert.Empty(t, result.RunID)

	result = h.engine.ExecuteWorkflow(context.Background(), "wf-1", nil)
	assert.False(t, result.Success)
	assert.Equal(t, "Workflow definition is required", result.Error)
}

func TestEngine_CancelledContextStillFinalizesRun(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.engine.ExecuteWorkflow(ctx, "wf-1", chain(2))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Workflow execution cancelled")
	assert.Equal(t, domain.RunStatusFailed, h.run(t, result.RunID).Status)
	assert.Empty(t, h.calls.calls)
}

func TestEngine_ConcurrentRunsAreIndependent(t *testing.T) {
	h := newHarness(t, nil, nil)

	var wg sync.WaitGroup
	results := make([]domain.RunResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.engine.ExecuteWorkflow(context.Background(), "wf-1", chain(2))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, result := range results {
		require.True(t, result.Success)
		assert.False(t, seen[result.RunID])
		seen[result.RunID] = true
		assert.Len(t, h.records(t, result.RunID), 2)
	}
	assert.Equal(t, 8.0, testutil.ToFloat64(h.metrics.runsStarted.WithLabelValues(string(domain.TriggerManual))))
}

type mockRunStore struct {
	mock.Mock
}

func (m *mockRunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRunStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, logs string) error {
	return m.Called(ctx, runID, status, logs).Error(0)
}

func (m *mockRunStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	args := m.Called(ctx, runID)
	run, _ := args.Get(0).(*domain.Run)
	return run, args.Error(1)
}

func (m *mockRunStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error) {
	args := m.Called(ctx, workflowID, limit)
	runs, _ := args.Get(0).([]*domain.Run)
	return runs, args.Error(1)
}

func (m *mockRunStore) CreateExecution(ctx context.Context, record *domain.ExecutionRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockRunStore) FinishExecution(ctx context.Context, recordID string, outcome domain.ExecutionOutcome) error {
	return m.Called(ctx, recordID, outcome).Error(0)
}

func (m *mockRunStore) ListExecutions(ctx context.Context, runID string) ([]*domain.ExecutionRecord, error) {
	args := m.Called(ctx, runID)
	records, _ := args.Get(0).([]*domain.ExecutionRecord)
	return records, args.Error(1)
}

func TestEngine_CreateRunFailure(t *testing.T) {
	store := &mockRunStore{}
	store.On("CreateRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	registry := node_registry.NewManager(nil)
	engine := NewEngine(NewDispatcher(registry, store, nil), store, Config{}, nil)

	result := engine.ExecuteWorkflow(context.Background(), "wf-1", chain(1))

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to create workflow run", result.Error)
	store.AssertNotCalled(t, "FinishRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_RecordWriteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil, nil)

	store := &mockRunStore{}
	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("CreateExecution", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	store.On("FinishExecution", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	store.On("FinishRun", mock.Anything, mock.Anything, domain.RunStatusCompleted,
		"Workflow completed successfully. Executed 2 nodes.").Return(nil).Once()

	dispatcher := NewDispatcher(h.registry, store, nil, WithRecordTimeout(time.Second))
	engine := NewEngine(dispatcher, store, Config{}, nil)

	result := engine.ExecuteWorkflow(context.Background(), "wf-1", chain(1))

	assert.True(t, result.Success)
	store.AssertExpectations(t)
}
