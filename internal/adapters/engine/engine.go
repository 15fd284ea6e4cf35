package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

const (
	logNoTrigger     = "No trigger node found"
	errNoTrigger     = "No trigger node found in workflow"
	errCreateRun     = "Failed to create workflow run"
	errRunPanicked   = "Workflow execution failed"
	errNoDefinition  = "Workflow definition is required"
	errNoWorkflowID  = "Workflow id is required"
	errRunCancelled  = "Workflow execution cancelled"
	completedLogTmpl = "Workflow completed successfully. Executed %d nodes."
)

type Config struct {
	RunTimeout    time.Duration
	RecordTimeout time.Duration
}

// Engine executes one definition per call as a single sequential
// breadth-first walk from the first trigger node. Concurrent calls are
// independent and share only the dispatcher and the store.
type Engine struct {
	dispatcher ports.NodeDispatcher
	store      ports.RunStore
	metrics    ports.MetricsRecorder
	config     Config
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

type Option func(*Engine)

func WithMetrics(metrics ports.MetricsRecorder) Option {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

func NewEngine(dispatcher ports.NodeDispatcher, store ports.RunStore, config Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		dispatcher: dispatcher,
		store:      store,
		metrics:    ports.NoopMetrics{},
		config:     config,
		logger:     logger.With("component", "run-engine"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, def *domain.Definition) domain.RunResult {
	return e.ExecuteWorkflowWithOptions(ctx, workflowID, def, ports.RunOptions{TriggerType: domain.TriggerManual})
}

func (e *Engine) ExecuteWorkflowWithOptions(ctx context.Context, workflowID string, def *domain.Definition, opts ports.RunOptions) (result domain.RunResult) {
	if workflowID == "" {
		return domain.RunResult{Success: false, Error: errNoWorkflowID}
	}
	if def == nil {
		return domain.RunResult{Success: false, Error: errNoDefinition}
	}
	if opts.TriggerType == "" {
		opts.TriggerType = domain.TriggerManual
	}

	definition := def.Clone()
	started := time.Now()

	run := &domain.Run{
		ID:          e.newID(),
		WorkflowID:  workflowID,
		Status:      domain.RunStatusRunning,
		TriggerType: opts.TriggerType,
		ExecutedAt:  e.now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		e.logger.Error("failed to create workflow run",
			"workflow_id", workflowID,
			"error", err.Error())
		return domain.RunResult{Success: false, Error: errCreateRun}
	}

	e.metrics.RunStarted(opts.TriggerType)
	logger := e.logger.With("workflow_id", workflowID, "run_id", run.ID)

	defer func() {
		if r := recover(); r != nil {
			panicErr := domain.NewPanicError(workflowID, run.ID, "", r)
			logger.Error("run loop panicked",
				"panic_value", r,
				"stack_trace", panicErr.StackTrace)
			e.finish(ctx, logger, run.ID, domain.RunStatusFailed, errRunPanicked, started)
			result = domain.RunResult{Success: false, RunID: run.ID, Error: errRunPanicked}
		}
	}()

	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	trigger, ok := definition.FindTrigger()
	if !ok {
		e.finish(ctx, logger, run.ID, domain.RunStatusFailed, logNoTrigger, started)
		return domain.RunResult{Success: false, RunID: run.ID, Error: errNoTrigger}
	}

	logger.Info("starting run", "trigger_node", trigger.ID, "trigger_type", opts.TriggerType)

	execCtx := domain.NewExecutionContext(workflowID, run.ID, opts.TriggerType, opts.TriggerPayload)
	executed, failure := e.traverse(ctx, logger, definition, trigger.ID, execCtx)
	if failure != nil {
		logs := fmt.Sprintf("Node %s failed: %s", failure.node.DisplayName(), failure.result.Error)
		e.finish(ctx, logger, run.ID, domain.RunStatusFailed, logs, started)
		return domain.RunResult{Success: false, RunID: run.ID, Error: failure.result.Error}
	}

	e.finish(ctx, logger, run.ID, domain.RunStatusCompleted, fmt.Sprintf(completedLogTmpl, executed), started)
	return domain.RunResult{Success: true, RunID: run.ID}
}

type nodeFailure struct {
	node   domain.Node
	result *domain.NodeResult
}

// traverse walks the graph breadth-first from the trigger. Each node runs at
// most once per run, so diamonds converge and cycles are cut after one pass.
// Every out-edge is followed, including both edges of a conditional.
func (e *Engine) traverse(
	ctx context.Context,
	logger *slog.Logger,
	def *domain.Definition,
	triggerID string,
	execCtx *domain.ExecutionContext,
) (int, *nodeFailure) {
	executed := make(map[string]struct{})
	queue := []string{triggerID}
	var lastOutput interface{}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		if _, done := executed[nodeID]; done {
			continue
		}

		node, ok := def.NodeByID(nodeID)
		if !ok {
			logger.Debug("skipping edge target missing from definition", "node_id", nodeID)
			continue
		}

		if err := ctx.Err(); err != nil {
			return len(executed), &nodeFailure{node: node, result: domain.Failed(errRunCancelled + ": " + err.Error())}
		}

		logger.Debug("dispatching node", "node_id", node.ID, "node_type", node.Type)
		result := e.dispatcher.Dispatch(ctx, node, execCtx, lastOutput)
		executed[nodeID] = struct{}{}

		if result == nil || !result.Success {
			if result == nil {
				result = domain.Failed("node returned no result")
			}
			return len(executed), &nodeFailure{node: node, result: result}
		}

		lastOutput = result.Output
		if result.Output != nil {
			execCtx.Set(nodeID, result.Output)
		}

		for _, target := range def.Targets(nodeID) {
			if _, done := executed[target]; !done {
				queue = append(queue, target)
			}
		}
	}

	return len(executed), nil
}

// finish applies the run's single terminal transition. It uses a detached
// context so a cancelled caller still leaves the run in a terminal state.
func (e *Engine) finish(ctx context.Context, logger *slog.Logger, runID string, status domain.RunStatus, logs string, started time.Time) {
	timeout := e.config.RecordTimeout
	if timeout <= 0 {
		timeout = defaultRecordTimeout
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := e.store.FinishRun(writeCtx, runID, status, logs); err != nil {
		logger.Error("failed to finalize run",
			"status", status,
			"error", err.Error())
	}

	e.metrics.RunFinished(status, time.Since(started))

	if status == domain.RunStatusCompleted {
		logger.Info("run completed", "logs", logs)
	} else {
		logger.Warn("run failed", "logs", logs)
	}
}

var _ ports.WorkflowRunner = (*Engine)(nil)
