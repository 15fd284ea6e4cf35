package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// RecoverableExecutor runs a handler and turns a panic into a
// *domain.NodePanicError so a faulty handler can never unwind the run loop.
type RecoverableExecutor struct {
	logger  *slog.Logger
	metrics *Metrics
}

func NewRecoverableExecutor(logger *slog.Logger, metrics *Metrics) *RecoverableExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoverableExecutor{
		logger:  logger.With("component", "recoverable-executor"),
		metrics: metrics,
	}
}

func (re *RecoverableExecutor) ExecuteWithRecovery(
	ctx context.Context,
	handler ports.NodeHandler,
	req *ports.NodeRequest,
) (result *domain.NodeResult, err error) {
	startTime := time.Now()

	workflowID, runID := "", ""
	if req.Context != nil {
		workflowID, runID = req.Context.WorkflowID, req.Context.RunID
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := domain.NewPanicError(workflowID, runID, req.Node.ID, r)

			if re.metrics != nil {
				re.metrics.RecordPanic(req.Node.Type)
			}

			re.logger.Error("node handler panicked",
				"workflow_id", workflowID,
				"run_id", runID,
				"node_id", req.Node.ID,
				"node_type", req.Node.Type,
				"panic_value", r,
				"duration", time.Since(startTime),
				"stack_trace", panicErr.StackTrace,
			)

			result = nil
			err = panicErr
		}
	}()

	return handler.Execute(ctx, req)
}
