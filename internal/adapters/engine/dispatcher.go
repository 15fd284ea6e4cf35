package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

const defaultRecordTimeout = 10 * time.Second

// Dispatcher resolves a node's handler and brackets every non-trigger node
// with exactly one execution record: created as running before the handler
// runs, finished once afterwards.
type Dispatcher struct {
	registry      ports.NodeRegistryPort
	store         ports.RunStore
	recovery      *RecoverableExecutor
	metrics       ports.MetricsRecorder
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
	recordTimeout time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func WithRecordTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.recordTimeout = timeout
		}
	}
}

func WithDispatcherMetrics(metrics *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		if metrics != nil {
			d.metrics = metrics
			d.recovery.metrics = metrics
		}
	}
}

func NewDispatcher(registry ports.NodeRegistryPort, store ports.RunStore, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		registry:      registry,
		store:         store,
		recovery:      NewRecoverableExecutor(logger, nil),
		metrics:       ports.NoopMetrics{},
		logger:        logger.With("component", "dispatcher"),
		now:           time.Now,
		newID:         uuid.NewString,
		recordTimeout: defaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, node domain.Node, execCtx *domain.ExecutionContext, input interface{}) *domain.NodeResult {
	req := &ports.NodeRequest{Node: node, Context: execCtx, Input: input}

	if node.Type.IsTrigger() {
		return d.invoke(ctx, req)
	}

	record := &domain.ExecutionRecord{
		ID:         d.newID(),
		WorkflowID: execCtx.WorkflowID,
		RunID:      execCtx.RunID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     domain.RunStatusRunning,
		InputData:  snapshot(input),
		StartedAt:  d.now().UTC(),
	}
	d.writeRecord(ctx, "create execution record", record.ID, func(c context.Context) error {
		return d.store.CreateExecution(c, record)
	})

	start := time.Now()
	result := d.invoke(ctx, req)
	duration := time.Since(start)

	outcome := domain.ExecutionOutcome{
		Status:          domain.RunStatusCompleted,
		OutputData:      snapshot(result.Output),
		ErrorMessage:    result.Error,
		TransactionHash: result.TransactionHash,
		CompletedAt:     d.now().UTC(),
	}
	if !result.Success {
		outcome.Status = domain.RunStatusFailed
	}
	d.writeRecord(ctx, "finish execution record", record.ID, func(c context.Context) error {
		return d.store.FinishExecution(c, record.ID, outcome)
	})

	d.metrics.NodeExecuted(node.Type, outcome.Status, duration)

	if result.Success {
		d.logger.Debug("node completed",
			"run_id", execCtx.RunID,
			"node_id", node.ID,
			"node_type", node.Type,
			"duration", duration)
	} else {
		d.logger.Warn("node failed",
			"run_id", execCtx.RunID,
			"node_id", node.ID,
			"node_type", node.Type,
			"error", result.Error)
	}
	return result
}

// invoke never returns nil and never lets an error or panic escape.
func (d *Dispatcher) invoke(ctx context.Context, req *ports.NodeRequest) *domain.NodeResult {
	handler, err := d.registry.Get(req.Node.Type)
	if err != nil {
		return domain.Failed(fmt.Sprintf("Unknown node type: %s", req.Node.Type))
	}

	result, err := d.recovery.ExecuteWithRecovery(ctx, handler, req)
	if err != nil {
		return domain.FailedWithErr(err)
	}
	if result == nil {
		return domain.Failed("node handler returned no result")
	}
	return result
}

// writeRecord runs a store write that must happen even when the run's own
// context has been cancelled. Failures are logged and do not fail the node.
func (d *Dispatcher) writeRecord(ctx context.Context, op, recordID string, fn func(context.Context) error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.recordTimeout)
	defer cancel()

	if err := fn(writeCtx); err != nil {
		d.logger.Error("execution record write failed",
			"op", op,
			"record_id", recordID,
			"error", err.Error())
	}
}

// snapshot detaches stored data from values handlers may keep mutating.
func snapshot(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	out, err := xjson.Normalize(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

var _ ports.NodeDispatcher = (*Dispatcher)(nil)
