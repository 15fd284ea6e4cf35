package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// MemoryStore keeps everything in process memory. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*domain.Workflow
	runs       map[string]*domain.Run
	executions map[string]*domain.ExecutionRecord
	byRun      map[string][]string
	closed     bool
	logger     *slog.Logger
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		workflows:  make(map[string]*domain.Workflow),
		runs:       make(map[string]*domain.Run),
		executions: make(map[string]*domain.ExecutionRecord),
		byRun:      make(map[string][]string),
		logger:     logger.With("component", "memory-store"),
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := validateNewRun(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	if _, exists := s.runs[run.ID]; exists {
		return domain.NewStorageError("create_run", run.ID, domain.ErrInvalidInput)
	}

	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, logs string) error {
	if !status.IsTerminal() {
		return domain.NewStorageError("finish_run", runID, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}

	run, exists := s.runs[runID]
	if !exists {
		return domain.NewNotFoundError("run", runID)
	}
	if run.Status.IsTerminal() {
		return domain.NewStorageError("finish_run", runID, domain.ErrRunFinalized)
	}

	completedAt := now()
	run.Status = status
	run.Logs = logs
	run.CompletedAt = &completedAt
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, domain.NewNotFoundError("run", runID)
	}
	return copyRun(run), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*domain.Run
	for _, run := range s.runs {
		if workflowID == "" || run.WorkflowID == workflowID {
			runs = append(runs, copyRun(run))
		}
	}
	sortRunsNewestFirst(runs)
	return applyLimit(runs, limit), nil
}

func (s *MemoryStore) CreateExecution(ctx context.Context, record *domain.ExecutionRecord) error {
	if err := validateNewExecution(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	if _, exists := s.executions[record.ID]; exists {
		return domain.NewStorageError("create_execution", record.ID, domain.ErrInvalidInput)
	}

	s.executions[record.ID] = copyExecution(record)
	s.byRun[record.RunID] = append(s.byRun[record.RunID], record.ID)
	return nil
}

func (s *MemoryStore) FinishExecution(ctx context.Context, recordID string, outcome domain.ExecutionOutcome) error {
	if !outcome.Status.IsTerminal() {
		return domain.NewStorageError("finish_execution", recordID, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}

	record, exists := s.executions[recordID]
	if !exists {
		return domain.NewNotFoundError("execution", recordID)
	}
	if record.Status.IsTerminal() {
		return domain.NewStorageError("finish_execution", recordID, domain.ErrRecordFinalized)
	}

	applyOutcome(record, outcome)
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, runID string) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRun[runID]
	records := make([]*domain.ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, copyExecution(s.executions[id]))
	}
	return records, nil
}

func (s *MemoryStore) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if err := validateWorkflow(workflow); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	s.workflows[workflow.ID] = copyWorkflow(workflow)
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, exists := s.workflows[workflowID]
	if !exists {
		return nil, domain.NewNotFoundError("workflow", workflowID)
	}
	return copyWorkflow(workflow), nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]*domain.Workflow, 0, len(s.workflows))
	for _, workflow := range s.workflows {
		workflows = append(workflows, copyWorkflow(workflow))
	}
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })
	return workflows, nil
}

func (s *MemoryStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[workflowID]; !exists {
		return domain.NewNotFoundError("workflow", workflowID)
	}
	delete(s.workflows, workflowID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

var _ ports.Store = (*MemoryStore)(nil)
