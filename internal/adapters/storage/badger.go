package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

const (
	workflowPrefix = "workflow:"
	runPrefix      = "run:"
	runIndexPrefix = "run-index:"
	runTimePrefix  = "run-time:"
	execPrefix     = "exec:"
	runExecPrefix  = "run-exec:"
	execSeqKey     = "seq:exec"
)

// BadgerStore persists workflows, runs and execution records in an embedded
// badger database. Secondary keys keep runs ordered by start time and
// records ordered by creation.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	owned  bool
	logger *slog.Logger
}

func OpenBadgerStore(dataDir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dataDir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewStorageError("open", dataDir, err)
	}

	store, err := NewBadgerStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewBadgerStore wraps an already opened database. The caller keeps
// ownership of db unless the store was created by OpenBadgerStore.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seq, err := db.GetSequence([]byte(execSeqKey), 128)
	if err != nil {
		return nil, domain.NewStorageError("sequence", execSeqKey, err)
	}

	return &BadgerStore{
		db:     db,
		seq:    seq,
		logger: logger.With("component", "badger-store"),
	}, nil
}

func runKey(id string) []byte      { return []byte(runPrefix + id) }
func execKey(id string) []byte     { return []byte(execPrefix + id) }
func workflowKey(id string) []byte { return []byte(workflowPrefix + id) }

// scopedPrefix length-prefixes id so that one id is never a key prefix of
// another that extends it ("team" and "team:ops").
func scopedPrefix(prefix, id string) string {
	return fmt.Sprintf("%s%d:%s:", prefix, len(id), id)
}

func runIndexKey(run *domain.Run) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", scopedPrefix(runIndexPrefix, run.WorkflowID), run.ExecutedAt.UnixNano(), run.ID))
}

func runTimeKey(run *domain.Run) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runTimePrefix, run.ExecutedAt.UnixNano(), run.ID))
}

func runExecKey(runID string, seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", scopedPrefix(runExecPrefix, runID), seq, id))
}

func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return xjson.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := xjson.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := validateNewRun(run); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(run.ID)); err == nil {
			return domain.ErrInvalidInput
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := setJSON(txn, runKey(run.ID), run); err != nil {
			return err
		}
		if err := txn.Set(runIndexKey(run), []byte(run.ID)); err != nil {
			return err
		}
		return txn.Set(runTimeKey(run), []byte(run.ID))
	})
	return s.wrap("create_run", run.ID, err)
}

func (s *BadgerStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, logs string) error {
	if !status.IsTerminal() {
		return domain.NewStorageError("finish_run", runID, domain.ErrInvalidInput)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var run domain.Run
		if err := getJSON(txn, runKey(runID), &run); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("run", runID)
			}
			return err
		}
		if run.Status.IsTerminal() {
			return domain.ErrRunFinalized
		}

		completedAt := now()
		run.Status = status
		run.Logs = logs
		run.CompletedAt = &completedAt
		return setJSON(txn, runKey(runID), &run)
	})
	return s.wrap("finish_run", runID, err)
}

func (s *BadgerStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, runKey(runID), &run)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.NewNotFoundError("run", runID)
	}
	if err != nil {
		return nil, domain.NewStorageError("get_run", runID, err)
	}
	return &run, nil
}

// ListRuns walks the time index backwards so the newest run comes first.
func (s *BadgerStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error) {
	prefix := []byte(runTimePrefix)
	if workflowID != "" {
		prefix = []byte(scopedPrefix(runIndexPrefix, workflowID))
	}

	var runs []*domain.Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}

			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var run domain.Run
			if err := getJSON(txn, runKey(string(id)), &run); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					s.logger.Warn("run index points at missing run", "run_id", string(id))
					continue
				}
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list_runs", workflowID, err)
	}
	return runs, nil
}

func (s *BadgerStore) CreateExecution(ctx context.Context, record *domain.ExecutionRecord) error {
	if err := validateNewExecution(record); err != nil {
		return err
	}

	seq, err := s.seq.Next()
	if err != nil {
		return domain.NewStorageError("create_execution", record.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(execKey(record.ID)); err == nil {
			return domain.ErrInvalidInput
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := setJSON(txn, execKey(record.ID), record); err != nil {
			return err
		}
		return txn.Set(runExecKey(record.RunID, seq, record.ID), []byte(record.ID))
	})
	return s.wrap("create_execution", record.ID, err)
}

func (s *BadgerStore) FinishExecution(ctx context.Context, recordID string, outcome domain.ExecutionOutcome) error {
	if !outcome.Status.IsTerminal() {
		return domain.NewStorageError("finish_execution", recordID, domain.ErrInvalidInput)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var record domain.ExecutionRecord
		if err := getJSON(txn, execKey(recordID), &record); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("execution", recordID)
			}
			return err
		}
		if record.Status.IsTerminal() {
			return domain.ErrRecordFinalized
		}

		applyOutcome(&record, outcome)
		return setJSON(txn, execKey(recordID), &record)
	})
	return s.wrap("finish_execution", recordID, err)
}

func (s *BadgerStore) ListExecutions(ctx context.Context, runID string) ([]*domain.ExecutionRecord, error) {
	prefix := []byte(scopedPrefix(runExecPrefix, runID))
	records := make([]*domain.ExecutionRecord, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var record domain.ExecutionRecord
			if err := getJSON(txn, execKey(string(id)), &record); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list_executions", runID, err)
	}
	return records, nil
}

func (s *BadgerStore) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if err := validateWorkflow(workflow); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, workflowKey(workflow.ID), workflow)
	})
	return s.wrap("save_workflow", workflow.ID, err)
}

func (s *BadgerStore) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, workflowKey(workflowID), &workflow)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.NewNotFoundError("workflow", workflowID)
	}
	if err != nil {
		return nil, domain.NewStorageError("get_workflow", workflowID, err)
	}
	return &workflow, nil
}

func (s *BadgerStore) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	workflows := make([]*domain.Workflow, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(workflowPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var workflow domain.Workflow
			err := it.Item().Value(func(val []byte) error {
				return xjson.Unmarshal(val, &workflow)
			})
			if err != nil {
				key := strings.TrimPrefix(string(it.Item().Key()), workflowPrefix)
				s.logger.Error("failed to decode workflow", "workflow_id", key, "error", err)
				continue
			}
			workflows = append(workflows, &workflow)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list_workflows", "", err)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })
	return workflows, nil
}

func (s *BadgerStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(workflowKey(workflowID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("workflow", workflowID)
			}
			return err
		}
		return txn.Delete(workflowKey(workflowID))
	})
	return s.wrap("delete_workflow", workflowID, err)
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("failed to release sequence", "error", err)
	}
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func (s *BadgerStore) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return domain.NewStorageError(op, key, err)
}

var _ ports.Store = (*BadgerStore)(nil)
