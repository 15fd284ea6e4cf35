package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
	"github.com/eleven-am/chainflow/internal/xjson"
)

const (
	runColumns  = `id, workflow_id, status, trigger_type, logs, executed_at, completed_at`
	execColumns = `id, workflow_id, run_id, node_id, node_type, status, input_data, output_data, error_message, transaction_hash, started_at, completed_at, metadata`
)

type runRow struct {
	ID          string         `db:"id"`
	WorkflowID  string         `db:"workflow_id"`
	Status      string         `db:"status"`
	TriggerType string         `db:"trigger_type"`
	Logs        sql.NullString `db:"logs"`
	ExecutedAt  time.Time      `db:"executed_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

func (r runRow) toDomain() *domain.Run {
	return &domain.Run{
		ID:          r.ID,
		WorkflowID:  r.WorkflowID,
		Status:      domain.RunStatus(r.Status),
		TriggerType: domain.TriggerType(r.TriggerType),
		Logs:        r.Logs.String,
		ExecutedAt:  r.ExecutedAt,
		CompletedAt: fromNullTime(r.CompletedAt),
	}
}

type execRow struct {
	ID              string         `db:"id"`
	WorkflowID      string         `db:"workflow_id"`
	RunID           string         `db:"run_id"`
	NodeID          string         `db:"node_id"`
	NodeType        string         `db:"node_type"`
	Status          string         `db:"status"`
	InputData       []byte         `db:"input_data"`
	OutputData      []byte         `db:"output_data"`
	ErrorMessage    sql.NullString `db:"error_message"`
	TransactionHash sql.NullString `db:"transaction_hash"`
	StartedAt       time.Time      `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	Metadata        []byte         `db:"metadata"`
}

func (r execRow) toDomain() (*domain.ExecutionRecord, error) {
	record := &domain.ExecutionRecord{
		ID:              r.ID,
		WorkflowID:      r.WorkflowID,
		RunID:           r.RunID,
		NodeID:          r.NodeID,
		NodeType:        domain.NodeType(r.NodeType),
		Status:          domain.RunStatus(r.Status),
		ErrorMessage:    r.ErrorMessage.String,
		TransactionHash: r.TransactionHash.String,
		StartedAt:       r.StartedAt,
		CompletedAt:     fromNullTime(r.CompletedAt),
	}
	if err := decodeJSONB(r.InputData, &record.InputData); err != nil {
		return nil, err
	}
	if err := decodeJSONB(r.OutputData, &record.OutputData); err != nil {
		return nil, err
	}
	if err := decodeJSONB(r.Metadata, &record.Metadata); err != nil {
		return nil, err
	}
	return record, nil
}

type workflowRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	Definition []byte `db:"json_definition"`
	IsActive   bool   `db:"is_active"`
}

// PostgresStore is the relational backend. Terminal updates are conditional
// on the row still being open, so a second finish never overwrites the first.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "postgres-store"),
	}
}

// OpenPostgresStore connects with the lib/pq driver, applies pool settings
// and optionally creates the schema.
func OpenPostgresStore(ctx context.Context, cfg domain.StoreConfig, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, domain.NewStorageError("connect", "postgres", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.ApplySchema {
		if err := ApplySchema(ctx, db.DB); err != nil {
			db.Close()
			return nil, domain.NewStorageError("schema", "postgres", err)
		}
	}

	return NewPostgresStore(db, logger), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := validateNewRun(run); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, status, trigger_type, logs, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.WorkflowID, string(run.Status), string(run.TriggerType), toNullString(run.Logs), run.ExecutedAt.UTC())
	if err != nil {
		return domain.NewStorageError("create_run", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, logs string) error {
	if !status.IsTerminal() {
		return domain.NewStorageError("finish_run", runID, domain.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $2, logs = $3, completed_at = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, runID, string(status), toNullString(logs), now())
	if err != nil {
		return domain.NewStorageError("finish_run", runID, err)
	}

	return s.checkFinalized(ctx, result, "finish_run", "workflow_runs", "run", runID, domain.ErrRunFinalized)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("run", runID)
	}
	if err != nil {
		return nil, domain.NewStorageError("get_run", runID, err)
	}
	return row.toDomain(), nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*domain.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+runColumns+`
		FROM workflow_runs
		WHERE ($1 = '' OR workflow_id = $1)
		ORDER BY executed_at DESC
		LIMIT $2
	`, workflowID, toNullLimit(limit))
	if err != nil {
		return nil, domain.NewStorageError("list_runs", workflowID, err)
	}

	runs := make([]*domain.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toDomain())
	}
	return runs, nil
}

func (s *PostgresStore) CreateExecution(ctx context.Context, record *domain.ExecutionRecord) error {
	if err := validateNewExecution(record); err != nil {
		return err
	}

	input, err := encodeJSONB(record.InputData)
	if err != nil {
		return domain.NewStorageError("create_execution", record.ID, err)
	}
	metadata, err := encodeJSONB(record.Metadata)
	if err != nil {
		return domain.NewStorageError("create_execution", record.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, run_id, node_id, node_type, status, input_data, started_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.WorkflowID, record.RunID, record.NodeID, string(record.NodeType),
		string(record.Status), input, record.StartedAt.UTC(), metadata)
	if err != nil {
		return domain.NewStorageError("create_execution", record.ID, err)
	}
	return nil
}

func (s *PostgresStore) FinishExecution(ctx context.Context, recordID string, outcome domain.ExecutionOutcome) error {
	if !outcome.Status.IsTerminal() {
		return domain.NewStorageError("finish_execution", recordID, domain.ErrInvalidInput)
	}

	output, err := encodeJSONB(outcome.OutputData)
	if err != nil {
		return domain.NewStorageError("finish_execution", recordID, err)
	}

	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = now()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = $2, output_data = $3, error_message = $4, transaction_hash = $5, completed_at = $6
		WHERE id = $1 AND status = 'running'
	`, recordID, string(outcome.Status), output, toNullString(outcome.ErrorMessage),
		toNullString(outcome.TransactionHash), completedAt.UTC())
	if err != nil {
		return domain.NewStorageError("finish_execution", recordID, err)
	}

	return s.checkFinalized(ctx, result, "finish_execution", "workflow_executions", "execution", recordID, domain.ErrRecordFinalized)
}

func (s *PostgresStore) ListExecutions(ctx context.Context, runID string) ([]*domain.ExecutionRecord, error) {
	var rows []execRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+execColumns+`
		FROM workflow_executions
		WHERE run_id = $1
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, domain.NewStorageError("list_executions", runID, err)
	}

	records := make([]*domain.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toDomain()
		if err != nil {
			return nil, domain.NewStorageError("list_executions", row.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *PostgresStore) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if err := validateWorkflow(workflow); err != nil {
		return err
	}

	definition, err := xjson.Marshal(workflow.Definition)
	if err != nil {
		return domain.NewStorageError("save_workflow", workflow.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, json_definition, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, json_definition = EXCLUDED.json_definition,
			is_active = EXCLUDED.is_active, updated_at = NOW()
	`, workflow.ID, workflow.Name, string(definition), workflow.IsActive)
	if err != nil {
		return domain.NewStorageError("save_workflow", workflow.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, json_definition, is_active FROM workflows WHERE id = $1`, workflowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("workflow", workflowID)
	}
	if err != nil {
		return nil, domain.NewStorageError("get_workflow", workflowID, err)
	}
	return row.toDomain()
}

func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	var rows []workflowRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, json_definition, is_active FROM workflows ORDER BY id`); err != nil {
		return nil, domain.NewStorageError("list_workflows", "", err)
	}

	workflows := make([]*domain.Workflow, 0, len(rows))
	for _, row := range rows {
		workflow, err := row.toDomain()
		if err != nil {
			s.logger.Error("failed to decode workflow", "workflow_id", row.ID, "error", err)
			continue
		}
		workflows = append(workflows, workflow)
	}
	return workflows, nil
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, workflowID)
	if err != nil {
		return domain.NewStorageError("delete_workflow", workflowID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError("delete_workflow", workflowID, err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("workflow", workflowID)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// checkFinalized tells a missing row apart from one that was already
// terminal when a conditional update touched nothing.
func (s *PostgresStore) checkFinalized(ctx context.Context, result sql.Result, op, table, resource, id string, finalized error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError(op, id, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return domain.NewStorageError(op, id, err)
	}
	if !exists {
		return domain.NewNotFoundError(resource, id)
	}
	return domain.NewStorageError(op, id, finalized)
}

func (r workflowRow) toDomain() (*domain.Workflow, error) {
	def, err := domain.ParseDefinition(r.Definition)
	if err != nil {
		return nil, err
	}
	return &domain.Workflow{ID: r.ID, Name: r.Name, Definition: def, IsActive: r.IsActive}, nil
}

// encodeJSONB returns nil for SQL NULL and the JSON text otherwise.
func encodeJSONB(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]interface{}); ok && m == nil {
		return nil, nil
	}
	data, err := xjson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeJSONB(data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return xjson.Unmarshal(data, out)
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullLimit(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

var _ ports.Store = (*PostgresStore)(nil)
