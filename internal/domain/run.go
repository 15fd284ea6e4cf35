package domain

import (
	"time"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
	TriggerTest     TriggerType = "test"
)

type Run struct {
	ID          string      `json:"id" db:"id"`
	WorkflowID  string      `json:"workflow_id" db:"workflow_id"`
	Status      RunStatus   `json:"status" db:"status"`
	TriggerType TriggerType `json:"trigger_type" db:"trigger_type"`
	Logs        string      `json:"logs" db:"logs"`
	ExecutedAt  time.Time   `json:"executed_at" db:"executed_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

type ExecutionRecord struct {
	ID              string                 `json:"id"`
	WorkflowID      string                 `json:"workflow_id"`
	RunID           string                 `json:"run_id"`
	NodeID          string                 `json:"node_id"`
	NodeType        NodeType               `json:"node_type"`
	Status          RunStatus              `json:"status"`
	InputData       interface{}            `json:"input_data,omitempty"`
	OutputData      interface{}            `json:"output_data,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	TransactionHash string                 `json:"transaction_hash,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ExecutionOutcome is the terminal update applied to an execution record.
type ExecutionOutcome struct {
	Status          RunStatus
	OutputData      interface{}
	ErrorMessage    string
	TransactionHash string
	CompletedAt     time.Time
}

// RunDetail is a run together with its per-node execution records.
type RunDetail struct {
	Run        *Run               `json:"run"`
	Executions []*ExecutionRecord `json:"executions"`
}

// RunResult is what a trigger caller receives back from the engine.
type RunResult struct {
	Success bool   `json:"success"`
	RunID   string `json:"runId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExecutionContext is owned by a single in-flight run and discarded when the
// run terminates.
type ExecutionContext struct {
	WorkflowID     string
	RunID          string
	TriggerType    TriggerType
	TriggerPayload map[string]interface{}
	Variables      map[string]interface{}
}

func NewExecutionContext(workflowID, runID string, triggerType TriggerType, payload map[string]interface{}) *ExecutionContext {
	return &ExecutionContext{
		WorkflowID:     workflowID,
		RunID:          runID,
		TriggerType:    triggerType,
		TriggerPayload: payload,
		Variables:      make(map[string]interface{}),
	}
}

func (c *ExecutionContext) Set(nodeID string, output interface{}) {
	c.Variables[nodeID] = output
}

func (c *ExecutionContext) Get(name string) (interface{}, bool) {
	v, ok := c.Variables[name]
	return v, ok
}
