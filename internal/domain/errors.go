package domain

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"
)

type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypeSubmission    ErrorType = "submission"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal"
)

type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrAlreadyStarted  = errors.New("already started")
	ErrNotStarted      = errors.New("not started")
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTimeout         = errors.New("operation timeout")
	ErrRateLimited     = errors.New("rate limited")
	ErrQuoteExpired    = errors.New("quote expired")
	ErrRunFinalized    = errors.New("run already finalized")
	ErrRecordFinalized = errors.New("execution record already finalized")
	ErrStoreClosed     = errors.New("store closed")
	ErrDraining        = errors.New("shutting down")
)

// NewValidationError is a configuration error carrying the exact message
// shown to the user.
func NewValidationError(message string, details map[string]interface{}) *Error {
	return &Error{Type: ErrorTypeConfiguration, Message: message, Details: details}
}

func NewSubmissionError(message string, err error) *Error {
	return &Error{Type: ErrorTypeSubmission, Message: message, Err: err}
}

func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: resource + " not found: " + id,
		Details: map[string]interface{}{"resource": resource, "id": id},
		Err:     ErrNotFound,
	}
}

func NewInternalError(message string, err error) *Error {
	return &Error{Type: ErrorTypeInternal, Message: message, Err: err}
}

func ErrorTypeOf(err error) ErrorType {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ErrorTypeConfiguration
	}
	if IsRateLimited(err) {
		return ErrorTypeTransient
	}
	return ErrorTypeInternal
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsConfiguration(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeConfiguration
}

var rateLimitPattern = regexp.MustCompile(`(?i)((status|http|code)[: ]*429\b|rate[ _-]?limit|too many requests)`)

// IsRateLimited matches either the sentinel or the status/message pattern
// returned by upstream nodes and APIs. Submission errors describe a
// transaction that reached the chain and are never rate limits.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Type == ErrorTypeSubmission {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{
		Field: field,
		Err:   err,
	}
}

type NodePanicError struct {
	WorkflowID  string      `json:"workflow_id"`
	RunID       string      `json:"run_id"`
	NodeID      string      `json:"node_id"`
	PanicValue  interface{} `json:"panic_value"`
	StackTrace  string      `json:"stack_trace"`
	Timestamp   time.Time   `json:"timestamp"`
	RecoveredAt string      `json:"recovered_at"`
}

func (e *NodePanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.PanicValue)
}

func NewPanicError(workflowID, runID, nodeID string, panicValue interface{}) *NodePanicError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	recoveredAt := "unknown"
	if pc, file, line, ok := runtime.Caller(2); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			recoveredAt = fmt.Sprintf("%s at %s:%d", fn.Name(), file, line)
		}
	}

	return &NodePanicError{
		WorkflowID:  workflowID,
		RunID:       runID,
		NodeID:      nodeID,
		PanicValue:  panicValue,
		StackTrace:  strings.TrimSpace(string(buf[:n])),
		Timestamp:   time.Now(),
		RecoveredAt: recoveredAt,
	}
}

func IsPanicError(err error) bool {
	var panicErr *NodePanicError
	return errors.As(err, &panicErr)
}

type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}
