package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common error types used across the flowgraph library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrShutDown indicates that work was submitted to an executor after Shutdown
	ErrShutDown = errors.New("executor has been shut down")

	// ErrTaskFailed indicates that a task callable returned an error or panicked
	ErrTaskFailed = errors.New("task failed")

	// ErrCanceled indicates that a run was canceled before all of its tasks ran
	ErrCanceled = errors.New("run canceled")

	// ErrInvalidPipeline indicates a pipeline with an unusable shape
	ErrInvalidPipeline = errors.New("invalid pipeline shape")

	// ErrUnresolvedDeferred indicates that a pipeline drained while some
	// tokens were still waiting on deferrals that can never resolve
	ErrUnresolvedDeferred = errors.New("pipeline has unresolved deferred tokens")
)

// ValidationError describes a configuration value that was rejected.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError for module.field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns ErrInvalidConfiguration so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError wraps a failure of a named operation inside a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches free-form context and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// TaskError is the first failure captured from a task callable during a run.
// Err is the error the callable returned, or nil when it panicked.
type TaskError struct {
	Task  string
	Err   error
	Panic interface{}
	Stack []byte
}

func (e *TaskError) Error() string {
	name := e.Task
	if name == "" {
		name = "<unnamed>"
	}
	if e.Panic != nil {
		return fmt.Sprintf("task %s panicked: %v", name, e.Panic)
	}
	return fmt.Sprintf("task %s failed: %v", name, e.Err)
}

// Unwrap exposes both ErrTaskFailed and the callable's own error.
func (e *TaskError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTaskFailed}
	}
	return []error{ErrTaskFailed, e.Err}
}

// PipelineError reports why a pipeline shape was rejected.
type PipelineError struct {
	Lines  int
	Pipes  int
	Reason string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: %s (lines=%d, pipes=%d)", e.Reason, e.Lines, e.Pipes)
}

func (e *PipelineError) Unwrap() error {
	return ErrInvalidPipeline
}

// UnresolvedError lists the tokens still deferred when a pipeline drained.
type UnresolvedError struct {
	Tokens []uint64
}

// NewUnresolvedError sorts tokens so the message is stable.
func NewUnresolvedError(tokens []uint64) *UnresolvedError {
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return &UnresolvedError{Tokens: tokens}
}

func (e *UnresolvedError) Error() string {
	ids := make([]string, len(e.Tokens))
	for i, t := range e.Tokens {
		ids[i] = fmt.Sprint(t)
	}
	return fmt.Sprintf("%v: [%s]", ErrUnresolvedDeferred, strings.Join(ids, " "))
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedDeferred
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCanceled)
}

// IsTaskFailure reports whether err carries a task callable failure.
func IsTaskFailure(err error) bool {
	return errors.Is(err, ErrTaskFailed)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
