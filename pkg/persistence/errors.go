package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionLogNotFound indicates an execution log entry was not found.
	ErrExecutionLogNotFound = errors.New("execution log not found")

	// ErrLogFinalized indicates an attempt to finalize an already finalized entry.
	ErrLogFinalized = errors.New("execution log already finalized")

	// ErrVariableNotFound indicates a stored variable was not found.
	ErrVariableNotFound = errors.New("variable not found")
)

// StoreError wraps storage-layer errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g., "ByTrigger", "Append")
	Entity string // Entity identifier if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new storage error with context.
func NewStoreError(op, entity string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionLogNotFound checks if an error indicates a log entry was not found.
func IsExecutionLogNotFound(err error) bool {
	return errors.Is(err, ErrExecutionLogNotFound)
}

// IsLogFinalized checks if an error indicates a double finalization.
func IsLogFinalized(err error) bool {
	return errors.Is(err, ErrLogFinalized)
}
