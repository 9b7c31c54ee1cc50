package core

import (
	"context"
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Operation resolution errors
	ErrUnknownOperation = errors.New("unknown operation")
	ErrMissingParameter = errors.New("missing required parameter")

	// Backend errors
	ErrContainerNotFound = errors.New("container not found")
	ErrTargetNotFound    = errors.New("target not found")
	ErrConnectionFailed  = errors.New("connection failed")

	// Planner errors
	ErrPlannerUnavailable = errors.New("planner unavailable")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// Run/store errors
	ErrRunNotFound = errors.New("run not found")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// OpsError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type OpsError struct {
	Op      string // Operation that failed (e.g., "docker.ContainerRestart")
	Kind    string // Error kind (e.g., "backend", "planner", "store")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *OpsError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *OpsError) Unwrap() error {
	return e.Err
}

// NewOpsError creates a new OpsError
func NewOpsError(op, kind string, err error) *OpsError {
	return &OpsError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are transient network, timeout or availability issues.
func IsRetryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPlannerUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsPermanent checks if an error is a definitive failure that retrying
// cannot fix, such as a named target that does not exist.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrContainerNotFound) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrUnknownOperation) ||
		errors.Is(err, ErrMissingParameter)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContainerNotFound) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrRunNotFound)
}
