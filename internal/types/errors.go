package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for CyberSage errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Context store error codes
const (
	CONTEXT_CREATE_FAILED ErrorCode = "CONTEXT_CREATE_FAILED"
	CONTEXT_NOT_FOUND     ErrorCode = "CONTEXT_NOT_FOUND"
	CONTEXT_UPDATE_FAILED ErrorCode = "CONTEXT_UPDATE_FAILED"
	CONTEXT_EXPIRED       ErrorCode = "CONTEXT_EXPIRED"
)

// Audit error codes
const (
	AUDIT_OPEN_FAILED  ErrorCode = "AUDIT_OPEN_FAILED"
	AUDIT_WRITE_FAILED ErrorCode = "AUDIT_WRITE_FAILED"
	AUDIT_QUERY_FAILED ErrorCode = "AUDIT_QUERY_FAILED"
)

// Workflow engine error codes
const (
	WORKFLOW_INVALID_STATE ErrorCode = "WORKFLOW_INVALID_STATE"
	WORKFLOW_NOT_FOUND     ErrorCode = "WORKFLOW_NOT_FOUND"
	WORKFLOW_EXISTS        ErrorCode = "WORKFLOW_EXISTS"
	WORKFLOW_CANCELLED     ErrorCode = "WORKFLOW_CANCELLED"
	WORKFLOW_FAILED        ErrorCode = "WORKFLOW_FAILED"
	STEP_EXHAUSTED         ErrorCode = "STEP_EXHAUSTED"
	CONDITION_FAILED       ErrorCode = "CONDITION_FAILED"
)

// Scheduler error codes
const (
	SCHEDULE_INVALID ErrorCode = "SCHEDULE_INVALID"
	SCHEDULE_EXISTS  ErrorCode = "SCHEDULE_EXISTS"
)

// CyberSageError represents a structured error with error code, message,
// and optional cause. It supports error wrapping and retryability hints
// for error handling logic.
type CyberSageError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *CyberSageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *CyberSageError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a CyberSageError with the same Code.
func (e *CyberSageError) Is(target error) bool {
	var csErr *CyberSageError
	if errors.As(target, &csErr) {
		return e.Code == csErr.Code
	}
	return false
}

// NewError creates a new non-retryable CyberSageError with the given code and message.
func NewError(code ErrorCode, message string) *CyberSageError {
	return &CyberSageError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable CyberSageError with the given code
// and message. Use this for transient errors that may succeed on retry
// (e.g., network timeouts).
func NewRetryableError(code ErrorCode, message string) *CyberSageError {
	return &CyberSageError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable CyberSageError that wraps an existing
// error. The wrapped error is accessible via Unwrap() for error chain
// inspection.
func WrapError(code ErrorCode, message string, cause error) *CyberSageError {
	return &CyberSageError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}
