package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Node type registry error codes
const (
	ErrInvalidDescription ErrorCode = "INVALID_DESCRIPTION"
	ErrDuplicateType      ErrorCode = "DUPLICATE_TYPE"
)

// Graph validation error codes. All of them are raised before execution begins.
const (
	ErrUnknownNodeType   ErrorCode = "UNKNOWN_NODE_TYPE"
	ErrMissingParameter  ErrorCode = "MISSING_PARAMETER"
	ErrTypeMismatch      ErrorCode = "TYPE_MISMATCH"
	ErrInvalidConnection ErrorCode = "INVALID_CONNECTION"
	ErrCyclicGraph       ErrorCode = "CYCLIC_GRAPH"
	ErrNoStartNode       ErrorCode = "NO_START_NODE"
)

// Invocation manager error codes
const (
	ErrCapacityExceeded    ErrorCode = "CAPACITY_EXCEEDED"
	ErrInvocationTimeout   ErrorCode = "INVOCATION_TIMEOUT"
	ErrInvocationNotFound  ErrorCode = "INVOCATION_NOT_FOUND"
	ErrInvocationCancelled ErrorCode = "INVOCATION_CANCELLED"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
)

// Execution error codes
const (
	ErrNodeExecutionFailed ErrorCode = "NODE_EXECUTION_FAILED"
	ErrNoHandler           ErrorCode = "NO_HANDLER"
	ErrInvalidExpression   ErrorCode = "INVALID_EXPRESSION"
)

// Service error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrWorkflowNotFound   ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrExecutionNotFound  ErrorCode = "EXECUTION_NOT_FOUND"
	ErrAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code         ErrorCode      `json:"code"`
	Message      string         `json:"message"`
	Retryable    bool           `json:"retryable"`
	NodeID       string         `json:"node_id,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Cause        error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithNode records the offending node id.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithInvocation records the offending invocation id.
func (e *Error) WithInvocation(invocationID string) *Error {
	e.InvocationID = invocationID
	return e
}

// WithDetail attaches a key/value pair to the error details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// WrapError wraps err under a new code, keeping the original as the cause.
// Returns nil when err is nil.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return NewError(code, message).WithCause(err)
}
