package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeConfig           = "CONFIG_ERROR"
	ErrCodeExecution        = "EXECUTION_ERROR"
	ErrCodePoint            = "POINT_ERROR"
	ErrCodeDatabase         = "DB_ERROR"
	ErrCodeNoStartNode      = "NO_START_NODE"
	ErrCodeSequenceNotFound = "SEQUENCE_NOT_FOUND"
	ErrCodeNotExecuted      = "NOT_EXECUTED"
	ErrCodeStopped          = "STOPPED"
)

// SequenceError is the structured error type for all engine operations.
type SequenceError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SequenceError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SequenceError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SequenceError.
func NewError(code, message string) *SequenceError {
	return &SequenceError{Code: code, Message: message}
}

// NewErrorf creates a new SequenceError with a formatted message.
func NewErrorf(code, format string, args ...any) *SequenceError {
	return &SequenceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *SequenceError) WithNode(nodeID string) *SequenceError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *SequenceError) WithCause(err error) *SequenceError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *SequenceError) WithDetails(details map[string]any) *SequenceError {
	e.Details = details
	return e
}
