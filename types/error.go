package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Graph configuration error codes. Raised while compiling, never at run time.
const (
	ErrDuplicateNode   ErrorCode = "GRAPH_DUPLICATE_NODE"
	ErrUnknownNode     ErrorCode = "GRAPH_UNKNOWN_NODE"
	ErrInvalidEdge     ErrorCode = "GRAPH_INVALID_EDGE"
	ErrInvalidNode     ErrorCode = "GRAPH_INVALID_NODE"
	ErrUnreachable     ErrorCode = "GRAPH_UNREACHABLE"
	ErrAlreadyCompiled ErrorCode = "GRAPH_ALREADY_COMPILED"
	ErrStateSchema     ErrorCode = "STATE_SCHEMA"
)

// Graph runtime error codes.
const (
	ErrUnknownRoute  ErrorCode = "GRAPH_UNKNOWN_ROUTE"
	ErrDeadEnd       ErrorCode = "GRAPH_DEAD_END"
	ErrStepLimit     ErrorCode = "GRAPH_STEP_LIMIT"
	ErrStateContract ErrorCode = "STATE_CONTRACT"
)

// Agent error codes
const (
	ErrAgentNotReady           ErrorCode = "AGENT_NOT_READY"
	ErrAgentAlreadyInitialized ErrorCode = "AGENT_ALREADY_INITIALIZED"
	ErrToolServerUnavailable   ErrorCode = "TOOL_SERVER_UNAVAILABLE"
	ErrProviderUnavailable     ErrorCode = "PROVIDER_UNAVAILABLE"
)

// LLM error codes
const (
	ErrInvalidRequest   ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized     ErrorCode = "LLM_UNAUTHORIZED"
	ErrForbidden        ErrorCode = "LLM_FORBIDDEN"
	ErrRateLimited      ErrorCode = "LLM_RATE_LIMITED"
	ErrQuotaExceeded    ErrorCode = "LLM_QUOTA_EXCEEDED"
	ErrModelOverloaded  ErrorCode = "LLM_MODEL_OVERLOADED"
	ErrUpstreamTimeout  ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError    ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrEmptyResponse    ErrorCode = "LLM_EMPTY_RESPONSE"
	ErrToolValidation   ErrorCode = "TOOL_VALIDATION"
	ErrToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	ErrToolServerFailed ErrorCode = "TOOL_SERVER_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from the first *Error in the chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
