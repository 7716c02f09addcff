// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for the orchestrator.
// Every failure that crosses a component boundary carries an ErrorCode so callers
// can tell configuration, provider, state-conflict and step failures apart.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies orchestrator errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeConfiguration indicates an unknown service or tool name at lookup time.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeStateConflict indicates an operation was invoked in an invalid agent state.
	CodeStateConflict ErrorCode = "STATE_CONFLICT"

	// CodeContextLost indicates context was lost (e.g., cancelled during retry).
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMemoryError indicates a memory system error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates a model provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeTransport indicates an outbound API call failed.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"
)

// KairosError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type KairosError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *KairosError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *KairosError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *KairosError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
		StatusCode  int                    `json:"status_code"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		Context:     e.Context,
		StatusCode:  e.StatusCode,
	})
}

// New creates a new KairosError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *KairosError {
	return &KairosError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a KairosError without cause using a formatted message.
func Newf(code ErrorCode, format string, args ...any) *KairosError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *KairosError) WithContext(key string, value interface{}) *KairosError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *KairosError) WithAttribute(key, value string) *KairosError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *KairosError) WithRecoverable(recoverable bool) *KairosError {
	e.Recoverable = recoverable
	return e
}

// AsKairosError attempts to convert an error to a KairosError.
// The chain is searched with errors.As; anything else is wrapped as internal.
func AsKairosError(err error) *KairosError {
	if err == nil {
		return nil
	}
	var ke *KairosError
	if stderrors.As(err, &ke) {
		return ke
	}
	return New(CodeInternal, "wrapped error", err)
}

// Is reports whether any KairosError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var ke *KairosError
		if !stderrors.As(err, &ke) {
			return false
		}
		if ke.Code == code {
			return true
		}
		err = ke.Err
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *KairosError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeConfiguration:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeStateConflict:
		return 409
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeLLMError, CodeTransport:
		return 502
	default:
		return 500
	}
}
