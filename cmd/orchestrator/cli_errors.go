// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
)

// CLIError wraps KairosError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.KairosError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ke *errors.KairosError, hint string) *CLIError {
	return &CLIError{
		KairosError: ke,
		Hint:        hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.KairosError == nil {
		return "unknown error"
	}
	msg := e.KairosError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the KairosError to errors.Is and errors.As.
func (e *CLIError) Unwrap() error {
	return e.KairosError
}

// PrintError writes the error to w.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		payload, _ := json.Marshal(map[string]any{"error": map[string]string{
			"code":    string(e.Code),
			"message": e.Message,
			"hint":    e.Hint,
		}})
		fmt.Fprintln(w, string(payload))
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Code), e.Message)
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// WrapTimeoutError wraps a timeout error with CLI hints.
func WrapTimeoutError(err error, operation string) *CLIError {
	ke := errors.New(errors.CodeTimeout, operation+" timed out", err).
		WithContext("operation", operation).
		WithRecoverable(true)
	return NewCLIError(ke, "try increasing the timeout with --timeout or check the model backend")
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ke := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason).
		WithRecoverable(false)
	return NewCLIError(ke, "run 'orchestrator help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ke := errors.New(errors.CodeConfiguration, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration and KAIROS_ environment variables"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ke, hint)
}

// hintFor suggests a next step for errors returned by the controller.
func hintFor(err error) *CLIError {
	ke := errors.AsKairosError(err)
	switch ke.Code {
	case errors.CodeStateConflict:
		return NewCLIError(ke, "the agent is not accepting requests; restart the command")
	case errors.CodeLLMError:
		return NewCLIError(ke, "check that the model backend is reachable (llm.base_url)")
	case errors.CodeContextLost:
		return NewCLIError(ke, "the request was cancelled")
	case errors.CodeTransport:
		return NewCLIError(ke, "check the MCP server or API endpoint configuration")
	default:
		return NewCLIError(ke, "")
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeConfiguration:
		return "Configuration Error"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeRateLimit:
		return "Rate Limited"
	case errors.CodeToolFailure:
		return "Tool Failure"
	case errors.CodeStateConflict:
		return "State Conflict"
	case errors.CodeLLMError:
		return "LLM Error"
	case errors.CodeMemoryError:
		return "Memory Error"
	case errors.CodeContextLost:
		return "Context Lost"
	case errors.CodeTransport:
		return "Transport Error"
	default:
		return string(code)
	}
}

func exitWithError(err error, asJSON bool) {
	cliErr, ok := err.(*CLIError)
	if !ok {
		cliErr = hintFor(err)
	}
	cliErr.PrintError(os.Stderr, asJSON)
	os.Exit(1)
}
