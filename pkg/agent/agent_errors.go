// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	stderrors "errors"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
	"github.com/jllopis/kairos-orchestrator/pkg/errors"
)

var (
	// ErrMissingProvider is returned by New when neither a provider nor a gateway is set.
	ErrMissingProvider = stderrors.New("agent model provider is required")

	// ErrStateConflict is wrapped by every error caused by calling the
	// controller in a state that does not allow the operation.
	ErrStateConflict = stderrors.New("invalid agent state")

	// ErrNoPlan is returned by Refine before any request has been processed.
	ErrNoPlan = stderrors.New("no plan to refine")
)

// newStateConflict reports an attempted transition from one state to another.
func newStateConflict(operation string, from, to core.State) *errors.KairosError {
	return errors.New(errors.CodeStateConflict, operation+" not allowed in state "+from.String(), ErrStateConflict).
		WithContext("from", from.String()).
		WithContext("to", to.String()).
		WithAttribute("operation", operation).
		WithRecoverable(false)
}

// WrapLLMError wraps an LLM error with appropriate context.
func WrapLLMError(err error, model, operation string) *errors.KairosError {
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.CodeLLMError) {
		return errors.AsKairosError(err).WithContext("operation", operation)
	}
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithContext("operation", operation).
		WithAttribute("llm.model", model).
		WithRecoverable(true)
}

// WrapToolError wraps a failed tool result with appropriate context.
func WrapToolError(toolName, message string, stepID int) *errors.KairosError {
	return errors.New(errors.CodeToolFailure, message, nil).
		WithContext("tool_name", toolName).
		WithContext("step_id", stepID).
		WithAttribute("tool.name", toolName).
		WithRecoverable(true)
}

// NewInvalidInputError creates a new invalid input error.
func NewInvalidInputError(msg string, cause error) *errors.KairosError {
	return errors.New(errors.CodeInvalidInput, msg, cause).
		WithRecoverable(false)
}
