// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools provides the tool registry: named, schema-described
// capabilities executed by name against structured input.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status reports the outcome of a tool call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Input is the structured input passed to a tool.
type Input map[string]any

// String returns the value of key when it is a string.
func (in Input) String(key string) string {
	s, _ := in[key].(string)
	return s
}

// Result is the outcome of a tool call. Failures are values, not errors.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// Failure builds an error result.
func Failure(format string, args ...any) Result {
	return Result{Status: StatusError, Error: fmt.Sprintf(format, args...)}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// String renders the result as JSON for prompts and memory.
func (r Result) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":%q,"error":%q}`, StatusError, err.Error())
	}
	return string(data)
}

// Parameter describes one input field.
type Parameter struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Definition is the registry-facing description of a tool.
type Definition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters,omitempty"`
}

// Tool is a callable capability. Execute may return an error or panic; the
// registry converts both into error results.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, input Input) (Result, error)
}

// Func adapts a function to the Tool interface.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, input Input) (Result, error)
}

// NewFunc builds a Tool from a definition and a function.
func NewFunc(def Definition, fn func(ctx context.Context, input Input) (Result, error)) *Func {
	return &Func{Def: def, Fn: fn}
}

// Definition implements Tool.
func (f *Func) Definition() Definition { return f.Def }

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, input Input) (Result, error) {
	return f.Fn(ctx, input)
}
