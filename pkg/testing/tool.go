// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"sync"

	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

// StubTool is a registry tool with a scripted outcome that records its calls.
type StubTool struct {
	mu     sync.Mutex
	def    tools.Definition
	result tools.Result
	err    error
	panic  any
	calls  []tools.Input
}

// NewStubTool creates a stub tool that succeeds with nil data.
func NewStubTool(name string) *StubTool {
	return &StubTool{
		def:    tools.Definition{Name: name, Parameters: map[string]tools.Parameter{}},
		result: tools.Success(nil),
	}
}

// WithDescription sets the tool description.
func (s *StubTool) WithDescription(desc string) *StubTool {
	s.def.Description = desc
	return s
}

// WithParameter adds a parameter to the tool definition.
func (s *StubTool) WithParameter(name, paramType, description string, required bool) *StubTool {
	s.def.Parameters[name] = tools.Parameter{Type: paramType, Description: description, Required: required}
	return s
}

// Returns makes the tool succeed with data.
func (s *StubTool) Returns(data any) *StubTool {
	s.result, s.err, s.panic = tools.Success(data), nil, nil
	return s
}

// Fails makes the tool report an error result.
func (s *StubTool) Fails(msg string) *StubTool {
	s.result, s.err, s.panic = tools.Failure("%s", msg), nil, nil
	return s
}

// Errors makes the tool return err from Execute.
func (s *StubTool) Errors(err error) *StubTool {
	s.err, s.panic = err, nil
	return s
}

// Panics makes the tool panic with v.
func (s *StubTool) Panics(v any) *StubTool {
	s.panic = v
	return s
}

// Definition implements tools.Tool.
func (s *StubTool) Definition() tools.Definition {
	return s.def
}

// Execute implements tools.Tool.
func (s *StubTool) Execute(_ context.Context, input tools.Input) (tools.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, input)
	p, res, err := s.panic, s.result, s.err
	s.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if err != nil {
		return tools.Result{}, err
	}
	return res, nil
}

// Calls returns the inputs of every call so far.
func (s *StubTool) Calls() []tools.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tools.Input, len(s.calls))
	copy(out, s.calls)
	return out
}

var _ tools.Tool = (*StubTool)(nil)
