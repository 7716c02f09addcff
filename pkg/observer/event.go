// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"maps"
	"time"

	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// EventKind identifies the operation an event describes.
type EventKind string

const (
	EventUserRequest   EventKind = "user_request"
	EventAgentResponse EventKind = "agent_response"
	EventToolExecution EventKind = "tool_execution"
	EventLLMRequest    EventKind = "llm_request"
	EventError         EventKind = "error"
)

// Event is a recorded operation. Exactly one payload matches Kind.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`

	Request  *RequestData  `json:"request,omitempty"`
	Response *ResponseData `json:"response,omitempty"`
	Tool     *ToolData     `json:"tool,omitempty"`
	LLM      *LLMData      `json:"llm,omitempty"`
	Error    *ErrorData    `json:"error,omitempty"`
}

// RequestData describes an accepted user request.
type RequestData struct {
	Query string `json:"query"`
}

// ResponseData describes a finished request.
type ResponseData struct {
	Response     string        `json:"response"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	FailedSteps  int           `json:"failed_steps,omitempty"`
}

// ToolData describes one tool invocation.
type ToolData struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input,omitempty"`
	Status   string         `json:"status"`
	Duration time.Duration  `json:"duration"`
}

// LLMData describes one model call.
type LLMData struct {
	Model      string        `json:"model"`
	Operation  string        `json:"operation"`
	TokenUsage llm.Usage     `json:"token_usage"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ErrorData describes a failure. Fatal marks a request that ended without a response.
type ErrorData struct {
	Operation string `json:"operation"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	StepID    int    `json:"step_id,omitempty"`
	Fatal     bool   `json:"fatal,omitempty"`
}

func (e Event) payload() any {
	switch {
	case e.Request != nil:
		return e.Request
	case e.Response != nil:
		return e.Response
	case e.Tool != nil:
		return e.Tool
	case e.LLM != nil:
		return e.LLM
	case e.Error != nil:
		return e.Error
	}
	return nil
}

// clone returns e with its own copy of every payload so the stored log and
// the events handed to callers never share memory.
func (e Event) clone() Event {
	if e.Request != nil {
		r := *e.Request
		e.Request = &r
	}
	if e.Response != nil {
		r := *e.Response
		e.Response = &r
	}
	if e.Tool != nil {
		t := *e.Tool
		if t.Input != nil {
			in, err := textutil.DeepClone(t.Input, nil)
			if err != nil {
				in = maps.Clone(t.Input)
			}
			t.Input = in
		}
		e.Tool = &t
	}
	if e.LLM != nil {
		l := *e.LLM
		e.LLM = &l
	}
	if e.Error != nil {
		x := *e.Error
		e.Error = &x
	}
	return e
}

// Filter selects events. Zero fields match everything; time bounds are inclusive.
type Filter struct {
	Kind  EventKind
	Start time.Time
	End   time.Time
}

func (f Filter) match(e Event) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}
