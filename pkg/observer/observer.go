// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package observer records operational events and derives running metrics
// from them.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/telemetry"
	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// Config controls what the observer keeps and prints.
type Config struct {
	EnableMetrics bool   `koanf:"enable_metrics"`
	EnableLogging bool   `koanf:"enable_logging"`
	LogToConsole  bool   `koanf:"log_to_console"`
	LogLevel      string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig enables metrics and logging at info level.
func DefaultConfig() Config {
	return Config{
		EnableMetrics: true,
		EnableLogging: true,
		LogToConsole:  true,
		LogLevel:      "info",
	}
}

// Metrics is a snapshot of the aggregate derived from recorded events.
type Metrics struct {
	TotalRequests       int            `json:"total_requests"`
	AverageResponseTime time.Duration  `json:"average_response_time"`
	ToolUsageCounts     map[string]int `json:"tool_usage_counts"`
	SuccessRate         float64        `json:"success_rate"`
	TokenUsage          llm.Usage      `json:"token_usage"`
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the logger used for event lines.
func WithLogger(l *slog.Logger) Option {
	return func(o *Observer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInstruments mirrors metric updates to OTEL instruments.
func WithInstruments(ai *telemetry.AgentInstruments) Option {
	return func(o *Observer) {
		o.instruments = ai
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(o *Observer) {
		if now != nil {
			o.now = now
		}
	}
}

// Observer is safe for concurrent use.
type Observer struct {
	cfg         Config
	logger      *slog.Logger
	instruments *telemetry.AgentInstruments
	now         func() time.Time
	level       slog.LevelVar

	mu        sync.Mutex
	events    []Event
	metrics   Metrics
	finished  int
	succeeded int
}

// New creates an observer.
func New(cfg Config, opts ...Option) *Observer {
	o := &Observer{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		metrics: Metrics{
			ToolUsageCounts: make(map[string]int),
			SuccessRate:     1.0,
		},
	}
	o.level.Set(telemetry.ParseLevel(cfg.LogLevel))
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Record stores event and updates the metrics when metrics are enabled, and
// logs it when logging is enabled. Missing ID, timestamp and run id are filled
// in. The stored event is returned.
func (o *Observer) Record(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = o.now()
	}
	if event.RunID == "" {
		event.RunID, _ = core.RunID(ctx)
	}
	if event.AgentID == "" {
		event.AgentID = core.AgentID(ctx)
	}
	event = event.clone()

	if o.cfg.EnableMetrics {
		o.mu.Lock()
		o.events = append(o.events, event.clone())
		o.update(event)
		o.mu.Unlock()
		o.export(ctx, event)
	}
	if o.cfg.EnableLogging {
		o.log(ctx, event)
	}
	return event
}

// update must be called with o.mu held.
func (o *Observer) update(e Event) {
	m := &o.metrics
	switch e.Kind {
	case EventUserRequest:
		m.TotalRequests++
	case EventToolExecution:
		if e.Tool != nil {
			m.ToolUsageCounts[e.Tool.ToolName]++
		}
	case EventLLMRequest:
		if e.LLM != nil {
			m.TokenUsage = m.TokenUsage.Add(e.LLM.TokenUsage)
		}
	case EventAgentResponse:
		if e.Response == nil {
			return
		}
		n := time.Duration(max(m.TotalRequests, 1))
		m.AverageResponseTime = (m.AverageResponseTime*(n-1) + e.Response.ResponseTime) / n
		o.finished++
		if e.Response.Success {
			o.succeeded++
		}
		m.SuccessRate = float64(o.succeeded) / float64(o.finished)
	case EventError:
		if e.Error != nil && e.Error.Fatal {
			o.finished++
			m.SuccessRate = float64(o.succeeded) / float64(o.finished)
		}
	}
}

func (o *Observer) export(ctx context.Context, e Event) {
	ai := o.instruments
	if ai == nil {
		return
	}
	switch {
	case e.Kind == EventUserRequest:
		ai.RecordRequest(ctx)
	case e.Kind == EventAgentResponse && e.Response != nil:
		ai.RecordResponse(ctx, e.Response.ResponseTime, e.Response.Success)
	case e.Kind == EventToolExecution && e.Tool != nil:
		ai.RecordTool(ctx, e.Tool.ToolName, e.Tool.Status)
	case e.Kind == EventLLMRequest && e.LLM != nil:
		ai.RecordTokens(ctx, e.LLM.Model, e.LLM.TokenUsage.PromptTokens, e.LLM.TokenUsage.CompletionTokens)
	case e.Kind == EventError && e.Error != nil:
		code := errors.ErrorCode(e.Error.Code)
		if code == "" {
			code = errors.CodeInternal
		}
		ai.RecordError(ctx, errors.New(code, e.Error.Message, nil), e.Error.Operation)
	}
}

func (o *Observer) log(ctx context.Context, e Event) {
	if !o.cfg.LogToConsole {
		return
	}
	level := slog.LevelInfo
	if e.Kind == EventError {
		level = slog.LevelError
	}
	if level < o.level.Level() {
		return
	}
	data, err := json.Marshal(e.payload())
	if err != nil {
		data = []byte(fmt.Sprintf("%v", e.payload()))
	}
	msg := fmt.Sprintf("[%s] [%s] %s",
		textutil.FormatTimestamp(e.Timestamp), strings.ToUpper(string(e.Kind)), data)
	o.logger.Log(ctx, level, msg,
		slog.String(telemetry.AttrEventType, string(e.Kind)),
		slog.String("event_id", e.ID),
	)
}

// Metrics returns a copy of the current aggregate.
func (o *Observer) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	m := o.metrics
	m.ToolUsageCounts = make(map[string]int, len(o.metrics.ToolUsageCounts))
	for k, v := range o.metrics.ToolUsageCounts {
		m.ToolUsageCounts[k] = v
	}
	return m
}

// Events returns the recorded events matching filter in recording order.
func (o *Observer) Events(filter Filter) []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, 0, len(o.events))
	for _, e := range o.events {
		if filter.match(e) {
			out = append(out, e.clone())
		}
	}
	return out
}

// ClearEvents empties the event log. Metrics are kept.
func (o *Observer) ClearEvents() {
	o.mu.Lock()
	o.events = nil
	o.mu.Unlock()
}

// SetLogLevel changes the minimum level of event lines.
func (o *Observer) SetLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown log level %q", level)
	}
	o.level.Set(telemetry.ParseLevel(level))
	return nil
}

// LogLevel returns the current minimum level of event lines.
func (o *Observer) LogLevel() slog.Level {
	return o.level.Level()
}

// Config returns the observer configuration.
func (o *Observer) Config() Config {
	return o.cfg
}

// RecordUserRequest records an accepted query.
func (o *Observer) RecordUserRequest(ctx context.Context, query string) Event {
	return o.Record(ctx, Event{Kind: EventUserRequest, Request: &RequestData{Query: query}})
}

// RecordAgentResponse records a finished request.
func (o *Observer) RecordAgentResponse(ctx context.Context, response string, latency time.Duration, failedSteps int) Event {
	return o.Record(ctx, Event{Kind: EventAgentResponse, Response: &ResponseData{
		Response:     response,
		ResponseTime: latency,
		Success:      failedSteps == 0,
		FailedSteps:  failedSteps,
	}})
}

// RecordToolExecution records one tool invocation.
func (o *Observer) RecordToolExecution(ctx context.Context, tool string, input map[string]any, status string, d time.Duration) Event {
	return o.Record(ctx, Event{Kind: EventToolExecution, Tool: &ToolData{
		ToolName: tool,
		Input:    input,
		Status:   status,
		Duration: d,
	}})
}

// RecordLLMRequest records one model call.
func (o *Observer) RecordLLMRequest(ctx context.Context, model, operation string, usage llm.Usage, d time.Duration) Event {
	return o.Record(ctx, Event{Kind: EventLLMRequest, LLM: &LLMData{
		Model:      model,
		Operation:  operation,
		TokenUsage: usage,
		Duration:   d,
	}})
}

// RecordError records a failure of operation.
func (o *Observer) RecordError(ctx context.Context, operation string, err error, stepID int, fatal bool) Event {
	data := &ErrorData{Operation: operation, StepID: stepID, Fatal: fatal}
	if err != nil {
		ke := errors.AsKairosError(err)
		data.Code = string(ke.Code)
		data.Message = err.Error()
	}
	return o.Record(ctx, Event{Kind: EventError, Error: data})
}
