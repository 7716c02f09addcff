// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
)

// AgentInstruments exports the orchestrator's aggregate metrics as OTEL instruments.
// A nil *AgentInstruments is valid and records nothing.
type AgentInstruments struct {
	// requestCounter tracks accepted user requests
	requestCounter metric.Int64Counter

	// responseTime tracks end-to-end request latency in milliseconds
	responseTime metric.Float64Histogram

	// toolCounter tracks tool invocations by tool and status
	toolCounter metric.Int64Counter

	// tokenCounter tracks model token usage by token type
	tokenCounter metric.Int64Counter

	// errorCounter tracks errors by code and component
	errorCounter metric.Int64Counter
}

// NewAgentInstruments creates the instruments on mp, or on the global meter
// provider when mp is nil.
func NewAgentInstruments(mp metric.MeterProvider) (*AgentInstruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("kairos/agent")

	requestCounter, err := meter.Int64Counter(
		"kairos.agent.requests",
		metric.WithDescription("Total user requests accepted by the controller"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"kairos.agent.response_time",
		metric.WithDescription("End-to-end request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	toolCounter, err := meter.Int64Counter(
		"kairos.tool.invocations",
		metric.WithDescription("Tool invocations by tool name and status"),
	)
	if err != nil {
		return nil, err
	}

	tokenCounter, err := meter.Int64Counter(
		"kairos.llm.tokens",
		metric.WithDescription("Model token usage by token type"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"kairos.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &AgentInstruments{
		requestCounter: requestCounter,
		responseTime:   responseTime,
		toolCounter:    toolCounter,
		tokenCounter:   tokenCounter,
		errorCounter:   errorCounter,
	}, nil
}

// RecordRequest counts one accepted request.
func (ai *AgentInstruments) RecordRequest(ctx context.Context) {
	if ai == nil {
		return
	}
	ai.requestCounter.Add(ctx, 1)
}

// RecordResponse records the latency of a finished request.
func (ai *AgentInstruments) RecordResponse(ctx context.Context, latency time.Duration, success bool) {
	if ai == nil {
		return
	}
	ai.responseTime.Record(ctx, float64(latency)/float64(time.Millisecond),
		metric.WithAttributes(attribute.Bool("success", success)),
	)
}

// RecordTool counts one tool invocation.
func (ai *AgentInstruments) RecordTool(ctx context.Context, tool, status string) {
	if ai == nil {
		return
	}
	ai.toolCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrToolName, tool),
			attribute.String("status", status),
		),
	)
}

// RecordTokens adds model token usage.
func (ai *AgentInstruments) RecordTokens(ctx context.Context, model string, prompt, completion int) {
	if ai == nil {
		return
	}
	if prompt > 0 {
		ai.tokenCounter.Add(ctx, int64(prompt), metric.WithAttributes(
			attribute.String(AttrLLMModel, model),
			attribute.String("token.type", "prompt"),
		))
	}
	if completion > 0 {
		ai.tokenCounter.Add(ctx, int64(completion), metric.WithAttributes(
			attribute.String(AttrLLMModel, model),
			attribute.String("token.type", "completion"),
		))
	}
}

// RecordError counts err under its KairosError code.
func (ai *AgentInstruments) RecordError(ctx context.Context, err error, component string) {
	if ai == nil || err == nil {
		return
	}
	ke := errors.AsKairosError(err)
	ai.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(ke.Code)),
			attribute.String("component", component),
			attribute.String("recoverable", ke.RecoverableString()),
		),
	)
}
