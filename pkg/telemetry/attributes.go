// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for agent observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// Semantic conventions for orchestrator telemetry.
const (
	// Agent attributes
	AttrAgentID       = "kairos.agent.id"
	AttrAgentModel    = "kairos.agent.model"
	AttrAgentRunID    = "kairos.agent.run_id"
	AttrAgentState    = "kairos.agent.state"
	AttrAgentMaxIter  = "kairos.agent.max_iterations"
	AttrAgentQueryLen = "kairos.agent.query_length"

	// Memory attributes
	AttrMemoryWindow    = "kairos.memory.window_size"
	AttrMemoryRetrieved = "kairos.memory.retrieved_count"

	// Plan attributes
	AttrPlanID         = "kairos.plan.id"
	AttrPlanSteps      = "kairos.plan.steps"
	AttrPlanReasoning  = "kairos.plan.reasoning_steps"
	AttrPlanFailed     = "kairos.plan.failed_steps"
	AttrPlanRefinement = "kairos.plan.refined"

	// Tool attributes
	AttrToolName       = "kairos.tool.name"
	AttrToolArgs       = "kairos.tool.arguments"
	AttrToolResult     = "kairos.tool.result"
	AttrToolDurationMs = "kairos.tool.duration_ms"
	AttrToolSuccess    = "kairos.tool.success"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMFinishReason = "gen_ai.finish_reason"

	// Event attributes
	AttrEventType = "kairos.event.type"
)

// AgentAttributes returns common attributes for controller spans.
func AgentAttributes(agentID, model, runID, state string, maxIter int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentRunID, runID),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(AttrAgentState, state))
	}
	if maxIter > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentMaxIter, maxIter))
	}
	return attrs
}

// MemoryAttributes returns attributes for memory retrieval.
func MemoryAttributes(windowSize, retrieved int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrMemoryWindow, windowSize),
		attribute.Int(AttrMemoryRetrieved, retrieved),
	}
}

// PlanAttributes returns attributes describing a plan run.
func PlanAttributes(planID string, steps, reasoning, failed int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrPlanSteps, steps),
		attribute.Int(AttrPlanReasoning, reasoning),
	}
	if planID != "" {
		attrs = append(attrs, attribute.String(AttrPlanID, planID))
	}
	if failed > 0 {
		attrs = append(attrs, attribute.Int(AttrPlanFailed, failed))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// ToolCallArgsResult returns attributes with tool arguments and result (truncated for safety).
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if args != "" {
		attrs = append(attrs, attribute.String(AttrToolArgs, textutil.Truncate(args, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrToolResult, textutil.Truncate(result, maxLen)))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(model, provider string, inputTokens, outputTokens int, durationMs float64, finishReason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	if finishReason != "" {
		attrs = append(attrs, attribute.String(AttrLLMFinishReason, finishReason))
	}
	return attrs
}
