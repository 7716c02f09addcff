// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: unexpected data type %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestAgentInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ai, err := NewAgentInstruments(mp)
	if err != nil {
		t.Fatalf("NewAgentInstruments: %v", err)
	}
	ctx := context.Background()

	ai.RecordRequest(ctx)
	ai.RecordRequest(ctx)
	ai.RecordResponse(ctx, 120*time.Millisecond, true)
	ai.RecordTool(ctx, "web_search", "success")
	ai.RecordTokens(ctx, "mock", 10, 5)
	ai.RecordError(ctx, errors.New(errors.CodeToolFailure, "tool failed", nil), "controller")
	ai.RecordError(ctx, stderrors.New("plain"), "controller")
	ai.RecordError(ctx, nil, "controller")

	metrics := collect(t, reader)
	if got := sumInt(t, metrics["kairos.agent.requests"]); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := sumInt(t, metrics["kairos.tool.invocations"]); got != 1 {
		t.Errorf("tool invocations = %d, want 1", got)
	}
	if got := sumInt(t, metrics["kairos.llm.tokens"]); got != 15 {
		t.Errorf("tokens = %d, want 15", got)
	}
	if got := sumInt(t, metrics["kairos.errors.total"]); got != 2 {
		t.Errorf("errors = %d, want 2", got)
	}
	hist, ok := metrics["kairos.agent.response_time"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 120 {
		t.Errorf("unexpected response time histogram %+v", metrics["kairos.agent.response_time"].Data)
	}
}

func TestNilAgentInstruments(t *testing.T) {
	var ai *AgentInstruments
	ctx := context.Background()
	ai.RecordRequest(ctx)
	ai.RecordResponse(ctx, time.Second, false)
	ai.RecordTool(ctx, "x", "error")
	ai.RecordTokens(ctx, "m", 1, 1)
	ai.RecordError(ctx, stderrors.New("x"), "c")
}
