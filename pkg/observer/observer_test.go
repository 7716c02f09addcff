// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/telemetry"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableLogging = false
	return cfg
}

func TestRecordUpdatesMetrics(t *testing.T) {
	o := New(quietConfig())
	ctx := context.Background()

	o.RecordUserRequest(ctx, "find me headphones")
	o.RecordToolExecution(ctx, "web_search", map[string]any{"query": "x"}, "success", time.Millisecond)
	o.RecordToolExecution(ctx, "web_search", nil, "error", time.Millisecond)
	o.RecordLLMRequest(ctx, "mock", "complete", llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, 0)
	o.RecordLLMRequest(ctx, "mock", "complete", llm.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, 0)
	o.RecordAgentResponse(ctx, "done", 100*time.Millisecond, 0)

	m := o.Metrics()
	if m.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", m.TotalRequests)
	}
	if m.ToolUsageCounts["web_search"] != 2 {
		t.Errorf("unexpected tool counts %v", m.ToolUsageCounts)
	}
	if m.TokenUsage != (llm.Usage{PromptTokens: 11, CompletionTokens: 6, TotalTokens: 17}) {
		t.Errorf("unexpected token usage %+v", m.TokenUsage)
	}
	if m.AverageResponseTime != 100*time.Millisecond {
		t.Errorf("AverageResponseTime = %v, want 100ms", m.AverageResponseTime)
	}
	if m.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1", m.SuccessRate)
	}
}

func TestRunningAverage(t *testing.T) {
	o := New(quietConfig())
	ctx := context.Background()

	o.RecordUserRequest(ctx, "a")
	o.RecordAgentResponse(ctx, "a", 100*time.Millisecond, 0)
	if got := o.Metrics().AverageResponseTime; got != 100*time.Millisecond {
		t.Fatalf("after first response got %v", got)
	}
	o.RecordUserRequest(ctx, "b")
	o.RecordAgentResponse(ctx, "b", 300*time.Millisecond, 0)
	if got := o.Metrics().AverageResponseTime; got != 200*time.Millisecond {
		t.Fatalf("after second response got %v", got)
	}
}

func TestResponseWithoutRequest(t *testing.T) {
	o := New(quietConfig())
	o.RecordAgentResponse(context.Background(), "x", 50*time.Millisecond, 0)
	if got := o.Metrics().AverageResponseTime; got != 50*time.Millisecond {
		t.Fatalf("expected 50ms, got %v", got)
	}
}

func TestSuccessRate(t *testing.T) {
	o := New(quietConfig())
	ctx := context.Background()

	o.RecordAgentResponse(ctx, "ok", time.Millisecond, 0)
	o.RecordAgentResponse(ctx, "partial", time.Millisecond, 1)
	o.RecordError(ctx, "analysis", stderrors.New("llm down"), 2, false)
	if got := o.Metrics().SuccessRate; got != 0.5 {
		t.Fatalf("SuccessRate = %v, want 0.5", got)
	}
	o.RecordError(ctx, "process_request", errors.New(errors.CodeContextLost, "cancelled", nil), 0, true)
	if got := o.Metrics().SuccessRate; got < 0.333 || got > 0.334 {
		t.Fatalf("SuccessRate = %v, want 1/3", got)
	}
}

func TestMetricsSnapshotIsCopy(t *testing.T) {
	o := New(quietConfig())
	o.RecordToolExecution(context.Background(), "web_search", nil, "success", 0)

	m := o.Metrics()
	m.ToolUsageCounts["web_search"] = 99
	m.TotalRequests = 42
	if got := o.Metrics(); got.ToolUsageCounts["web_search"] != 1 || got.TotalRequests != 0 {
		t.Fatalf("snapshot mutation leaked: %+v", got)
	}
}

func TestEventsAreImmutable(t *testing.T) {
	o := New(quietConfig())
	input := map[string]any{"query": "headphones", "filters": map[string]any{"max": 100}}
	recorded := o.RecordToolExecution(context.Background(), "web_search", input, "success", 0)

	input["query"] = "changed"
	input["extra"] = 1
	input["filters"].(map[string]any)["max"] = 1
	recorded.Tool.ToolName = "recorded"

	evs := o.Events(Filter{})
	evs[0].Tool.ToolName = "returned"
	evs[0].Tool.Input["query"] = "returned"
	evs[0].ID = "other"

	got := o.Events(Filter{})[0]
	if got.Tool.ToolName != "web_search" || got.ID == "other" {
		t.Fatalf("stored event changed: %+v", got.Tool)
	}
	if len(got.Tool.Input) != 2 || got.Tool.Input["query"] != "headphones" {
		t.Fatalf("stored input changed: %v", got.Tool.Input)
	}
	if v := got.Tool.Input["filters"].(map[string]any)["max"]; v != 100 {
		t.Fatalf("nested input changed: %v", v)
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := quietConfig()
	cfg.EnableMetrics = false
	o := New(cfg)
	o.RecordUserRequest(context.Background(), "q")
	if len(o.Events(Filter{})) != 0 || o.Metrics().TotalRequests != 0 {
		t.Fatal("nothing should be kept when metrics are disabled")
	}
}

func TestEventsFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	o := New(quietConfig(), WithClock(func() time.Time { return clock }))
	ctx := core.WithRunID(context.Background(), "run-1")

	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Minute)
		o.RecordUserRequest(ctx, "q")
		o.RecordToolExecution(ctx, "web_search", nil, "success", 0)
	}

	if got := o.Events(Filter{}); len(got) != 6 || got[0].RunID != "run-1" || got[0].ID == "" {
		t.Fatalf("unexpected events %+v", got)
	}
	if got := o.Events(Filter{Kind: EventToolExecution}); len(got) != 3 {
		t.Fatalf("expected 3 tool events, got %d", len(got))
	}
	inclusive := o.Events(Filter{
		Kind:  EventUserRequest,
		Start: base.Add(time.Minute),
		End:   base.Add(2 * time.Minute),
	})
	if len(inclusive) != 2 {
		t.Fatalf("expected inclusive bounds to match 2 events, got %d", len(inclusive))
	}
}

func TestClearEventsKeepsMetrics(t *testing.T) {
	o := New(quietConfig())
	o.RecordUserRequest(context.Background(), "q")
	o.ClearEvents()
	if len(o.Events(Filter{})) != 0 {
		t.Fatal("expected empty event log")
	}
	if o.Metrics().TotalRequests != 1 {
		t.Fatal("metrics must survive ClearEvents")
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, slog.LevelDebug, "text")
	o := New(DefaultConfig(), WithLogger(logger))
	ctx := context.Background()

	o.RecordUserRequest(ctx, "find me headphones")
	if !strings.Contains(buf.String(), "[USER_REQUEST]") || !strings.Contains(buf.String(), "find me headphones") {
		t.Fatalf("expected event line, got %q", buf.String())
	}

	buf.Reset()
	if err := o.SetLogLevel("error"); err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
	o.RecordUserRequest(ctx, "hidden")
	o.RecordError(ctx, "analysis", stderrors.New("boom"), 2, false)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected output after SetLogLevel(error): %q", out)
	}

	if err := o.SetLogLevel("loud"); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestLogToConsoleDisabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.LogToConsole = false
	o := New(cfg, WithLogger(telemetry.NewLogger(&buf, slog.LevelDebug, "text")))
	o.RecordUserRequest(context.Background(), "q")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestConcurrentRecord(t *testing.T) {
	o := New(quietConfig())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				o.RecordUserRequest(context.Background(), "q")
				o.RecordToolExecution(context.Background(), "web_search", nil, "success", 0)
			}
		}()
	}
	wg.Wait()
	m := o.Metrics()
	if m.TotalRequests != 1000 || m.ToolUsageCounts["web_search"] != 1000 {
		t.Fatalf("lost updates: %+v", m)
	}
}

func TestRunningAverageProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("average equals mean of latencies", prop.ForAll(
		func(latencies []int64) bool {
			o := New(quietConfig())
			var sum int64
			for _, l := range latencies {
				o.RecordUserRequest(context.Background(), "q")
				o.RecordAgentResponse(context.Background(), "r", time.Duration(l)*time.Millisecond, 0)
				sum += l
			}
			if len(latencies) == 0 {
				return o.Metrics().AverageResponseTime == 0
			}
			mean := time.Duration(sum) * time.Millisecond / time.Duration(len(latencies))
			diff := o.Metrics().AverageResponseTime - mean
			if diff < 0 {
				diff = -diff
			}
			return diff <= time.Duration(len(latencies))
		},
		gen.SliceOf(gen.Int64Range(0, 10_000)),
	))

	properties.TestingRun(t)
}
