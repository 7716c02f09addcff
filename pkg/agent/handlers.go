package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/planner"
	"github.com/jllopis/kairos-orchestrator/pkg/prompts"
	"github.com/jllopis/kairos-orchestrator/pkg/telemetry"
	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

const memoryExcerptLen = 200

type tokenSinkKey struct{}

func withTokenSink(ctx context.Context, fn func(string)) context.Context {
	return context.WithValue(ctx, tokenSinkKey{}, fn)
}

func tokenSink(ctx context.Context) func(string) {
	fn, _ := ctx.Value(tokenSinkKey{}).(func(string))
	return fn
}

func (c *Controller) handlers() map[planner.StepKind]planner.Handler {
	return map[planner.StepKind]planner.Handler{
		planner.KindToolExecution:      c.runTool,
		planner.KindAnalysis:           c.runAnalysis,
		planner.KindResponseGeneration: c.runResponse,
		planner.KindRefinement:         c.runRefinement,
	}
}

// runTool dispatches the step to the registry. A failed call keeps the
// error-shaped tools.Result as the step output.
func (c *Controller) runTool(ctx context.Context, step planner.Step, _ *planner.State) (any, error) {
	started := c.now()
	res := c.registry.Execute(ctx, step.Tool, tools.Input(step.Parameters))
	c.observer.RecordToolExecution(ctx, step.Tool, step.Parameters, string(res.Status), c.now().Sub(started))
	c.memory.StoreToolResult(step.Tool, res.String())
	if !res.OK() {
		err := WrapToolError(step.Tool, res.Error, step.ID)
		c.observer.RecordError(ctx, "tool_execution", err, step.ID, false)
		return res, err
	}
	return res, nil
}

func (c *Controller) runAnalysis(ctx context.Context, step planner.Step, state *planner.State) (any, error) {
	prompt := prompts.Fill(c.prompts.WebSearchAnalysis, map[string]string{
		"query":   state.Plan.Query,
		"results": searchResults(state),
	})
	resp, err := c.complete(ctx, "analysis", prompt)
	if err != nil {
		return nil, c.stepFailed(ctx, "analysis", step, err)
	}
	return resp.Text, nil
}

// runResponse summarizes the analysis together with the relevant memory.
// When a token sink is present the completion is streamed into it.
func (c *Controller) runResponse(ctx context.Context, step planner.Step, state *planner.State) (any, error) {
	relevant := c.memory.RetrieveRelevant(ctx, state.Plan.Query)
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.MemoryAttributes(c.memory.Config().WindowSize, len(relevant))...,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", state.Plan.Query)
	if out, ok := state.Output(planner.KindAnalysis); ok {
		if text, ok := out.(string); ok {
			fmt.Fprintf(&b, "Analysis: %s\n", text)
		}
	}
	if len(relevant) > 0 {
		b.WriteString("Context:\n")
		for _, item := range relevant {
			fmt.Fprintf(&b, "- [%s] %s\n", item.Kind, textutil.Truncate(item.Content, memoryExcerptLen))
		}
	}
	prompt := prompts.Fill(c.prompts.Summarization, map[string]string{"text": b.String()})

	var (
		resp *llm.Response
		err  error
	)
	if sink := tokenSink(ctx); sink != nil {
		resp, err = c.stream(ctx, "response_generation", prompt, sink)
	} else {
		resp, err = c.complete(ctx, "response_generation", prompt)
	}
	if err != nil {
		return nil, c.stepFailed(ctx, "response_generation", step, err)
	}
	return resp.Text, nil
}

func (c *Controller) runRefinement(_ context.Context, step planner.Step, _ *planner.State) (any, error) {
	return fmt.Sprintf("Step %d: %s", step.ID, step.Description), nil
}

func (c *Controller) complete(ctx context.Context, operation, prompt string) (*llm.Response, error) {
	started := c.now()
	resp, err := c.gateway.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	c.observer.RecordLLMRequest(ctx, resp.Model, operation, resp.Usage, c.now().Sub(started))
	return resp, nil
}

func (c *Controller) stream(ctx context.Context, operation, prompt string, sink func(string)) (*llm.Response, error) {
	started := c.now()
	resp, err := c.gateway.StreamComplete(ctx, prompt, llm.StreamCallbacks{OnToken: sink}).Wait()
	if err != nil {
		return nil, err
	}
	c.observer.RecordLLMRequest(ctx, resp.Model, operation, resp.Usage, c.now().Sub(started))
	return resp, nil
}

func (c *Controller) stepFailed(ctx context.Context, operation string, step planner.Step, err error) error {
	wrapped := WrapLLMError(err, c.gateway.Model(), operation)
	wrapped.WithContext("step_id", step.ID)
	c.observer.RecordError(ctx, operation, wrapped, step.ID, false)
	return wrapped
}

// onPlannerResponse reports the planner's reasoning completions.
func (c *Controller) onPlannerResponse(ctx context.Context, resp *llm.Response, err error) {
	if err != nil {
		c.observer.RecordError(ctx, "planning", WrapLLMError(err, c.gateway.Model(), "planning"), 0, false)
		return
	}
	c.observer.RecordLLMRequest(ctx, resp.Model, "planning", resp.Usage, 0)
}

func (c *Controller) onStepEvent(ctx context.Context, ev planner.AuditEvent) {
	if !c.cfg.DebugMode {
		return
	}
	c.logger.DebugContext(ctx, "plan step",
		slog.String("plan_id", ev.PlanID),
		slog.Int("step_id", ev.StepID),
		slog.String("kind", ev.StepKind),
		slog.String("status", ev.Status),
		slog.String("error", ev.Error),
	)
}

// searchResults renders the output of the plan's tool step for the analysis prompt.
func searchResults(state *planner.State) string {
	out, ok := state.Output(planner.KindToolExecution)
	if !ok {
		return "No search results available."
	}
	res, ok := out.(tools.Result)
	if !ok || !res.OK() {
		return "No search results available."
	}
	if text, ok := res.Data.(string); ok {
		return text
	}
	data, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Sprintf("%v", res.Data)
	}
	return string(data)
}
