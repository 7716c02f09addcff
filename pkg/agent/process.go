// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/planner"
	"github.com/jllopis/kairos-orchestrator/pkg/telemetry"
)

// ProcessRequest answers query: it stores the query in memory, builds a plan,
// runs every step in order and composes the response from the step outputs.
// A failing step does not abort the request. Calling ProcessRequest outside
// idle or initialized returns a STATE_CONFLICT error and has no side effects.
func (c *Controller) ProcessRequest(ctx context.Context, query string) (string, error) {
	return c.run(ctx, "process_request", func(ctx context.Context) (string, error) {
		return c.answer(ctx, query)
	})
}

// Run is ProcessRequest under the name used by scenario runners.
func (c *Controller) Run(ctx context.Context, input string) (string, error) {
	return c.ProcessRequest(ctx, input)
}

// StreamResponse behaves like ProcessRequest but streams the response
// generation step through onToken. The returned text always starts with the
// concatenation of the streamed tokens. When the stream fails partway, the
// partial text is followed by a blank line and the fallback response.
func (c *Controller) StreamResponse(ctx context.Context, query string, onToken func(string)) (string, error) {
	return c.run(ctx, "stream_response", func(ctx context.Context) (string, error) {
		var streamed strings.Builder
		ctx = withTokenSink(ctx, func(tok string) {
			streamed.WriteString(tok)
			if onToken != nil {
				onToken(tok)
			}
		})
		resp, err := c.answer(ctx, query)
		if err != nil {
			return resp, err
		}
		if partial := streamed.String(); partial != "" && !strings.HasPrefix(resp, partial) {
			resp = partial + "\n\n" + resp
		}
		return resp, nil
	})
}

// Refine appends a refinement step built from feedback to the last executed
// plan and runs it. Steps already completed are not executed again.
func (c *Controller) Refine(ctx context.Context, feedback string) (string, error) {
	return c.run(ctx, "refine", func(ctx context.Context) (string, error) {
		c.mu.Lock()
		last := c.lastPlan
		c.mu.Unlock()
		if last == nil {
			return "", errors.New(errors.CodeInvalidInput, "refine", ErrNoPlan)
		}
		if len(last.Steps) >= c.cfg.MaxIterations {
			return "", errors.Newf(errors.CodeInvalidInput, "plan already has %d steps", len(last.Steps)).
				WithContext("max_iterations", c.cfg.MaxIterations)
		}

		c.observer.RecordUserRequest(ctx, feedback)
		c.memory.StoreUserInput(feedback)

		refined, err := c.planner.RefinePlan(last, feedback)
		if err != nil {
			c.observer.RecordError(ctx, "refine_plan", err, 0, true)
			return "", err
		}
		return c.execute(ctx, refined)
	})
}

// run claims the controller, opens the request span and releases the
// controller afterwards. A panic leaves the controller in the error state.
func (c *Controller) run(ctx context.Context, operation string, fn func(context.Context) (string, error)) (resp string, err error) {
	if err := c.begin(operation); err != nil {
		return "", err
	}

	ctx, runID := core.EnsureRunID(core.WithAgentID(ctx, c.id))
	ctx, span := c.tracer.Start(ctx, "Agent."+operation, trace.WithAttributes(
		telemetry.AgentAttributes(c.id, c.gateway.Model(), runID, core.StateProcessing.String(), c.cfg.MaxIterations)...,
	))
	next := core.StateIdle
	defer func() {
		if r := recover(); r != nil {
			next = core.StateError
			err = errors.New(errors.CodeInternal, operation+" panicked", fmt.Errorf("%v", r))
			resp = ""
			c.observer.RecordError(ctx, operation, err, 0, true)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.finish(next)
	}()

	return fn(ctx)
}

func (c *Controller) answer(ctx context.Context, query string) (string, error) {
	c.observer.RecordUserRequest(ctx, query)
	c.memory.StoreUserInput(query)

	plan, err := c.planner.CreatePlan(ctx, query)
	if err != nil {
		c.observer.RecordError(ctx, "create_plan", err, 0, true)
		return "", err
	}
	if c.cfg.DebugMode {
		for _, r := range plan.Reasoning {
			c.memory.StoreReasoning(r.Thought)
		}
	}
	return c.execute(ctx, plan)
}

// execute runs plan, remembers it for Refine and records the response.
func (c *Controller) execute(ctx context.Context, plan *planner.Plan) (string, error) {
	started := c.now()
	state, err := c.executor.Execute(ctx, plan)

	c.mu.Lock()
	c.lastPlan = plan
	c.mu.Unlock()

	if err != nil {
		c.observer.RecordError(ctx, "execute_plan", err, 0, true)
		return "", err
	}

	response := compose(state)
	runID, _ := core.RunID(ctx)
	c.memory.StoreAgentResponse(response, map[string]string{
		"plan_id": plan.ID,
		"run_id":  runID,
	})
	c.observer.RecordAgentResponse(ctx, response, c.now().Sub(started), len(state.Failed))
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.PlanAttributes(plan.ID, len(plan.Steps), len(plan.Reasoning), len(state.Failed))...,
	)
	return response, nil
}

// compose builds the response from the response generation output, falling
// back to the analysis output. Refinement outputs are appended in step order.
func compose(state *planner.State) string {
	var b strings.Builder
	switch {
	case writeOutput(&b, state, planner.KindResponseGeneration):
	case writeOutput(&b, state, planner.KindAnalysis):
	default:
		fmt.Fprintf(&b, "I could not complete the request: %d of %d steps failed.",
			len(state.Failed), len(state.Plan.Steps))
	}
	for _, step := range state.Plan.Steps {
		if step.Kind != planner.KindRefinement {
			continue
		}
		if text, ok := state.Outputs[step.ID].(string); ok && text != "" {
			b.WriteString("\n\n")
			b.WriteString(text)
		}
	}
	return b.String()
}

func writeOutput(b *strings.Builder, state *planner.State, kind planner.StepKind) bool {
	out, ok := state.Output(kind)
	if !ok {
		return false
	}
	text, ok := out.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return false
	}
	b.WriteString(text)
	return true
}
