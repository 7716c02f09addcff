// Package planner turns user queries into ordered plans and executes them.
package planner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/prompts"
	"github.com/jllopis/kairos-orchestrator/pkg/resilience"
	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// DefaultReasoningSteps is the reasoning trace length used when none is configured.
const DefaultReasoningSteps = 3

// DefaultSearchTool is the tool used by the first step of every plan.
const DefaultSearchTool = "web_search"

// Completer issues single-shot completions. *llm.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*llm.Response, error)
}

// ResponseHook observes every completion the planner requests.
type ResponseHook func(ctx context.Context, resp *llm.Response, err error)

// Option configures a Planner.
type Option func(*Planner)

// WithReasoningSteps sets the initial reasoning trace length.
func WithReasoningSteps(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.reasoningSteps = n
		}
	}
}

// WithPrompts replaces the prompt templates.
func WithPrompts(set prompts.Set) Option {
	return func(p *Planner) {
		p.prompts = set
	}
}

// WithSearchTool names the tool used by the search step.
func WithSearchTool(name string) Option {
	return func(p *Planner) {
		if name != "" {
			p.searchTool = name
		}
	}
}

// WithResponseHook registers a hook called after each completion.
func WithResponseHook(h ResponseHook) Option {
	return func(p *Planner) {
		p.onResponse = h
	}
}

// WithCloneFunc sets the strategy used to copy plans.
func WithCloneFunc(fn textutil.CloneFunc) Option {
	return func(p *Planner) {
		p.clone = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// Planner builds plans for queries using a language model for the reasoning trace.
type Planner struct {
	llm        Completer
	prompts    prompts.Set
	searchTool string
	onResponse ResponseHook
	clone      textutil.CloneFunc
	now        func() time.Time
	tracer     trace.Tracer

	mu             sync.RWMutex
	reasoningSteps int
}

// New creates a planner. A nil completer yields placeholder reasoning.
func New(c Completer, opts ...Option) *Planner {
	p := &Planner{
		llm:            c,
		prompts:        prompts.Default(),
		searchTool:     DefaultSearchTool,
		clone:          textutil.CopyStructure,
		now:            time.Now,
		tracer:         otel.Tracer("kairos/planner"),
		reasoningSteps: DefaultReasoningSteps,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReasoningSteps returns the trace length used by CreatePlan.
func (p *Planner) ReasoningSteps() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reasoningSteps
}

// SetReasoningSteps changes the trace length for subsequent plans.
func (p *Planner) SetReasoningSteps(n int) error {
	if n < 1 {
		return errors.Newf(errors.CodeInvalidInput, "reasoning steps must be positive, got %d", n)
	}
	p.mu.Lock()
	p.reasoningSteps = n
	p.mu.Unlock()
	return nil
}

// CreatePlan builds the plan for query: a search step, an analysis step and a
// response generation step, plus a reasoning trace of the configured length.
// It fails only when ctx is done.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*Plan, error) {
	ctx, span := p.tracer.Start(ctx, "Planner.CreatePlan",
		trace.WithAttributes(attribute.Int("planner.reasoning_steps", p.ReasoningSteps())),
	)
	defer span.End()

	reasoning := p.reason(ctx, query, p.ReasoningSteps())
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.CodeContextLost, "plan creation cancelled", err)
	}

	plan := &Plan{
		ID:        uuid.NewString(),
		Query:     query,
		CreatedAt: p.now(),
		Reasoning: reasoning,
		Steps: []Step{
			{
				ID:         1,
				Kind:       KindToolExecution,
				Tool:       p.searchTool,
				Parameters: map[string]any{"query": "information about " + leadingWords(query, 3)},
			},
			{
				ID:          2,
				Kind:        KindAnalysis,
				Description: "Analyze search results related to " + query,
			},
			{
				ID:          3,
				Kind:        KindResponseGeneration,
				Description: "Generate a comprehensive response based on analysis",
			},
		},
	}
	span.SetAttributes(attribute.String("plan.id", plan.ID))
	return plan, nil
}

// RefinePlan returns a copy of plan with one refinement step appended.
// The input plan is left untouched.
func (p *Planner) RefinePlan(plan *Plan, feedback string) (*Plan, error) {
	if plan == nil {
		return nil, errors.New(errors.CodeInvalidInput, "plan is nil", nil)
	}
	refined, err := plan.Clone(p.clone)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "clone plan", err)
	}
	refined.Steps = append(refined.Steps, Step{
		ID:          plan.NextStepID(),
		Kind:        KindRefinement,
		Description: "Additional step based on feedback: " + feedback,
	})
	return refined, nil
}

// EvaluateCompletion reports whether every step of plan is completed.
func (p *Planner) EvaluateCompletion(plan *Plan) bool {
	return plan != nil && plan.Complete()
}

// reason asks the model for n thoughts and falls back to placeholders for
// the ones it could not provide.
func (p *Planner) reason(ctx context.Context, query string, n int) []ReasoningStep {
	thoughts, _ := resilience.WithFallback(ctx, func(ctx context.Context) ([]string, error) {
		if p.llm == nil {
			return nil, fmt.Errorf("no completer configured")
		}
		prompt := textutil.FillTemplate(p.prompts.Reasoning, map[string]string{
			"problem": query,
			"steps":   strconv.Itoa(n),
		})
		resp, err := p.llm.Complete(ctx, prompt)
		if p.onResponse != nil {
			p.onResponse(ctx, resp, err)
		}
		if err != nil {
			return nil, err
		}
		return parseThoughts(resp.Text), nil
	}, resilience.Static[[]string](nil))

	now := p.now()
	steps := make([]ReasoningStep, n)
	for i := range steps {
		thought := fmt.Sprintf("Reasoning step %d for query: %s", i+1, query)
		if i < len(thoughts) {
			thought = thoughts[i]
		}
		steps[i] = ReasoningStep{ID: i + 1, Thought: thought, Timestamp: now}
	}
	return steps
}

// parseThoughts splits a completion into non-empty lines without list markers.
func parseThoughts(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 {
			if _, err := strconv.Atoi(line[:i]); err == nil {
				line = strings.TrimSpace(line[i+1:])
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func leadingWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
