package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
	"github.com/jllopis/kairos-orchestrator/pkg/errors"
)

// Handler executes a step and returns its result.
type Handler func(ctx context.Context, step Step, state *State) (any, error)

// State holds outputs produced during plan execution.
type State struct {
	Plan    *Plan
	Last    any
	Outputs map[int]any
	Failed  []int
}

// NewState creates an initialized execution state for plan.
func NewState(plan *Plan) *State {
	return &State{Plan: plan, Outputs: make(map[int]any)}
}

// Output returns the result of the first executed step of the given kind.
func (s *State) Output(kind StepKind) (any, bool) {
	for _, step := range s.Plan.Steps {
		if step.Kind != kind {
			continue
		}
		out, ok := s.Outputs[step.ID]
		if ok {
			return out, true
		}
	}
	return nil, false
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithAuditStore records every step transition in store.
func WithAuditStore(store AuditStore) ExecutorOption {
	return func(e *Executor) {
		e.audit = store
	}
}

// WithAuditHook registers a callback for every audit event.
func WithAuditHook(hook func(context.Context, AuditEvent)) ExecutorOption {
	return func(e *Executor) {
		e.AuditHook = hook
	}
}

// WithLogger sets the logger used to report audit failures.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor runs plan steps in order using handlers keyed by step kind.
type Executor struct {
	Handlers  map[StepKind]Handler
	AuditHook func(context.Context, AuditEvent)

	audit  AuditStore
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewExecutor creates an executor with provided handlers.
func NewExecutor(handlers map[StepKind]Handler, opts ...ExecutorOption) *Executor {
	e := &Executor{
		Handlers: handlers,
		logger:   slog.Default(),
		tracer:   otel.Tracer("kairos/planner"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every pending step of plan sequentially. Each executed step is
// marked completed and gets a result; a failing step receives a StepError and
// execution moves on. Only a cancelled context stops the run early.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*State, error) {
	if plan == nil {
		return nil, errors.New(errors.CodeInvalidInput, "plan is nil", nil)
	}
	state := NewState(plan)
	for i := range plan.Steps {
		if plan.Steps[i].Completed {
			state.Outputs[plan.Steps[i].ID] = plan.Steps[i].Result
			continue
		}
		if err := ctx.Err(); err != nil {
			return state, errors.New(errors.CodeContextLost, "plan execution cancelled", err).
				WithContext("plan_id", plan.ID).
				WithContext("step_id", plan.Steps[i].ID)
		}
		e.runStep(ctx, plan, &plan.Steps[i], state)
	}
	return state, nil
}

func (e *Executor) runStep(ctx context.Context, plan *Plan, step *Step, state *State) {
	stepCtx, span := e.tracer.Start(ctx, "Planner.Step",
		trace.WithAttributes(
			attribute.String("plan.id", plan.ID),
			attribute.Int("step.id", step.ID),
			attribute.String("step.kind", string(step.Kind)),
		),
	)
	defer span.End()

	started := e.now()
	e.record(stepCtx, AuditEvent{
		PlanID:    plan.ID,
		StepID:    step.ID,
		StepKind:  string(step.Kind),
		Tool:      step.Tool,
		Status:    AuditStarted,
		StartedAt: started,
	})

	output, err := e.invoke(stepCtx, *step, state)
	if err != nil && output == nil {
		output = failedResult(err)
	}
	step.Completed = true
	step.Result = output
	state.Outputs[step.ID] = output
	state.Last = output

	event := AuditEvent{
		PlanID:     plan.ID,
		StepID:     step.ID,
		StepKind:   string(step.Kind),
		Tool:       step.Tool,
		Status:     AuditCompleted,
		Output:     output,
		StartedAt:  started,
		FinishedAt: e.now(),
	}
	if err != nil {
		state.Failed = append(state.Failed, step.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		event.Status = AuditFailed
		event.Error = err.Error()
	}
	e.record(stepCtx, event)
}

func (e *Executor) invoke(ctx context.Context, step Step, state *State) (out any, err error) {
	handler := e.Handlers[step.Kind]
	if handler == nil {
		return nil, errors.Newf(errors.CodeConfiguration, "no handler for step kind %q", step.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errors.New(errors.CodeToolFailure, fmt.Sprintf("step %d panicked", step.ID), fmt.Errorf("%v", r))
		}
	}()
	return handler(ctx, step, state)
}

func (e *Executor) record(ctx context.Context, event AuditEvent) {
	event.RunID, _ = core.RunID(ctx)
	if e.AuditHook != nil {
		e.AuditHook(ctx, event)
	}
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "planner audit record failed",
			slog.String("plan_id", event.PlanID),
			slog.Int("step_id", event.StepID),
			slog.String("error", err.Error()),
		)
	}
}
