// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/resilience"
)

// DefaultTimeout bounds a single tool call unless overridden.
const DefaultTimeout = 30 * time.Second

// Option configures a Registry.
type Option func(*options)

type options struct {
	extra    []Tool
	allow    []string
	timeout  time.Duration
	defaults bool
	search   SearchBackend
	tracer   trace.Tracer
}

// WithTools registers additional tools after the built-in ones. A tool with
// the same name as a built-in replaces it.
func WithTools(tools ...Tool) Option {
	return func(o *options) { o.extra = append(o.extra, tools...) }
}

// WithAllowList narrows the registry to the named tools. Tools not listed are
// not registered at all. An empty list keeps every tool.
func WithAllowList(names ...string) Option {
	return func(o *options) { o.allow = names }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithoutBuiltins skips registering the built-in tools.
func WithoutBuiltins() Option {
	return func(o *options) { o.defaults = false }
}

// WithSearchBackend backs the built-in web_search tool with a real search service.
func WithSearchBackend(b SearchBackend) Option {
	return func(o *options) { o.search = b }
}

// WithTracer overrides the tracer used for tool spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

type entry struct {
	tool   Tool
	def    Definition
	schema *jsonschema.Schema
}

// Registry maps tool names to tools. The tool set is fixed at construction,
// so a Registry is safe for concurrent use.
type Registry struct {
	tools   map[string]entry
	timeout time.Duration
	tracer  trace.Tracer
}

// New builds a registry with the built-in tools plus any extra tools,
// narrowed by the allow-list.
func New(opts ...Option) (*Registry, error) {
	o := options{
		timeout:  DefaultTimeout,
		defaults: true,
		tracer:   otel.Tracer("kairos/tools"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var all []Tool
	if o.defaults {
		all = append(all, Builtins(o.search)...)
	}
	all = append(all, o.extra...)

	allowed := make(map[string]bool, len(o.allow))
	for _, name := range o.allow {
		allowed[name] = true
	}

	r := &Registry{
		tools:   make(map[string]entry, len(all)),
		timeout: o.timeout,
		tracer:  o.tracer,
	}
	for _, t := range all {
		if t == nil {
			continue
		}
		def := t.Definition()
		if def.Name == "" {
			return nil, errors.New(errors.CodeInvalidInput, "tool name is required", nil)
		}
		if len(allowed) > 0 && !allowed[def.Name] {
			continue
		}
		schema, err := compileSchema(def)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "invalid tool parameters", err).
				WithContext("tool", def.Name)
		}
		r.tools[def.Name] = entry{tool: t, def: def, schema: schema}
	}
	return r, nil
}

// Execute runs the named tool. It never returns an error: unknown names,
// invalid input, tool errors, panics and timeouts all become error results.
func (r *Registry) Execute(ctx context.Context, name string, input Input) Result {
	ctx, span := r.tracer.Start(ctx, "Tools.Execute", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	res := r.execute(ctx, name, input)
	span.SetAttributes(attribute.String("tool.status", string(res.Status)))
	if !res.OK() {
		span.SetAttributes(attribute.String("tool.error", res.Error))
	}
	return res
}

func (r *Registry) execute(ctx context.Context, name string, input Input) Result {
	e, ok := r.tools[name]
	if !ok {
		return Failure("Tool %s not found", name)
	}

	input = withDefaults(e.def, input)
	normalized, err := toJSONValue(input)
	if err != nil {
		return Failure("invalid input for tool %s: %v", name, err)
	}
	if err := e.schema.Validate(normalized); err != nil {
		return Failure("invalid input for tool %s: %v", name, err)
	}

	res, err := resilience.CallWithTimeout(ctx, r.timeout, func(ctx context.Context) (res Result, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return e.tool.Execute(ctx, input)
	})
	if err != nil {
		if errors.Is(err, errors.CodeTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
			return Failure("Tool %s timed out after %s", name, r.timeout)
		}
		return Failure("Error executing tool %s: %v", name, err)
	}
	if res.Status == "" {
		res.Status = StatusSuccess
	}
	return res
}

// List returns the registered tool names in lexical order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the tool's description and whether the tool exists.
func (r *Registry) Describe(name string) (string, bool) {
	e, ok := r.tools[name]
	if !ok {
		return "", false
	}
	return e.def.Description, true
}

// Definition returns the named tool's definition.
func (r *Registry) Definition(name string) (Definition, bool) {
	e, ok := r.tools[name]
	return e.def, ok
}

// Definitions returns every definition ordered by name.
func (r *Registry) Definitions() []Definition {
	names := r.List()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}
