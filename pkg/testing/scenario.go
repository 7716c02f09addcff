// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides utilities for testing the orchestrator end to end.
//
// This package includes:
//   - Scenario definitions for declarative request testing
//   - A scripted model provider and stub tools
//   - Assertion helpers for requests, scenario results and metrics
//
// Example usage:
//
//	scenario := testing.NewScenario("search flow").
//	    WithInput("find me headphones").
//	    WithEvents(obs).
//	    ExpectOutput(testing.Contains("headphones")).
//	    ExpectToolCall("web_search")
//
//	result := scenario.Run(t, controller)
//	result.Assert(t, scenario)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/observer"
)

// Scenario defines a test scenario for one request.
type Scenario struct {
	name          string
	description   string
	input         string
	context       context.Context
	timeout       time.Duration
	events        EventSource
	expectations  []Expectation
	setupFuncs    []func() error
	teardownFuncs []func() error
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	// Check verifies the expectation against the result.
	Check(result *ScenarioResult) error
	// Description returns a human-readable description of the expectation.
	Description() string
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	Output     string
	Error      error
	Events     []observer.Event
	ToolCalls  []ToolCallRecord
	Duration   time.Duration
	TokenUsage llm.Usage
}

// ToolCallRecord records a tool call made during the scenario.
type ToolCallRecord struct {
	Name      string
	Arguments map[string]any
	Status    string
	Duration  time.Duration
}

// AgentRunner is the interface for running scenarios.
type AgentRunner interface {
	Run(ctx context.Context, input string) (string, error)
}

// EventSource exposes recorded events. *observer.Observer satisfies it.
type EventSource interface {
	Events(filter observer.Filter) []observer.Event
}

// NewScenario creates a new test scenario with the given name.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		timeout: 30 * time.Second,
		context: context.Background(),
	}
}

// Name returns the scenario name.
func (s *Scenario) Name() string { return s.name }

// WithDescription adds a description to the scenario.
func (s *Scenario) WithDescription(desc string) *Scenario {
	s.description = desc
	return s
}

// WithInput sets the request text for the scenario.
func (s *Scenario) WithInput(input string) *Scenario {
	s.input = input
	return s
}

// WithContext sets the context for the scenario.
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.context = ctx
	return s
}

// WithTimeout sets the timeout for the scenario.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithEvents sets where events are read from after the run. When unset, the
// runner itself is used if it implements EventSource.
func (s *Scenario) WithEvents(src EventSource) *Scenario {
	s.events = src
	return s
}

// WithSetup adds a setup function to run before the scenario.
func (s *Scenario) WithSetup(fn func() error) *Scenario {
	s.setupFuncs = append(s.setupFuncs, fn)
	return s
}

// WithTeardown adds a teardown function to run after the scenario.
func (s *Scenario) WithTeardown(fn func() error) *Scenario {
	s.teardownFuncs = append(s.teardownFuncs, fn)
	return s
}

// Expect adds an expectation to the scenario.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectOutput adds an output expectation.
func (s *Scenario) ExpectOutput(matcher StringMatcher) *Scenario {
	return s.Expect(&outputExpectation{matcher: matcher})
}

// ExpectNoError expects the request to succeed.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects an error matching the given pattern.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.Expect(&errorExpectation{matcher: matcher})
}

// ExpectToolCall expects a specific tool to be called.
func (s *Scenario) ExpectToolCall(toolName string) *Scenario {
	return s.Expect(&toolCallExpectation{toolName: toolName})
}

// ExpectNoToolCalls expects no tool calls.
func (s *Scenario) ExpectNoToolCalls() *Scenario {
	return s.Expect(&noToolCallsExpectation{})
}

// ExpectEvent expects an event of the given kind.
func (s *Scenario) ExpectEvent(kind observer.EventKind) *Scenario {
	return s.Expect(&eventExpectation{kind: kind, count: -1})
}

// ExpectEventCount expects exactly n events of the given kind.
func (s *Scenario) ExpectEventCount(kind observer.EventKind, n int) *Scenario {
	return s.Expect(&eventExpectation{kind: kind, count: n})
}

// ExpectMaxDuration expects the scenario to complete within the given duration.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Run executes the scenario against the given runner.
func (s *Scenario) Run(t *testing.T, agent AgentRunner) *ScenarioResult {
	t.Helper()

	for _, setup := range s.setupFuncs {
		if err := setup(); err != nil {
			t.Fatalf("scenario %q setup failed: %v", s.name, err)
		}
	}
	defer func() {
		for _, teardown := range s.teardownFuncs {
			if err := teardown(); err != nil {
				t.Errorf("scenario %q teardown failed: %v", s.name, err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(s.context, s.timeout)
	defer cancel()

	src := s.events
	if src == nil {
		src, _ = agent.(EventSource)
	}

	start := time.Now()
	output, err := agent.Run(ctx, s.input)
	result := &ScenarioResult{
		Output:   output,
		Error:    err,
		Duration: time.Since(start),
	}
	if src != nil {
		result.collect(src.Events(observer.Filter{Start: start}))
	}
	return result
}

func (r *ScenarioResult) collect(events []observer.Event) {
	r.Events = events
	for _, ev := range events {
		switch {
		case ev.Tool != nil:
			r.ToolCalls = append(r.ToolCalls, ToolCallRecord{
				Name:      ev.Tool.ToolName,
				Arguments: ev.Tool.Input,
				Status:    ev.Tool.Status,
				Duration:  ev.Tool.Duration,
			})
		case ev.LLM != nil:
			r.TokenUsage = r.TokenUsage.Add(ev.LLM.TokenUsage)
		}
	}
}

// Assert checks all expectations and reports failures to the test.
func (r *ScenarioResult) Assert(t *testing.T, scenario *Scenario) {
	t.Helper()

	for _, exp := range scenario.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("expectation %q failed: %v", exp.Description(), err)
		}
	}
}

// StringMatcher defines how to match strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains returns a matcher that checks if the string contains the substring.
func Contains(substr string) StringMatcher {
	return &containsMatcher{substr: substr}
}

// Equals returns a matcher that checks exact string equality.
func Equals(expected string) StringMatcher {
	return &equalsMatcher{expected: expected}
}

// Regex returns a matcher that checks against a regular expression.
// An invalid pattern matches nothing.
func Regex(pattern string) StringMatcher {
	re, err := regexp.Compile(pattern)
	return &regexMatcher{pattern: pattern, re: re, err: err}
}

// HasPrefix returns a matcher that checks if the string has the given prefix.
func HasPrefix(prefix string) StringMatcher {
	return &prefixMatcher{prefix: prefix}
}

type containsMatcher struct {
	substr string
}

func (m *containsMatcher) Match(s string) bool {
	return strings.Contains(s, m.substr)
}

func (m *containsMatcher) Description() string {
	return fmt.Sprintf("contains %q", m.substr)
}

type equalsMatcher struct {
	expected string
}

func (m *equalsMatcher) Match(s string) bool {
	return s == m.expected
}

func (m *equalsMatcher) Description() string {
	return fmt.Sprintf("equals %q", m.expected)
}

type regexMatcher struct {
	pattern string
	re      *regexp.Regexp
	err     error
}

func (m *regexMatcher) Match(s string) bool {
	return m.err == nil && m.re.MatchString(s)
}

func (m *regexMatcher) Description() string {
	return fmt.Sprintf("matches regex %q", m.pattern)
}

type prefixMatcher struct {
	prefix string
}

func (m *prefixMatcher) Match(s string) bool {
	return strings.HasPrefix(s, m.prefix)
}

func (m *prefixMatcher) Description() string {
	return fmt.Sprintf("has prefix %q", m.prefix)
}

// Expectation implementations

type outputExpectation struct {
	matcher StringMatcher
}

func (e *outputExpectation) Check(r *ScenarioResult) error {
	if !e.matcher.Match(r.Output) {
		return fmt.Errorf("output %q does not match: %s", r.Output, e.matcher.Description())
	}
	return nil
}

func (e *outputExpectation) Description() string {
	return fmt.Sprintf("output %s", e.matcher.Description())
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("expected no error, got: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string {
	return "no error"
}

type errorExpectation struct {
	matcher StringMatcher
}

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected error matching %s, got nil", e.matcher.Description())
	}
	if !e.matcher.Match(r.Error.Error()) {
		return fmt.Errorf("error %q does not match: %s", r.Error.Error(), e.matcher.Description())
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return fmt.Sprintf("error %s", e.matcher.Description())
}

type toolCallExpectation struct {
	toolName string
}

func (e *toolCallExpectation) Check(r *ScenarioResult) error {
	for _, tc := range r.ToolCalls {
		if tc.Name == e.toolName {
			return nil
		}
	}
	return fmt.Errorf("tool %q was not called", e.toolName)
}

func (e *toolCallExpectation) Description() string {
	return fmt.Sprintf("tool %q called", e.toolName)
}

type noToolCallsExpectation struct{}

func (e *noToolCallsExpectation) Check(r *ScenarioResult) error {
	if len(r.ToolCalls) > 0 {
		names := make([]string, len(r.ToolCalls))
		for i, tc := range r.ToolCalls {
			names[i] = tc.Name
		}
		return fmt.Errorf("expected no tool calls, got: %v", names)
	}
	return nil
}

func (e *noToolCallsExpectation) Description() string {
	return "no tool calls"
}

type eventExpectation struct {
	kind  observer.EventKind
	count int
}

func (e *eventExpectation) Check(r *ScenarioResult) error {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == e.kind {
			n++
		}
	}
	switch {
	case e.count < 0 && n == 0:
		return fmt.Errorf("event %q was not emitted", e.kind)
	case e.count >= 0 && n != e.count:
		return fmt.Errorf("expected %d %q events, got %d", e.count, e.kind, n)
	}
	return nil
}

func (e *eventExpectation) Description() string {
	if e.count < 0 {
		return fmt.Sprintf("event %q emitted", e.kind)
	}
	return fmt.Sprintf("%d %q events emitted", e.count, e.kind)
}

type maxDurationExpectation struct {
	max time.Duration
}

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}
