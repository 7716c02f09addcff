// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/observer"
)

// Assertions reports failures with t.Errorf and remembers whether any failed.
// The typed helpers below chain so a whole check reads as one expression.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates an assertion helper bound to t.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed reports whether any assertion failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

func (a *Assertions) check(ok bool, format string, args ...any) bool {
	a.t.Helper()
	if !ok {
		a.t.Errorf(format, args...)
		a.failed = true
	}
	return ok
}

// AssertEqual compares with ==.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	a.check(expected == actual, "%s: expected %v, got %v", msg, expected, actual)
}

// AssertContains checks s contains substr.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	a.check(strings.Contains(s, substr), "%s: %q does not contain %q", msg, s, substr)
}

// AssertNoError checks err is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	a.check(err == nil, "%s: unexpected error: %v", msg, err)
}

// AssertErrorCode checks err carries code anywhere in its chain.
func (a *Assertions) AssertErrorCode(err error, code errors.ErrorCode, msg string) {
	a.t.Helper()
	if !a.check(err != nil, "%s: expected %s error, got nil", msg, code) {
		return
	}
	a.check(errors.Is(err, code), "%s: expected %s, got %v", msg, code, err)
}

// AssertLen checks the length of a string, slice, map or channel.
func (a *Assertions) AssertLen(value any, expected int, msg string) {
	a.t.Helper()
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		a.check(v.Len() == expected, "%s: expected length %d, got %d", msg, expected, v.Len())
	default:
		a.check(false, "%s: cannot get length of %T", msg, value)
	}
}

// RequestAssertions checks a captured model request.
type RequestAssertions struct {
	*Assertions
	req *llm.ChatRequest
}

// AssertRequest starts assertions on req. A nil request fails immediately.
func (a *Assertions) AssertRequest(req *llm.ChatRequest) *RequestAssertions {
	a.t.Helper()
	if !a.check(req != nil, "request is nil") {
		req = &llm.ChatRequest{}
	}
	return &RequestAssertions{Assertions: a, req: req}
}

// HasModel checks the requested model.
func (r *RequestAssertions) HasModel(model string) *RequestAssertions {
	r.t.Helper()
	r.check(r.req.Model == model, "expected model %q, got %q", model, r.req.Model)
	return r
}

// HasMessageCount checks the number of messages.
func (r *RequestAssertions) HasMessageCount(count int) *RequestAssertions {
	r.t.Helper()
	r.check(len(r.req.Messages) == count, "expected %d messages, got %d", count, len(r.req.Messages))
	return r
}

// HasSystemMessage checks some system message contains the text.
func (r *RequestAssertions) HasSystemMessage(contains string) *RequestAssertions {
	r.t.Helper()
	r.check(r.hasMessage(llm.RoleSystem, contains), "no system message containing %q found", contains)
	return r
}

// HasUserMessage checks some user message contains the text.
func (r *RequestAssertions) HasUserMessage(contains string) *RequestAssertions {
	r.t.Helper()
	r.check(r.hasMessage(llm.RoleUser, contains), "no user message containing %q found", contains)
	return r
}

// HasTemperature checks the sampling temperature.
func (r *RequestAssertions) HasTemperature(temp float64) *RequestAssertions {
	r.t.Helper()
	r.check(r.req.Temperature == temp, "expected temperature %v, got %v", temp, r.req.Temperature)
	return r
}

func (r *RequestAssertions) hasMessage(role llm.Role, contains string) bool {
	for _, msg := range r.req.Messages {
		if msg.Role == role && strings.Contains(msg.Content, contains) {
			return true
		}
	}
	return false
}

// MetricsAssertions checks an observer metrics snapshot.
type MetricsAssertions struct {
	*Assertions
	m observer.Metrics
}

// AssertMetrics starts assertions on m.
func (a *Assertions) AssertMetrics(m observer.Metrics) *MetricsAssertions {
	return &MetricsAssertions{Assertions: a, m: m}
}

// HasTotalRequests checks the number of user requests.
func (m *MetricsAssertions) HasTotalRequests(n int) *MetricsAssertions {
	m.t.Helper()
	m.check(m.m.TotalRequests == n, "expected %d requests, got %d", n, m.m.TotalRequests)
	return m
}

// HasToolUsage checks how many times the named tool ran.
func (m *MetricsAssertions) HasToolUsage(name string, n int) *MetricsAssertions {
	m.t.Helper()
	got := m.m.ToolUsageCounts[name]
	m.check(got == n, "expected tool %q used %d times, got %d", name, n, got)
	return m
}

// HasSuccessRate checks the success rate within 1e-9.
func (m *MetricsAssertions) HasSuccessRate(rate float64) *MetricsAssertions {
	m.t.Helper()
	diff := m.m.SuccessRate - rate
	m.check(diff <= 1e-9 && diff >= -1e-9, "expected success rate %v, got %v", rate, m.m.SuccessRate)
	return m
}

// HasTotalTokens checks the accumulated token usage.
func (m *MetricsAssertions) HasTotalTokens(n int) *MetricsAssertions {
	m.t.Helper()
	m.check(m.m.TokenUsage.TotalTokens == n, "expected %d tokens, got %d", n, m.m.TokenUsage.TotalTokens)
	return m
}

// EventAssertions checks a recorded event sequence.
type EventAssertions struct {
	*Assertions
	events []observer.Event
}

// AssertEvents starts assertions on events.
func (a *Assertions) AssertEvents(events []observer.Event) *EventAssertions {
	return &EventAssertions{Assertions: a, events: events}
}

// HasKinds checks the event kinds match exactly and in order.
func (e *EventAssertions) HasKinds(kinds ...observer.EventKind) *EventAssertions {
	e.t.Helper()
	want := make([]string, len(kinds))
	for i, k := range kinds {
		want[i] = string(k)
	}
	got := FormatEvents(e.events)
	e.check(got == "["+strings.Join(want, ", ")+"]", "expected events [%s], got %s", strings.Join(want, ", "), got)
	return e
}

// HasCount checks how many events of kind were recorded.
func (e *EventAssertions) HasCount(kind observer.EventKind, n int) *EventAssertions {
	e.t.Helper()
	got := 0
	for _, ev := range e.events {
		if ev.Kind == kind {
			got++
		}
	}
	e.check(got == n, "expected %d %s events, got %d in %s", n, kind, got, FormatEvents(e.events))
	return e
}

// NoFatalErrors checks no error event is marked fatal.
func (e *EventAssertions) NoFatalErrors() *EventAssertions {
	e.t.Helper()
	for _, ev := range e.events {
		if ev.Kind == observer.EventError && ev.Error != nil && ev.Error.Fatal {
			e.check(false, "unexpected fatal error in %s: %s", ev.Error.Operation, ev.Error.Message)
		}
	}
	return e
}

// ScenarioResultAssertions checks the outcome of a scenario run.
type ScenarioResultAssertions struct {
	*Assertions
	result *ScenarioResult
}

// AssertScenarioResult starts assertions on result.
func (a *Assertions) AssertScenarioResult(result *ScenarioResult) *ScenarioResultAssertions {
	a.t.Helper()
	if !a.check(result != nil, "scenario result is nil") {
		result = &ScenarioResult{}
	}
	return &ScenarioResultAssertions{Assertions: a, result: result}
}

// Succeeded checks the run returned no error.
func (s *ScenarioResultAssertions) Succeeded() *ScenarioResultAssertions {
	s.t.Helper()
	s.check(s.result.Error == nil, "expected success, got error: %v", s.result.Error)
	return s
}

// OutputContains checks the response contains substr.
func (s *ScenarioResultAssertions) OutputContains(substr string) *ScenarioResultAssertions {
	s.t.Helper()
	s.check(strings.Contains(s.result.Output, substr), "output %q does not contain %q", s.result.Output, substr)
	return s
}

// RequireNoError stops the test when err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// FormatEvents lists event kinds for failure messages.
func FormatEvents(events []observer.Event) string {
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = string(ev.Kind)
	}
	return fmt.Sprintf("[%s]", strings.Join(kinds, ", "))
}
