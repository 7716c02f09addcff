// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func mustRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRegistryBuiltins(t *testing.T) {
	r := mustRegistry(t)
	want := []string{CodeExecution, FileOperations, WebSearch}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	desc, ok := r.Describe(WebSearch)
	if !ok || desc != "Search the web for information" {
		t.Fatalf("unexpected description %q (%v)", desc, ok)
	}
	if _, ok := r.Describe("missing"); ok {
		t.Fatal("expected missing tool to be reported")
	}
}

func TestRegistryAllowList(t *testing.T) {
	r := mustRegistry(t, WithAllowList(WebSearch, "not_a_tool"))
	if got := r.List(); !reflect.DeepEqual(got, []string{WebSearch}) {
		t.Fatalf("expected only web_search, got %v", got)
	}
	res := r.Execute(context.Background(), CodeExecution, Input{"code": "print(1)"})
	if res.OK() || res.Error != "Tool code_execution not found" {
		t.Fatalf("filtered tool must be absent, got %+v", res)
	}
}

func TestRegistryExecuteNotFound(t *testing.T) {
	res := mustRegistry(t).Execute(context.Background(), "weather", nil)
	if res.Status != StatusError || !strings.Contains(res.Error, "weather not found") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRegistryExecuteBuiltins(t *testing.T) {
	r := mustRegistry(t)
	ctx := context.Background()

	res := r.Execute(ctx, WebSearch, Input{"query": "headphones"})
	if !res.OK() {
		t.Fatalf("web_search failed: %+v", res)
	}

	res = r.Execute(ctx, CodeExecution, Input{"code": "print(1)"})
	data, _ := res.Data.(map[string]any)
	if !res.OK() || data["language"] != "python" {
		t.Fatalf("expected default language to be applied, got %+v", res)
	}

	res = r.Execute(ctx, FileOperations, Input{"operation": "delete", "path": "/tmp/x"})
	if res.OK() {
		t.Fatal("expected unsupported operation to fail")
	}
}

func TestRegistryValidatesInput(t *testing.T) {
	r := mustRegistry(t)
	tests := []struct {
		name  string
		input Input
	}{
		{"missing required", Input{}},
		{"wrong type", Input{"query": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(context.Background(), WebSearch, tt.input)
			if res.OK() || !strings.Contains(res.Error, "invalid input for tool web_search") {
				t.Fatalf("expected validation failure, got %+v", res)
			}
		})
	}
}

func TestRegistryPassesInputUnchanged(t *testing.T) {
	type point struct{ X, Y int }
	var got Input
	counter := NewFunc(Definition{
		Name: "counter",
		Parameters: map[string]Parameter{
			"count": {Type: "integer", Required: true},
			"limit": {Type: "integer", Default: 10},
			"at":    {Type: "object"},
		},
	}, func(_ context.Context, input Input) (Result, error) {
		got = input
		return Success("ok"), nil
	})
	r := mustRegistry(t, WithoutBuiltins(), WithTools(counter))

	const big = int64(1<<53 + 1)
	res := r.Execute(context.Background(), "counter", Input{"count": big, "at": point{1, 2}})
	if !res.OK() {
		t.Fatalf("unexpected failure %+v", res)
	}
	if v, ok := got["count"].(int64); !ok || v != big {
		t.Fatalf("count = %v (%T), want %d", got["count"], got["count"], big)
	}
	if got["at"] != (point{1, 2}) {
		t.Fatalf("at = %v (%T)", got["at"], got["at"])
	}
	if got["limit"] != 10 {
		t.Fatalf("default not applied: %v", got["limit"])
	}

	if res := r.Execute(context.Background(), "counter", Input{"count": 1.5}); res.OK() {
		t.Fatal("expected a non-integer count to be rejected")
	}
}

func TestRegistryConvertsFailures(t *testing.T) {
	def := func(name string) Definition { return Definition{Name: name, Description: name} }
	r := mustRegistry(t, WithoutBuiltins(), WithTimeout(20*time.Millisecond), WithTools(
		NewFunc(def("erroring"), func(context.Context, Input) (Result, error) {
			return Result{}, errors.New("backend unreachable")
		}),
		NewFunc(def("panicking"), func(context.Context, Input) (Result, error) {
			panic("nil map write")
		}),
		NewFunc(def("slow"), func(ctx context.Context, _ Input) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}),
		NewFunc(def("bare"), func(context.Context, Input) (Result, error) {
			return Result{Data: "ok"}, nil
		}),
	))

	ctx := context.Background()
	cases := map[string]string{
		"erroring":  "backend unreachable",
		"panicking": "panic: nil map write",
		"slow":      "timed out",
	}
	for name, fragment := range cases {
		res := r.Execute(ctx, name, nil)
		if res.Status != StatusError || !strings.Contains(res.Error, fragment) {
			t.Errorf("%s: expected error containing %q, got %+v", name, fragment, res)
		}
	}
	if res := r.Execute(ctx, "bare", nil); !res.OK() {
		t.Errorf("expected empty status to default to success, got %+v", res)
	}
}

type stubSearch struct {
	query string
	err   error
}

func (s *stubSearch) Search(_ context.Context, query string) (any, error) {
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"results": []any{"r1"}}, nil
}

func TestWebSearchBackend(t *testing.T) {
	backend := &stubSearch{}
	r := mustRegistry(t, WithSearchBackend(backend))

	res := r.Execute(context.Background(), WebSearch, Input{"query": "information about find me headphones"})
	if !res.OK() || backend.query != "information about find me headphones" {
		t.Fatalf("expected backend to be used, got %+v (query %q)", res, backend.query)
	}

	backend.err = errors.New("Service search not configured")
	res = r.Execute(context.Background(), WebSearch, Input{"query": "x"})
	if res.OK() || !strings.Contains(res.Error, "not configured") {
		t.Fatalf("expected backend failure as result, got %+v", res)
	}
}

func TestRegistryRejectsNamelessTool(t *testing.T) {
	_, err := New(WithTools(NewFunc(Definition{}, nil)))
	if err == nil {
		t.Fatal("expected error for tool without name")
	}
}

func TestJSONSchema(t *testing.T) {
	def := Definition{Name: "x", Parameters: map[string]Parameter{
		"b": {Type: "string", Required: true},
		"a": {Type: "integer", Required: true},
		"c": {Type: "custom"},
	}}
	schema := def.JSONSchema()
	if !reflect.DeepEqual(schema["required"], []string{"a", "b"}) {
		t.Fatalf("unexpected required list %v", schema["required"])
	}
	props := schema["properties"].(map[string]any)
	if _, typed := props["c"].(map[string]any)["type"]; typed {
		t.Fatal("unknown types must not constrain the value")
	}
}

func TestExecuteNeverFailsProperty(t *testing.T) {
	r := mustRegistry(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unregistered names yield error results", prop.ForAll(
		func(name string) bool {
			if r.Has(name) {
				return true
			}
			res := r.Execute(context.Background(), name, Input{"query": name})
			return res.Status == StatusError && strings.HasSuffix(res.Error, name+" not found")
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestResultString(t *testing.T) {
	if got := Failure("boom").String(); got != `{"status":"error","error":"boom"}` {
		t.Fatalf("unexpected rendering %s", got)
	}
}
