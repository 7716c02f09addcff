package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

type stubCaller struct {
	lastName string
	lastArgs map[string]any
	listed   []mcp.Tool
	result   *mcp.CallToolResult
	err      error
}

func (s *stubCaller) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, s.err
}

func (s *stubCaller) ListTools(context.Context) ([]mcp.Tool, error) {
	return s.listed, s.err
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}}}
}

func TestToolAdapter_Execute_PassesArguments(t *testing.T) {
	tool := mcp.Tool{
		Name: "sum",
		InputSchema: mcp.ToolInputSchema{
			Type:     "object",
			Required: []string{"a", "b"},
		},
	}
	caller := &stubCaller{result: textResult("3")}

	adapter, err := NewToolAdapter(tool, caller)
	if err != nil {
		t.Fatalf("NewToolAdapter error: %v", err)
	}

	res, err := adapter.Execute(context.Background(), tools.Input{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !res.OK() || res.Data != "3" {
		t.Fatalf("Expected success with '3', got %+v", res)
	}
	if caller.lastName != "sum" {
		t.Fatalf("Expected tool name 'sum', got %q", caller.lastName)
	}
	if caller.lastArgs["a"] != 1 || caller.lastArgs["b"] != 2 {
		t.Fatalf("Expected args a=1 b=2, got %v", caller.lastArgs)
	}
}

func TestToolAdapter_Execute_ValidatesRequiredArgs(t *testing.T) {
	tool := mcp.Tool{
		Name: "needs-foo",
		InputSchema: mcp.ToolInputSchema{
			Type:     "object",
			Required: []string{"foo"},
		},
	}
	caller := &stubCaller{result: textResult("ok")}

	adapter, err := NewToolAdapter(tool, caller)
	if err != nil {
		t.Fatalf("NewToolAdapter error: %v", err)
	}

	res, err := adapter.Execute(context.Background(), tools.Input{"bar": "baz"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.OK() || res.Error != `missing required field "foo"` {
		t.Fatalf("Expected missing required field result, got %+v", res)
	}
	if caller.lastName != "" {
		t.Fatal("server should not be called with missing arguments")
	}
}

func TestToolAdapter_Execute_StructuredContent(t *testing.T) {
	caller := &stubCaller{result: &mcp.CallToolResult{
		StructuredContent: map[string]any{"ok": true},
	}}
	adapter, err := NewToolAdapter(mcp.Tool{Name: "structured"}, caller)
	if err != nil {
		t.Fatalf("NewToolAdapter error: %v", err)
	}

	res, err := adapter.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	payload, ok := res.Data.(map[string]any)
	if !ok || payload["ok"] != true {
		t.Fatalf("Expected structured payload, got %v", res.Data)
	}
}

func TestToolAdapter_Execute_ToolError(t *testing.T) {
	caller := &stubCaller{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "quota exceeded"}},
	}}
	adapter, _ := NewToolAdapter(mcp.Tool{Name: "search"}, caller)

	res, err := adapter.Execute(context.Background(), tools.Input{})
	if err != nil {
		t.Fatalf("tool errors are results, got error %v", err)
	}
	if res.OK() || res.Error != "mcp tool returned error: quota exceeded" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestToolAdapter_Execute_TransportErrorThroughRegistry(t *testing.T) {
	caller := &stubCaller{err: errors.New("connection reset")}
	adapter, _ := NewToolAdapter(mcp.Tool{Name: "remote"}, caller)

	reg, err := tools.New(tools.WithoutBuiltins(), tools.WithTools(adapter))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	res := reg.Execute(context.Background(), "remote", tools.Input{})
	if res.OK() {
		t.Fatal("expected error result")
	}
}

func TestNewToolAdapter_RequiresNameAndCaller(t *testing.T) {
	if _, err := NewToolAdapter(mcp.Tool{}, &stubCaller{}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewToolAdapter(mcp.Tool{Name: "x"}, nil); err == nil {
		t.Error("expected error for nil caller")
	}
}

func TestDefinition_FromInputSchema(t *testing.T) {
	tool := mcp.Tool{
		Name:        "search",
		Description: "Search tool",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"q":     map[string]any{"type": "string", "description": "query"},
				"limit": map[string]any{"type": "integer", "default": 5},
			},
			Required: []string{"q", "lang"},
		},
	}

	def := Definition(tool)
	if def.Name != "search" || def.Description != "Search tool" {
		t.Fatalf("unexpected definition %+v", def)
	}
	q := def.Parameters["q"]
	if q.Type != "string" || q.Description != "query" || !q.Required {
		t.Errorf("unexpected q parameter %+v", q)
	}
	limit := def.Parameters["limit"]
	if limit.Type != "integer" || limit.Required || limit.Default != 5 {
		t.Errorf("unexpected limit parameter %+v", limit)
	}
	if lang, ok := def.Parameters["lang"]; !ok || !lang.Required {
		t.Errorf("undescribed required field should be kept, got %+v", def.Parameters)
	}
}

func TestDefinition_UsesRawSchema(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	tool := mcp.Tool{
		Name:           "search",
		Description:    "Search tool",
		RawInputSchema: raw,
	}

	def := Definition(tool)
	if p, ok := def.Parameters["q"]; !ok || p.Type != "string" || !p.Required {
		t.Fatalf("expected q from raw schema, got %+v", def.Parameters)
	}
}

func TestLoadTools_Prefix(t *testing.T) {
	caller := &stubCaller{
		listed: []mcp.Tool{{Name: "ping"}, {Name: "pong"}},
		result: textResult("ok"),
	}

	loaded, err := LoadTools(context.Background(), caller, "remote")
	if err != nil {
		t.Fatalf("LoadTools error: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Definition().Name != "remote.ping" {
		t.Fatalf("unexpected tools %+v", loaded)
	}

	if _, err := loaded[1].Execute(context.Background(), tools.Input{}); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if caller.lastName != "pong" {
		t.Fatalf("server should see the original name, got %q", caller.lastName)
	}
}
