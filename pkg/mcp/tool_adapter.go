// Package mcp exposes tools served over the Model Context Protocol as
// registry tools.
package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolSource lists and calls the tools of one MCP server.
type ToolSource interface {
	ToolCaller
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// ToolAdapter wraps an MCP tool to satisfy tools.Tool.
type ToolAdapter struct {
	tool   mcp.Tool
	name   string
	caller ToolCaller
	def    tools.Definition
}

// NewToolAdapter builds a tools.Tool backed by an MCP tool definition and caller.
func NewToolAdapter(tool mcp.Tool, caller ToolCaller) (*ToolAdapter, error) {
	if tool.Name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "mcp tool name is required", nil)
	}
	if caller == nil {
		return nil, errors.New(errors.CodeInvalidInput, "tool caller is required", nil)
	}
	return &ToolAdapter{
		tool:   tool,
		name:   tool.Name,
		caller: caller,
		def:    Definition(tool),
	}, nil
}

// LoadTools lists the server's tools and adapts each one. A non-empty prefix
// is prepended to registry names as "prefix.tool"; the server still sees the
// original name.
func LoadTools(ctx context.Context, src ToolSource, prefix string) ([]tools.Tool, error) {
	listed, err := src.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Tool, 0, len(listed))
	for _, t := range listed {
		adapter, err := NewToolAdapter(t, src)
		if err != nil {
			return nil, err
		}
		if prefix != "" {
			adapter.def.Name = prefix + "." + t.Name
		}
		out = append(out, adapter)
	}
	return out, nil
}

// Definition implements tools.Tool.
func (t *ToolAdapter) Definition() tools.Definition {
	return t.def
}

// Execute implements tools.Tool. Transport failures are returned as errors;
// tool-reported failures become error results.
func (t *ToolAdapter) Execute(ctx context.Context, input tools.Input) (tools.Result, error) {
	args := map[string]any(input)
	if args == nil {
		args = map[string]any{}
	}
	if missing := missingRequired(t.tool, args); missing != "" {
		return tools.Failure("missing required field %q", missing), nil
	}

	result, err := t.caller.CallTool(ctx, t.name, args)
	if err != nil {
		return tools.Result{}, errors.New(errors.CodeToolFailure, "mcp call failed", err).
			WithContext("tool", t.name)
	}
	return toResult(result), nil
}

// Definition converts an MCP tool into a registry definition. A raw input
// schema takes precedence over the structured one.
func Definition(tool mcp.Tool) tools.Definition {
	schema := tool.InputSchema
	if len(tool.RawInputSchema) > 0 {
		var raw mcp.ToolInputSchema
		if err := json.Unmarshal(tool.RawInputSchema, &raw); err == nil {
			schema = raw
		}
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	params := make(map[string]tools.Parameter, len(schema.Properties))
	for name, raw := range schema.Properties {
		p := tools.Parameter{Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			p.Type, _ = prop["type"].(string)
			p.Description, _ = prop["description"].(string)
			p.Default = prop["default"]
		}
		params[name] = p
	}
	// Required fields the server did not describe are still enforced.
	for name := range required {
		if _, ok := params[name]; !ok {
			params[name] = tools.Parameter{Required: true}
		}
	}

	return tools.Definition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  params,
	}
}

func missingRequired(tool mcp.Tool, args map[string]any) string {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return ""
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return key
		}
	}
	return ""
}

func toResult(result *mcp.CallToolResult) tools.Result {
	if result == nil {
		return tools.Failure("mcp tool returned no result")
	}
	if result.IsError {
		return tools.Failure("mcp tool returned error: %s", extractTextContent(result.Content))
	}
	if result.StructuredContent != nil {
		return tools.Success(result.StructuredContent)
	}
	if text := extractTextContent(result.Content); text != "" {
		return tools.Success(text)
	}
	return tools.Success(nil)
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ tools.Tool = (*ToolAdapter)(nil)
