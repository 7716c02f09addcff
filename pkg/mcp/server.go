package mcp

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

// Executor runs registry tools by name.
type Executor interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, input tools.Input) tools.Result
}

// Server publishes registry tools over MCP.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server exposing every tool of reg.
func NewServer(name, version string, reg Executor) *Server {
	s := &Server{mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false))}
	for _, def := range reg.Definitions() {
		toolName := def.Name
		s.mcpServer.AddTool(mcpTool(def), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := reg.Execute(ctx, toolName, tools.Input(request.GetArguments()))
			if !res.OK() {
				return mcp.NewToolResultError(res.Error), nil
			}
			if text, ok := res.Data.(string); ok {
				return mcp.NewToolResultText(text), nil
			}
			data, err := json.Marshal(res.Data)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		})
	}
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves requests on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func mcpTool(def tools.Definition) mcp.Tool {
	props := make(map[string]any, len(def.Parameters))
	var required []string
	for name, p := range def.Parameters {
		prop := map[string]any{}
		if p.Type != "" {
			prop["type"] = p.Type
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}
