// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
)

// Built-in tool names.
const (
	WebSearch      = "web_search"
	CodeExecution  = "code_execution"
	FileOperations = "file_operations"
)

// SearchBackend performs a web search. api.Client satisfies it.
type SearchBackend interface {
	Search(ctx context.Context, query string) (any, error)
}

// Builtins returns the built-in tools. When search is nil, web_search returns
// placeholder results.
func Builtins(search SearchBackend) []Tool {
	return []Tool{
		webSearchTool(search),
		codeExecutionTool(),
		fileOperationsTool(),
	}
}

func webSearchTool(search SearchBackend) Tool {
	return NewFunc(Definition{
		Name:        WebSearch,
		Description: "Search the web for information",
		Parameters: map[string]Parameter{
			"query": {Type: "string", Description: "The search query", Required: true},
		},
	}, func(ctx context.Context, in Input) (Result, error) {
		query := in.String("query")
		if search == nil {
			return Success(map[string]any{
				"query": query,
				"results": []map[string]string{
					{"title": "Example result 1", "snippet": "This is a placeholder search result"},
					{"title": "Example result 2", "snippet": "Another placeholder search result"},
				},
			}), nil
		}
		data, err := search.Search(ctx, query)
		if err != nil {
			return Result{}, err
		}
		return Success(data), nil
	})
}

func codeExecutionTool() Tool {
	return NewFunc(Definition{
		Name:        CodeExecution,
		Description: "Execute code in a sandbox environment",
		Parameters: map[string]Parameter{
			"code":     {Type: "string", Description: "The code to execute", Required: true},
			"language": {Type: "string", Description: "The programming language", Default: "python"},
		},
	}, func(_ context.Context, in Input) (Result, error) {
		return Success(map[string]any{
			"language":      in.String("language"),
			"output":        "This is a placeholder code execution result",
			"executionTime": "0.5s",
		}), nil
	})
}

var fileOps = map[string]bool{"read": true, "write": true, "list": true}

func fileOperationsTool() Tool {
	return NewFunc(Definition{
		Name:        FileOperations,
		Description: "Perform file operations",
		Parameters: map[string]Parameter{
			"operation": {Type: "string", Description: "The operation type (read, write, list)", Required: true},
			"path":      {Type: "string", Description: "The file path", Required: true},
			"content":   {Type: "string", Description: "The content to write (for write operations)"},
		},
	}, func(_ context.Context, in Input) (Result, error) {
		op := in.String("operation")
		if !fileOps[op] {
			return Failure("unsupported file operation %q", op), nil
		}
		if op == "write" && in.String("content") == "" {
			return Failure("write requires content"), nil
		}
		return Success(map[string]any{
			"path":   in.String("path"),
			"result": fmt.Sprintf("Placeholder result for %s operation", op),
		}), nil
	})
}
