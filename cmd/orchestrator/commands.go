// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jllopis/kairos-orchestrator/pkg/config"
	kairosmcp "github.com/jllopis/kairos-orchestrator/pkg/mcp"
	"github.com/jllopis/kairos-orchestrator/pkg/observer"
	"github.com/jllopis/kairos-orchestrator/pkg/planner"
)

type commandContext struct {
	app     *app
	json    bool
	timeout time.Duration
	in      io.Reader
	out     io.Writer
}

type runResult struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	RunID    string `json:"run_id,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`
	Failed   int    `json:"failed_steps"`
	Steps    int    `json:"audited_steps,omitempty"`
	Duration string `json:"duration"`
}

type toolRow struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters,omitempty"`
}

type mcpToolResult struct {
	Server      string `json:"server"`
	Tool        string `json:"tool,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (c commandContext) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c commandContext) runOnce(ctx context.Context, args []string, stream bool) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return NewInvalidArgumentError("query", "a query is required")
	}
	result, err := c.ask(ctx, query, stream && !c.json)
	if err != nil {
		return err
	}
	if c.json {
		return printJSON(c.out, result)
	}
	if stream {
		_, err = fmt.Fprintln(c.out)
		return err
	}
	_, err = fmt.Fprintln(c.out, result.Response)
	return err
}

// ask runs one request. When stream is set the response is written to out
// token by token as it is generated.
func (c commandContext) ask(ctx context.Context, query string, stream bool) (runResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	var (
		resp string
		err  error
	)
	if stream {
		resp, err = c.app.controller.StreamResponse(ctx, query, func(tok string) {
			fmt.Fprint(c.out, tok)
		})
	} else {
		resp, err = c.app.controller.ProcessRequest(ctx, query)
	}
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return runResult{}, WrapTimeoutError(err, "request")
		}
		return runResult{}, err
	}

	result := runResult{
		Query:    query,
		Response: resp,
		Duration: time.Since(started).Round(time.Millisecond).String(),
	}
	if plan, ok := c.app.controller.LastPlan(); ok {
		result.PlanID = plan.ID
		if c.app.audit != nil {
			if sum, err := planner.Summarize(ctx, c.app.audit, plan.ID); err == nil {
				result.Steps = sum.Completed + sum.Failed
			}
		}
	}
	if events := c.app.controller.Events(observer.Filter{Kind: observer.EventAgentResponse, Start: started}); len(events) > 0 {
		last := events[len(events)-1]
		result.RunID = last.RunID
		result.Failed = last.Response.FailedSteps
	}
	return result, nil
}

// chat reads one query per line. Lines starting with ':' are commands.
func (c commandContext) chat(ctx context.Context) error {
	interactive := false
	if f, ok := c.in.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if interactive && !c.json {
		fmt.Fprintln(c.out, "Kairos orchestrator. Type :quit to exit.")
	}

	scanner := bufio.NewScanner(c.in)
	for {
		if interactive && !c.json {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			quit, err := c.chatCommand(ctx, line)
			if err != nil {
				hintFor(err).PrintError(c.out, c.json)
			}
			if quit {
				return nil
			}
			continue
		}

		result, err := c.ask(ctx, line, interactive && !c.json)
		if err != nil {
			hintFor(err).PrintError(c.out, c.json)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		switch {
		case c.json:
			_ = printJSON(c.out, result)
		case interactive:
			fmt.Fprintln(c.out)
		default:
			fmt.Fprintln(c.out, result.Response)
		}
	}
}

func (c commandContext) chatCommand(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "tools":
		return false, c.listTools()
	case "metrics":
		return false, c.printMetrics()
	case "refine":
		feedback := strings.TrimSpace(arg)
		if feedback == "" {
			return false, NewInvalidArgumentError(":refine", "feedback is required")
		}
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		resp, err := c.app.controller.Refine(ctx, feedback)
		if err != nil {
			return false, err
		}
		if c.json {
			return false, printJSON(c.out, runResult{Query: feedback, Response: resp})
		}
		_, err = fmt.Fprintln(c.out, resp)
		return false, err
	default:
		return false, NewInvalidArgumentError(line, fmt.Sprintf("unknown chat command %q", name))
	}
}

func (c commandContext) listTools() error {
	defs := c.app.controller.Registry().Definitions()
	rows := make([]toolRow, 0, len(defs))
	for _, def := range defs {
		row := toolRow{Name: def.Name, Description: def.Description}
		for name, p := range def.Parameters {
			param := name + ":" + p.Type
			if p.Required {
				param += "*"
			}
			row.Parameters = append(row.Parameters, param)
		}
		sort.Strings(row.Parameters)
		rows = append(rows, row)
	}
	if c.json {
		return printJSON(c.out, rows)
	}
	writer := newTabWriter(c.out)
	writeRow(writer, "NAME", "PARAMETERS", "DESCRIPTION")
	for _, row := range rows {
		writeRow(writer, row.Name, strings.Join(row.Parameters, ","), row.Description)
	}
	return writer.Flush()
}

// metrics answers every input line as a query and prints the aggregate.
func (c commandContext) metrics(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := c.ask(ctx, line, false); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.app.logger.Warn("request failed", "query", line, "error", err.Error())
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return c.printMetrics()
}

func (c commandContext) printMetrics() error {
	m := c.app.controller.Metrics()
	if c.json {
		return printJSON(c.out, m)
	}
	writer := newTabWriter(c.out)
	writeRow(writer, "METRIC", "VALUE")
	writeRow(writer, "total_requests", fmt.Sprint(m.TotalRequests))
	writeRow(writer, "average_response_time", m.AverageResponseTime.Round(time.Millisecond).String())
	writeRow(writer, "success_rate", fmt.Sprintf("%.2f", m.SuccessRate))
	writeRow(writer, "prompt_tokens", fmt.Sprint(m.TokenUsage.PromptTokens))
	writeRow(writer, "completion_tokens", fmt.Sprint(m.TokenUsage.CompletionTokens))
	writeRow(writer, "total_tokens", fmt.Sprint(m.TokenUsage.TotalTokens))
	names := make([]string, 0, len(m.ToolUsageCounts))
	for name := range m.ToolUsageCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeRow(writer, "tool."+name, fmt.Sprint(m.ToolUsageCounts[name]))
	}
	return writer.Flush()
}

func (c commandContext) mcp(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return NewInvalidArgumentError("mcp", "usage: orchestrator mcp list|serve")
	}
	switch args[0] {
	case "list":
		return c.mcpList(ctx, cfg.Tools.MCP)
	case "serve":
		srv := kairosmcp.NewServer(serviceName, version, c.app.controller.Registry())
		return srv.ServeStdio()
	default:
		return NewInvalidArgumentError(args[0], "usage: orchestrator mcp list|serve")
	}
}

func (c commandContext) mcpList(ctx context.Context, servers []config.MCPServerConfig) error {
	if len(servers) == 0 {
		if c.json {
			return printJSON(c.out, []mcpToolResult{})
		}
		_, err := fmt.Fprintln(c.out, "no mcp servers configured")
		return err
	}

	results := make([]mcpToolResult, 0)
	for _, srv := range servers {
		client, err := kairosmcp.Dial(srv.Transport, srv.Command, srv.Args, srv.URL)
		if err != nil {
			results = append(results, mcpToolResult{Server: srv.Name, Error: err.Error()})
			continue
		}
		listCtx, cancel := c.withTimeout(ctx)
		listed, err := client.ListTools(listCtx)
		cancel()
		_ = client.Close()
		if err != nil {
			results = append(results, mcpToolResult{Server: srv.Name, Error: err.Error()})
			continue
		}
		for _, tool := range listed {
			results = append(results, mcpToolResult{
				Server:      srv.Name,
				Tool:        tool.Name,
				Description: strings.TrimSpace(tool.Description),
			})
		}
	}

	if c.json {
		return printJSON(c.out, results)
	}
	writer := newTabWriter(c.out)
	writeRow(writer, "SERVER", "TOOL", "DESCRIPTION")
	for _, res := range results {
		if res.Error != "" {
			writeRow(writer, res.Server, "ERROR", res.Error)
			continue
		}
		writeRow(writer, res.Server, res.Tool, res.Description)
	}
	return writer.Flush()
}
