// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/jllopis/kairos-orchestrator/pkg/agent"
	"github.com/jllopis/kairos-orchestrator/pkg/api"
	"github.com/jllopis/kairos-orchestrator/pkg/config"
	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	kairosmcp "github.com/jllopis/kairos-orchestrator/pkg/mcp"
	"github.com/jllopis/kairos-orchestrator/pkg/memory"
	"github.com/jllopis/kairos-orchestrator/pkg/observer"
	"github.com/jllopis/kairos-orchestrator/pkg/planner"
	"github.com/jllopis/kairos-orchestrator/pkg/prompts"
	"github.com/jllopis/kairos-orchestrator/pkg/resilience"
	"github.com/jllopis/kairos-orchestrator/pkg/telemetry"
	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

const mockResponse = "This is a mock response from the orchestrator."

// app holds one controller and everything it was built from.
type app struct {
	controller *agent.Controller
	logger     *slog.Logger
	audit      planner.AuditStore

	mu     sync.Mutex
	hot    config.HotReloadable
	closer []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, _ := telemetry.ConfigureSlog(logOut, cfg.Log.Level, cfg.Log.Format)
	a := &app{
		logger: logger,
		hot:    config.ExtractHotReloadable(cfg),
	}

	provider, err := newProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	gateway := llm.NewGateway(provider, llm.Config{
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		SystemPrompt:     cfg.LLM.SystemPrompt,
		PresencePenalty:  cfg.LLM.PresencePenalty,
		FrequencyPenalty: cfg.LLM.FrequencyPenalty,
	}, llm.WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(cfg.LLM.MaxAttempts)))

	memOpts := []memory.Option{
		memory.WithWindowSize(cfg.Memory.WindowSize),
		memory.WithRelevantItems(cfg.Memory.RelevantItems),
	}
	if cfg.Memory.Retriever == "similarity" {
		memOpts = append(memOpts, memory.WithRetriever(memory.Similarity(textutil.LengthRatio)))
	}

	instruments, err := telemetry.NewAgentInstruments(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("create metric instruments: %w", err)
	}
	obs := observer.New(observer.Config{
		EnableMetrics: cfg.Observer.EnableMetrics,
		EnableLogging: cfg.Observer.EnableLogging,
		LogToConsole:  cfg.Observer.LogToConsole,
		LogLevel:      cfg.Observer.LogLevel,
	}, observer.WithLogger(logger), observer.WithInstruments(instruments))

	if err := a.openAudit(ctx, cfg.Planner); err != nil {
		return nil, err
	}

	set := prompts.Default()
	if cfg.Agent.PromptsFile != "" {
		if set, err = prompts.LoadFile(cfg.Agent.PromptsFile); err != nil {
			a.Close()
			return nil, err
		}
	}

	remote, err := a.loadMCPTools(ctx, cfg.Tools.MCP)
	if err != nil {
		a.Close()
		return nil, err
	}
	allow := append([]string(nil), cfg.Agent.AvailableTools...)
	if len(allow) > 0 {
		for _, t := range remote {
			allow = append(allow, t.Definition().Name)
		}
	}

	apiClient := api.New(api.Config{
		Endpoints: cfg.API.Endpoints,
		APIKeys:   cfg.API.APIKeys,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
		Retry:     resilience.DefaultRetryConfig().WithMaxAttempts(cfg.API.MaxAttempts),
	})

	opts := []agent.Option{
		agent.WithGateway(gateway),
		agent.WithMemory(memory.New(memOpts...)),
		agent.WithObserver(obs),
		agent.WithLogger(logger),
		agent.WithToolTimeout(cfg.Tools.Timeout),
		agent.WithAPIClient(apiClient),
		agent.WithTools(remote...),
		agent.WithPrompts(set),
	}
	if a.audit != nil {
		opts = append(opts, agent.WithAuditStore(a.audit))
	}
	controller, err := agent.New(agent.Config{
		Model:          cfg.LLM.Model,
		AvailableTools: allow,
		MaxIterations:  cfg.Agent.MaxIterations,
		Temperature:    cfg.LLM.Temperature,
		DebugMode:      cfg.Agent.Debug,
	}, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := controller.Planner().SetReasoningSteps(cfg.Planner.ReasoningSteps); err != nil {
		a.Close()
		return nil, err
	}
	if err := controller.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.controller = controller
	return a, nil
}

func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "openai":
		return llm.NewOpenAI(
			llm.WithOpenAIBaseURL(cfg.BaseURL),
			llm.WithOpenAIAPIKey(cfg.APIKey),
			llm.WithOpenAIModel(cfg.Model),
		), nil
	case "mock":
		return &llm.MockProvider{Response: mockResponse}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func (a *app) openAudit(ctx context.Context, cfg config.PlannerConfig) error {
	switch cfg.Audit {
	case "memory":
		a.audit = planner.NewMemoryAuditStore()
	case "sqlite":
		store, err := planner.OpenSQLiteAuditStore(ctx, cfg.AuditDSN)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		a.audit = store
		a.closer = append(a.closer, store.Close)
	}
	return nil
}

// loadMCPTools connects to every configured server and adapts its tools,
// prefixed with the server name.
func (a *app) loadMCPTools(ctx context.Context, servers []config.MCPServerConfig) ([]tools.Tool, error) {
	var out []tools.Tool
	for _, srv := range servers {
		client, err := kairosmcp.Dial(srv.Transport, srv.Command, srv.Args, srv.URL)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", srv.Name, err)
		}
		a.closer = append(a.closer, client.Close)
		loaded, err := kairosmcp.LoadTools(ctx, client, srv.Name)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", srv.Name, err)
		}
		a.logger.Info("mcp tools loaded",
			slog.String("server", srv.Name),
			slog.Int("tools", len(loaded)),
		)
		out = append(out, loaded...)
	}
	return out, nil
}

// applyReload pushes the hot-reloadable settings of next into the running
// controller. Calls in flight keep the settings they started with.
func (a *app) applyReload(next *config.Config) {
	hot := config.ExtractHotReloadable(next)
	a.mu.Lock()
	changed := a.hot.Changed(hot)
	a.hot = hot
	a.mu.Unlock()
	if !changed {
		return
	}

	gateway := a.controller.Gateway()
	gateway.UpdateConfig(llm.ConfigUpdate{
		Temperature: &hot.Temperature,
		MaxTokens:   &hot.MaxTokens,
	})
	gateway.SetSystemPrompt(hot.SystemPrompt)
	if err := a.controller.Observer().SetLogLevel(hot.ObserverLevel); err != nil {
		a.logger.Warn("config reload: observer log level", slog.String("error", err.Error()))
	}
	if err := a.controller.Planner().SetReasoningSteps(hot.ReasoningSteps); err != nil {
		a.logger.Warn("config reload: reasoning steps", slog.String("error", err.Error()))
	}
	a.logger.Info("configuration reloaded",
		slog.Float64("temperature", hot.Temperature),
		slog.Int("max_tokens", hot.MaxTokens),
		slog.String("observer_level", hot.ObserverLevel),
		slog.Int("reasoning_steps", hot.ReasoningSteps),
	)
}

// Close shuts the controller down and releases MCP sessions and the audit store.
func (a *app) Close() error {
	if a.controller != nil {
		a.controller.Shutdown()
	}
	var first error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closer = nil
	return first
}
