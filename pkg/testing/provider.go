// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jllopis/kairos-orchestrator/pkg/llm"
)

// ScenarioProvider is a scripted model provider for orchestrator tests.
// It supports queued and conditional responses, streaming and request capture.
type ScenarioProvider struct {
	mu              sync.Mutex
	responses       []ScriptedResponse
	requests        []llm.ChatRequest
	defaultResponse *ScriptedResponse
	defaultError    error
	onChat          func(req llm.ChatRequest) (*llm.ChatResponse, error)
}

// ScriptedResponse defines a response for the scenario provider.
type ScriptedResponse struct {
	Content string
	Error   error
	Usage   llm.Usage
	// Condition restricts the response to matching requests. Queued responses
	// are served in order, skipping those whose condition does not match.
	Condition func(req llm.ChatRequest) bool
}

// NewScenarioProvider creates a new scenario provider.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{}
}

// Name implements llm.Named.
func (p *ScenarioProvider) Name() string { return "scenario" }

// AddResponse queues a response to be returned.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddResponseWhen queues a response served only to a request whose last
// user message contains substr.
func (p *ScenarioProvider) AddResponseWhen(substr, content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{
		Content:   content,
		Condition: PromptContains(substr),
	})
}

// AddErrorResponse queues an error response.
func (p *ScenarioProvider) AddErrorResponse(err error) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Error: err})
}

// AddScriptedResponse adds a fully configured response.
func (p *ScenarioProvider) AddScriptedResponse(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// WithDefaultResponse sets the content returned when no queued response matches.
func (p *ScenarioProvider) WithDefaultResponse(content string) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultResponse = &ScriptedResponse{Content: content}
	return p
}

// WithDefaultError sets the error to return when no queued response matches.
func (p *ScenarioProvider) WithDefaultError(err error) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultError = err
	return p
}

// WithChatFunc sets a custom function for handling chat requests.
func (p *ScenarioProvider) WithChatFunc(fn func(req llm.ChatRequest) (*llm.ChatResponse, error)) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChat = fn
	return p
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, fn, err := p.next(req)
	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Content:      resp.Content,
		Usage:        resp.Usage,
		Model:        req.Model,
		FinishReason: "stop",
	}, nil
}

// ChatStream implements llm.StreamingProvider by streaming the next scripted
// response word by word.
func (p *ScenarioProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	tokens := llm.SplitTokens(resp.Content)
	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)
		for _, tok := range tokens {
			select {
			case chunks <- llm.StreamChunk{Content: tok}:
			case <-ctx.Done():
				return
			}
		}
		usage := resp.Usage
		select {
		case chunks <- llm.StreamChunk{Done: true, Usage: &usage, FinishReason: resp.FinishReason}:
		case <-ctx.Done():
		}
	}()
	return chunks, nil
}

func (p *ScenarioProvider) next(req llm.ChatRequest) (ScriptedResponse, func(llm.ChatRequest) (*llm.ChatResponse, error), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.onChat != nil {
		return ScriptedResponse{}, p.onChat, nil
	}

	for i, resp := range p.responses {
		if resp.Condition != nil && !resp.Condition(req) {
			continue
		}
		p.responses = append(p.responses[:i:i], p.responses[i+1:]...)
		return resp, nil, resp.Error
	}

	if p.defaultError != nil {
		return ScriptedResponse{}, nil, p.defaultError
	}
	if p.defaultResponse != nil {
		return *p.defaultResponse, nil, nil
	}
	return ScriptedResponse{}, nil, fmt.Errorf("no more scripted responses (call %d)", len(p.requests))
}

// Requests returns all captured requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]llm.ChatRequest, len(p.requests))
	copy(result, p.requests)
	return result
}

// LastRequest returns the most recent request.
func (p *ScenarioProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// CallCount returns the number of Chat calls made.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Pending returns the number of queued responses not yet served.
func (p *ScenarioProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.responses)
}

// Reset clears captured requests and queued responses.
func (p *ScenarioProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = nil
	p.requests = nil
}

// PromptContains matches requests whose last user message contains substr.
func PromptContains(substr string) func(llm.ChatRequest) bool {
	return func(req llm.ChatRequest) bool {
		return strings.Contains(LastUserMessage(req), substr)
	}
}

// LastUserMessage returns the content of the request's last user message.
func LastUserMessage(req llm.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

var _ llm.StreamingProvider = (*ScenarioProvider)(nil)
