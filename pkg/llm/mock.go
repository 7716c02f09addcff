package llm

import (
	"context"
	"fmt"
)

// MockProvider is a testing implementation of Provider. It does not stream, so
// the gateway falls back to splitting the full response into tokens.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Name implements Named.
func (m *MockProvider) Name() string { return "mock" }

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Model:   req.Model,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
		FinishReason: "stop",
	}, nil
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

// Name implements Named.
func (f *FailingMockProvider) Name() string { return "mock" }

// Chat implements Provider.
func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}
