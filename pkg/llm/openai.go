// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultOpenAIModel is used when neither the request nor the provider names a model.
const DefaultOpenAIModel = "gpt-5-mini"

// OpenAIProvider implements StreamingProvider against the OpenAI chat
// completions API or any compatible endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	model  string
	client []option.RequestOption
}

// WithOpenAIModel sets the model used when the request leaves it empty.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *openAIOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithOpenAIBaseURL points the client at a proxy or compatible server.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) {
		if url != "" {
			o.client = append(o.client, option.WithBaseURL(url))
		}
	}
}

// WithOpenAIAPIKey sets the API key. Without it OPENAI_API_KEY is used.
func WithOpenAIAPIKey(key string) OpenAIOption {
	return func(o *openAIOptions) {
		if key != "" {
			o.client = append(o.client, option.WithAPIKey(key))
		}
	}
}

// NewOpenAI creates an OpenAIProvider. Retries are left to the Gateway.
func NewOpenAI(opts ...OpenAIOption) *OpenAIProvider {
	o := openAIOptions{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&o)
	}
	clientOpts := append([]option.RequestOption{option.WithMaxRetries(0)}, o.client...)
	return &OpenAIProvider{
		client: openai.NewClient(clientOpts...),
		model:  o.model,
	}
}

// Name implements Named.
func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) params(req ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openAIMessage(msg))
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(req.PresencePenalty)
	}
	if req.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(req.FrequencyPenalty)
	}
	return params
}

func openAIMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content)
	case RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content)
		}
		calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
		if msg.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(msg.Content),
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	case RoleTool:
		return openai.ToolMessage(msg.Content, "")
	default:
		return openai.UserMessage(msg.Content)
	}
}

func openAIUsage(u openai.CompletionUsage) Usage {
	return Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

// wrap maps SDK failures onto ProviderError so the Gateway can decide on retries.
func (p *OpenAIProvider) wrap(op string, err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		kind, retryable := ClassifyStatus(apiErr.StatusCode)
		return NewProviderError(p.Name(), op, apiErr.StatusCode, kind, apiErr.Message, retryable, err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewProviderError(p.Name(), op, 0, ProviderErrorKindUnavailable, fmt.Sprintf("request failed: %v", err), true, err)
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return nil, p.wrap("chat", err)
	}

	resp := &ChatResponse{
		Usage: openAIUsage(completion.Usage),
		Model: completion.Model,
	}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		resp.Content = choice.Message.Content
		resp.FinishReason = choice.FinishReason
		for _, tc := range choice.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: ToolTypeFunction,
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return resp, nil
}

// ChatStream streams server-sent completion deltas as StreamChunks.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))

	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer stream.Close()

		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// tool call deltas arrive keyed by index with arguments split across events
		calls := map[int]*ToolCall{}
		done := StreamChunk{Done: true}
		for stream.Next() {
			event := stream.Current()
			if event.Usage.TotalTokens > 0 {
				usage := openAIUsage(event.Usage)
				done.Usage = &usage
			}
			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]
			for _, tc := range choice.Delta.ToolCalls {
				idx := int(tc.Index)
				if _, ok := calls[idx]; !ok {
					calls[idx] = &ToolCall{ID: tc.ID, Type: ToolTypeFunction, Function: FunctionCall{Name: tc.Function.Name}}
				}
				calls[idx].Function.Arguments += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				done.FinishReason = choice.FinishReason
			}
			if choice.Delta.Content != "" && !send(StreamChunk{Content: choice.Delta.Content}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(StreamChunk{Error: p.wrap("chat_stream", err)})
			return
		}
		for i := 0; i < len(calls); i++ {
			if tc, ok := calls[i]; ok {
				done.ToolCalls = append(done.ToolCalls, *tc)
			}
		}
		if done.Usage == nil {
			done.Usage = &Usage{}
		}
		send(done)
	}()

	return chunks, nil
}

var _ StreamingProvider = (*OpenAIProvider)(nil)
