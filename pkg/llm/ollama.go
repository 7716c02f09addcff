package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaProvider implements StreamingProvider against the Ollama chat API.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a new OllamaProvider.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name implements Named.
func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaEvent is both the non-streaming response and one NDJSON stream line.
type ollamaEvent struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

func (e ollamaEvent) usage() Usage {
	return Usage{
		PromptTokens:     e.PromptEvalCount,
		CompletionTokens: e.EvalCount,
		TotalTokens:      e.PromptEvalCount + e.EvalCount,
	}
}

func ollamaOptions(req ChatRequest) map[string]any {
	opts := map[string]any{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.PresencePenalty != 0 {
		opts["presence_penalty"] = req.PresencePenalty
	}
	if req.FrequencyPenalty != 0 {
		opts["frequency_penalty"] = req.FrequencyPenalty
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func (p *OllamaProvider) post(ctx context.Context, op string, req ChatRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Options:  ollamaOptions(req),
	})
	if err != nil {
		return nil, NewProviderError(p.Name(), op, 0, ProviderErrorKindInvalidRequest, "marshal request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(p.Name(), op, 0, ProviderErrorKindInvalidRequest, "create request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(p.Name(), op, 0, ProviderErrorKindUnavailable, "", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, StatusError(p.Name(), op, resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// Chat sends a chat request to Ollama and maps the response to ChatResponse.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, "chat", req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ev ollamaEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, NewProviderError(p.Name(), "chat", resp.StatusCode, ProviderErrorKindUnknown,
			fmt.Sprintf("decode response: %v", err), false, err)
	}

	return &ChatResponse{
		Content:      ev.Message.Content,
		ToolCalls:    ev.Message.ToolCalls,
		Usage:        ev.usage(),
		Model:        ev.Model,
		FinishReason: ev.DoneReason,
	}, nil
}

// ChatStream streams NDJSON events from Ollama as StreamChunks.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, "chat_stream", req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReader(resp.Body)
		var toolCalls []ToolCall
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var ev ollamaEvent
				if jerr := json.Unmarshal(line, &ev); jerr == nil {
					if len(ev.Message.ToolCalls) > 0 {
						toolCalls = ev.Message.ToolCalls
					}
					if ev.Message.Content != "" && !send(StreamChunk{Content: ev.Message.Content}) {
						return
					}
					if ev.Done {
						usage := ev.usage()
						send(StreamChunk{Done: true, ToolCalls: toolCalls, Usage: &usage, FinishReason: ev.DoneReason})
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				send(StreamChunk{Error: NewProviderError(p.Name(), "chat_stream", 0, ProviderErrorKindUnavailable, "", true, err)})
				return
			}
		}
	}()

	return chunks, nil
}

var _ StreamingProvider = (*OllamaProvider)(nil)
