package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider returns a pre-defined sequence of responses, either as
// a single Chat reply or streamed word by word through ChatStream.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Model     string
	Responses []string
	Err       error
	// StreamErr, when set, is delivered after the first streamed chunk.
	StreamErr error
	// CallCount tracks how many times Chat or ChatStream has been called.
	CallCount int
	// Requests records every request received.
	Requests []ChatRequest
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
func NewScriptedMockProvider(model string, responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{
		Model:     model,
		Responses: responses,
	}
}

// Name implements Named.
func (s *ScriptedMockProvider) Name() string { return "scripted" }

func (s *ScriptedMockProvider) next(req ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", errors.New("scripted mock: no more responses available")
	}
	content := s.Responses[0]
	s.Responses = s.Responses[1:]
	return content, nil
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	content, err := s.next(req)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Content: content,
		Model:   s.Model,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
		FinishReason: "stop",
	}, nil
}

// ChatStream pops the next scripted response and streams it word by word.
func (s *ScriptedMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	content, err := s.next(req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	streamErr := s.StreamErr
	s.mu.Unlock()

	tokens := SplitTokens(content)
	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for i, tok := range tokens {
			if !send(StreamChunk{Content: tok}) {
				return
			}
			if i == 0 && streamErr != nil {
				send(StreamChunk{Error: streamErr})
				return
			}
		}
		send(StreamChunk{
			Done:         true,
			FinishReason: "stop",
			Usage: &Usage{
				PromptTokens:     10,
				CompletionTokens: len(tokens),
				TotalTokens:      10 + len(tokens),
			},
		})
	}()
	return chunks, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

// PeekNext returns the next response to be returned, or empty string.
func (s *ScriptedMockProvider) PeekNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Responses) == 0 {
		return ""
	}
	return s.Responses[0]
}

var _ StreamingProvider = (*ScriptedMockProvider)(nil)
