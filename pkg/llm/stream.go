package llm

import (
	"context"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StreamCallbacks receives the output of StreamComplete. OnComplete and OnError
// are mutually exclusive and each fires at most once. All callbacks run on the
// stream's goroutine, in order.
type StreamCallbacks struct {
	OnToken    func(token string)
	OnComplete func(resp Response)
	OnError    func(err error)
}

const (
	streamRunning int32 = iota
	streamSettled
	streamCancelled
)

// Stream is a running streamed completion.
type Stream struct {
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}
	resp   *Response
	err    error
}

// Cancel stops token delivery. Once cancelled, neither OnComplete nor OnError
// fires and Wait reports context.Canceled. A token callback already running
// is allowed to return. Cancel after the stream has settled has no effect on
// the outcome.
func (s *Stream) Cancel() {
	s.state.CompareAndSwap(streamRunning, streamCancelled)
	s.cancel()
}

func (s *Stream) cancelled() bool {
	return s.state.Load() == streamCancelled
}

// settle claims the right to fire the terminal callback. It fails once
// Cancel has won.
func (s *Stream) settle() bool {
	return s.state.CompareAndSwap(streamRunning, streamSettled)
}

// Done is closed when the stream has finished, failed or been cancelled.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the stream ends and returns its outcome.
func (s *Stream) Wait() (*Response, error) {
	<-s.done
	return s.resp, s.err
}

// StreamComplete starts a streamed completion in its own goroutine and returns
// immediately. The concatenation of the tokens passed to OnToken equals the
// Text of the Response passed to OnComplete. Cancelling ctx has the same
// effect as calling Cancel.
func (g *Gateway) StreamComplete(ctx context.Context, prompt string, cb StreamCallbacks) *Stream {
	cfg := g.Config()
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer cancel()

		spanCtx, span := g.tracer.Start(ctx, "LLM.StreamComplete", trace.WithAttributes(
			attribute.String("llm.provider", g.name),
			attribute.String("llm.model", cfg.Model),
		))
		defer span.End()

		emit := func(token string) bool {
			if s.cancelled() || ctx.Err() != nil {
				return false
			}
			if cb.OnToken != nil {
				cb.OnToken(token)
			}
			return true
		}

		resp, err := g.runStream(spanCtx, cfg, prompt, emit)
		if ctx.Err() != nil || !s.settle() {
			s.err = context.Canceled
			if ctx.Err() != nil {
				s.err = ctx.Err()
			}
			span.SetStatus(codes.Error, "cancelled")
			return
		}
		if err != nil {
			s.err = g.wrapError(ctx, "chat_stream", err)
			span.RecordError(s.err)
			span.SetStatus(codes.Error, s.err.Error())
			if cb.OnError != nil {
				cb.OnError(s.err)
			}
			return
		}
		s.resp = resp
		span.SetAttributes(attribute.Int("llm.tokens.total", resp.Usage.TotalTokens))
		if cb.OnComplete != nil {
			cb.OnComplete(*resp)
		}
	}()
	return s
}

// runStream drives the provider stream. emit returns false once the caller
// has cancelled.
func (g *Gateway) runStream(ctx context.Context, cfg Config, prompt string, emit func(string) bool) (*Response, error) {
	req := buildRequest(cfg, prompt)

	sp, ok := g.provider.(StreamingProvider)
	if !ok {
		resp, err := g.provider.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, tok := range SplitTokens(resp.Content) {
			if !emit(tok) {
				return nil, context.Canceled
			}
		}
		return toResponse(cfg, resp), nil
	}

	chunks, err := sp.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		text         strings.Builder
		usage        Usage
		finishReason string
		toolCalls    []ToolCall
	)
	for {
		select {
		case <-ctx.Done():
			go drain(chunks)
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil, NewProviderError(g.name, "chat_stream", 0, ProviderErrorKindUnavailable,
					"stream closed before completion", true, nil)
			}
			if chunk.Error != nil {
				go drain(chunks)
				return nil, chunk.Error
			}
			if chunk.Content != "" {
				text.WriteString(chunk.Content)
				if !emit(chunk.Content) {
					go drain(chunks)
					return nil, context.Canceled
				}
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = chunk.ToolCalls
			}
			if chunk.Done {
				if chunk.Usage != nil {
					usage = *chunk.Usage
				}
				finishReason = chunk.FinishReason
				go drain(chunks)
				return toResponse(cfg, &ChatResponse{
					Content:      text.String(),
					ToolCalls:    toolCalls,
					Usage:        usage,
					FinishReason: finishReason,
				}), nil
			}
		}
	}
}

// SplitTokens breaks text into word-sized increments whose concatenation is text.
func SplitTokens(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}

func drain(chunks <-chan StreamChunk) {
	for range chunks {
	}
}
