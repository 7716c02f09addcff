package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	kerrors "github.com/jllopis/kairos-orchestrator/pkg/errors"
)

// recorder collects stream callbacks.
type recorder struct {
	mu        sync.Mutex
	tokens    []string
	completes []Response
	errs      []error
}

func (r *recorder) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnToken: func(tok string) {
			r.mu.Lock()
			r.tokens = append(r.tokens, tok)
			r.mu.Unlock()
		},
		OnComplete: func(resp Response) {
			r.mu.Lock()
			r.completes = append(r.completes, resp)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func TestStreamCompleteStreamingProvider(t *testing.T) {
	provider := NewScriptedMockProvider("llama3", "Hello streaming world")
	g := NewGateway(provider, Config{Model: "llama3"})

	rec := &recorder{}
	resp, err := g.StreamComplete(context.Background(), "hi", rec.callbacks()).Wait()
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if resp.Text != "Hello streaming world" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if len(rec.tokens) != 3 || strings.Join(rec.tokens, "") != resp.Text {
		t.Fatalf("tokens %q do not reassemble the text", rec.tokens)
	}
	if len(rec.completes) != 1 || len(rec.errs) != 0 {
		t.Fatalf("expected exactly one OnComplete, got %d completes and %d errors", len(rec.completes), len(rec.errs))
	}
	if rec.completes[0].Usage.CompletionTokens != 3 || rec.completes[0].FinishReason != "stop" {
		t.Errorf("unexpected final response: %+v", rec.completes[0])
	}
}

func TestStreamCompleteFallsBackToChat(t *testing.T) {
	g := NewGateway(&MockProvider{Response: "one two three"}, Config{Model: "m"})

	rec := &recorder{}
	resp, err := g.StreamComplete(context.Background(), "hi", rec.callbacks()).Wait()
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if strings.Join(rec.tokens, "") != resp.Text || len(rec.tokens) != 3 {
		t.Fatalf("unexpected tokens %q for %q", rec.tokens, resp.Text)
	}
}

func TestStreamCompleteError(t *testing.T) {
	provider := NewScriptedMockProvider("m", "partial answer here")
	provider.StreamErr = errors.New("connection reset")
	g := NewGateway(provider, Config{})

	rec := &recorder{}
	_, err := g.StreamComplete(context.Background(), "hi", rec.callbacks()).Wait()
	if !kerrors.Is(err, kerrors.CodeLLMError) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
	if len(rec.errs) != 1 || len(rec.completes) != 0 {
		t.Fatalf("expected exactly one OnError, got %d errors and %d completes", len(rec.errs), len(rec.completes))
	}
	if len(rec.tokens) != 1 {
		t.Errorf("expected the token before the failure, got %q", rec.tokens)
	}
}

func TestStreamCompleteStartError(t *testing.T) {
	provider := NewScriptedMockProvider("m")
	g := NewGateway(provider, Config{})

	rec := &recorder{}
	if _, err := g.StreamComplete(context.Background(), "hi", rec.callbacks()).Wait(); err == nil {
		t.Fatal("expected error with no scripted responses")
	}
	if len(rec.errs) != 1 || len(rec.completes) != 0 {
		t.Fatalf("expected one OnError, got %d/%d", len(rec.errs), len(rec.completes))
	}
}

// blockingStream emits one token and then waits for cancellation.
type blockingStream struct{}

func (blockingStream) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	return nil, errors.New("not used")
}

func (blockingStream) ChatStream(ctx context.Context, _ ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		select {
		case ch <- StreamChunk{Content: "first "}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return ch, nil
}

func TestStreamCompleteCancel(t *testing.T) {
	g := NewGateway(blockingStream{}, Config{})

	gotToken := make(chan struct{}, 1)
	var completed, failed bool
	stream := g.StreamComplete(context.Background(), "hi", StreamCallbacks{
		OnToken:    func(string) { gotToken <- struct{}{} },
		OnComplete: func(Response) { completed = true },
		OnError:    func(error) { failed = true },
	})

	select {
	case <-gotToken:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first token")
	}
	stream.Cancel()

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after Cancel")
	}
	_, err := stream.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if completed || failed {
		t.Fatalf("no terminal callback may fire after cancellation (complete=%v error=%v)", completed, failed)
	}
}

func TestStreamCancelFromTokenCallback(t *testing.T) {
	g := NewGateway(NewScriptedMockProvider("m", "a b c d e f"), Config{})

	var (
		stream *Stream
		ready  = make(chan struct{})
		tokens int
	)
	completed := false
	stream = g.StreamComplete(context.Background(), "hi", StreamCallbacks{
		OnToken: func(string) {
			<-ready
			tokens++
			if tokens == 2 {
				stream.Cancel()
			}
		},
		OnComplete: func(Response) { completed = true },
	})
	close(ready)

	if _, err := stream.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if tokens != 2 || completed {
		t.Fatalf("expected emission to stop after 2 tokens without completion, got %d tokens complete=%v", tokens, completed)
	}
}

func TestStreamCancelAndSettleAreExclusive(t *testing.T) {
	s := &Stream{cancel: func() {}}
	s.Cancel()
	if s.settle() {
		t.Fatal("settle succeeded after Cancel")
	}

	s = &Stream{cancel: func() {}}
	if !s.settle() {
		t.Fatal("settle failed on a running stream")
	}
	s.Cancel()
	if s.cancelled() {
		t.Fatal("Cancel changed a settled stream")
	}
}

func TestStreamCancelRacingCompletion(t *testing.T) {
	g := NewGateway(NewScriptedMockProvider("m", "a b"), Config{})
	for i := 0; i < 200; i++ {
		rec := &recorder{}
		stream := g.StreamComplete(context.Background(), "hi", rec.callbacks())
		go stream.Cancel()
		resp, err := stream.Wait()

		rec.mu.Lock()
		completes, errs := len(rec.completes), len(rec.errs)
		rec.mu.Unlock()
		if errs != 0 {
			t.Fatalf("iteration %d: OnError fired %d times", i, errs)
		}
		switch {
		case err == nil:
			if completes != 1 || resp == nil {
				t.Fatalf("iteration %d: completed without exactly one OnComplete (%d)", i, completes)
			}
		case errors.Is(err, context.Canceled):
			if completes != 0 {
				t.Fatalf("iteration %d: OnComplete fired after cancellation", i)
			}
		default:
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
	}
}

func TestStreamConcatenationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("tokens concatenate to the completed text", prop.ForAll(
		func(words []string, streaming bool) bool {
			text := strings.Join(words, " ")
			var provider Provider = &MockProvider{Response: text}
			if streaming {
				provider = NewScriptedMockProvider("m", text)
			}
			rec := &recorder{}
			resp, err := NewGateway(provider, Config{}).StreamComplete(context.Background(), "p", rec.callbacks()).Wait()
			if err != nil {
				return false
			}
			return len(rec.completes) == 1 &&
				len(rec.errs) == 0 &&
				rec.completes[0].Text == resp.Text &&
				strings.Join(rec.tokens, "") == text
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
