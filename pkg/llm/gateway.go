package llm

import (
	"context"
	stderrors "errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/resilience"
)

// Generation defaults.
const (
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 1024
	DefaultSystemPrompt = "You are a helpful AI assistant."
)

// Config holds gateway-wide generation parameters.
type Config struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	SystemPrompt     string  `json:"system_prompt"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

// DefaultConfig returns the default generation parameters for model.
func DefaultConfig(model string) Config {
	return Config{
		Model:        model,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// ConfigUpdate lists the parameters to change. Nil fields are left as they are.
type ConfigUpdate struct {
	Temperature      *float64
	MaxTokens        *int
	SystemPrompt     *string
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Response is the result of a completion.
type Response struct {
	Text         string `json:"text"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithRetry retries Complete calls whose provider error is retryable.
func WithRetry(rc resilience.RetryConfig) GatewayOption {
	return func(g *Gateway) {
		rc.IsRecoverable = retryableProviderError
		g.retry = rc
	}
}

// WithTracer overrides the tracer used for completion spans.
func WithTracer(t trace.Tracer) GatewayOption {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// Gateway issues completions against a provider with the current generation
// parameters. Parameter changes apply to calls started afterwards only.
type Gateway struct {
	mu       sync.RWMutex
	cfg      Config
	provider Provider
	name     string
	retry    resilience.RetryConfig
	tracer   trace.Tracer
}

// NewGateway creates a gateway. Zero-valued fields of cfg take their defaults.
func NewGateway(provider Provider, cfg Config, opts ...GatewayOption) *Gateway {
	def := DefaultConfig(cfg.Model)
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	g := &Gateway{
		cfg:      cfg,
		provider: provider,
		name:     providerName(provider),
		retry:    resilience.NoRetry(),
		tracer:   otel.Tracer("kairos/llm"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns a copy of the current generation parameters.
func (g *Gateway) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Model returns the configured model identifier.
func (g *Gateway) Model() string {
	return g.Config().Model
}

// UpdateConfig changes generation parameters for subsequent calls.
func (g *Gateway) UpdateConfig(u ConfigUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u.Temperature != nil {
		g.cfg.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		g.cfg.MaxTokens = *u.MaxTokens
	}
	if u.SystemPrompt != nil {
		g.cfg.SystemPrompt = *u.SystemPrompt
	}
	if u.PresencePenalty != nil {
		g.cfg.PresencePenalty = *u.PresencePenalty
	}
	if u.FrequencyPenalty != nil {
		g.cfg.FrequencyPenalty = *u.FrequencyPenalty
	}
}

// SetSystemPrompt replaces the system prompt for subsequent calls.
func (g *Gateway) SetSystemPrompt(prompt string) {
	g.UpdateConfig(ConfigUpdate{SystemPrompt: &prompt})
}

// Complete issues a single-shot completion. Provider failures are returned as
// LLM_ERROR KairosErrors wrapping a *ProviderError.
func (g *Gateway) Complete(ctx context.Context, prompt string) (*Response, error) {
	cfg := g.Config()
	ctx, span := g.tracer.Start(ctx, "LLM.Complete", trace.WithAttributes(
		attribute.String("llm.provider", g.name),
		attribute.String("llm.model", cfg.Model),
	))
	defer span.End()

	req := buildRequest(cfg, prompt)
	resp, err := resilience.Retry(ctx, g.retry, func(ctx context.Context) (*ChatResponse, error) {
		return g.provider.Chat(ctx, req)
	})
	if err != nil {
		err = g.wrapError(ctx, "chat", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out := toResponse(cfg, resp)
	span.SetAttributes(
		attribute.Int("llm.tokens.prompt", out.Usage.PromptTokens),
		attribute.Int("llm.tokens.completion", out.Usage.CompletionTokens),
		attribute.Int("llm.tokens.total", out.Usage.TotalTokens),
	)
	return out, nil
}

func buildRequest(cfg Config, prompt string) ChatRequest {
	msgs := make([]Message, 0, 2)
	if cfg.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: cfg.SystemPrompt})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	return ChatRequest{
		Model:            cfg.Model,
		Messages:         msgs,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
	}
}

func toResponse(cfg Config, resp *ChatResponse) *Response {
	if resp == nil {
		resp = &ChatResponse{}
	}
	model := resp.Model
	if model == "" {
		model = cfg.Model
	}
	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return &Response{
		Text:         resp.Content,
		Usage:        usage,
		Model:        model,
		FinishReason: resp.FinishReason,
	}
}

// wrapError normalizes provider failures: context loss is reported as
// CONTEXT_LOST, everything else as LLM_ERROR with a ProviderError in the chain.
func (g *Gateway) wrapError(ctx context.Context, op string, err error) error {
	if errors.Is(err, errors.CodeContextLost) {
		return err
	}
	if ctx.Err() != nil {
		return errors.New(errors.CodeContextLost, "model call cancelled", ctx.Err()).
			WithContext("provider", g.name)
	}
	pe, ok := AsProviderError(err)
	if !ok {
		pe = NewProviderError(g.name, op, 0, ProviderErrorKindUnavailable, "", true, err)
	}
	return errors.New(errors.CodeLLMError, "model provider failed", pe).
		WithContext("provider", pe.Provider()).
		WithContext("kind", string(pe.Kind())).
		WithRecoverable(pe.Retryable())
}

func retryableProviderError(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		return pe.Retryable()
	}
	return true
}
