package core

import (
	"context"

	"github.com/google/uuid"
)

type scopeKey struct{}

// Scope identifies the request and the controller an operation runs under.
type Scope struct {
	RunID   string
	AgentID string
}

// WithScope replaces the scope carried by ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope carried by ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// WithRunID sets the run id, keeping the rest of the scope.
func WithRunID(ctx context.Context, id string) context.Context {
	s := ScopeFrom(ctx)
	s.RunID = id
	return WithScope(ctx, s)
}

// WithAgentID sets the agent id, keeping the rest of the scope.
func WithAgentID(ctx context.Context, id string) context.Context {
	s := ScopeFrom(ctx)
	s.AgentID = id
	return WithScope(ctx, s)
}

// RunID returns the run id if one is set.
func RunID(ctx context.Context) (string, bool) {
	id := ScopeFrom(ctx).RunID
	return id, id != ""
}

// AgentID returns the agent id, or "" when none is set.
func AgentID(ctx context.Context) string {
	return ScopeFrom(ctx).AgentID
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// EnsureRunID keeps a caller supplied run id and generates one otherwise.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := NewRunID()
	return WithRunID(ctx, id), id
}
