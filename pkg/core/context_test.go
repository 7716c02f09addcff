package core

import (
	"context"
	"strings"
	"testing"
)

func TestEnsureRunIDKeepsCallerID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-fixed")
	ctx, id := EnsureRunID(ctx)
	if id != "run-fixed" {
		t.Fatalf("id = %q", id)
	}
	if got, _ := RunID(ctx); got != "run-fixed" {
		t.Fatalf("RunID = %q", got)
	}
}

func TestEnsureRunIDGenerates(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected id %q", id)
	}
	if got, ok := RunID(ctx); !ok || got != id {
		t.Fatalf("RunID = %q, %v", got, ok)
	}
	_, other := EnsureRunID(context.Background())
	if other == id {
		t.Fatal("expected distinct run ids")
	}
}

func TestScopeFieldsAreIndependent(t *testing.T) {
	ctx := WithAgentID(context.Background(), "agent-1")
	ctx = WithRunID(ctx, "run-1")
	if s := ScopeFrom(ctx); s.AgentID != "agent-1" || s.RunID != "run-1" {
		t.Fatalf("unexpected scope %+v", s)
	}
	if _, ok := RunID(context.Background()); ok {
		t.Fatal("empty context should carry no run id")
	}
	if AgentID(context.Background()) != "" {
		t.Fatal("empty context should carry no agent id")
	}
}
