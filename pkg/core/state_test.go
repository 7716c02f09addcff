package core

import (
	"context"
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateInitialized, true},
		{StateIdle, StateProcessing, true},
		{StateInitialized, StateProcessing, true},
		{StateInitialized, StateInitialized, false},
		{StateProcessing, StateIdle, true},
		{StateProcessing, StateError, true},
		{StateProcessing, StateProcessing, false},
		{StateError, StateIdle, false},
		{StateError, StateTerminated, true},
		{StateTerminated, StateIdle, false},
		{StateTerminated, StateTerminated, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAcceptsRequests(t *testing.T) {
	for _, s := range []State{StateIdle, StateInitialized} {
		if !s.AcceptsRequests() {
			t.Errorf("expected %s to accept requests", s)
		}
	}
	for _, s := range []State{StateProcessing, StateError, StateTerminated} {
		if s.AcceptsRequests() {
			t.Errorf("expected %s to reject requests", s)
		}
	}
}

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected run id %q", id)
	}
	_, again := EnsureRunID(ctx)
	if again != id {
		t.Fatalf("expected run id to be reused, got %q and %q", id, again)
	}
	if got, ok := RunID(WithRunID(context.Background(), "run-1")); !ok || got != "run-1" {
		t.Fatalf("expected explicit run id, got %q", got)
	}
}
