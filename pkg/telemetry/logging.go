// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
)

// ConfigureSlog installs a request-aware logger as the slog default.
// The returned LevelVar changes its level at runtime.
func ConfigureSlog(output io.Writer, level, format string) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))
	logger := NewLogger(output, lv, format)
	slog.SetDefault(logger)
	return logger, lv
}

// NewLogger builds a logger that stamps each record with the trace, span,
// run and agent ids found in the context. The global default is untouched.
func NewLogger(output io.Writer, level slog.Leveler, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}
	return slog.New(&scopeHandler{next: base})
}

// scopeHandler adds request identifiers the caller did not log explicitly.
type scopeHandler struct {
	next slog.Handler
}

func (h *scopeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *scopeHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		for _, attr := range scopeAttrs(ctx) {
			if attr.Value.String() != "" && !hasAttr(record, attr.Key) {
				record.AddAttrs(attr)
			}
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *scopeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &scopeHandler{next: h.next.WithAttrs(attrs)}
}

func (h *scopeHandler) WithGroup(name string) slog.Handler {
	return &scopeHandler{next: h.next.WithGroup(name)}
}

func scopeAttrs(ctx context.Context) []slog.Attr {
	scope := core.ScopeFrom(ctx)
	attrs := []slog.Attr{
		slog.String("run_id", scope.RunID),
		slog.String("agent_id", scope.AgentID),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func hasAttr(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		found = attr.Key == key
		return !found
	})
	return found
}
