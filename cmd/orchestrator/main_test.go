package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/kairos-orchestrator/pkg/config"
	"github.com/jllopis/kairos-orchestrator/pkg/errors"
	"github.com/jllopis/kairos-orchestrator/pkg/observer"
)

func mockConfig(t *testing.T, sets ...string) *config.Config {
	t.Helper()
	args := []string{"--set", "llm.provider=mock"}
	for _, s := range sets {
		args = append(args, "--set", s)
	}
	cfg, err := config.LoadWithCLI(args)
	if err != nil {
		t.Fatalf("LoadWithCLI: %v", err)
	}
	return cfg
}

func runCommand(t *testing.T, global globalFlags, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), global, mockConfig(t), args, strings.NewReader(input), &out, io.Discard)
	return out.String(), err
}

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantRest []string
		check    func(t *testing.T, f globalFlags)
		wantErr  bool
	}{
		{
			name:     "config and set",
			args:     []string{"--config", "agent.yaml", "--set=llm.model=llama3", "run", "hi"},
			wantRest: []string{"run", "hi"},
			check: func(t *testing.T, f globalFlags) {
				if f.ConfigPath != "agent.yaml" {
					t.Errorf("config path = %q", f.ConfigPath)
				}
				want := []string{"--config", "agent.yaml", "--set", "llm.model=llama3"}
				if strings.Join(f.ConfigArgs, " ") != strings.Join(want, " ") {
					t.Errorf("config args = %v, want %v", f.ConfigArgs, want)
				}
			},
		},
		{
			name:     "json watch timeout",
			args:     []string{"--json", "--watch", "--timeout", "5s", "chat"},
			wantRest: []string{"chat"},
			check: func(t *testing.T, f globalFlags) {
				if !f.JSON || !f.Watch || f.Timeout != 5*time.Second {
					t.Errorf("unexpected flags %+v", f)
				}
			},
		},
		{
			name:     "double dash",
			args:     []string{"--", "--not-a-flag"},
			wantRest: []string{"--not-a-flag"},
		},
		{name: "missing value", args: []string{"--config"}, wantErr: true},
		{name: "bad timeout", args: []string{"--timeout=soon"}, wantErr: true},
		{name: "unknown flag", args: []string{"--grpc", "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, rest, err := parseGlobalFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(rest, " ") != strings.Join(tt.wantRest, " ") {
				t.Fatalf("rest = %v, want %v", rest, tt.wantRest)
			}
			if tt.check != nil {
				tt.check(t, flags)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	out, err := runCommand(t, globalFlags{}, "", "run", "find", "me", "headphones")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != mockResponse {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunCommandJSON(t *testing.T) {
	out, err := runCommand(t, globalFlags{JSON: true}, "", "run", "find me headphones")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var result runResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if result.Query != "find me headphones" || result.Response != mockResponse {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.RunID == "" || result.PlanID == "" || result.Failed != 0 || result.Steps != 3 {
		t.Fatalf("expected run and plan ids without failures, got %+v", result)
	}
}

func TestRunCommandRequiresQuery(t *testing.T) {
	_, err := runCommand(t, globalFlags{}, "", "run")
	if !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestStreamCommand(t *testing.T) {
	out, err := runCommand(t, globalFlags{}, "", "stream", "find me headphones")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if out != mockResponse+"\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestChatCommand(t *testing.T) {
	input := "find me headphones\n\n:refine shorter please\n:bogus\n:quit\nnever read\n"
	out, err := runCommand(t, globalFlags{}, input, "chat")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.Count(out, mockResponse) != 2 {
		t.Fatalf("expected the answer and the refined answer, got %q", out)
	}
	if !strings.Contains(out, "Additional step based on feedback: shorter please") {
		t.Fatalf("expected refinement output, got %q", out)
	}
	if !strings.Contains(out, "unknown chat command") {
		t.Fatalf("expected unknown command error, got %q", out)
	}
}

func TestToolsCommandJSON(t *testing.T) {
	out, err := runCommand(t, globalFlags{JSON: true}, "", "tools")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	var rows []toolRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	names := map[string]bool{}
	for _, row := range rows {
		names[row.Name] = true
	}
	for _, want := range []string{"web_search", "code_execution", "file_operations"} {
		if !names[want] {
			t.Fatalf("missing tool %s in %v", want, rows)
		}
	}
}

func TestMetricsCommand(t *testing.T) {
	out, err := runCommand(t, globalFlags{JSON: true}, "find me headphones\nfind me a keyboard\n", "metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var m observer.Metrics
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if m.TotalRequests != 2 || m.ToolUsageCounts["web_search"] != 2 || m.SuccessRate != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestMCPListWithoutServers(t *testing.T) {
	out, err := runCommand(t, globalFlags{}, "", "mcp", "list")
	if err != nil {
		t.Fatalf("mcp list: %v", err)
	}
	if !strings.Contains(out, "no mcp servers configured") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCommand(t, globalFlags{}, "", "deploy")
	var cliErr *CLIError
	if !stderrors.As(err, &cliErr) || cliErr.Code != errors.CodeInvalidInput {
		t.Fatalf("expected CLI invalid input error, got %v", err)
	}
}

func TestWatchRequiresConfigFile(t *testing.T) {
	_, err := runCommand(t, globalFlags{Watch: true}, "", "tools")
	if !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestApplyReload(t *testing.T) {
	cfg := mockConfig(t)
	a, err := newApp(context.Background(), cfg, io.Discard)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	next := mockConfig(t,
		"llm.temperature=0.1",
		"llm.max_tokens=256",
		"llm.system_prompt=Be brief.",
		"observer.log_level=debug",
		"planner.reasoning_steps=5",
	)
	a.applyReload(next)

	gcfg := a.controller.Gateway().Config()
	if gcfg.Temperature != 0.1 || gcfg.MaxTokens != 256 || gcfg.SystemPrompt != "Be brief." {
		t.Fatalf("gateway not reloaded: %+v", gcfg)
	}
	if got := a.controller.Observer().LogLevel().String(); got != "DEBUG" {
		t.Fatalf("observer level = %s", got)
	}
	if got := a.controller.Planner().ReasoningSteps(); got != 5 {
		t.Fatalf("reasoning steps = %d", got)
	}
}

func TestHintFor(t *testing.T) {
	err := errors.New(errors.CodeStateConflict, "process not allowed", nil)
	cliErr := hintFor(err)
	if cliErr.Hint == "" {
		t.Fatal("expected a hint for state conflicts")
	}
	var buf bytes.Buffer
	cliErr.PrintError(&buf, true)
	var payload map[string]map[string]string
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if payload["error"]["code"] != string(errors.CodeStateConflict) {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "mock"} {
		p, err := newProvider(config.LLMConfig{Provider: name, Model: "m"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if named, ok := p.(interface{ Name() string }); !ok || named.Name() != name {
			t.Fatalf("%s: unexpected provider %T", name, p)
		}
	}
	if _, err := newProvider(config.LLMConfig{Provider: "gemini"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
