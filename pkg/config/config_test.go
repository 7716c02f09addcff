package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jllopis/kairos-orchestrator/pkg/errors"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "ollama" || cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 1024 {
		t.Errorf("unexpected llm defaults %+v", cfg.LLM)
	}
	if cfg.LLM.SystemPrompt != "You are a helpful AI assistant." {
		t.Errorf("unexpected system prompt %q", cfg.LLM.SystemPrompt)
	}
	if cfg.Memory.WindowSize != 10 || cfg.Memory.RelevantItems != 3 {
		t.Errorf("unexpected memory defaults %+v", cfg.Memory)
	}
	if cfg.Planner.ReasoningSteps != 3 || cfg.Planner.Audit != "memory" {
		t.Errorf("unexpected planner defaults %+v", cfg.Planner)
	}
	if cfg.Tools.Timeout != 30*time.Second || cfg.API.Timeout != 10*time.Second {
		t.Errorf("unexpected timeouts tools=%v api=%v", cfg.Tools.Timeout, cfg.API.Timeout)
	}
	want := []string{"web_search", "code_execution", "file_operations"}
	if !reflect.DeepEqual(cfg.Agent.AvailableTools, want) {
		t.Errorf("unexpected tools %v", cfg.Agent.AvailableTools)
	}
	if !cfg.Observer.EnableMetrics || cfg.Telemetry.Exporter != "none" {
		t.Errorf("unexpected observer/telemetry defaults %+v %+v", cfg.Observer, cfg.Telemetry)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
llm:
  provider: mock
  model: test-model
  max_tokens: 256
memory:
  window_size: 4
tools:
  timeout: 2s
  mcp:
    - name: files
      transport: stdio
      command: mcp-files
api:
  endpoints:
    weather: https://weather.example.com
  api_keys:
    weather: secret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" || cfg.LLM.Model != "test-model" || cfg.LLM.MaxTokens != 256 {
		t.Errorf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("defaults must survive partial files, got temperature %v", cfg.LLM.Temperature)
	}
	if cfg.Memory.WindowSize != 4 || cfg.Tools.Timeout != 2*time.Second {
		t.Errorf("unexpected memory/tools %+v %+v", cfg.Memory, cfg.Tools)
	}
	if len(cfg.Tools.MCP) != 1 || cfg.Tools.MCP[0].Command != "mcp-files" {
		t.Errorf("unexpected mcp servers %+v", cfg.Tools.MCP)
	}
	if cfg.API.Endpoints["weather"] != "https://weather.example.com" || cfg.API.APIKeys["weather"] != "secret" {
		t.Errorf("unexpected api %+v", cfg.API)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("KAIROS_LLM_MODEL", "env-model")
	t.Setenv("KAIROS_LLM_MAX_TOKENS", "64")
	t.Setenv("KAIROS_OBSERVER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Model != "env-model" || cfg.LLM.MaxTokens != 64 {
		t.Errorf("unexpected llm from env %+v", cfg.LLM)
	}
	if cfg.Observer.LogLevel != "debug" {
		t.Errorf("expected observer level debug, got %q", cfg.Observer.LogLevel)
	}
}

func TestLoadWithProfile(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "config.yaml", `
llm:
  model: "llama3.1"
log:
  level: "info"
`)
	writeConfig(t, dir, "config.dev.yaml", `
log:
  level: "debug"
`)

	cfg, err := Load(base)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("profile must not apply without KAIROS_PROFILE, got %q", cfg.Log.Level)
	}

	t.Setenv("KAIROS_PROFILE", "dev")
	cfg, err = Load(base)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.LLM.Model != "llama3.1" {
		t.Fatalf("expected dev profile merged over base, got %+v %+v", cfg.Log, cfg.LLM)
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
llm:
  model: model-a
`)
	t.Setenv("KAIROS_LLM_MODEL", "model-env")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "llm.model=model-cli",
		"--set", "llm.temperature=0.2",
		"--set", "planner.reasoning_steps=5",
		"--set", `api.endpoints={"weather":"https://weather.example.com"}`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.LLM.Model != "model-cli" {
		t.Fatalf("expected cli override, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 || cfg.Planner.ReasoningSteps != 5 {
		t.Fatalf("unexpected overrides %+v %+v", cfg.LLM, cfg.Planner)
	}
	if cfg.API.Endpoints["weather"] != "https://weather.example.com" {
		t.Fatalf("unexpected endpoints %v", cfg.API.Endpoints)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	if _, _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
llm:
  provider: anthropic
  temperature: 3
memory:
  window_size: 0
planner:
  audit: sqlite
`)
	_, err := Load(path)
	if !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	var verrs ValidationErrors
	if !stderrors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors in chain, got %T", err)
	}
	fields := make(map[string]bool)
	for _, fe := range verrs {
		fields[fe.Field] = true
	}
	for _, f := range []string{
		"Config.LLM.Provider",
		"Config.LLM.Temperature",
		"Config.Memory.WindowSize",
		"Config.Planner.AuditDSN",
	} {
		if !fields[f] {
			t.Errorf("expected validation error for %s, got %v", f, verrs)
		}
	}
}

func TestProfilePath(t *testing.T) {
	if got := ProfilePath("/etc/kairos/config.yaml", "prod"); got != "/etc/kairos/config.prod.yaml" {
		t.Fatalf("unexpected profile path %q", got)
	}
}
