// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads orchestrator settings from defaults, YAML files,
// KAIROS_ environment variables and command-line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KAIROS_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Agent     AgentConfig     `koanf:"agent"`
	Memory    MemoryConfig    `koanf:"memory"`
	Planner   PlannerConfig   `koanf:"planner"`
	Tools     ToolsConfig     `koanf:"tools"`
	API       APIConfig       `koanf:"api"`
	Observer  ObserverConfig  `koanf:"observer"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

type LLMConfig struct {
	Provider         string  `koanf:"provider" validate:"oneof=ollama openai mock"`
	Model            string  `koanf:"model" validate:"required"`
	BaseURL          string  `koanf:"base_url" validate:"omitempty,url"`
	APIKey           string  `koanf:"api_key"`
	Temperature      float64 `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int     `koanf:"max_tokens" validate:"gt=0"`
	SystemPrompt     string  `koanf:"system_prompt"`
	PresencePenalty  float64 `koanf:"presence_penalty" validate:"gte=-2,lte=2"`
	FrequencyPenalty float64 `koanf:"frequency_penalty" validate:"gte=-2,lte=2"`
	Stream           bool    `koanf:"stream"`
	MaxAttempts      int     `koanf:"max_attempts" validate:"gte=1"`
}

type AgentConfig struct {
	AvailableTools []string `koanf:"available_tools"`
	MaxIterations  int      `koanf:"max_iterations" validate:"gte=3"`
	Debug          bool     `koanf:"debug"`
	PromptsFile    string   `koanf:"prompts_file"`
}

type MemoryConfig struct {
	WindowSize    int    `koanf:"window_size" validate:"gte=1"`
	RelevantItems int    `koanf:"relevant_items" validate:"gte=1"`
	Retriever     string `koanf:"retriever" validate:"oneof=recency similarity"`
}

type PlannerConfig struct {
	ReasoningSteps int    `koanf:"reasoning_steps" validate:"gte=1"`
	Audit          string `koanf:"audit" validate:"oneof=none memory sqlite"`
	AuditDSN       string `koanf:"audit_dsn" validate:"required_if=Audit sqlite"`
}

type ToolsConfig struct {
	Timeout time.Duration     `koanf:"timeout" validate:"gte=0"`
	MCP     []MCPServerConfig `koanf:"mcp" validate:"dive"`
}

// MCPServerConfig describes an MCP server whose tools join the registry.
type MCPServerConfig struct {
	Name      string   `koanf:"name" validate:"required"`
	Transport string   `koanf:"transport" validate:"oneof=stdio http"`
	Command   string   `koanf:"command" validate:"required_if=Transport stdio"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url" validate:"required_if=Transport http,omitempty,url"`
}

type APIConfig struct {
	Endpoints   map[string]string `koanf:"endpoints" validate:"dive,url"`
	APIKeys     map[string]string `koanf:"api_keys"`
	Timeout     time.Duration     `koanf:"timeout" validate:"gte=0"`
	RateLimit   float64           `koanf:"rate_limit" validate:"gte=0"`
	Burst       int               `koanf:"burst" validate:"gte=0"`
	MaxAttempts int               `koanf:"max_attempts" validate:"gte=1"`
}

type ObserverConfig struct {
	EnableMetrics bool   `koanf:"enable_metrics"`
	EnableLogging bool   `koanf:"enable_logging"`
	LogToConsole  bool   `koanf:"log_to_console"`
	LogLevel      string `koanf:"log_level" validate:"oneof=debug info warn error"`
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint       string `koanf:"otlp_endpoint" validate:"required_if=Exporter otlp"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds" validate:"gte=0"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":          "ollama",
	"llm.model":             "qwen2.5-coder:7b-instruct-q5_K_M",
	"llm.temperature":       0.7,
	"llm.max_tokens":        1024,
	"llm.system_prompt":     "You are a helpful AI assistant.",
	"llm.presence_penalty":  0.0,
	"llm.frequency_penalty": 0.0,
	"llm.stream":            false,
	"llm.max_attempts":      3,

	"agent.available_tools": []string{"web_search", "code_execution", "file_operations"},
	"agent.max_iterations":  10,
	"agent.debug":           false,

	"memory.window_size":    10,
	"memory.relevant_items": 3,
	"memory.retriever":      "recency",

	"planner.reasoning_steps": 3,
	"planner.audit":           "memory",

	"tools.timeout": "30s",

	"api.timeout":      "10s",
	"api.rate_limit":   0.0,
	"api.burst":        1,
	"api.max_attempts": 3,

	"observer.enable_metrics": true,
	"observer.enable_logging": true,
	"observer.log_to_console": true,
	"observer.log_level":      "info",

	"telemetry.exporter": "none",
}

// Load reads the configuration. Sources are applied in order: defaults, the
// YAML file at path, its profile file when KAIROS_PROFILE is set, and the
// KAIROS_ environment. The result is validated.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadWithCLI is Load with "--config <path>" and repeated "--set key=value"
// arguments. Set values win over every other source.
func LoadWithCLI(args []string) (*Config, error) {
	path, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(path, overrides)
}

func load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if profile := os.Getenv(EnvPrefix + "PROFILE"); profile != "" {
			profilePath := ProfilePath(path, profile)
			if _, err := os.Stat(profilePath); err == nil {
				if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("load %s: %w", profilePath, err)
				}
			}
		}
	}

	// KAIROS_LLM_MAX_TOKENS -> llm.max_tokens
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps an environment variable to a config key. The first underscore
// separates the section from the field name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "profile" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

// ProfilePath returns the profile variant of path: config.yaml -> config.dev.yaml.
func ProfilePath(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

func parseCLIOverrides(args []string) (string, map[string]any, error) {
	var path string
	overrides := make(map[string]any)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-config":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("%s requires a value", args[i])
			}
			i++
			path = args[i]
		case "--set", "-set":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("%s requires a value", args[i])
			}
			i++
			key, raw, ok := strings.Cut(args[i], "=")
			if !ok || strings.TrimSpace(key) == "" {
				return "", nil, fmt.Errorf("invalid --set value %q, want key=value", args[i])
			}
			overrides[strings.TrimSpace(key)] = parseValue(raw)
		}
	}
	return path, overrides, nil
}

// parseValue decodes JSON literals and keeps anything else as a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
