// SPDX-License-Identifier: Apache-2.0
package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTemplatesPopulated(t *testing.T) {
	set := Default()
	for name, tmpl := range map[string]string{
		"system":              set.System,
		"planning":            set.Planning,
		"reasoning":           set.Reasoning,
		"code_generation":     set.CodeGeneration,
		"summarization":       set.Summarization,
		"tool_usage":          set.ToolUsage,
		"error_handling":      set.ErrorHandling,
		"web_search_analysis": set.WebSearchAnalysis,
		"chain_of_thought":    set.ChainOfThought,
	} {
		if strings.TrimSpace(tmpl) == "" {
			t.Errorf("template %s is empty", name)
		}
	}
}

func TestParseOverridesOnlyGivenKeys(t *testing.T) {
	set, err := Parse([]byte("system: \"You are terse.\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.System != "You are terse." {
		t.Fatalf("expected override, got %q", set.System)
	}
	if set.Planning != Default().Planning {
		t.Fatal("expected planning template to keep its default")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("system: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("summarization: \"Summarize: {text}\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := Fill(set.Summarization, map[string]string{"text": "abc"}); got != "Summarize: abc" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
