// SPDX-License-Identifier: Apache-2.0
// Package prompts holds the prompt templates used by the planner and the
// controller. Templates use {key} placeholders filled with textutil.FillTemplate.
package prompts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// Set is a complete collection of templates.
type Set struct {
	System            string `yaml:"system"`
	Planning          string `yaml:"planning"`
	Reasoning         string `yaml:"reasoning"`
	CodeGeneration    string `yaml:"code_generation"`
	Summarization     string `yaml:"summarization"`
	ToolUsage         string `yaml:"tool_usage"`
	ErrorHandling     string `yaml:"error_handling"`
	WebSearchAnalysis string `yaml:"web_search_analysis"`
	ChainOfThought    string `yaml:"chain_of_thought"`
}

// Default returns the built-in templates.
func Default() Set {
	return Set{
		System: `You are an AI assistant designed to be helpful, harmless, and honest.
Your goal is to provide accurate information and assistance to the user.
You should respond to queries with relevant, concise, and helpful information.`,

		Planning: `Given the user's goal: "{goal}"
Create a detailed step-by-step plan to accomplish this goal efficiently.
Each step should be specific and actionable.
Include any necessary tools, resources, or prerequisites for each step.`,

		Reasoning: `Let's think through this problem step-by-step:
Problem: {problem}

1. What are the key components of this problem?
2. What information do we already have?
3. What information do we need to find?
4. What techniques or approaches could help solve this?
5. Let's work through the solution methodically.

Write exactly {steps} short thoughts, one per line.`,

		CodeGeneration: "I'll write {language} code to accomplish the following task:\nTask: {task}\n\n" +
			"Let me break this down:\n1. First, I'll understand the requirements\n" +
			"2. Then, I'll choose the appropriate approach\n" +
			"3. Finally, I'll implement the solution with clean, well-commented code\n\n" +
			"Here's the implementation:\n```{language}\n// Code implementation will go here\n```",

		Summarization: `I'll provide a concise summary of the following information:
Information: {text}

Key points:
1. 
2. 
3.

Summary: `,

		ToolUsage: `I need to use the "{toolName}" tool to accomplish this task.
Task: {task}

The tool requires the following parameters:
{parameters}

I'll execute this tool with the appropriate inputs to get the information needed.`,

		ErrorHandling: `I encountered an error while executing the task.
Error: {error}

Let me analyze what went wrong:
1. The error indicates: ...
2. Possible causes include: ...
3. To resolve this, I will: ...`,

		WebSearchAnalysis: `Based on the search results for "{query}", here is my analysis:

Search Results:
{results}

Key findings:
1. 
2. 
3.

Conclusion: `,

		ChainOfThought: `To solve this problem, I need to think step-by-step.
Problem: {problem}

Step 1: ...
Step 2: ...
Step 3: ...

Therefore, the answer is: ...`,
	}
}

// Parse decodes YAML overrides on top of the defaults. Keys absent from data
// keep their default template.
func Parse(data []byte) (Set, error) {
	set := Default()
	if len(data) == 0 {
		return set, nil
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Set{}, fmt.Errorf("parse prompts: %w", err)
	}
	return set, nil
}

// LoadFile reads template overrides from a YAML file.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read prompts: %w", err)
	}
	return Parse(data)
}

// Fill renders template with values.
func Fill(template string, values map[string]string) string {
	return textutil.FillTemplate(template, values)
}
