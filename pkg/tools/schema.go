// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var jsonTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
}

// JSONSchema returns the JSON Schema object describing the tool input.
// Parameters with an unknown type accept any value.
func (d Definition) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := make([]string, 0)
	for name, p := range d.Parameters {
		prop := map[string]any{}
		if jsonTypes[p.Type] {
			prop["type"] = p.Type
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// compileSchema compiles the definition's schema for input validation.
func compileSchema(def Definition) (*jsonschema.Schema, error) {
	doc, err := toJSONValue(def.JSONSchema())
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// toJSONValue round-trips v through encoding/json so the validator sees
// plain JSON values. Numbers decode as json.Number and keep their precision.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// withDefaults returns a copy of input with missing parameters set to their defaults.
func withDefaults(def Definition, input Input) Input {
	out := make(Input, len(input)+len(def.Parameters))
	for k, v := range input {
		out[k] = v
	}
	for name, p := range def.Parameters {
		if _, ok := out[name]; !ok && p.Default != nil {
			out[name] = p.Default
		}
	}
	return out
}
