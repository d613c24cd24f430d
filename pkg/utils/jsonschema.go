package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema reflects the Go type of v into an inline JSON schema
// suitable for a tool's inputSchema. Struct tags drive the result:
// `json` names and omitempty, `jsonschema` for descriptions and constraints.
func GenerateJSONSchema(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{"type":"object"}`), nil
	}

	// ExpandedStruct would look the root up in the definitions, which
	// unnamed types such as struct{} are never added to
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	s := r.Reflect(v)
	s.Version = ""

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// SchemaFor is GenerateJSONSchema for a type parameter
func SchemaFor[T any]() (json.RawMessage, error) {
	return GenerateJSONSchema(new(T))
}

type shallowSchema struct {
	Type       json.RawMessage                  `json:"type,omitempty"`
	Properties map[string]shallowSchemaProperty `json:"properties,omitempty"`
	Required   []string                         `json:"required,omitempty"`
}

type shallowSchemaProperty struct {
	Type json.RawMessage `json:"type,omitempty"`
}

// ValidateAgainstSchema checks data against the top level of an object
// schema: the value must be an object, required members must be present and
// members with a declared primitive type must match it. Nested schemas are
// not descended into.
func ValidateAgainstSchema(data json.RawMessage, schema json.RawMessage) error {
	var s shallowSchema
	if err := json.Unmarshal(schema, &s); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	types := schemaTypes(s.Type)
	if len(types) == 0 {
		return nil
	}
	if !matchesAny(v, types) {
		return fmt.Errorf("expected %s, got %s", strings.Join(types, " or "), jsonTypeOf(v))
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			return fmt.Errorf("missing required property %q", name)
		}
	}

	for name, prop := range s.Properties {
		val, present := obj[name]
		if !present {
			continue
		}
		want := schemaTypes(prop.Type)
		if len(want) > 0 && !matchesAny(val, want) {
			return fmt.Errorf("property %q: expected %s, got %s", name, strings.Join(want, " or "), jsonTypeOf(val))
		}
	}

	return nil
}

// schemaTypes accepts both "type": "x" and "type": ["x", "y"]
func schemaTypes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func matchesAny(v interface{}, types []string) bool {
	got := jsonTypeOf(v)
	for _, t := range types {
		if t == got {
			return true
		}
		if t == "number" && got == "integer" {
			return true
		}
	}
	return false
}

func jsonTypeOf(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		if val == float64(int64(val)) {
			return "integer"
		}
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
