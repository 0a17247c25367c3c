// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package kernel

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema map for T's exported fields, for use
// as a NativeFunction's Parameters. Grounded on the teacher's
// functiontool.generateSchema: reflect over struct tags
// (`json:"name"`, `jsonschema:"required,description=..."`), then
// flatten to the {type, properties, required} shape the LLM
// function-calling surface expects rather than a full draft schema
// with $schema/$id/$ref noise.
func SchemaFor[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("kernel: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("kernel: unmarshal schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")

	if m["type"] != "object" {
		return m, nil
	}

	result := map[string]any{"type": "object", "properties": m["properties"]}
	if required := m["required"]; required != nil {
		result["required"] = required
	}
	if addProps, ok := m["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result, nil
}
