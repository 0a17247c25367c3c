// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package mcpclient

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// convertSchema normalizes the SDK's typed input schema into a plain map,
// grounded on the teacher's mcptoolset.convertSchema marshal/unmarshal
// round-trip.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// joinTexts collapses a call_tool result's text content blocks into one
// string, per the agent loop's expectation of a textified tool result
// (spec §4.4 step 2).
func joinTexts(texts []string) string {
	return strings.Join(texts, "\n")
}
