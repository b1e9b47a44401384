package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolResultMetadata contains metadata for tool results
type ToolResultMetadata struct {
	ToolUsed           string              `json:"tool_used"`
	SuggestedNextTools []map[string]string `json:"suggested_next_tools,omitempty"`
}

// createEnhancedResult wraps content and the tool's follow-up suggestions
// into a JSON text result.
func createEnhancedResult(toolName string, content interface{}) (*mcp.CallToolResult, error) {
	type EnhancedResult struct {
		Result   interface{}         `json:"result"`
		Metadata *ToolResultMetadata `json:"_metadata,omitempty"`
	}

	enhanced := EnhancedResult{
		Result: content,
		Metadata: &ToolResultMetadata{
			ToolUsed:           toolName,
			SuggestedNextTools: GetNextToolSuggestions(toolName),
		},
	}

	jsonData, err := json.MarshalIndent(enhanced, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(jsonData),
			},
		},
	}, nil
}
