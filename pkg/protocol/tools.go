package protocol

import "encoding/json"

// Tool describes a callable tool offered by a server
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsParams defines parameters for tools/list
type ListToolsParams struct {
	PaginatedParams
}

// ListToolsResult defines the response for tools/list
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	PaginatedResult
}

// CallToolParams defines parameters for tools/call
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the outcome of a tool invocation. Failures inside the
// tool are reported with IsError set, not as protocol errors.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewToolResultText returns a successful single-text result
func NewToolResultText(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{NewTextContent(text)}}
}

// NewToolResultError returns a tool-level failure
func NewToolResultError(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{NewTextContent(text)}, IsError: true}
}

// ToolListChangedParams accompanies notifications/tools/list_changed
type ToolListChangedParams struct{}
