package protocol

// Prompt is a prompt template offered by the server
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one template argument
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is one message of a rendered prompt
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ListPromptsParams defines parameters for prompts/list
type ListPromptsParams struct {
	PaginatedParams
}

// ListPromptsResult defines the response for prompts/list
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
	PaginatedResult
}

// GetPromptParams defines parameters for prompts/get
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult defines the response for prompts/get
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptListChangedParams accompanies notifications/prompts/list_changed
type PromptListChangedParams struct{}
