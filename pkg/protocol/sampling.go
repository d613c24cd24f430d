package protocol

import "encoding/json"

// SamplingMessage is one turn of a sampling conversation
type SamplingMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ModelHint names a preferred model family
type ModelHint struct {
	Name string `json:"name,omitempty"`
}

// ModelPreferences lets a server weigh cost, speed and intelligence when the
// client picks a model. Priorities range over 0..1.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         *float64    `json:"costPriority,omitempty"`
	SpeedPriority        *float64    `json:"speedPriority,omitempty"`
	IntelligencePriority *float64    `json:"intelligencePriority,omitempty"`
}

// Values of CreateMessageParams.IncludeContext
const (
	IncludeContextNone       = "none"
	IncludeContextThisServer = "thisServer"
	IncludeContextAllServers = "allServers"
)

// CreateMessageParams defines parameters for sampling/createMessage
type CreateMessageParams struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	IncludeContext   string            `json:"includeContext,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        int               `json:"maxTokens"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
	Metadata         json.RawMessage   `json:"metadata,omitempty"`
}

// Stop reasons reported in CreateMessageResult
const (
	StopReasonEndTurn      = "endTurn"
	StopReasonStopSequence = "stopSequence"
	StopReasonMaxTokens    = "maxTokens"
)

// CreateMessageResult defines the response for sampling/createMessage
type CreateMessageResult struct {
	Role       Role    `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model"`
	StopReason string  `json:"stopReason,omitempty"`
}

// Root is a filesystem or URI root the client exposes to the server
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsParams defines parameters for roots/list
type ListRootsParams struct{}

// ListRootsResult defines the response for roots/list
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

// RootsListChangedParams accompanies notifications/roots/list_changed
type RootsListChangedParams struct{}
