package protocol

import (
	"encoding/json"
	"fmt"
)

// Implementation names and versions an MCP peer
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities is the capability record a client declares. A non-nil
// member advertises the feature family even when empty.
type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Roots        *RootsCapability           `json:"roots,omitempty"`
	Sampling     *struct{}                  `json:"sampling,omitempty"`
}

// RootsCapability refines client roots support
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities is the capability record a server declares
type ServerCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Logging      *struct{}                  `json:"logging,omitempty"`
	Prompts      *PromptsCapability         `json:"prompts,omitempty"`
	Resources    *ResourcesCapability       `json:"resources,omitempty"`
	Tools        *ToolsCapability           `json:"tools,omitempty"`
}

// PromptsCapability refines server prompt support
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability refines server resource support
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ToolsCapability refines server tool support
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is sent by the client to open a session
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's answer to initialize. Its ProtocolVersion
// is authoritative for the session.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// InitializedParams accompanies notifications/initialized
type InitializedParams struct{}

// PingParams is the (empty) payload of ping
type PingParams struct{}

// EmptyResult is returned by methods with no meaningful result
type EmptyResult struct{}

// ProgressToken correlates progress notifications with a request. Like a
// request id it is a string or an integer.
type ProgressToken = RequestID

// Meta is the reserved _meta member of request params
type Meta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
}

// ProgressParams is the payload of notifications/progress
type ProgressParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
}

// CancelledParams is the payload of notifications/cancelled
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// PaginatedParams is embedded by every list request
type PaginatedParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// PaginatedResult is embedded by every list result. An empty NextCursor
// means there are no further pages.
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitempty"`
}

// ExtractMeta reads the _meta member of raw request params, if any
func ExtractMeta(params json.RawMessage) (*Meta, error) {
	if len(params) == 0 {
		return nil, nil
	}
	var holder struct {
		Meta *Meta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &holder); err != nil {
		return nil, fmt.Errorf("failed to read _meta: %w", err)
	}
	return holder.Meta, nil
}

// WithMeta returns params with the _meta member replaced. Params must encode
// to a JSON object (or be empty).
func WithMeta(params json.RawMessage, meta *Meta) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &fields); err != nil {
			return nil, fmt.Errorf("params must be an object to carry _meta: %w", err)
		}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	fields["_meta"] = raw
	return json.Marshal(fields)
}

// LoggingLevel is a syslog severity as used by logging/setLevel and
// notifications/message
type LoggingLevel string

const (
	LevelDebug     LoggingLevel = "debug"
	LevelInfo      LoggingLevel = "info"
	LevelNotice    LoggingLevel = "notice"
	LevelWarning   LoggingLevel = "warning"
	LevelError     LoggingLevel = "error"
	LevelCritical  LoggingLevel = "critical"
	LevelAlert     LoggingLevel = "alert"
	LevelEmergency LoggingLevel = "emergency"
)

var levelSeverity = map[LoggingLevel]int{
	LevelDebug:     0,
	LevelInfo:      1,
	LevelNotice:    2,
	LevelWarning:   3,
	LevelError:     4,
	LevelCritical:  5,
	LevelAlert:     6,
	LevelEmergency: 7,
}

// Valid reports whether l is a known level
func (l LoggingLevel) Valid() bool {
	_, ok := levelSeverity[l]
	return ok
}

// AtLeast reports whether l is as severe as min
func (l LoggingLevel) AtLeast(min LoggingLevel) bool {
	return levelSeverity[l] >= levelSeverity[min]
}

// SetLevelParams is the payload of logging/setLevel
type SetLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageParams is the payload of notifications/message
type LoggingMessageParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   interface{}  `json:"data"`
}
