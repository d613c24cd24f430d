package server

import (
	"context"
	"encoding/json"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ToolsProvider serves tools/list and tools/call. The list must be in a
// stable order; it is paged by offset. CallTool reports an unknown name
// with errors.ToolNotFound. Any other non-MCP error is returned to the
// client as a tool result with isError set.
type ToolsProvider interface {
	ListTools(ctx context.Context) ([]protocol.Tool, error)
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*protocol.CallToolResult, error)
}

// ResourcesProvider serves resources/list, resources/templates/list and
// resources/read. ReadResource reports an unknown URI with
// errors.ResourceNotFound.
type ResourcesProvider interface {
	ListResources(ctx context.Context) ([]protocol.Resource, error)
	ListResourceTemplates(ctx context.Context) ([]protocol.ResourceTemplate, error)
	ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContents, error)
}

// PromptsProvider serves prompts/list and prompts/get
type PromptsProvider interface {
	ListPrompts(ctx context.Context) ([]protocol.Prompt, error)
	GetPrompt(ctx context.Context, name string, arguments map[string]string) (*protocol.GetPromptResult, error)
}

// CompletionProvider serves completion/complete. Results longer than
// protocol.MaxCompletionValues are truncated by the server.
type CompletionProvider interface {
	Complete(ctx context.Context, ref protocol.CompletionReference, arg protocol.CompletionArgument) (*protocol.Completion, error)
}

// ChangeKind says what changed in a provider
type ChangeKind int

const (
	// ListChanged means items were added or removed
	ListChanged ChangeKind = iota
	// ContentUpdated means the contents of one resource changed
	ContentUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ListChanged:
		return "list_changed"
	case ContentUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Change is reported by providers that implement ChangeNotifier
type Change struct {
	Kind ChangeKind
	URI  string // set for ContentUpdated
}

// ChangeNotifier is implemented by providers whose contents change at run
// time. The server registers one callback per provider and turns changes
// into list_changed and updated notifications. Providers that implement it
// get the listChanged capability.
type ChangeNotifier interface {
	OnChange(fn func(Change))
}

// Starter is implemented by providers with background work, such as a
// filesystem watcher. The server starts them before the first session and
// cancels ctx on Close.
type Starter interface {
	Start(ctx context.Context) error
}

// changeHooks is embedded by the in-memory providers
type changeHooks struct {
	fns []func(Change)
}

func (h *changeHooks) add(fn func(Change)) {
	if fn != nil {
		h.fns = append(h.fns, fn)
	}
}

// snapshot must be taken under the owner's lock and fired after it is
// released
func (h *changeHooks) snapshot() []func(Change) {
	return append([]func(Change){}, h.fns...)
}

func fire(fns []func(Change), c Change) {
	for _, fn := range fns {
		fn(c)
	}
}
