package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/utils"
)

// ToolFunc runs a tool with its raw arguments
type ToolFunc func(ctx context.Context, arguments json.RawMessage) (*protocol.CallToolResult, error)

type registeredTool struct {
	tool protocol.Tool
	fn   ToolFunc
}

// ToolRegistry is an in-memory ToolsProvider. Tools are listed in
// registration order and arguments are checked against each tool's input
// schema before the tool runs.
type ToolRegistry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*registeredTool
	hooks changeHooks
}

// NewToolRegistry creates an empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*registeredTool)}
}

// Register adds or replaces a tool. A missing input schema accepts any
// object.
func (r *ToolRegistry) Register(tool protocol.Tool, fn ToolFunc) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}
	if len(tool.InputSchema) == 0 {
		tool.InputSchema = json.RawMessage(`{"type":"object"}`)
	}

	r.mu.Lock()
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = &registeredTool{tool: tool, fn: fn}
	hooks := r.hooks.snapshot()
	r.mu.Unlock()

	fire(hooks, Change{Kind: ListChanged})
	return nil
}

// AddTool registers a tool whose arguments decode into A. The input schema
// is reflected from A.
func AddTool[A any](r *ToolRegistry, name, description string, fn func(ctx context.Context, args A) (*protocol.CallToolResult, error)) error {
	schema, err := utils.SchemaFor[A]()
	if err != nil {
		return fmt.Errorf("failed to reflect schema for tool %q: %w", name, err)
	}

	return r.Register(protocol.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, arguments json.RawMessage) (*protocol.CallToolResult, error) {
		var args A
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, mcperrors.InvalidParams(fmt.Sprintf("invalid arguments for tool %q", name), err)
			}
		}
		return fn(ctx, args)
	})
}

// Remove deletes a tool and reports whether it existed
func (r *ToolRegistry) Remove(name string) bool {
	r.mu.Lock()
	if _, ok := r.tools[name]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	hooks := r.hooks.snapshot()
	r.mu.Unlock()

	fire(hooks, Change{Kind: ListChanged})
	return true
}

// ListTools returns the tools in registration order
func (r *ToolRegistry) ListTools(context.Context) ([]protocol.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out, nil
}

// CallTool validates the arguments and runs the named tool
func (r *ToolRegistry) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*protocol.CallToolResult, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.ToolNotFound(name)
	}

	if err := utils.ValidateAgainstSchema(arguments, t.tool.InputSchema); err != nil {
		return nil, mcperrors.InvalidParams(fmt.Sprintf("invalid arguments for tool %q", name), err)
	}
	return t.fn(ctx, arguments)
}

// OnChange registers fn for tool additions and removals
func (r *ToolRegistry) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.add(fn)
}
