package server

import (
	"context"
	"fmt"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// PromptFunc renders a prompt from its arguments
type PromptFunc func(ctx context.Context, arguments map[string]string) (*protocol.GetPromptResult, error)

type registeredPrompt struct {
	prompt protocol.Prompt
	fn     PromptFunc
}

// PromptRegistry is an in-memory PromptsProvider
type PromptRegistry struct {
	mu      sync.RWMutex
	order   []string
	prompts map[string]*registeredPrompt
	hooks   changeHooks
}

// NewPromptRegistry creates an empty registry
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*registeredPrompt)}
}

// Register adds or replaces a prompt
func (r *PromptRegistry) Register(prompt protocol.Prompt, fn PromptFunc) error {
	if prompt.Name == "" {
		return fmt.Errorf("prompt name is required")
	}
	if fn == nil {
		return fmt.Errorf("prompt %q has no handler", prompt.Name)
	}

	r.mu.Lock()
	if _, exists := r.prompts[prompt.Name]; !exists {
		r.order = append(r.order, prompt.Name)
	}
	r.prompts[prompt.Name] = &registeredPrompt{prompt: prompt, fn: fn}
	hooks := r.hooks.snapshot()
	r.mu.Unlock()

	fire(hooks, Change{Kind: ListChanged})
	return nil
}

// RegisterText adds a prompt that renders to a single user message. The
// arguments are only described; the text is returned as is.
func (r *PromptRegistry) RegisterText(prompt protocol.Prompt, text string) error {
	return r.Register(prompt, func(context.Context, map[string]string) (*protocol.GetPromptResult, error) {
		return &protocol.GetPromptResult{
			Description: prompt.Description,
			Messages: []protocol.PromptMessage{
				{Role: protocol.RoleUser, Content: protocol.NewTextContent(text)},
			},
		}, nil
	})
}

// Remove deletes a prompt and reports whether it existed
func (r *PromptRegistry) Remove(name string) bool {
	r.mu.Lock()
	if _, ok := r.prompts[name]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.prompts, name)
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

// ListPrompts returns the prompts in registration order
func (r *PromptRegistry) ListPrompts(context.Context) ([]protocol.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Prompt, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.prompts[name].prompt)
	}
	return out, nil
}

// GetPrompt checks required arguments and renders the prompt
func (r *PromptRegistry) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*protocol.GetPromptResult, error) {
	r.mu.RLock()
	p, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.PromptNotFound(name)
	}

	for _, arg := range p.prompt.Arguments {
		if _, present := arguments[arg.Name]; arg.Required && !present {
			return nil, mcperrors.MissingParameter(arg.Name)
		}
	}
	return p.fn(ctx, arguments)
}

// OnChange registers fn for prompt additions and removals
func (r *PromptRegistry) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.add(fn)
}
