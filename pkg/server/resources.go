package server

import (
	"context"
	"fmt"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ReadFunc produces the current contents of a resource
type ReadFunc func(ctx context.Context, uri string) ([]protocol.ResourceContents, error)

type registeredResource struct {
	resource protocol.Resource
	read     ReadFunc
}

// MemoryResources is an in-memory ResourcesProvider. Resources are listed
// in registration order.
type MemoryResources struct {
	mu        sync.RWMutex
	order     []string
	resources map[string]*registeredResource
	templates []protocol.ResourceTemplate
	hooks     changeHooks
}

// NewMemoryResources creates an empty provider
func NewMemoryResources() *MemoryResources {
	return &MemoryResources{resources: make(map[string]*registeredResource)}
}

// Add registers a resource backed by read. Adding an existing URI replaces
// it and counts as a content update.
func (m *MemoryResources) Add(resource protocol.Resource, read ReadFunc) error {
	if resource.URI == "" {
		return fmt.Errorf("resource uri is required")
	}
	if read == nil {
		return fmt.Errorf("resource %q has no reader", resource.URI)
	}

	m.mu.Lock()
	_, exists := m.resources[resource.URI]
	if !exists {
		m.order = append(m.order, resource.URI)
	}
	m.resources[resource.URI] = &registeredResource{resource: resource, read: read}
	hooks := m.hooks.snapshot()
	m.mu.Unlock()

	if exists {
		fire(hooks, Change{Kind: ContentUpdated, URI: resource.URI})
	} else {
		fire(hooks, Change{Kind: ListChanged})
	}
	return nil
}

// SetText registers or replaces a text resource
func (m *MemoryResources) SetText(resource protocol.Resource, text string) error {
	contents := protocol.ResourceContents{URI: resource.URI, MimeType: resource.MimeType, Text: text}
	return m.Add(resource, func(context.Context, string) ([]protocol.ResourceContents, error) {
		return []protocol.ResourceContents{contents}, nil
	})
}

// Touch reports that the contents behind uri changed
func (m *MemoryResources) Touch(uri string) {
	m.mu.RLock()
	_, ok := m.resources[uri]
	hooks := m.hooks.snapshot()
	m.mu.RUnlock()

	if ok {
		fire(hooks, Change{Kind: ContentUpdated, URI: uri})
	}
}

// Remove deletes a resource and reports whether it existed
func (m *MemoryResources) Remove(uri string) bool {
	m.mu.Lock()
	if _, ok := m.resources[uri]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.resources, uri)
	for i, u := range m.order {
		if u == uri {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	hooks := m.hooks.snapshot()
	m.mu.Unlock()

	fire(hooks, Change{Kind: ListChanged})
	return true
}

// AddTemplate registers a resource template
func (m *MemoryResources) AddTemplate(tmpl protocol.ResourceTemplate) {
	m.mu.Lock()
	m.templates = append(m.templates, tmpl)
	hooks := m.hooks.snapshot()
	m.mu.Unlock()

	fire(hooks, Change{Kind: ListChanged})
}

// ListResources returns the resources in registration order
func (m *MemoryResources) ListResources(context.Context) ([]protocol.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]protocol.Resource, 0, len(m.order))
	for _, uri := range m.order {
		out = append(out, m.resources[uri].resource)
	}
	return out, nil
}

// ListResourceTemplates returns the templates in registration order
func (m *MemoryResources) ListResourceTemplates(context.Context) ([]protocol.ResourceTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]protocol.ResourceTemplate{}, m.templates...), nil
}

// ReadResource returns the contents of uri
func (m *MemoryResources) ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
	m.mu.RLock()
	r, ok := m.resources[uri]
	m.mu.RUnlock()
	if !ok {
		return nil, mcperrors.ResourceNotFound(uri)
	}
	return r.read(ctx, uri)
}

// OnChange registers fn for list and content changes
func (m *MemoryResources) OnChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks.add(fn)
}
