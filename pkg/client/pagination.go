package client

import (
	"context"

	"github.com/ajitpratap0/mcp-session-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ListAllTools follows next cursors until every tool has been fetched
func (c *Client) ListAllTools(ctx context.Context) ([]protocol.Tool, error) {
	return pagination.Collect(ctx, func(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
		res, err := c.ListTools(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return res.Tools, res.NextCursor, nil
	})
}

// ListAllResources follows next cursors until every resource has been
// fetched
func (c *Client) ListAllResources(ctx context.Context) ([]protocol.Resource, error) {
	return pagination.Collect(ctx, func(ctx context.Context, cursor string) ([]protocol.Resource, string, error) {
		res, err := c.ListResources(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return res.Resources, res.NextCursor, nil
	})
}

// ListAllResourceTemplates follows next cursors until every template has
// been fetched
func (c *Client) ListAllResourceTemplates(ctx context.Context) ([]protocol.ResourceTemplate, error) {
	return pagination.Collect(ctx, func(ctx context.Context, cursor string) ([]protocol.ResourceTemplate, string, error) {
		res, err := c.ListResourceTemplates(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return res.ResourceTemplates, res.NextCursor, nil
	})
}

// ListAllPrompts follows next cursors until every prompt has been fetched
func (c *Client) ListAllPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	return pagination.Collect(ctx, func(ctx context.Context, cursor string) ([]protocol.Prompt, string, error) {
		res, err := c.ListPrompts(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return res.Prompts, res.NextCursor, nil
	})
}
