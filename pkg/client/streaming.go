package client

import (
	"context"
	"sync"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
)

// ProgressUpdateHandler receives the progress a server reports for a call
type ProgressUpdateHandler func(progress float64, total *float64)

// progressBuffer bounds the updates queued for a slow handler. Further
// updates are dropped until it catches up.
const progressBuffer = 32

// CallToolStreaming invokes a tool and hands every progress notification to
// updateHandler. The handler runs on its own goroutine, in order, and has
// returned for every delivered update by the time CallToolStreaming
// returns.
func (c *Client) CallToolStreaming(ctx context.Context, name string, arguments interface{}, updateHandler ProgressUpdateHandler, opts ...session.CallOption) (*protocol.CallToolResult, error) {
	if updateHandler == nil {
		return c.CallTool(ctx, name, arguments, opts...)
	}

	updates := make(chan protocol.ProgressParams, progressBuffer)
	var (
		mu     sync.Mutex
		closed bool
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := range updates {
			updateHandler(p.Progress, p.Total)
		}
	}()

	// the progress callback runs on the receive loop and must not block
	onProgress := func(p protocol.ProgressParams) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case updates <- p:
		default:
			c.logger.Debug("dropping progress update for slow handler")
		}
	}

	res, err := c.CallTool(ctx, name, arguments, append(opts, session.WithProgress(onProgress))...)

	mu.Lock()
	closed = true
	close(updates)
	mu.Unlock()
	wg.Wait()

	return res, err
}
