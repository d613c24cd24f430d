package transport

import (
	"context"
	"io"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
)

// PipeTransport is one end of an in-memory duplex channel. It is used to
// connect a client and a server in the same process, mostly in tests.
type PipeTransport struct {
	inbox  chan []byte
	peer   *PipeTransport
	closed chan struct{}
	once   *sync.Once
}

// NewPipe returns two connected transports. Closing either end closes both;
// messages already queued are still delivered.
func NewPipe() (*PipeTransport, *PipeTransport) {
	closed := make(chan struct{})
	once := new(sync.Once)
	a := &PipeTransport{inbox: make(chan []byte, 64), closed: closed, once: once}
	b := &PipeTransport{inbox: make(chan []byte, 64), closed: closed, once: once}
	a.peer, b.peer = b, a
	return a, b
}

// Send queues a copy of data for the peer
func (p *PipeTransport) Send(ctx context.Context, data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case <-p.closed:
		return mcperrors.TransportClosed("pipe")
	default:
	}

	select {
	case p.peer.inbox <- msg:
		return nil
	case <-p.closed:
		return mcperrors.TransportClosed("pipe")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next queued message, or io.EOF after Close once the
// queue is drained
func (p *PipeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.closed:
		select {
		case msg := <-p.inbox:
			return msg, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends
func (p *PipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
