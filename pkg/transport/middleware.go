package transport

import (
	"context"
	"time"

	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
)

// Middleware wraps a transport to add behavior such as logging or metrics
type Middleware interface {
	Wrap(transport Transport) Transport
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Transport) Transport

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(t Transport) Transport {
	return f(t)
}

// ChainMiddleware chains middleware so that the first one is outermost
func ChainMiddleware(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(transport Transport) Transport {
		for i := len(middleware) - 1; i >= 0; i-- {
			transport = middleware[i].Wrap(transport)
		}
		return transport
	})
}

// Apply wraps t with the given middleware
func Apply(t Transport, middleware ...Middleware) Transport {
	return ChainMiddleware(middleware...).Wrap(t)
}

// Hooks observes traffic on a transport. Nil members are skipped.
type Hooks struct {
	OnSend    func(ctx context.Context, data []byte, err error, elapsed time.Duration)
	OnReceive func(ctx context.Context, data []byte, err error)
}

// NewHooksMiddleware returns middleware that reports every Send and Receive
func NewHooksMiddleware(h Hooks) Middleware {
	return MiddlewareFunc(func(next Transport) Transport {
		return &hookedTransport{next: next, hooks: h}
	})
}

type hookedTransport struct {
	next  Transport
	hooks Hooks
}

func (t *hookedTransport) Send(ctx context.Context, data []byte) error {
	start := time.Now()
	err := t.next.Send(ctx, data)
	if t.hooks.OnSend != nil {
		t.hooks.OnSend(ctx, data, err, time.Since(start))
	}
	return err
}

func (t *hookedTransport) Receive(ctx context.Context) ([]byte, error) {
	data, err := t.next.Receive(ctx)
	if t.hooks.OnReceive != nil {
		t.hooks.OnReceive(ctx, data, err)
	}
	return data, err
}

func (t *hookedTransport) Close() error {
	return t.next.Close()
}

// NewLoggingMiddleware logs every frame at debug level and transport
// failures at warn
func NewLoggingMiddleware(logger logging.Logger) Middleware {
	return NewHooksMiddleware(Hooks{
		OnSend: func(ctx context.Context, data []byte, err error, elapsed time.Duration) {
			l := logger.WithContext(ctx)
			if err != nil {
				l.WithError(err).Warn("transport send failed", logging.Int("bytes", len(data)))
				return
			}
			l.Debug("transport send", logging.Int("bytes", len(data)), logging.Duration("elapsed", elapsed))
		},
		OnReceive: func(ctx context.Context, data []byte, err error) {
			l := logger.WithContext(ctx)
			if err != nil {
				if !IsClosed(err) && ctx.Err() == nil {
					l.WithError(err).Warn("transport receive failed")
				}
				return
			}
			l.Debug("transport receive", logging.Int("bytes", len(data)))
		},
	})
}
