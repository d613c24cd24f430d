package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajitpratap0/mcp-session-go/pkg/session"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// Config enables the observability features for a set of sessions
type Config struct {
	EnableTracing bool
	TracingConfig TracingConfig

	EnableMetrics bool
	MetricsConfig MetricsConfig
}

// Observability bundles the tracing and metrics providers shared by every
// session of a process
type Observability struct {
	tracer  *TracingProvider
	metrics *Metrics
}

// New creates the enabled providers
func New(config Config) (*Observability, error) {
	o := &Observability{}

	if config.EnableTracing {
		t, err := NewTracingProvider(config.TracingConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create tracing provider: %w", err)
		}
		o.tracer = t
	}

	if config.EnableMetrics {
		m, err := NewMetrics(config.MetricsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		o.metrics = m
	}

	return o, nil
}

// Tracing returns the tracing provider, nil when disabled
func (o *Observability) Tracing() *TracingProvider { return o.tracer }

// Metrics returns the metrics provider, nil when disabled
func (o *Observability) Metrics() *Metrics { return o.metrics }

// SessionOptions returns the options that connect a new session to the
// enabled providers. Call it once per session.
func (o *Observability) SessionOptions() []session.Option {
	var opts []session.Option
	if o.tracer != nil {
		opts = append(opts, session.WithTracer(o.tracer.Tracer()))
	}
	if o.metrics != nil {
		opts = append(opts, session.WithObserver(o.metrics.Observer()))
	}
	return opts
}

// Middleware counts transport bytes and failures. It is a pass-through
// when metrics are disabled.
func (o *Observability) Middleware() transport.Middleware {
	if o.metrics == nil {
		return transport.MiddlewareFunc(func(t transport.Transport) transport.Transport { return t })
	}
	return o.metrics.TransportMiddleware()
}

// Shutdown flushes spans and stops the metrics endpoint
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error
	if o.tracer != nil {
		if err := o.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	if o.metrics != nil {
		if err := o.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TransportMiddleware records bytes sent and received
func (m *Metrics) TransportMiddleware() transport.Middleware {
	return transport.NewHooksMiddleware(transport.Hooks{
		OnSend: func(_ context.Context, data []byte, err error, _ time.Duration) {
			m.recordTransfer("send", len(data), err)
		},
		OnReceive: func(ctx context.Context, data []byte, err error) {
			// end of stream and caller cancellation are not failures
			if err != nil && (transport.IsClosed(err) || ctx.Err() != nil) {
				return
			}
			m.recordTransfer("receive", len(data), err)
		},
	})
}
