package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

func startPair(t *testing.T, serverOpts, clientOpts []session.Option) (*session.Session, *session.Session) {
	t.Helper()
	a, b := transport.NewPipe()

	srv := session.New(a, session.RoleServer, append([]session.Option{
		session.WithServerCapabilities(protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{}}),
	}, serverOpts...)...)
	cli := session.New(b, session.RoleClient, clientOpts...)
	srv.Start(context.Background())
	cli.Start(context.Background())
	t.Cleanup(func() {
		_ = cli.Close()
		_ = srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Initialize(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Phase() == session.PhaseReady }, time.Second, 5*time.Millisecond)
	return srv, cli
}

func TestMetricsFollowSessions(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{ServiceName: "test"})
	require.NoError(t, err)

	srv, cli := startPair(t,
		[]session.Option{session.WithObserver(m.Observer())},
		[]session.Option{session.WithObserver(m.Observer())},
	)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessions.WithLabelValues("ready")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Call(ctx, protocol.MethodPing, nil, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("request", protocol.MethodPing)))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.messagesReceived.WithLabelValues("request", protocol.MethodPing)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesReceived.WithLabelValues("request", protocol.MethodInitialize)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pendingRequests))
	assert.Positive(t, testutil.CollectAndCount(m.callDuration))
	assert.Positive(t, testutil.CollectAndCount(m.handlerDuration))

	require.NoError(t, cli.Close())
	require.NoError(t, srv.Close())
	for _, phase := range []string{"initializing", "ready", "closed"} {
		assert.Equal(t, 0.0, testutil.ToFloat64(m.sessions.WithLabelValues(phase)), phase)
	}
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Namespace: "acme"})
	require.NoError(t, err)
	m.staleResponses.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acme_session_stale_responses_total 1")
}

func TestMetricsServer(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{MetricsAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx))
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))
}

func TestObserverPendingUsesDeltas(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)

	a, b := m.Observer(), m.Observer()
	a.PendingRequests(3)
	b.PendingRequests(2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.pendingRequests))

	a.PendingRequests(1)
	b.PendingRequests(0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pendingRequests))
}

func TestTransportMiddlewareCountsBytes(t *testing.T) {
	o, err := New(Config{EnableMetrics: true})
	require.NoError(t, err)

	a, b := transport.NewPipe()
	wrapped := transport.Apply(a, o.Middleware())
	defer wrapped.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		data, err := b.Receive(ctx)
		if err == nil {
			_ = b.Send(ctx, data)
		}
	}()

	frame := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	require.NoError(t, wrapped.Send(ctx, frame))
	_, err = wrapped.Receive(ctx)
	require.NoError(t, err)

	m := o.Metrics()
	assert.Equal(t, float64(len(frame)), testutil.ToFloat64(m.transportBytes.WithLabelValues("send")))
	assert.Equal(t, float64(len(frame)), testutil.ToFloat64(m.transportBytes.WithLabelValues("receive")))

	require.NoError(t, b.Close())
	_, err = wrapped.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.transportErrors.WithLabelValues("receive")))
}

func TestTracingRecordsSessionSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	o, err := New(Config{
		EnableTracing: true,
		TracingConfig: TracingConfig{Exporter: exporter},
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	_, cli := startPair(t, o.SessionOptions(), o.SessionOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Call(ctx, protocol.MethodPing, nil, nil))

	require.Eventually(t, func() bool {
		_ = o.Tracing().ForceFlush(ctx)
		names := spanNames(exporter)
		return names["mcp.call ping"] && names["mcp.handle ping"]
	}, time.Second, 10*time.Millisecond)

	assert.True(t, spanNames(exporter)["mcp.call initialize"])
}

func TestMethodSamplerDropsListedMethods(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracingProvider(TracingConfig{
		Exporter:    exporter,
		SkipMethods: []string{protocol.MethodPing},
	})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, cli := startPair(t,
		[]session.Option{session.WithTracer(tp.Tracer())},
		[]session.Option{session.WithTracer(tp.Tracer())},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Call(ctx, protocol.MethodPing, nil, nil))
	require.NoError(t, tp.ForceFlush(ctx))

	for name := range spanNames(exporter) {
		assert.False(t, strings.HasSuffix(name, " ping"), name)
	}
	assert.True(t, spanNames(exporter)["mcp.call initialize"])
}

func TestUnknownExporterType(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "zipkin"})
	assert.Error(t, err)
}

func TestDisabledObservability(t *testing.T) {
	o, err := New(Config{})
	require.NoError(t, err)

	assert.Nil(t, o.Tracing())
	assert.Nil(t, o.Metrics())
	assert.Empty(t, o.SessionOptions())

	a, _ := transport.NewPipe()
	defer a.Close()
	assert.Same(t, transport.Transport(a), o.Middleware().Wrap(a))
	assert.NoError(t, o.Shutdown(context.Background()))
}

func spanNames(exporter *tracetest.InMemoryExporter) map[string]bool {
	names := make(map[string]bool)
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	return names
}
