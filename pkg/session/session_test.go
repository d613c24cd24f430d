package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
	"github.com/ajitpratap0/mcp-session-go/pkg/utils"
)

type countingObserver struct {
	nopObserver
	stale  atomic.Int32
	decode atomic.Int32
}

func (o *countingObserver) StaleResponse()      { o.stale.Add(1) }
func (o *countingObserver) DecodeFailed(string) { o.decode.Add(1) }

var toolServerCaps = protocol.ServerCapabilities{
	Tools:     &protocol.ToolsCapability{},
	Resources: &protocol.ResourcesCapability{Subscribe: true},
}

func newPair(t *testing.T, serverOpts, clientOpts []Option) (*Session, *Session) {
	t.Helper()
	a, b := transport.NewPipe()

	srv := New(a, RoleServer, append([]Option{WithServerCapabilities(toolServerCaps)}, serverOpts...)...)
	cli := New(b, RoleClient, clientOpts...)
	srv.Start(context.Background())
	cli.Start(context.Background())

	t.Cleanup(func() {
		_ = cli.Close()
		_ = srv.Close()
	})
	return srv, cli
}

func initializedPair(t *testing.T, serverOpts, clientOpts []Option) (*Session, *Session) {
	t.Helper()
	srv, cli := newPair(t, serverOpts, clientOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Initialize(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.Phase() == PhaseReady }, time.Second, 5*time.Millisecond)
	return srv, cli
}

func readMessage(t *testing.T, peer transport.Transport) *protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := peer.Receive(ctx)
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func writeRaw(t *testing.T, peer transport.Transport, raw string) {
	t.Helper()
	require.NoError(t, peer.Send(context.Background(), []byte(raw)))
}

func writeMessage(t *testing.T, peer transport.Transport, msg *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, peer.Send(context.Background(), data))
}

// newServerWithRawClient returns a running server session and the raw end
// a test drives by hand
func newServerWithRawClient(t *testing.T, opts ...Option) (*Session, *transport.PipeTransport) {
	t.Helper()
	a, b := transport.NewPipe()
	srv := New(a, RoleServer, append([]Option{WithServerCapabilities(toolServerCaps)}, opts...)...)
	srv.Start(context.Background())
	t.Cleanup(func() { _ = srv.Close() })
	return srv, b
}

func rawHandshake(t *testing.T, srv *Session, peer transport.Transport) {
	t.Helper()
	writeRaw(t, peer, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"raw","version":"0"}}}`)
	resp := readMessage(t, peer)
	require.Nil(t, resp.Error)
	writeRaw(t, peer, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.Eventually(t, func() bool { return srv.Phase() == PhaseReady }, time.Second, 5*time.Millisecond)
}

// newClientWithRawServer returns an initialized client session whose peer
// is answered by hand
func newClientWithRawServer(t *testing.T, opts ...Option) (*Session, *transport.PipeTransport) {
	t.Helper()
	a, b := transport.NewPipe()
	cli := New(a, RoleClient, opts...)
	cli.Start(context.Background())
	t.Cleanup(func() { _ = cli.Close() })

	errCh := make(chan error, 1)
	go func() {
		_, err := cli.Initialize(context.Background())
		errCh <- err
	}()

	req := readMessage(t, b)
	require.Equal(t, protocol.MethodInitialize, req.Method)
	resp, err := protocol.NewResponse(req.RequestID(), &protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    toolServerCaps,
		ServerInfo:      protocol.Implementation{Name: "raw", Version: "0"},
	})
	require.NoError(t, err)
	writeMessage(t, b, resp)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Initialize did not return")
	}

	note := readMessage(t, b)
	require.Equal(t, protocol.NotificationInitialized, note.Method)
	return cli, b
}

func TestHandshake(t *testing.T) {
	srv, cli := newPair(t,
		[]Option{
			WithImplementation(protocol.Implementation{Name: "test-server", Version: "1.0.0"}),
			WithInstructions("call echo"),
		},
		[]Option{
			WithImplementation(protocol.Implementation{Name: "test-client", Version: "0.1.0"}),
			WithClientCapabilities(protocol.ClientCapabilities{Sampling: &struct{}{}}),
		},
	)

	assert.Equal(t, PhaseUninitialized, cli.Phase())

	res, err := cli.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, protocol.ProtocolVersion, res.ProtocolVersion)
	assert.Equal(t, "test-server", res.ServerInfo.Name)
	assert.Equal(t, "call echo", res.Instructions)
	require.NotNil(t, res.Capabilities.Tools)

	assert.Equal(t, PhaseReady, cli.Phase())
	assert.Equal(t, protocol.ProtocolVersion, cli.ProtocolVersion())
	assert.Equal(t, "call echo", cli.Instructions())
	require.NotNil(t, cli.PeerServerCapabilities())

	require.Eventually(t, func() bool { return srv.Phase() == PhaseReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "test-client", srv.PeerInfo().Name)
	require.NotNil(t, srv.PeerClientCapabilities())
	assert.NotNil(t, srv.PeerClientCapabilities().Sampling)

	_, err = cli.Initialize(context.Background())
	assert.True(t, mcperrors.IsProtocolViolation(err))
}

func TestReadyClosesWithHandshake(t *testing.T) {
	srv, cli := newPair(t, nil, nil)

	select {
	case <-srv.Ready():
		t.Fatal("server ready before initialize")
	default:
	}

	_, err := cli.Initialize(context.Background())
	require.NoError(t, err)

	select {
	case <-cli.Ready():
	default:
		t.Fatal("client not ready after Initialize")
	}
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server never became ready")
	}
	assert.Equal(t, PhaseReady, srv.Phase())
}

func TestHandshakeServerPicksSupportedVersion(t *testing.T) {
	_, cli := newPair(t, nil, []Option{WithProtocolVersions("2099-01-01", protocol.ProtocolVersion)})

	res, err := cli.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.ProtocolVersion, res.ProtocolVersion)
	assert.Equal(t, protocol.ProtocolVersion, cli.ProtocolVersion())
}

func TestHandshakeVersionMismatchClosesSession(t *testing.T) {
	_, cli := newPair(t, []Option{WithProtocolVersions("2099-01-01")}, nil)

	_, err := cli.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeVersionMismatch))

	select {
	case <-cli.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not close after a version mismatch")
	}
	assert.Equal(t, PhaseClosed, cli.Phase())
}

func TestRequestsBeforeInitialization(t *testing.T) {
	srv, peer := newServerWithRawClient(t)

	// ping is always allowed
	writeRaw(t, peer, `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	resp := readMessage(t, peer)
	assert.Nil(t, resp.Error)
	assert.Equal(t, protocol.StringID("p"), resp.RequestID())

	writeRaw(t, peer, `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	resp = readMessage(t, peer)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ServerNotReady, resp.Error.Code)
	assert.Equal(t, protocol.IntID(7), resp.RequestID())
	assert.Equal(t, PhaseUninitialized, srv.Phase())
}

func TestOutboundGateBeforeInitialization(t *testing.T) {
	_, cli := newPair(t, nil, nil)

	err := cli.Call(context.Background(), protocol.MethodListTools, nil, nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeServerNotReady))

	err = cli.Call(context.Background(), protocol.MethodInitialize, nil, nil)
	assert.True(t, mcperrors.IsProtocolViolation(err))
}

func TestSecondInitializeIsRejected(t *testing.T) {
	srv, peer := newServerWithRawClient(t)
	rawHandshake(t, srv, peer)

	writeRaw(t, peer, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"raw","version":"0"}}}`)
	resp := readMessage(t, peer)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidRequest, resp.Error.Code)
	assert.Equal(t, PhaseReady, srv.Phase())
}

func TestUnknownMethod(t *testing.T) {
	srv, peer := newServerWithRawClient(t)
	rawHandshake(t, srv, peer)

	writeRaw(t, peer, `{"jsonrpc":"2.0","id":5,"method":"does/not/exist"}`)
	resp := readMessage(t, peer)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound, resp.Error.Code)
	assert.Equal(t, protocol.IntID(5), resp.RequestID())
}

func TestInitializeThenListTools(t *testing.T) {
	srv, cli := newPair(t, nil, nil)
	srv.RegisterHandler(protocol.MethodListTools, func(ctx context.Context, req *Request) (interface{}, error) {
		return &protocol.ListToolsResult{
			Tools: []protocol.Tool{{Name: "echo", InputSchema: json.RawMessage(`{"type":"object"}`)}},
		}, nil
	})

	_, err := cli.Initialize(context.Background())
	require.NoError(t, err)

	var res protocol.ListToolsResult
	require.NoError(t, cli.Call(context.Background(), protocol.MethodListTools, &protocol.ListToolsParams{}, &res))
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "echo", res.Tools[0].Name)
	assert.Empty(t, res.NextCursor)
}

func TestCallUnknownToolIsMethodNotFound(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		var p protocol.CallToolParams
		if err := req.BindParams(&p); err != nil {
			return nil, err
		}
		return nil, mcperrors.ToolNotFound(p.Name)
	})

	err := cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "nope"}, nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeMethodNotFound))
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryRemote))
	assert.Contains(t, err.Error(), "nope")
}

func TestCapabilityGate(t *testing.T) {
	_, cli := initializedPair(t, nil, nil)

	err := cli.Call(context.Background(), protocol.MethodListPrompts, nil, nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryCapability))
}

func TestExactlyOneTerminalReply(t *testing.T) {
	srv, peer := newServerWithRawClient(t)
	rawHandshake(t, srv, peer)

	dup := make(chan error, 1)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		_ = req.Respond(protocol.NewToolResultText("first"), nil)
		dup <- req.Respond(protocol.NewToolResultText("second"), nil)
		return nil, nil
	})

	writeRaw(t, peer, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"x"}}`)
	resp := readMessage(t, peer)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), "first")

	err := <-dup
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeDuplicateResponse))

	// the next frame on the wire is the ping reply, not a second answer to 10
	writeRaw(t, peer, `{"jsonrpc":"2.0","id":11,"method":"ping"}`)
	resp = readMessage(t, peer)
	assert.Equal(t, protocol.IntID(11), resp.RequestID())
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		panic("boom")
	})

	err := cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "x"}, nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInternalError))

	// the session survives
	require.NoError(t, cli.Call(context.Background(), protocol.MethodPing, nil, nil))
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		var p protocol.CallToolParams
		if err := req.BindParams(&p); err != nil {
			return nil, err
		}
		return protocol.NewToolResultText(p.Name), nil
	})

	const calls = 32
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tool-%d", i)
			var res protocol.CallToolResult
			err := cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: name}, &res)
			if assert.NoError(t, err) && assert.Len(t, res.Content, 1) {
				assert.Equal(t, name, res.Content[0].Text)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, cli.Pending())
}

func TestTimeoutRemovesPendingAndSendsCancel(t *testing.T) {
	obs := &countingObserver{}
	cli, peer := newClientWithRawServer(t, WithObserver(obs))

	err := cli.Call(context.Background(), protocol.MethodPing, nil, nil, WithTimeout(30*time.Millisecond))
	require.Error(t, err)
	assert.True(t, mcperrors.IsTimeout(err))
	assert.Equal(t, 0, cli.Pending())

	req := readMessage(t, peer)
	require.Equal(t, protocol.MethodPing, req.Method)

	note := readMessage(t, peer)
	require.Equal(t, protocol.NotificationCancelled, note.Method)
	var cancelled protocol.CancelledParams
	require.NoError(t, json.Unmarshal(note.Params, &cancelled))
	assert.Equal(t, req.RequestID(), cancelled.RequestID)

	// a reply after the timeout is a stale correlation
	resp, err := protocol.NewResponse(req.RequestID(), &protocol.EmptyResult{})
	require.NoError(t, err)
	writeMessage(t, peer, resp)
	require.Eventually(t, func() bool { return obs.stale.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseReady, cli.Phase())
}

func TestStaleReplyIsIgnored(t *testing.T) {
	obs := &countingObserver{}
	cli, peer := newClientWithRawServer(t, WithObserver(obs))

	writeRaw(t, peer, `{"jsonrpc":"2.0","id":999,"result":{}}`)
	writeRaw(t, peer, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`)
	require.Eventually(t, func() bool { return obs.stale.Load() == 2 }, time.Second, 5*time.Millisecond)

	p, err := cli.Begin(context.Background(), protocol.MethodPing, nil)
	require.NoError(t, err)
	req := readMessage(t, peer)
	resp, err := protocol.NewResponse(req.RequestID(), &protocol.EmptyResult{})
	require.NoError(t, err)
	writeMessage(t, peer, resp)
	assert.NoError(t, p.Wait(context.Background(), nil))
}

func TestUndecodableFrameIsDropped(t *testing.T) {
	obs := &countingObserver{}
	srv, peer := newServerWithRawClient(t, WithObserver(obs))

	writeRaw(t, peer, `not json`)
	writeRaw(t, peer, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	writeRaw(t, peer, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)

	resp := readMessage(t, peer)
	assert.Equal(t, protocol.IntID(2), resp.RequestID())
	assert.Equal(t, int32(2), obs.decode.Load())
	assert.NotEqual(t, PhaseClosed, srv.Phase())
}

func TestLateCancelIsNoop(t *testing.T) {
	_, cli := initializedPair(t, nil, nil)

	p, err := cli.Begin(context.Background(), protocol.MethodPing, nil)
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background(), nil))

	assert.NoError(t, p.Cancel("too late"))
	assert.NoError(t, cli.CancelRequest(protocol.IntID(12345), "never existed"))
	assert.NoError(t, p.Wait(context.Background(), nil))
}

func TestInitializeCannotBeCancelled(t *testing.T) {
	a, peer := transport.NewPipe()
	cli := New(a, RoleClient)
	cli.Start(context.Background())
	t.Cleanup(func() { _ = cli.Close() })

	errCh := make(chan error, 1)
	go func() {
		_, err := cli.Initialize(context.Background())
		errCh <- err
	}()

	req := readMessage(t, peer)
	require.Equal(t, protocol.MethodInitialize, req.Method)

	err := cli.CancelRequest(req.RequestID(), "impatient")
	assert.True(t, mcperrors.IsProtocolViolation(err))

	resp, err := protocol.NewResponse(req.RequestID(), &protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		ServerInfo:      protocol.Implementation{Name: "raw", Version: "0"},
	})
	require.NoError(t, err)
	writeMessage(t, peer, resp)
	require.NoError(t, <-errCh)
}

func TestInitializeContextEndDoesNotSendCancel(t *testing.T) {
	a, peer := transport.NewPipe()
	cli := New(a, RoleClient)
	cli.Start(context.Background())
	t.Cleanup(func() { _ = cli.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := cli.Initialize(ctx)
	assert.True(t, mcperrors.IsCancelled(err))
	assert.Equal(t, PhaseUninitialized, cli.Phase())

	req := readMessage(t, peer)
	require.Equal(t, protocol.MethodInitialize, req.Method)

	// only the ping below follows; no notifications/cancelled was sent
	go func() { _ = cli.Call(context.Background(), protocol.MethodPing, nil, nil, WithTimeout(time.Second)) }()
	next := readMessage(t, peer)
	assert.Equal(t, protocol.MethodPing, next.Method)
}

func TestPeerCancellationReachesHandler(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)

	started := make(chan struct{})
	causes := make(chan error, 1)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		close(started)
		<-ctx.Done()
		causes <- context.Cause(ctx)
		return nil, ctx.Err()
	})

	p, err := cli.Begin(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "slow"})
	require.NoError(t, err)
	<-started

	require.NoError(t, p.Cancel("user abort"))
	err = p.Wait(context.Background(), nil)
	assert.True(t, mcperrors.IsCancelled(err))

	select {
	case cause := <-causes:
		assert.True(t, mcperrors.IsCancelled(cause))
	case <-time.After(time.Second):
		t.Fatal("handler was not cancelled")
	}
}

func TestCallerContextCancellation(t *testing.T) {
	cli, peer := newClientWithRawServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- cli.Call(ctx, protocol.MethodCallTool, &protocol.CallToolParams{Name: "slow"}, nil)
	}()

	req := readMessage(t, peer)
	require.Equal(t, protocol.MethodCallTool, req.Method)
	cancel()

	err := <-errCh
	assert.True(t, mcperrors.IsCancelled(err))

	note := readMessage(t, peer)
	assert.Equal(t, protocol.NotificationCancelled, note.Method)
}

func TestProgress(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)

	tokens := make(chan bool, 1)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		_, ok := req.ProgressToken()
		tokens <- ok
		total := 2.0
		if err := req.ReportProgress(ctx, 1, &total); err != nil {
			return nil, err
		}
		if err := req.ReportProgress(ctx, 2, &total); err != nil {
			return nil, err
		}
		return protocol.NewToolResultText("done"), nil
	})

	var (
		mu  sync.Mutex
		got []float64
	)
	err := cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "long"}, nil,
		WithProgress(func(p protocol.ProgressParams) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, p.Progress)
			assert.NotNil(t, p.Total)
		}))
	require.NoError(t, err)
	assert.True(t, <-tokens)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{1, 2}, got)
}

func TestReportProgressWithoutTokenIsNoop(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)

	errs := make(chan error, 1)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		errs <- req.ReportProgress(ctx, 1, nil)
		return protocol.NewToolResultText("ok"), nil
	})

	require.NoError(t, cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "x"}, nil))
	assert.NoError(t, <-errs)
}

func TestNotificationsArriveInOrder(t *testing.T) {
	srv, cli := initializedPair(t, nil, nil)

	var (
		mu   sync.Mutex
		uris []string
	)
	cli.RegisterNotificationSink(protocol.NotificationResourceUpdated, func(ctx context.Context, method string, params json.RawMessage) {
		var p protocol.ResourceUpdatedParams
		if json.Unmarshal(params, &p) == nil {
			mu.Lock()
			uris = append(uris, p.URI)
			mu.Unlock()
		}
	})

	const n = 50
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		uri := fmt.Sprintf("mem://item/%d", i)
		want = append(want, uri)
		require.NoError(t, srv.Notify(context.Background(), protocol.NotificationResourceUpdated, &protocol.ResourceUpdatedParams{URI: uri}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(uris) == n
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, uris)
}

func TestServerNotificationNeedsOwnCapability(t *testing.T) {
	srv, _ := initializedPair(t, nil, nil)

	err := srv.Notify(context.Background(), protocol.NotificationPromptListChanged, nil)
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryCapability))
}

func TestCloseFailsPendingRequests(t *testing.T) {
	cli, peer := newClientWithRawServer(t)

	p, err := cli.Begin(context.Background(), protocol.MethodPing, nil, WithTimeout(0))
	require.NoError(t, err)
	_ = readMessage(t, peer)

	require.NoError(t, cli.Close())

	err = p.Wait(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeConnectionLost))
	assert.Equal(t, PhaseClosed, cli.Phase())

	err = cli.Call(context.Background(), protocol.MethodPing, nil, nil)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeConnectionLost))
}

func TestPeerDisconnectClosesSession(t *testing.T) {
	cli, peer := newClientWithRawServer(t)
	require.NoError(t, peer.Close())

	select {
	case <-cli.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not notice the closed transport")
	}
}

func TestHandlerConcurrencyLimit(t *testing.T) {
	srv, cli := initializedPair(t, []Option{WithMaxConcurrentHandlers(2)}, nil)

	var running, peak atomic.Int32
	release := make(chan struct{})
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return protocol.NewToolResultText("ok"), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "x"}, nil))
		}()
	}

	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestHandlerTimeout(t *testing.T) {
	srv, cli := initializedPair(t, []Option{WithHandlerTimeout(20 * time.Millisecond)}, nil)
	srv.RegisterHandler(protocol.MethodCallTool, func(ctx context.Context, req *Request) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	err := cli.Call(context.Background(), protocol.MethodCallTool, &protocol.CallToolParams{Name: "x"}, nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeOperationTimeout))
}

func TestCloseLeavesNoGoroutines(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t)
	detector.Start()

	a, b := transport.NewPipe()
	srv := New(a, RoleServer, WithServerCapabilities(toolServerCaps))
	cli := New(b, RoleClient)
	srv.Start(context.Background())
	cli.Start(context.Background())

	_, err := cli.Initialize(context.Background())
	require.NoError(t, err)
	require.NoError(t, cli.Call(context.Background(), protocol.MethodPing, nil, nil))

	require.NoError(t, cli.Close())
	require.NoError(t, srv.Close())

	detector.Check()
}
