package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// Role is the side of the connection a session plays
type Role int

const (
	RoleClient Role = iota + 1
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unknown"
	}
}

// Phase is the lifecycle state of a session
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler answers an inbound request. The returned value is encoded as the
// result; a returned error becomes the error reply.
type Handler func(ctx context.Context, req *Request) (interface{}, error)

// NotificationSink consumes an inbound notification. Sinks run on the
// receive loop, so notifications reach them in arrival order; a sink that
// blocks stalls the session.
type NotificationSink func(ctx context.Context, method string, params json.RawMessage)

var errSessionClosed = errors.New("session closed")

// Defaults applied by New
const (
	DefaultRequestTimeout        = 30 * time.Second
	DefaultMaxConcurrentHandlers = 64
)

const tracerName = "github.com/ajitpratap0/mcp-session-go/pkg/session"

// Session is one end of an MCP connection. It owns the pending-request
// table, the handler registry and the handshake state; all of them are
// guarded by a single mutex.
type Session struct {
	id        string
	role      Role
	transport transport.Transport
	logger    logging.Logger
	observer  Observer
	tracer    trace.Tracer

	versions       []string
	info           protocol.Implementation
	serverCaps     *protocol.ServerCapabilities
	clientCaps     *protocol.ClientCapabilities
	instructions   string
	requestTimeout time.Duration
	handlerTimeout time.Duration
	maxHandlers    int
	sem            *semaphore.Weighted

	mu       sync.Mutex
	phase    Phase
	pending  *pendingTable
	handlers map[string]Handler
	sinks    map[string][]NotificationSink
	inflight map[protocol.RequestID]*inboundCall
	running  bool

	peerInfo         protocol.Implementation
	peerServerCaps   *protocol.ServerCapabilities
	peerClientCaps   *protocol.ClientCapabilities
	protocolVersion  string
	peerInstructions string

	ctx          context.Context
	cancel       context.CancelCauseFunc
	handlerWG    sync.WaitGroup
	closeOnce    sync.Once
	done         chan struct{}
	ready        chan struct{}
	runDone      chan struct{}
	closeCause   error
	transportErr error
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver reports session events, typically to metrics
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracer sets the tracer used for request and handler spans
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSessionID overrides the generated session id
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithImplementation sets the name and version announced in the handshake
func WithImplementation(info protocol.Implementation) Option {
	return func(s *Session) {
		s.info = info
	}
}

// WithServerCapabilities sets the capabilities a server session declares
func WithServerCapabilities(caps protocol.ServerCapabilities) Option {
	return func(s *Session) {
		s.serverCaps = &caps
	}
}

// WithClientCapabilities sets the capabilities a client session declares
func WithClientCapabilities(caps protocol.ClientCapabilities) Option {
	return func(s *Session) {
		s.clientCaps = &caps
	}
}

// WithInstructions sets the usage hints a server returns from initialize
func WithInstructions(instructions string) Option {
	return func(s *Session) {
		s.instructions = instructions
	}
}

// WithProtocolVersions sets the versions this side speaks, preferred first
func WithProtocolVersions(versions ...string) Option {
	return func(s *Session) {
		if len(versions) > 0 {
			s.versions = append([]string(nil), versions...)
		}
	}
}

// WithRequestTimeout bounds outbound requests. Zero disables the timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.requestTimeout = d
	}
}

// WithHandlerTimeout bounds each inbound handler. Zero disables it.
func WithHandlerTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.handlerTimeout = d
	}
}

// WithMaxConcurrentHandlers caps the handlers running at once. Zero or a
// negative value removes the cap.
func WithMaxConcurrentHandlers(n int) Option {
	return func(s *Session) {
		s.maxHandlers = n
	}
}

// New creates a session over t. Run must be called to start processing
// inbound messages.
func New(t transport.Transport, role Role, opts ...Option) *Session {
	s := &Session{
		id:             uuid.NewString(),
		role:           role,
		transport:      t,
		logger:         logging.NewNop(),
		observer:       nopObserver{},
		tracer:         otel.Tracer(tracerName),
		versions:       append([]string(nil), protocol.SupportedProtocolVersions...),
		info:           protocol.Implementation{Name: "mcp-session-go", Version: "dev"},
		requestTimeout: DefaultRequestTimeout,
		maxHandlers:    DefaultMaxConcurrentHandlers,
		handlers:       make(map[string]Handler),
		sinks:          make(map[string][]NotificationSink),
		inflight:       make(map[protocol.RequestID]*inboundCall),
		done:           make(chan struct{}),
		ready:          make(chan struct{}),
		runDone:        make(chan struct{}),
	}
	s.pending = newPendingTable(&s.mu)

	for _, opt := range opts {
		opt(s)
	}

	if s.maxHandlers > 0 {
		s.sem = semaphore.NewWeighted(int64(s.maxHandlers))
	}
	s.logger = s.logger.WithFields(
		logging.String(logging.KeySessionID, s.id),
		logging.String("role", role.String()),
	)
	s.ctx, s.cancel = context.WithCancelCause(context.Background())

	s.registerBuiltins()
	return s
}

// ID returns the session identifier used in logs and metrics
func (s *Session) ID() string { return s.id }

// Role returns the side this session plays
func (s *Session) Role() Role { return s.role }

// Logger returns the session logger
func (s *Session) Logger() logging.Logger { return s.logger }

// Phase returns the current lifecycle phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Done is closed once the session has shut down
func (s *Session) Done() <-chan struct{} { return s.done }

// Ready is closed once the handshake completes. It stays open for a
// session that closes before reaching PhaseReady.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Err returns the reason the session closed, if it closed abnormally
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCause
}

// Pending returns the number of outbound requests awaiting a reply
func (s *Session) Pending() int { return s.pending.len() }

// ProtocolVersion returns the negotiated protocol version, or "" before
// the handshake
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// PeerInfo returns the implementation the peer announced
func (s *Session) PeerInfo() protocol.Implementation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerInfo
}

// PeerServerCapabilities returns what the server declared. It is nil on a
// server session and before the handshake.
func (s *Session) PeerServerCapabilities() *protocol.ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerServerCaps == nil {
		return nil
	}
	caps := *s.peerServerCaps
	return &caps
}

// PeerClientCapabilities returns what the client declared. It is nil on a
// client session and before the handshake.
func (s *Session) PeerClientCapabilities() *protocol.ClientCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerClientCaps == nil {
		return nil
	}
	caps := *s.peerClientCaps
	return &caps
}

// Instructions returns the server's usage hints from the handshake
func (s *Session) Instructions() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerInstructions
}

// Run processes inbound messages until the transport ends, ctx is done or
// Close is called. It returns after every running handler has returned.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("session is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer close(s.runDone)

	select {
	case <-s.done:
		return nil
	default:
	}

	s.logger.Debug("session started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.readLoop(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.shutdown(nil)
		case <-s.done:
		}
		return nil
	})

	err := g.Wait()
	s.handlerWG.Wait()
	return err
}

// Start runs the session in the background
func (s *Session) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil {
			s.logger.WithError(err).Warn("session stopped")
		}
	}()
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		data, err := s.transport.Receive(ctx)
		if err != nil {
			if transport.IsClosed(err) || ctx.Err() != nil || s.isClosed() {
				s.shutdown(nil)
				return nil
			}
			terr := mcperrors.TransportError("session", "receive", err)
			s.shutdown(terr)
			return terr
		}
		s.handleFrame(ctx, data)
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close shuts the session down. Pending outbound requests fail with a
// connection-lost error and running handlers see their context cancelled.
// Close must not be called from inside a handler.
func (s *Session) Close() error {
	s.shutdown(nil)

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.runDone
	}
	s.handlerWG.Wait()
	return s.transportErr
}

func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.setPhaseLocked(PhaseClosed)
		s.closeCause = cause
		s.mu.Unlock()

		s.cancel(errSessionClosed)
		s.pending.failAll(func(method string) error {
			return mcperrors.ConnectionLost(method, cause)
		})
		s.observer.PendingRequests(0)
		s.transportErr = s.transport.Close()
		close(s.done)

		if cause != nil {
			s.logger.WithError(cause).Warn("session closed")
			return
		}
		s.logger.Debug("session closed")
	})
}

// setPhaseLocked must be called with s.mu held
func (s *Session) setPhaseLocked(p Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	if p == PhaseReady {
		close(s.ready)
	}
	s.observer.PhaseChanged(p)
}

func (s *Session) send(ctx context.Context, msg *protocol.Message, method string) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return mcperrors.WrapError(err, mcperrors.CodeInternalError, "failed to encode message",
			mcperrors.CategoryInternal, mcperrors.SeverityError)
	}
	if err := s.transport.Send(ctx, data); err != nil {
		if mcperrors.IsCategory(err, mcperrors.CategoryTransport) {
			s.shutdown(err)
		}
		return err
	}
	s.observer.MessageSent(msg.Kind(), method)
	return nil
}

func (s *Session) supportsVersion(v string) bool {
	for _, known := range s.versions {
		if known == v {
			return true
		}
	}
	return false
}
