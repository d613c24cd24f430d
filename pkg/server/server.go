package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// ErrServerClosed is returned by Serve and Connect after Close
var ErrServerClosed = errors.New("mcp: server closed")

// Server answers MCP clients from a set of providers. One Server can hold
// many connections; each gets its own session, log level and
// subscriptions.
type Server struct {
	tools      ToolsProvider
	resources  ResourcesProvider
	prompts    PromptsProvider
	completion CompletionProvider

	paginator    *pagination.Manager
	info         protocol.Implementation
	instructions string
	logger       logging.Logger
	sessionOpts  []session.Option
	perSession   []func() []session.Option
	middleware   []transport.Middleware
	rootsChanged func(ctx context.Context, c *Conn)

	mu     sync.RWMutex
	conns  []*Conn
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	queue     chan outbound
	startOnce sync.Once
	wg        sync.WaitGroup
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithTools sets the tools provider
func WithTools(p ToolsProvider) ServerOption {
	return func(s *Server) { s.tools = p }
}

// WithResources sets the resources provider
func WithResources(p ResourcesProvider) ServerOption {
	return func(s *Server) { s.resources = p }
}

// WithPrompts sets the prompts provider
func WithPrompts(p PromptsProvider) ServerOption {
	return func(s *Server) { s.prompts = p }
}

// WithCompletion sets the completion provider
func WithCompletion(p CompletionProvider) ServerOption {
	return func(s *Server) { s.completion = p }
}

// WithPaginator sets the cursor manager used by every list method
func WithPaginator(m *pagination.Manager) ServerOption {
	return func(s *Server) { s.paginator = m }
}

// WithImplementation sets the name and version returned from initialize
func WithImplementation(info protocol.Implementation) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets the usage hints returned from initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

// WithLogger sets the server logger. Sessions log through it too.
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionOptions adds options applied to every session
func WithSessionOptions(opts ...session.Option) ServerOption {
	return func(s *Server) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithSessionOptionsFunc adds options built fresh for each session, such
// as a per-session metrics observer
func WithSessionOptionsFunc(fn func() []session.Option) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.perSession = append(s.perSession, fn)
		}
	}
}

// WithTransportMiddleware wraps every connection's transport
func WithTransportMiddleware(mw ...transport.Middleware) ServerOption {
	return func(s *Server) { s.middleware = append(s.middleware, mw...) }
}

// WithRootsChangedHandler is called when a client reports that its roots
// changed. fn runs on its own goroutine and may call Conn.ListRoots.
func WithRootsChangedHandler(fn func(ctx context.Context, c *Conn)) ServerOption {
	return func(s *Server) { s.rootsChanged = fn }
}

// New creates a server. Without WithPaginator it signs cursors with a
// random key.
func New(opts ...ServerOption) (*Server, error) {
	s := &Server{
		info:   protocol.Implementation{Name: "mcp-session-go", Version: "dev"},
		logger: logging.NewNop(),
		queue:  make(chan outbound, notificationQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.paginator == nil {
		m, err := pagination.NewManager()
		if err != nil {
			return nil, fmt.Errorf("failed to create paginator: %w", err)
		}
		s.paginator = m
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.watchProvider(s.tools, protocol.NotificationToolListChanged)
	s.watchProvider(s.resources, protocol.NotificationResourceListChanged)
	s.watchProvider(s.prompts, protocol.NotificationPromptListChanged)
	return s, nil
}

// Capabilities returns what the server declares in initialize. Each
// provider enables its feature family; listChanged is set for providers
// that report changes.
func (s *Server) Capabilities() protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{Logging: &struct{}{}}
	if s.tools != nil {
		caps.Tools = &protocol.ToolsCapability{ListChanged: notifies(s.tools)}
	}
	if s.resources != nil {
		caps.Resources = &protocol.ResourcesCapability{Subscribe: true, ListChanged: notifies(s.resources)}
	}
	if s.prompts != nil {
		caps.Prompts = &protocol.PromptsCapability{ListChanged: notifies(s.prompts)}
	}
	return caps
}

func notifies(p interface{}) bool {
	_, ok := p.(ChangeNotifier)
	return ok
}

// Serve runs one connection over t and blocks until it ends
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	c, err := s.newConn(t)
	if err != nil {
		return err
	}
	return s.run(ctx, c)
}

// Connect starts a connection over t in the background. ctx bounds the
// connection's lifetime.
func (s *Server) Connect(ctx context.Context, t transport.Transport) (*Conn, error) {
	c, err := s.newConn(t)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.run(ctx, c); err != nil {
			s.logger.WithError(err).Warn("connection ended", logging.String(logging.KeySessionID, c.ID()))
		}
	}()
	return c, nil
}

// Conns returns the open connections in the order they were made
func (s *Server) Conns() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Conn(nil), s.conns...)
}

// Close ends every connection, stops providers started by the server and
// waits for background work to finish
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()

	s.cancel()
	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

func (s *Server) newConn(t transport.Transport) (*Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	s.mu.Unlock()

	s.startBackground()

	opts := []session.Option{
		session.WithLogger(s.logger),
		session.WithImplementation(s.info),
		session.WithServerCapabilities(s.Capabilities()),
		session.WithInstructions(s.instructions),
	}
	opts = append(opts, s.sessionOpts...)
	for _, fn := range s.perSession {
		opts = append(opts, fn()...)
	}
	if len(s.middleware) > 0 {
		t = transport.Apply(t, s.middleware...)
	}

	c := &Conn{
		srv:   s,
		sess:  session.New(t, session.RoleServer, opts...),
		level: protocol.LevelInfo,
		subs:  newSubscriptionSet(),
	}
	c.register()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.sess.Close()
		return nil, ErrServerClosed
	}
	s.conns = append(s.conns, c)
	s.mu.Unlock()

	s.logger.Debug("connection opened", logging.String(logging.KeySessionID, c.ID()))
	return c, nil
}

func (s *Server) run(ctx context.Context, c *Conn) error {
	defer s.remove(c)
	go s.releaseWhenReady(c)
	return c.sess.Run(ctx)
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	for i, other := range s.conns {
		if other == c {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.logger.Debug("connection closed", logging.String(logging.KeySessionID, c.ID()))
}

// Conn is one client connection
type Conn struct {
	srv  *Server
	sess *session.Session
	subs *subscriptionSet
	// held is owned by the delivery goroutine
	held []outbound

	mu    sync.RWMutex
	level protocol.LoggingLevel
}

// ID returns the session id
func (c *Conn) ID() string { return c.sess.ID() }

// Session returns the underlying session
func (c *Conn) Session() *session.Session { return c.sess }

// Done is closed when the connection has ended
func (c *Conn) Done() <-chan struct{} { return c.sess.Done() }

// Close ends the connection
func (c *Conn) Close() error { return c.sess.Close() }

// LogLevel returns the minimum level the client asked for; info until it
// calls logging/setLevel
func (c *Conn) LogLevel() protocol.LoggingLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// Subscriptions returns the URIs this client subscribed to
func (c *Conn) Subscriptions() []Subscription { return c.subs.list() }

// Log sends a notifications/message to this client if its level admits it
func (c *Conn) Log(ctx context.Context, level protocol.LoggingLevel, logger string, data interface{}) error {
	if !level.AtLeast(c.LogLevel()) {
		return nil
	}
	return c.sess.Notify(ctx, protocol.NotificationMessage, &protocol.LoggingMessageParams{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}

// CreateMessage asks the client to sample from its model. It fails with a
// capability error when the client did not declare sampling.
func (c *Conn) CreateMessage(ctx context.Context, params *protocol.CreateMessageParams, opts ...session.CallOption) (*protocol.CreateMessageResult, error) {
	var res protocol.CreateMessageResult
	if err := c.sess.Call(ctx, protocol.MethodCreateMessage, params, &res, opts...); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListRoots asks the client for its roots
func (c *Conn) ListRoots(ctx context.Context) (*protocol.ListRootsResult, error) {
	var res protocol.ListRootsResult
	if err := c.sess.Call(ctx, protocol.MethodListRoots, &protocol.ListRootsParams{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// register installs a handler for every method the providers cover.
// Methods without a provider are left to the session, which answers
// method-not-found.
func (c *Conn) register() {
	s := c.srv
	var methods []string
	if s.tools != nil {
		methods = append(methods, protocol.MethodListTools, protocol.MethodCallTool)
	}
	if s.resources != nil {
		methods = append(methods,
			protocol.MethodListResources,
			protocol.MethodListResourceTemplates,
			protocol.MethodReadResource,
			protocol.MethodSubscribe,
			protocol.MethodUnsubscribe)
	}
	if s.prompts != nil {
		methods = append(methods, protocol.MethodListPrompts, protocol.MethodGetPrompt)
	}
	if s.prompts != nil || s.resources != nil {
		methods = append(methods, protocol.MethodComplete)
	}
	methods = append(methods, protocol.MethodSetLevel)

	for _, m := range methods {
		c.sess.RegisterHandler(m, c.dispatch)
	}

	if s.rootsChanged != nil {
		c.sess.RegisterNotificationSink(protocol.NotificationRootsListChanged,
			func(ctx context.Context, _ string, _ json.RawMessage) {
				go s.rootsChanged(ctx, c)
			})
	}
}

func (c *Conn) dispatch(ctx context.Context, req *session.Request) (interface{}, error) {
	v, err := protocol.DecodeClientRequest(req.Method, req.Params)
	if err != nil {
		return nil, mcperrors.InvalidParams(err.Error(), err)
	}
	ctx = context.WithValue(ctx, connKey{}, c)
	ctx = context.WithValue(ctx, requestKey{}, req)

	s := c.srv
	switch p := v.(type) {
	case *protocol.ListToolsParams:
		return s.listTools(ctx, p)
	case *protocol.CallToolParams:
		return s.callTool(ctx, p)
	case *protocol.ListResourcesParams:
		return s.listResources(ctx, p)
	case *protocol.ListResourceTemplatesParams:
		return s.listResourceTemplates(ctx, p)
	case *protocol.ReadResourceParams:
		return s.readResource(ctx, p)
	case *protocol.SubscribeParams:
		return c.handleSubscribe(ctx, p)
	case *protocol.UnsubscribeParams:
		return c.handleUnsubscribe(ctx, p)
	case *protocol.ListPromptsParams:
		return s.listPrompts(ctx, p)
	case *protocol.GetPromptParams:
		return s.getPrompt(ctx, p)
	case *protocol.CompleteParams:
		return s.complete(ctx, p)
	case *protocol.SetLevelParams:
		return c.setLevel(p)
	default:
		return nil, mcperrors.MethodNotFound(req.Method)
	}
}

func (s *Server) listTools(ctx context.Context, p *protocol.ListToolsParams) (interface{}, error) {
	all, err := s.tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	page, err := pagination.Page(ctx, s.paginator, protocol.MethodListTools, p.Cursor, pagination.SliceEnumerator(all))
	if err != nil {
		return nil, err
	}
	return &protocol.ListToolsResult{
		Tools:           page.Items,
		PaginatedResult: protocol.PaginatedResult{NextCursor: page.NextCursor},
	}, nil
}

// callTool reports tool failures inside the result so the model can see
// them. Protocol errors such as an unknown tool stay errors.
func (s *Server) callTool(ctx context.Context, p *protocol.CallToolParams) (interface{}, error) {
	if p.Name == "" {
		return nil, mcperrors.MissingParameter("name")
	}
	res, err := s.tools.CallTool(ctx, p.Name, p.Arguments)
	if err != nil {
		if _, ok := mcperrors.AsMCPError(err); ok || ctx.Err() != nil {
			return nil, err
		}
		logging.FromContext(ctx).WithError(err).Debug("tool failed", logging.String("tool", p.Name))
		return protocol.NewToolResultError(err.Error()), nil
	}
	if res == nil {
		res = &protocol.CallToolResult{}
	}
	if res.Content == nil {
		res.Content = []protocol.Content{}
	}
	return res, nil
}

func (s *Server) listResources(ctx context.Context, p *protocol.ListResourcesParams) (interface{}, error) {
	all, err := s.resources.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	page, err := pagination.Page(ctx, s.paginator, protocol.MethodListResources, p.Cursor, pagination.SliceEnumerator(all))
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourcesResult{
		Resources:       page.Items,
		PaginatedResult: protocol.PaginatedResult{NextCursor: page.NextCursor},
	}, nil
}

func (s *Server) listResourceTemplates(ctx context.Context, p *protocol.ListResourceTemplatesParams) (interface{}, error) {
	all, err := s.resources.ListResourceTemplates(ctx)
	if err != nil {
		return nil, err
	}
	page, err := pagination.Page(ctx, s.paginator, protocol.MethodListResourceTemplates, p.Cursor, pagination.SliceEnumerator(all))
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourceTemplatesResult{
		ResourceTemplates: page.Items,
		PaginatedResult:   protocol.PaginatedResult{NextCursor: page.NextCursor},
	}, nil
}

func (s *Server) readResource(ctx context.Context, p *protocol.ReadResourceParams) (interface{}, error) {
	if p.URI == "" {
		return nil, mcperrors.MissingParameter("uri")
	}
	contents, err := s.resources.ReadResource(ctx, p.URI)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []protocol.ResourceContents{}
	}
	return &protocol.ReadResourceResult{Contents: contents}, nil
}

func (s *Server) listPrompts(ctx context.Context, p *protocol.ListPromptsParams) (interface{}, error) {
	all, err := s.prompts.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	page, err := pagination.Page(ctx, s.paginator, protocol.MethodListPrompts, p.Cursor, pagination.SliceEnumerator(all))
	if err != nil {
		return nil, err
	}
	return &protocol.ListPromptsResult{
		Prompts:         page.Items,
		PaginatedResult: protocol.PaginatedResult{NextCursor: page.NextCursor},
	}, nil
}

func (s *Server) getPrompt(ctx context.Context, p *protocol.GetPromptParams) (interface{}, error) {
	if p.Name == "" {
		return nil, mcperrors.MissingParameter("name")
	}
	res, err := s.prompts.GetPrompt(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &protocol.GetPromptResult{}
	}
	if res.Messages == nil {
		res.Messages = []protocol.PromptMessage{}
	}
	return res, nil
}

// complete answers with no values when no provider is set
func (s *Server) complete(ctx context.Context, p *protocol.CompleteParams) (interface{}, error) {
	switch p.Ref.Type {
	case protocol.RefPrompt, protocol.RefResource:
	case "":
		return nil, mcperrors.MissingParameter("ref")
	default:
		return nil, mcperrors.InvalidParams(fmt.Sprintf("unknown reference type %q", p.Ref.Type), nil)
	}

	result := &protocol.CompleteResult{}
	if s.completion != nil {
		comp, err := s.completion.Complete(ctx, p.Ref, p.Argument)
		if err != nil {
			return nil, err
		}
		if comp != nil {
			result.Completion = *comp
		}
	}
	result.Completion.Truncate()
	if result.Completion.Values == nil {
		result.Completion.Values = []string{}
	}
	return result, nil
}

func (c *Conn) setLevel(p *protocol.SetLevelParams) (interface{}, error) {
	if !p.Level.Valid() {
		return nil, mcperrors.InvalidParams(fmt.Sprintf("unknown logging level %q", p.Level), nil)
	}
	c.mu.Lock()
	c.level = p.Level
	c.mu.Unlock()
	return &protocol.EmptyResult{}, nil
}

type connKey struct{}

type requestKey struct{}

// ConnFromContext returns the connection a handler is serving
func ConnFromContext(ctx context.Context) *Conn {
	c, _ := ctx.Value(connKey{}).(*Conn)
	return c
}

// RequestFromContext returns the request a handler is serving
func RequestFromContext(ctx context.Context) *session.Request {
	r, _ := ctx.Value(requestKey{}).(*session.Request)
	return r
}

// ReportProgress sends progress for the request a provider is serving. It
// is a no-op outside a request or when the client did not ask for
// progress.
func ReportProgress(ctx context.Context, progress float64, total *float64) error {
	req := RequestFromContext(ctx)
	if req == nil {
		return nil
	}
	return req.ReportProgress(ctx, progress, total)
}
