package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// SamplingHandler answers sampling/createMessage requests from the server
type SamplingHandler interface {
	CreateMessage(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)
}

// SamplingHandlerFunc adapts a function to SamplingHandler
type SamplingHandlerFunc func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)

// CreateMessage calls f
func (f SamplingHandlerFunc) CreateMessage(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
	return f(ctx, params)
}

// RootsProvider answers roots/list requests from the server
type RootsProvider interface {
	ListRoots(ctx context.Context) ([]protocol.Root, error)
}

// ResourceUpdatedCallback is called for notifications/resources/updated
type ResourceUpdatedCallback func(uri string)

// ListChangedCallback is called for the tools, resources and prompts
// list_changed notifications with the notification's method
type ListChangedCallback func(method string)

// LogCallback is called for notifications/message
type LogCallback func(msg protocol.LoggingMessageParams)

// Client is the client side of an MCP connection. It wraps a client
// session with typed calls for every client request.
//
// Callbacks run on the session's receive loop. A callback that calls back
// into the client must do so from another goroutine.
type Client struct {
	sess   *session.Session
	logger logging.Logger

	sampling SamplingHandler
	roots    RootsProvider
	static   *staticRoots

	mu            sync.RWMutex
	onUpdated     ResourceUpdatedCallback
	onListChanged ListChangedCallback
	onLog         LogCallback
	initResult    *protocol.InitializeResult
}

// ClientOption configures a Client
type ClientOption func(*clientConfig)

type clientConfig struct {
	info        protocol.Implementation
	logger      logging.Logger
	sampling    SamplingHandler
	roots       RootsProvider
	static      *staticRoots
	sessionOpts []session.Option
	middleware  []transport.Middleware
	experiment  map[string]json.RawMessage

	onUpdated     ResourceUpdatedCallback
	onListChanged ListChangedCallback
	onLog         LogCallback
}

// WithName sets the client name announced in the handshake
func WithName(name string) ClientOption {
	return func(c *clientConfig) {
		c.info.Name = name
	}
}

// WithVersion sets the client version announced in the handshake
func WithVersion(version string) ClientOption {
	return func(c *clientConfig) {
		c.info.Version = version
	}
}

// WithLogger sets the client and session logger
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSamplingHandler declares the sampling capability and serves
// sampling/createMessage with h
func WithSamplingHandler(h SamplingHandler) ClientOption {
	return func(c *clientConfig) {
		c.sampling = h
	}
}

// WithRootsProvider declares the roots capability and serves roots/list
// with p
func WithRootsProvider(p RootsProvider) ClientOption {
	return func(c *clientConfig) {
		c.roots = p
		c.static = nil
	}
}

// WithRoots serves a fixed list of roots that SetRoots can replace later
func WithRoots(roots ...protocol.Root) ClientOption {
	return func(c *clientConfig) {
		c.static = &staticRoots{roots: append([]protocol.Root(nil), roots...)}
		c.roots = c.static
	}
}

// WithExperimentalCapability adds an entry to the experimental capabilities
func WithExperimentalCapability(name string, value json.RawMessage) ClientOption {
	return func(c *clientConfig) {
		if c.experiment == nil {
			c.experiment = make(map[string]json.RawMessage)
		}
		c.experiment[name] = value
	}
}

// WithSessionOptions passes options through to the underlying session
func WithSessionOptions(opts ...session.Option) ClientOption {
	return func(c *clientConfig) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// WithTransportMiddleware wraps the transport before the session uses it
func WithTransportMiddleware(middleware ...transport.Middleware) ClientOption {
	return func(c *clientConfig) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithResourceUpdatedCallback sets the callback for resource updates
func WithResourceUpdatedCallback(fn ResourceUpdatedCallback) ClientOption {
	return func(c *clientConfig) {
		c.onUpdated = fn
	}
}

// WithListChangedCallback sets the callback for list_changed notifications
func WithListChangedCallback(fn ListChangedCallback) ClientOption {
	return func(c *clientConfig) {
		c.onListChanged = fn
	}
}

// WithLogCallback sets the callback for server log messages
func WithLogCallback(fn LogCallback) ClientOption {
	return func(c *clientConfig) {
		c.onLog = fn
	}
}

// New creates a client over t. Connect, or Start followed by Initialize,
// opens the session.
func New(t transport.Transport, options ...ClientOption) *Client {
	cfg := &clientConfig{
		info:   protocol.Implementation{Name: "mcp-session-go-client", Version: "dev"},
		logger: logging.NewNop(),
	}
	for _, option := range options {
		option(cfg)
	}

	caps := protocol.ClientCapabilities{Experimental: cfg.experiment}
	if cfg.sampling != nil {
		caps.Sampling = &struct{}{}
	}
	if cfg.roots != nil {
		caps.Roots = &protocol.RootsCapability{ListChanged: true}
	}

	opts := []session.Option{
		session.WithLogger(cfg.logger),
		session.WithImplementation(cfg.info),
		session.WithClientCapabilities(caps),
	}
	opts = append(opts, cfg.sessionOpts...)
	if len(cfg.middleware) > 0 {
		t = transport.Apply(t, cfg.middleware...)
	}

	c := &Client{
		sess:          session.New(t, session.RoleClient, opts...),
		logger:        cfg.logger,
		sampling:      cfg.sampling,
		roots:         cfg.roots,
		static:        cfg.static,
		onUpdated:     cfg.onUpdated,
		onListChanged: cfg.onListChanged,
		onLog:         cfg.onLog,
	}
	c.register()
	return c
}

func (c *Client) register() {
	if c.sampling != nil {
		c.sess.RegisterHandler(protocol.MethodCreateMessage, c.dispatch)
	}
	if c.roots != nil {
		c.sess.RegisterHandler(protocol.MethodListRoots, c.dispatch)
	}

	c.sess.RegisterNotificationSink(protocol.NotificationResourceUpdated, c.notify)
	c.sess.RegisterNotificationSink(protocol.NotificationResourceListChanged, c.notify)
	c.sess.RegisterNotificationSink(protocol.NotificationToolListChanged, c.notify)
	c.sess.RegisterNotificationSink(protocol.NotificationPromptListChanged, c.notify)
	c.sess.RegisterNotificationSink(protocol.NotificationMessage, c.notify)
}

func (c *Client) dispatch(ctx context.Context, req *session.Request) (interface{}, error) {
	decoded, err := protocol.DecodeServerRequest(req.Method, req.Params)
	if err != nil {
		return nil, mcperrors.InvalidParams(err.Error(), err)
	}

	switch p := decoded.(type) {
	case *protocol.CreateMessageParams:
		return c.createMessage(ctx, p)
	case *protocol.ListRootsParams:
		return c.listRoots(ctx)
	default:
		return nil, mcperrors.MethodNotFound(req.Method)
	}
}

func (c *Client) createMessage(ctx context.Context, p *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
	if len(p.Messages) == 0 {
		return nil, mcperrors.MissingParameter("messages")
	}
	res, err := c.sampling.CreateMessage(ctx, p)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, mcperrors.Handler(protocol.MethodCreateMessage, fmt.Errorf("sampling handler returned no result"))
	}
	return res, nil
}

func (c *Client) listRoots(ctx context.Context) (*protocol.ListRootsResult, error) {
	roots, err := c.roots.ListRoots(ctx)
	if err != nil {
		return nil, err
	}
	if roots == nil {
		roots = []protocol.Root{}
	}
	return &protocol.ListRootsResult{Roots: roots}, nil
}

func (c *Client) notify(_ context.Context, method string, params json.RawMessage) {
	decoded, err := protocol.DecodeServerNotification(method, params)
	if err != nil {
		c.logger.WithError(err).Debug("dropping malformed notification", logging.String("method", method))
		return
	}

	c.mu.RLock()
	onUpdated, onListChanged, onLog := c.onUpdated, c.onListChanged, c.onLog
	c.mu.RUnlock()

	switch n := decoded.(type) {
	case *protocol.ResourceUpdatedParams:
		if onUpdated != nil {
			onUpdated(n.URI)
		}
	case *protocol.ResourceListChangedParams, *protocol.ToolListChangedParams, *protocol.PromptListChangedParams:
		if onListChanged != nil {
			onListChanged(method)
		}
	case *protocol.LoggingMessageParams:
		if onLog != nil {
			onLog(*n)
		}
	}
}

// SetResourceUpdatedCallback replaces the resource update callback
func (c *Client) SetResourceUpdatedCallback(fn ResourceUpdatedCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdated = fn
}

// SetListChangedCallback replaces the list_changed callback
func (c *Client) SetListChangedCallback(fn ListChangedCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onListChanged = fn
}

// SetLogCallback replaces the log message callback
func (c *Client) SetLogCallback(fn LogCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLog = fn
}

// Start begins processing inbound messages in the background
func (c *Client) Start(ctx context.Context) {
	c.sess.Start(ctx)
}

// Initialize performs the handshake. Start must have been called.
func (c *Client) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	res, err := c.sess.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.initResult = res
	c.mu.Unlock()
	return res, nil
}

// Connect starts the client and performs the handshake
func (c *Client) Connect(ctx context.Context) (*protocol.InitializeResult, error) {
	c.Start(ctx)
	return c.Initialize(ctx)
}

// Close ends the session. Calls in flight fail with a connection-lost
// error.
func (c *Client) Close() error {
	return c.sess.Close()
}

// Done is closed when the session ends
func (c *Client) Done() <-chan struct{} { return c.sess.Done() }

// Session returns the underlying session
func (c *Client) Session() *session.Session { return c.sess }

// ServerInfo returns the server's name and version after the handshake
func (c *Client) ServerInfo() protocol.Implementation { return c.sess.PeerInfo() }

// ServerCapabilities returns the server's capabilities after the handshake
func (c *Client) ServerCapabilities() *protocol.ServerCapabilities {
	return c.sess.PeerServerCapabilities()
}

// Instructions returns the usage hints the server sent, if any
func (c *Client) Instructions() string { return c.sess.Instructions() }

// InitializeResult returns the result of the handshake, or nil before it
func (c *Client) InitializeResult() *protocol.InitializeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initResult
}

// HasCapability reports whether the server advertised what method needs.
// Unknown methods are reported as unsupported.
func (c *Client) HasCapability(method string) bool {
	caps := c.sess.PeerServerCapabilities()
	if caps == nil {
		return false
	}
	_, ok := caps.Supports(method)
	return ok
}

// Ping checks that the server is responding
func (c *Client) Ping(ctx context.Context) error {
	return c.sess.Call(ctx, protocol.MethodPing, nil, nil)
}

// ListTools fetches one page of tools
func (c *Client) ListTools(ctx context.Context, cursor string) (*protocol.ListToolsResult, error) {
	var res protocol.ListToolsResult
	params := &protocol.ListToolsParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.sess.Call(ctx, protocol.MethodListTools, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CallTool invokes a tool. arguments may be nil, a json.RawMessage or any
// value that encodes to a JSON object. A tool that fails reports it in the
// result's IsError; the error return covers protocol failures such as an
// unknown tool.
func (c *Client) CallTool(ctx context.Context, name string, arguments interface{}, opts ...session.CallOption) (*protocol.CallToolResult, error) {
	params := &protocol.CallToolParams{Name: name}
	switch a := arguments.(type) {
	case nil:
	case json.RawMessage:
		params.Arguments = a
	default:
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal arguments for tool %q: %w", name, err)
		}
		params.Arguments = data
	}

	var res protocol.CallToolResult
	if err := c.sess.Call(ctx, protocol.MethodCallTool, params, &res, opts...); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources fetches one page of resources
func (c *Client) ListResources(ctx context.Context, cursor string) (*protocol.ListResourcesResult, error) {
	var res protocol.ListResourcesResult
	params := &protocol.ListResourcesParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.sess.Call(ctx, protocol.MethodListResources, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResourceTemplates fetches one page of resource templates
func (c *Client) ListResourceTemplates(ctx context.Context, cursor string) (*protocol.ListResourceTemplatesResult, error) {
	var res protocol.ListResourceTemplatesResult
	params := &protocol.ListResourceTemplatesParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.sess.Call(ctx, protocol.MethodListResourceTemplates, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadResource reads the contents behind uri
func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var res protocol.ReadResourceResult
	if err := c.sess.Call(ctx, protocol.MethodReadResource, &protocol.ReadResourceParams{URI: uri}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Subscribe asks for notifications/resources/updated about uri
func (c *Client) Subscribe(ctx context.Context, uri string) error {
	return c.sess.Call(ctx, protocol.MethodSubscribe, &protocol.SubscribeParams{URI: uri}, nil)
}

// Unsubscribe cancels a subscription made with Subscribe
func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	return c.sess.Call(ctx, protocol.MethodUnsubscribe, &protocol.UnsubscribeParams{URI: uri}, nil)
}

// ListPrompts fetches one page of prompts
func (c *Client) ListPrompts(ctx context.Context, cursor string) (*protocol.ListPromptsResult, error) {
	var res protocol.ListPromptsResult
	params := &protocol.ListPromptsParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.sess.Call(ctx, protocol.MethodListPrompts, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPrompt renders a prompt with the given arguments
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*protocol.GetPromptResult, error) {
	var res protocol.GetPromptResult
	params := &protocol.GetPromptParams{Name: name, Arguments: arguments}
	if err := c.sess.Call(ctx, protocol.MethodGetPrompt, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Complete asks for completions of an argument of a prompt or resource
// template
func (c *Client) Complete(ctx context.Context, ref protocol.CompletionReference, arg protocol.CompletionArgument) (*protocol.Completion, error) {
	var res protocol.CompleteResult
	params := &protocol.CompleteParams{Ref: ref, Argument: arg}
	if err := c.sess.Call(ctx, protocol.MethodComplete, params, &res); err != nil {
		return nil, err
	}
	return &res.Completion, nil
}

// SetLoggingLevel sets the least severe level the server sends
func (c *Client) SetLoggingLevel(ctx context.Context, level protocol.LoggingLevel) error {
	return c.sess.Call(ctx, protocol.MethodSetLevel, &protocol.SetLevelParams{Level: level}, nil)
}

// NotifyRootsListChanged tells the server the roots changed
func (c *Client) NotifyRootsListChanged(ctx context.Context) error {
	return c.sess.Notify(ctx, protocol.NotificationRootsListChanged, nil)
}

// SetRoots replaces the roots given with WithRoots and notifies the server
// once the session is ready
func (c *Client) SetRoots(ctx context.Context, roots ...protocol.Root) error {
	if c.static == nil {
		return fmt.Errorf("client was not created with WithRoots")
	}
	c.static.set(roots)
	if c.sess.Phase() != session.PhaseReady {
		return nil
	}
	return c.NotifyRootsListChanged(ctx)
}

type staticRoots struct {
	mu    sync.RWMutex
	roots []protocol.Root
}

func (r *staticRoots) ListRoots(context.Context) ([]protocol.Root, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.Root(nil), r.roots...), nil
}

func (r *staticRoots) set(roots []protocol.Root) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = append([]protocol.Root(nil), roots...)
}
