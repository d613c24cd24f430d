package server

import (
	"context"
	"sort"
	"sync"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
)

// notificationQueueSize bounds the changes waiting for delivery. Producers
// block when it is full.
const notificationQueueSize = 256

// Subscription is one resources/subscribe held by a connection
type Subscription struct {
	URI       string
	CreatedAt time.Time
}

// subscriptionSet holds the exact URIs one connection subscribed to
type subscriptionSet struct {
	mu   sync.RWMutex
	subs map[string]time.Time
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{subs: make(map[string]time.Time)}
}

// add is idempotent; the first subscription time is kept
func (s *subscriptionSet) add(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[uri]; !ok {
		s.subs[uri] = time.Now()
	}
}

func (s *subscriptionSet) remove(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[uri]
	delete(s.subs, uri)
	return ok
}

func (s *subscriptionSet) has(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[uri]
	return ok
}

func (s *subscriptionSet) list() []Subscription {
	s.mu.RLock()
	out := make([]Subscription, 0, len(s.subs))
	for uri, at := range s.subs {
		out = append(out, Subscription{URI: uri, CreatedAt: at})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// outbound is a server notification waiting for delivery
type outbound struct {
	method string
	params interface{}
	// uri limits delivery to connections subscribed to it
	uri string
	// level limits delivery to connections whose log level admits it
	level protocol.LoggingLevel
	// release asks the delivery loop to flush what it held for a connection
	release *Conn
}

// enqueue hands n to the delivery goroutine. It blocks while the queue is
// full and gives up once the server is closed.
func (s *Server) enqueue(n outbound) {
	s.startBackground()
	select {
	case s.queue <- n:
	case <-s.ctx.Done():
	}
}

// deliverLoop sends queued notifications in the order they were queued.
// Connections still in the handshake get them once they are ready.
func (s *Server) deliverLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case n := <-s.queue:
			if n.release != nil {
				s.flushHeld(n.release)
				continue
			}
			for _, c := range s.Conns() {
				s.deliver(c, n)
			}
		}
	}
}

func (s *Server) deliver(c *Conn, n outbound) {
	switch c.sess.Phase() {
	case session.PhaseReady:
	case session.PhaseClosed:
		return
	default:
		c.hold(n)
		return
	}
	s.flushHeld(c)
	s.send(c, n)
}

func (s *Server) flushHeld(c *Conn) {
	held := c.held
	c.held = nil
	for _, n := range held {
		s.send(c, n)
	}
}

func (s *Server) send(c *Conn, n outbound) {
	if !c.wants(n) {
		return
	}
	if err := c.sess.Notify(s.ctx, n.method, n.params); err != nil {
		s.logDeliveryError(c, n, err)
	}
}

// releaseWhenReady wakes the delivery loop once c finishes the handshake so
// that notifications held for it go out without waiting for the next one
func (s *Server) releaseWhenReady(c *Conn) {
	select {
	case <-c.sess.Ready():
		s.enqueue(outbound{release: c})
	case <-c.sess.Done():
	}
}

func (s *Server) logDeliveryError(c *Conn, n outbound, err error) {
	l := s.logger.WithError(err).WithFields(
		logging.String(logging.KeySessionID, c.sess.ID()),
		logging.String(logging.KeyMethod, n.method),
	)
	if mcperrors.IsCategory(err, mcperrors.CategoryCapability) {
		l.Debug("notification not declared")
		return
	}
	l.Debug("failed to deliver notification")
}

// hold keeps n until the handshake completes. Resource updates are not
// kept since nothing can be subscribed yet, and a list_changed already
// held is not repeated.
func (c *Conn) hold(n outbound) {
	if n.uri != "" {
		return
	}
	if n.params == nil {
		for _, h := range c.held {
			if h.method == n.method && h.params == nil {
				return
			}
		}
	}
	if len(c.held) >= notificationQueueSize {
		c.held = c.held[1:]
	}
	c.held = append(c.held, n)
}

// wants reports whether n should be sent to this connection
func (c *Conn) wants(n outbound) bool {
	if n.uri != "" && !c.subs.has(n.uri) {
		return false
	}
	if n.level != "" && !n.level.AtLeast(c.LogLevel()) {
		return false
	}
	return true
}

// watchProvider turns provider changes into notifications
func (s *Server) watchProvider(p interface{}, listChanged string) {
	cn, ok := p.(ChangeNotifier)
	if !ok {
		return
	}
	cn.OnChange(func(c Change) {
		switch c.Kind {
		case ListChanged:
			s.enqueue(outbound{method: listChanged})
		case ContentUpdated:
			s.enqueue(outbound{
				method: protocol.NotificationResourceUpdated,
				params: &protocol.ResourceUpdatedParams{URI: c.URI},
				uri:    c.URI,
			})
		}
	})
}

// startBackground launches the delivery goroutine and starts providers
// with background work. It runs once, on the first connection or the
// first queued notification.
func (s *Server) startBackground() {
	s.startOnce.Do(func() {
		if s.ctx.Err() != nil {
			return
		}
		s.wg.Add(1)
		go s.deliverLoop()

		for _, p := range []interface{}{s.tools, s.resources, s.prompts, s.completion} {
			st, ok := p.(Starter)
			if !ok {
				continue
			}
			if err := st.Start(s.ctx); err != nil {
				s.logger.WithError(err).Error("failed to start provider")
			}
		}
	})
}

// NotifyResourceUpdated tells subscribed clients that uri changed
func (s *Server) NotifyResourceUpdated(uri string) {
	s.enqueue(outbound{
		method: protocol.NotificationResourceUpdated,
		params: &protocol.ResourceUpdatedParams{URI: uri},
		uri:    uri,
	})
}

// NotifyResourceListChanged tells every client the resource list changed
func (s *Server) NotifyResourceListChanged() {
	s.enqueue(outbound{method: protocol.NotificationResourceListChanged})
}

// NotifyToolListChanged tells every client the tool list changed
func (s *Server) NotifyToolListChanged() {
	s.enqueue(outbound{method: protocol.NotificationToolListChanged})
}

// NotifyPromptListChanged tells every client the prompt list changed
func (s *Server) NotifyPromptListChanged() {
	s.enqueue(outbound{method: protocol.NotificationPromptListChanged})
}

// Log sends a notifications/message to every client whose level admits it
func (s *Server) Log(level protocol.LoggingLevel, logger string, data interface{}) {
	s.enqueue(outbound{
		method: protocol.NotificationMessage,
		params: &protocol.LoggingMessageParams{Level: level, Logger: logger, Data: data},
		level:  level,
	})
}

// handleSubscribe and handleUnsubscribe act on the calling connection only
func (c *Conn) handleSubscribe(ctx context.Context, p *protocol.SubscribeParams) (interface{}, error) {
	if p.URI == "" {
		return nil, mcperrors.MissingParameter("uri")
	}
	if _, err := c.srv.resources.ReadResource(ctx, p.URI); mcperrors.IsCode(err, mcperrors.CodeResourceNotFound) {
		return nil, err
	}
	c.subs.add(p.URI)
	c.sess.Logger().Debug("subscribed", logging.String("uri", p.URI))
	return &protocol.EmptyResult{}, nil
}

func (c *Conn) handleUnsubscribe(_ context.Context, p *protocol.UnsubscribeParams) (interface{}, error) {
	if p.URI == "" {
		return nil, mcperrors.MissingParameter("uri")
	}
	if c.subs.remove(p.URI) {
		c.sess.Logger().Debug("unsubscribed", logging.String("uri", p.URI))
	}
	return &protocol.EmptyResult{}, nil
}
