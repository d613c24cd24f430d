package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

type callOptions struct {
	timeout  time.Duration
	progress ProgressFunc
}

// CallOption configures a single outbound request
type CallOption func(*callOptions)

// WithTimeout overrides the session request timeout for one call. Zero
// waits indefinitely.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithProgress asks the peer for progress and delivers it to fn. fn runs on
// the receive loop and must not block.
func WithProgress(fn ProgressFunc) CallOption {
	return func(o *callOptions) {
		o.progress = fn
	}
}

// Call sends a request and waits for its reply, decoding the result into
// result when it is non-nil. When ctx ends or the timeout fires first, the
// request is abandoned and the peer is told with notifications/cancelled.
func (s *Session) Call(ctx context.Context, method string, params, result interface{}, opts ...CallOption) error {
	p, err := s.Begin(ctx, method, params, opts...)
	if err != nil {
		return err
	}
	return p.Wait(ctx, result)
}

// Begin sends a request without waiting. The returned handle is used to
// wait for the reply or to cancel it.
func (s *Session) Begin(ctx context.Context, method string, params interface{}, opts ...CallOption) (*PendingRequest, error) {
	if method == protocol.MethodInitialize {
		return nil, mcperrors.ProtocolViolation(method, s.Phase().String(), "the handshake is started with Initialize")
	}
	if err := s.checkOutbound(method, false); err != nil {
		return nil, err
	}
	return s.begin(ctx, method, params, opts)
}

// Notify sends a notification
func (s *Session) Notify(ctx context.Context, method string, params interface{}) error {
	if err := s.checkOutbound(method, true); err != nil {
		return err
	}
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return mcperrors.InvalidParams("failed to encode params for "+method, err)
	}
	return s.send(ctx, msg, method)
}

// checkOutbound applies the phase gate and, once ready, the capability
// gate to a message this side wants to send
func (s *Session) checkOutbound(method string, notification bool) error {
	s.mu.Lock()
	phase := s.phase
	capName, supported := "", true
	if phase == PhaseReady {
		switch {
		case s.role == RoleClient && !notification:
			capName, supported = s.peerServerCaps.Supports(method)
		case s.role == RoleServer && !notification:
			capName, supported = s.peerClientCaps.Supports(method)
		case s.role == RoleClient:
			capName, supported = s.clientCaps.Supports(method)
		default:
			capName, supported = s.serverCaps.Supports(method)
		}
	}
	s.mu.Unlock()

	switch {
	case phase == PhaseClosed:
		return mcperrors.ConnectionLost(method, errSessionClosed)
	case phase != PhaseReady && !protocol.AllowedBeforeReady(method):
		return mcperrors.NotInitialized(method)
	case !supported:
		return mcperrors.CapabilityRequired(method, capName)
	}
	return nil
}

func (s *Session) begin(ctx context.Context, method string, params interface{}, opts []CallOption) (*PendingRequest, error) {
	o := callOptions{timeout: s.requestTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := encodeParams(params)
	if err != nil {
		return nil, mcperrors.InvalidParams("failed to encode params for "+method, err)
	}

	p := s.pending.register(method)
	p.session = s
	p.timeout = o.timeout
	s.observer.PendingRequests(s.pending.len())

	if o.progress != nil {
		token, _ := s.pending.attachProgressToken(p.ID, o.progress)
		raw, err = protocol.WithMeta(raw, &protocol.Meta{ProgressToken: &token})
		if err != nil {
			s.pending.reject(p.ID, err)
			return nil, mcperrors.InvalidParams("cannot attach a progress token to "+method, err)
		}
	}

	_, p.span = s.tracer.Start(ctx, "mcp.call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("mcp.method", method),
			attribute.String("mcp.request_id", p.ID.String()),
			attribute.String("mcp.session_id", s.id),
		),
	)

	msg := &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: &p.ID, Method: method, Params: raw}
	if err := s.send(ctx, msg, method); err != nil {
		s.pending.reject(p.ID, err)
		p.span.RecordError(err)
		p.span.End()
		return nil, err
	}
	return p, nil
}

func encodeParams(params interface{}) (json.RawMessage, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// Wait blocks until the request completes, ctx ends or the call times
// out, and decodes a successful result into result. Later calls return the
// same outcome.
func (p *PendingRequest) Wait(ctx context.Context, result interface{}) error {
	p.waitOnce.Do(func() {
		p.final = p.session.await(ctx, p)

		elapsed := time.Since(p.IssuedAt)
		p.session.observer.CallFinished(p.Method, outcomeOf(p.final.err), elapsed)
		p.session.observer.PendingRequests(p.session.pending.len())
		if p.span != nil {
			if p.final.err != nil {
				p.span.RecordError(p.final.err)
				p.span.SetStatus(codes.Error, p.final.err.Error())
			}
			p.span.End()
		}
	})

	if p.final.err != nil {
		return p.final.err
	}
	if result == nil || len(p.final.result) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.final.result, result); err != nil {
		return mcperrors.WrapError(err, mcperrors.CodeInternalError,
			fmt.Sprintf("failed to decode %s result", p.Method),
			mcperrors.CategoryDecode, mcperrors.SeverityError)
	}
	return nil
}

// Cancel abandons the request and notifies the peer. It is a no-op once
// the request has completed.
func (p *PendingRequest) Cancel(reason string) error {
	return p.session.CancelRequest(p.ID, reason)
}

func (s *Session) await(ctx context.Context, p *PendingRequest) outcome {
	var expired <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(time.Until(p.IssuedAt.Add(p.timeout)))
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-p.done:
		return out
	case <-ctx.Done():
		s.abandon(p, mcperrors.Cancelled(p.Method, context.Cause(ctx).Error()), "request cancelled by caller")
	case <-expired:
		s.abandon(p, mcperrors.Timeout(p.Method, p.timeout), "request timed out")
	case <-s.done:
		s.pending.complete(p.ID, outcome{err: mcperrors.ConnectionLost(p.Method, s.Err())})
	}
	return <-p.done
}

// abandon completes p locally with err and, unless a reply won the race,
// tells the peer to stop working on it
func (s *Session) abandon(p *PendingRequest, err error, reason string) {
	if _, ok := s.pending.complete(p.ID, outcome{err: err}); !ok {
		return
	}
	if p.Method == protocol.MethodInitialize {
		return
	}
	s.sendCancelled(p.ID, reason)
}

// CancelRequest abandons the outbound request id and sends
// notifications/cancelled. Cancelling a request that already completed is
// a no-op. The initialize request cannot be cancelled.
func (s *Session) CancelRequest(id protocol.RequestID, reason string) error {
	p, err := s.pending.cancelLocal(id, reason)
	if err != nil {
		return err
	}
	if p == nil {
		s.logger.Debug("ignoring cancellation of a completed request",
			logging.String(logging.KeyRequestID, id.String()))
		return nil
	}
	s.sendCancelled(id, reason)
	return nil
}

const cancelNotifyTimeout = time.Second

func (s *Session) sendCancelled(id protocol.RequestID, reason string) {
	ctx, cancel := context.WithTimeout(s.ctx, cancelNotifyTimeout)
	defer cancel()

	err := s.Notify(ctx, protocol.NotificationCancelled, &protocol.CancelledParams{RequestID: id, Reason: reason})
	if err != nil {
		s.logger.WithError(err).Debug("failed to send cancellation",
			logging.String(logging.KeyRequestID, id.String()))
	}
}
