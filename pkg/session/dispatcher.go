package session

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// inboundCall tracks a request from the peer until its terminal reply
type inboundCall struct {
	id      protocol.RequestID
	method  string
	cancel  context.CancelCauseFunc
	replied bool // guarded by Session.mu
}

// RegisterHandler installs h for requests named method, replacing any
// previous handler. A nil h removes the registration.
func (s *Session) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, method)
		return
	}
	s.handlers[method] = h
}

// RegisterNotificationSink adds sink for notifications named method. Every
// sink registered for a method sees every notification, in registration
// order.
func (s *Session) RegisterNotificationSink(method string, sink NotificationSink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[method] = append(s.sinks[method], sink)
}

// HandleMessage routes one decoded envelope. Run calls it for every frame;
// it is exported for transports that decode messages themselves.
func (s *Session) HandleMessage(ctx context.Context, msg *protocol.Message) {
	s.observer.MessageReceived(msg.Kind(), msg.Method)

	switch msg.Kind() {
	case protocol.KindRequest:
		s.handleRequest(msg)
	case protocol.KindNotification:
		s.handleNotification(ctx, msg)
	case protocol.KindResponse, protocol.KindError:
		s.handleResponse(msg)
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		derr := mcperrors.FromDecode(err)
		s.observer.DecodeFailed(derr.Details())
		s.logger.WithError(derr).Warn("dropping undecodable message", logging.Int("bytes", len(data)))
		return
	}
	s.HandleMessage(ctx, msg)
}

func (s *Session) handleRequest(msg *protocol.Message) {
	id := msg.RequestID()
	method := msg.Method

	s.mu.Lock()
	phase := s.phase
	if phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	if phase != PhaseReady && !protocol.AllowedBeforeReady(method) {
		s.mu.Unlock()
		s.replyRejected(id, method, mcperrors.NotInitialized(method))
		return
	}
	h, ok := s.handlers[method]
	if !ok {
		s.mu.Unlock()
		s.replyRejected(id, method, mcperrors.MethodNotFound(method))
		return
	}
	if _, dup := s.inflight[id]; dup {
		s.mu.Unlock()
		s.logger.Warn("dropping request that reuses an in-flight id",
			logging.String(logging.KeyRequestID, id.String()),
			logging.String(logging.KeyMethod, method))
		return
	}

	ctx, cancel := context.WithCancelCause(s.ctx)
	call := &inboundCall{id: id, method: method, cancel: cancel}
	s.inflight[id] = call
	s.handlerWG.Add(1)
	s.mu.Unlock()

	go s.runHandler(ctx, call, h, msg)
}

// replyRejected answers a request that never reached a handler
func (s *Session) replyRejected(id protocol.RequestID, method string, err error) {
	s.logger.Debug("rejecting request",
		logging.String(logging.KeyRequestID, id.String()),
		logging.String(logging.KeyMethod, method),
		logging.ErrorField(err))

	msg, _ := mcperrors.ToErrorResponse(id, err)
	if sendErr := s.send(s.ctx, msg, method); sendErr != nil {
		s.logger.WithError(sendErr).Debug("failed to send rejection")
	}
}

func (s *Session) runHandler(ctx context.Context, call *inboundCall, h Handler, msg *protocol.Message) {
	defer s.handlerWG.Done()
	defer call.cancel(nil)

	start := time.Now()
	ctx = logging.NewContext(ctx,
		logging.String(logging.KeySessionID, s.id),
		logging.String(logging.KeyRequestID, call.id.String()),
		logging.String(logging.KeyMethod, call.method),
	)
	ctx = logging.ContextWithLogger(ctx, s.logger)

	ctx, span := s.tracer.Start(ctx, "mcp.handle "+call.method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("mcp.method", call.method),
			attribute.String("mcp.request_id", call.id.String()),
			attribute.String("mcp.session_id", s.id),
		),
	)
	defer span.End()

	var (
		result interface{}
		err    error
	)
	if s.sem != nil {
		if acquireErr := s.sem.Acquire(ctx, 1); acquireErr != nil {
			err = s.contextError(ctx, call.method)
		} else {
			defer s.sem.Release(1)
		}
	}

	if err == nil {
		hctx := ctx
		if s.handlerTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, s.handlerTimeout)
			defer cancel()
		}
		result, err = s.invoke(hctx, h, newRequest(s, call, msg))
		if err != nil && hctx.Err() != nil && errors.Is(err, hctx.Err()) {
			err = s.contextError(hctx, call.method)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.observer.HandlerFinished(call.method, outcomeOf(err), time.Since(start))

	if replyErr := s.reply(call, result, err); replyErr != nil {
		if mcperrors.IsCode(replyErr, mcperrors.CodeDuplicateResponse) {
			if result != nil || err != nil {
				logging.FromContext(ctx).WithError(replyErr).Warn("handler returned a value after responding")
			}
			return
		}
		logging.FromContext(ctx).WithError(replyErr).Debug("failed to send reply")
	}
}

func (s *Session) invoke(ctx context.Context, h Handler, req *Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("handler panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			result, err = nil, mcperrors.HandlerPanic(req.Method, r)
		}
	}()
	return h(ctx, req)
}

// contextError names the reason a handler context ended
func (s *Session) contextError(ctx context.Context, method string) error {
	cause := context.Cause(ctx)
	if mcperrors.IsCancelled(cause) {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return mcperrors.Timeout(method, s.handlerTimeout)
	}
	return mcperrors.Cancelled(method, "session closed")
}

// reply sends the terminal reply for call. A second reply for the same
// call is refused with a duplicate-response error and nothing is sent.
func (s *Session) reply(call *inboundCall, result interface{}, herr error) error {
	s.mu.Lock()
	if call.replied {
		s.mu.Unlock()
		return mcperrors.DuplicateResponse(call.method, call.id.String())
	}
	call.replied = true
	if s.inflight[call.id] == call {
		delete(s.inflight, call.id)
	}
	s.mu.Unlock()

	var msg *protocol.Message
	if herr != nil {
		msg, _ = mcperrors.ToErrorResponse(call.id, herr)
	} else {
		var err error
		msg, err = protocol.NewResponse(call.id, result)
		if err != nil {
			encodeErr := mcperrors.WrapError(err, mcperrors.CodeInternalError, "failed to encode result",
				mcperrors.CategoryInternal, mcperrors.SeverityError)
			msg, _ = mcperrors.ToErrorResponse(call.id, encodeErr)
		}
	}
	return s.send(s.ctx, msg, call.method)
}

func (s *Session) handleNotification(ctx context.Context, msg *protocol.Message) {
	s.mu.Lock()
	phase := s.phase
	sinks := append([]NotificationSink(nil), s.sinks[msg.Method]...)
	s.mu.Unlock()

	if phase == PhaseClosed {
		return
	}
	if phase != PhaseReady && !protocol.AllowedBeforeReady(msg.Method) {
		s.logger.Debug("dropping notification received before initialization",
			logging.String(logging.KeyMethod, msg.Method))
		return
	}
	if len(sinks) == 0 {
		s.logger.Debug("no sink for notification", logging.String(logging.KeyMethod, msg.Method))
		return
	}

	for _, sink := range sinks {
		s.deliver(ctx, sink, msg)
	}
}

func (s *Session) deliver(ctx context.Context, sink NotificationSink, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notification sink panicked",
				logging.String(logging.KeyMethod, msg.Method),
				logging.Any("panic", r))
		}
	}()
	sink(ctx, msg.Method, msg.Params)
}

func (s *Session) handleResponse(msg *protocol.Message) {
	id := msg.RequestID()

	var matched bool
	if msg.Error != nil {
		matched = s.pending.reject(id, mcperrors.FromWire(msg.Error))
	} else {
		matched = s.pending.resolve(id, msg.Result)
	}

	if !matched {
		s.observer.StaleResponse()
		s.logger.WithError(mcperrors.StaleCorrelation(id.String())).Warn("ignoring reply with no pending request")
		return
	}
	s.observer.PendingRequests(s.pending.len())
}
