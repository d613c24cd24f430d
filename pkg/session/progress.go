package session

import (
	"context"
	"encoding/json"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ReportProgress sends notifications/progress for a token the peer
// attached to one of its requests
func (s *Session) ReportProgress(ctx context.Context, token protocol.ProgressToken, progress float64, total *float64) error {
	return s.Notify(ctx, protocol.NotificationProgress, &protocol.ProgressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
	})
}

func (s *Session) handleProgress(_ context.Context, _ string, params json.RawMessage) {
	var p protocol.ProgressParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.WithError(err).Warn("malformed progress notification")
		return
	}

	fn := s.pending.progressFor(p.ProgressToken)
	if fn == nil {
		s.logger.Debug("dropping progress for unknown token",
			logging.String("progress_token", p.ProgressToken.String()))
		return
	}
	fn(p)
}

func (s *Session) handleCancelled(_ context.Context, _ string, params json.RawMessage) {
	var p protocol.CancelledParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.WithError(err).Warn("malformed cancellation notification")
		return
	}
	s.cancelInbound(p.RequestID, p.Reason)
}

// cancelInbound cancels the context of a running handler. Requests that
// already replied, unknown ids and initialize are ignored.
func (s *Session) cancelInbound(id protocol.RequestID, reason string) {
	s.mu.Lock()
	call, ok := s.inflight[id]
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("ignoring cancellation for a request that is not running",
			logging.String(logging.KeyRequestID, id.String()))
		return
	}
	if call.method == protocol.MethodInitialize {
		s.logger.Warn("peer tried to cancel initialize", logging.String(logging.KeyRequestID, id.String()))
		return
	}

	s.logger.Debug("request cancelled by peer",
		logging.String(logging.KeyRequestID, id.String()),
		logging.String(logging.KeyMethod, call.method),
		logging.String("reason", reason))
	call.cancel(mcperrors.Cancelled(call.method, reason))
}
