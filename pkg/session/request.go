package session

import (
	"context"
	"encoding/json"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// Request is an inbound request as seen by a Handler
type Request struct {
	ID     protocol.RequestID
	Method string
	Params json.RawMessage

	session *Session
	call    *inboundCall
	token   *protocol.ProgressToken

	progressMu   sync.Mutex
	lastProgress float64
	reported     bool
}

func newRequest(s *Session, call *inboundCall, msg *protocol.Message) *Request {
	r := &Request{
		ID:      call.id,
		Method:  call.method,
		Params:  msg.Params,
		session: s,
		call:    call,
	}
	if meta, err := protocol.ExtractMeta(msg.Params); err == nil && meta != nil {
		r.token = meta.ProgressToken
	}
	return r
}

// Session returns the session the request arrived on
func (r *Request) Session() *Session { return r.session }

// BindParams decodes the request params into v. Absent params decode as an
// empty object.
func (r *Request) BindParams(v interface{}) error {
	data := r.Params
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return mcperrors.InvalidParams("invalid params for "+r.Method, err)
	}
	return nil
}

// ProgressToken returns the token the caller attached, if any
func (r *Request) ProgressToken() (protocol.ProgressToken, bool) {
	if r.token == nil {
		return protocol.ProgressToken{}, false
	}
	return *r.token, true
}

// ReportProgress sends a progress notification for this request. It is a
// no-op when the caller did not ask for progress. Values that go backwards
// are sent anyway and logged.
func (r *Request) ReportProgress(ctx context.Context, progress float64, total *float64) error {
	token, ok := r.ProgressToken()
	if !ok {
		return nil
	}

	r.progressMu.Lock()
	if r.reported && progress < r.lastProgress {
		r.session.logger.Warn("progress decreased",
			logging.String(logging.KeyRequestID, r.ID.String()),
			logging.Any("previous", r.lastProgress),
			logging.Any("current", progress))
	}
	r.lastProgress = progress
	r.reported = true
	r.progressMu.Unlock()

	return r.session.ReportProgress(ctx, token, progress, total)
}

// Respond sends the terminal reply before the handler returns. Whatever
// the handler returns afterwards is discarded. A second call fails with a
// duplicate-response error.
func (r *Request) Respond(result interface{}, err error) error {
	return r.session.reply(r.call, result, err)
}
