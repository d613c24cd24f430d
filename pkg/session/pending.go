package session

import (
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ProgressFunc receives progress notifications for an outbound request
type ProgressFunc func(p protocol.ProgressParams)

type outcome struct {
	result json.RawMessage
	err    error
}

// PendingRequest is the completion handle of an outbound request. Exactly
// one outcome is ever delivered to it.
type PendingRequest struct {
	ID       protocol.RequestID
	Method   string
	IssuedAt time.Time

	session  *Session
	timeout  time.Duration
	done     chan outcome
	progress ProgressFunc
	span     trace.Span

	waitOnce sync.Once
	final    outcome
}

// pendingTable correlates outbound requests with their replies. It shares
// the session mutex so that correlation and phase changes are observed in
// one order.
type pendingTable struct {
	mu      *sync.Mutex
	nextID  int64
	entries map[protocol.RequestID]*PendingRequest
}

func newPendingTable(mu *sync.Mutex) *pendingTable {
	return &pendingTable{
		mu:      mu,
		entries: make(map[protocol.RequestID]*PendingRequest),
	}
}

// register allocates the next id and records the request as pending
func (t *pendingTable) register(method string) *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	p := &PendingRequest{
		ID:       protocol.IntID(t.nextID),
		Method:   method,
		IssuedAt: time.Now(),
		done:     make(chan outcome, 1),
	}
	t.entries[p.ID] = p
	return p
}

// attachProgressToken routes progress for token to fn. The token is the
// request id itself.
func (t *pendingTable) attachProgressToken(id protocol.RequestID, fn ProgressFunc) (protocol.ProgressToken, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[id]
	if !ok {
		return protocol.ProgressToken{}, false
	}
	p.progress = fn
	return id, true
}

// progressFor returns the callback bound to token while its request is
// pending
func (t *pendingTable) progressFor(token protocol.ProgressToken) ProgressFunc {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.entries[token]; ok {
		return p.progress
	}
	return nil
}

func (t *pendingTable) complete(id protocol.RequestID, out outcome) (*PendingRequest, bool) {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return nil, false
	}
	p.done <- out
	return p, true
}

// resolve completes id with a result. It reports false for an id that is
// not pending, which the caller treats as a stale correlation.
func (t *pendingTable) resolve(id protocol.RequestID, result json.RawMessage) bool {
	_, ok := t.complete(id, outcome{result: result})
	return ok
}

// reject completes id with an error
func (t *pendingTable) reject(id protocol.RequestID, err error) bool {
	_, ok := t.complete(id, outcome{err: err})
	return ok
}

// cancelLocal completes id as cancelled. The initialize request cannot be
// cancelled. An id that is no longer pending is a no-op.
func (t *pendingTable) cancelLocal(id protocol.RequestID, reason string) (*PendingRequest, error) {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok && p.Method == protocol.MethodInitialize {
		t.mu.Unlock()
		return nil, mcperrors.ProtocolViolation(protocol.MethodInitialize, "", "the initialize request cannot be cancelled")
	}
	t.mu.Unlock()

	if !ok {
		return nil, nil
	}
	p, _ = t.complete(id, outcome{err: mcperrors.Cancelled(p.Method, reason)})
	return p, nil
}

// failAll completes every pending request with the error built by mk
func (t *pendingTable) failAll(mk func(method string) error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[protocol.RequestID]*PendingRequest)
	t.mu.Unlock()

	for _, p := range entries {
		p.done <- outcome{err: mk(p.Method)}
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
