package session

import (
	"time"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// Outcome labels reported to an Observer
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
)

// Observer receives session events for metrics. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	MessageReceived(kind protocol.Kind, method string)
	MessageSent(kind protocol.Kind, method string)
	DecodeFailed(reason string)
	StaleResponse()
	CallFinished(method, outcome string, elapsed time.Duration)
	HandlerFinished(method, outcome string, elapsed time.Duration)
	PendingRequests(n int)
	PhaseChanged(phase Phase)
}

type nopObserver struct{}

func (nopObserver) MessageReceived(protocol.Kind, string)         {}
func (nopObserver) MessageSent(protocol.Kind, string)             {}
func (nopObserver) DecodeFailed(string)                           {}
func (nopObserver) StaleResponse()                                {}
func (nopObserver) CallFinished(string, string, time.Duration)    {}
func (nopObserver) HandlerFinished(string, string, time.Duration) {}
func (nopObserver) PendingRequests(int)                           {}
func (nopObserver) PhaseChanged(Phase)                            {}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case mcperrors.IsCancelled(err):
		return OutcomeCancelled
	case mcperrors.IsTimeout(err):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
