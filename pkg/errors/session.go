package errors

import (
	"fmt"
	"time"
)

// SequenceErrorData is attached to protocol violations
type SequenceErrorData struct {
	Method string `json:"method,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Decode wraps an envelope that could not be decoded. It is logged and the
// message dropped; the session survives.
func Decode(reason string, cause error) MCPError {
	code := CodeInvalidRequest
	if reason == "invalid JSON" {
		code = CodeParseError
	}
	return WrapError(cause, code, "Invalid message", CategoryDecode, SeverityWarning).
		WithDetail(reason)
}

// ProtocolViolation reports a message that is well formed but illegal in the
// current session phase
func ProtocolViolation(method, phase, reason string) MCPError {
	return NewError(CodeInvalidRequest, reason, CategoryProtocol, SeverityWarning).
		WithData(&SequenceErrorData{Method: method, Phase: phase, Reason: reason})
}

// NotInitialized answers a request received before the handshake completed
func NotInitialized(method string) MCPError {
	return NewErrorf(CodeServerNotReady, CategoryProtocol, SeverityWarning,
		"Session not initialized: %s is not allowed before initialization", method).
		WithData(&SequenceErrorData{Method: method, Reason: "not initialized"})
}

// MethodNotFound answers a request for which no handler is registered
func MethodNotFound(method string) MCPError {
	return NewError(CodeMethodNotFound, "Method not found", CategoryNotFound, SeverityWarning).
		WithDetail(method).
		WithData(map[string]string{"method": method})
}

// Handler wraps a business-logic failure raised by a request handler.
// MCPErrors pass through unchanged so their codes reach the peer.
func Handler(method string, cause error) MCPError {
	if mcpErr, ok := AsMCPError(cause); ok {
		return mcpErr
	}
	msg := "handler failed"
	if cause != nil {
		msg = cause.Error()
	}
	return WrapError(cause, CodeInternalError, msg, CategoryHandler, SeverityError).
		WithDetail(method)
}

// HandlerPanic converts a recovered panic into an internal error
func HandlerPanic(method string, recovered interface{}) MCPError {
	return NewError(CodeInternalError, "Internal error", CategoryHandler, SeverityCritical).
		WithDetail(fmt.Sprintf("panic in %s handler: %v", method, recovered))
}

// StaleCorrelation describes a reply whose id matches no pending request
func StaleCorrelation(requestID string) MCPError {
	return NewErrorf(CodeStaleCorrelation, CategoryStale, SeverityWarning,
		"no pending request with id %s", requestID)
}

// DuplicateResponse is returned when a handler's request was already answered
func DuplicateResponse(method, requestID string) MCPError {
	return NewErrorf(CodeDuplicateResponse, CategoryInternal, SeverityError,
		"request %s (%s) already has a terminal reply", requestID, method)
}

// Cancelled is the terminal outcome of a cancelled request
func Cancelled(method, reason string) MCPError {
	err := NewErrorf(CodeOperationCancelled, CategoryCancelled, SeverityInfo, "%s cancelled", method)
	if reason != "" {
		err = err.WithDetail(reason)
	}
	return err
}

// Timeout is the terminal outcome of a call that exceeded its deadline
func Timeout(method string, after time.Duration) MCPError {
	return NewErrorf(CodeOperationTimeout, CategoryTimeout, SeverityError,
		"%s timed out after %s", method, after)
}

// ConnectionLost completes calls still pending when the session closes
func ConnectionLost(method string, cause error) MCPError {
	return WrapError(cause, CodeConnectionLost, fmt.Sprintf("session closed while %s was pending", method),
		CategoryTransport, SeverityError)
}

// VersionMismatch reports a protocol version this side cannot speak
func VersionMismatch(got string, supported []string) MCPError {
	return NewErrorf(CodeVersionMismatch, CategoryProtocol, SeverityCritical,
		"unsupported protocol version %q", got).
		WithData(map[string]interface{}{"requested": got, "supported": supported})
}

// IsCancelled reports whether err is a cancellation outcome
func IsCancelled(err error) bool { return IsCategory(err, CategoryCancelled) }

// IsTimeout reports whether err is a timeout outcome
func IsTimeout(err error) bool { return IsCategory(err, CategoryTimeout) }

// IsProtocolViolation reports whether err is a phase or sequence violation
func IsProtocolViolation(err error) bool { return IsCategory(err, CategoryProtocol) }

// IsMethodNotFound reports whether err carries the method-not-found code
func IsMethodNotFound(err error) bool { return IsCode(err, CodeMethodNotFound) }
