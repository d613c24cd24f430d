package errors

import "fmt"

// TransportErrorData contains structured data for transport errors
type TransportErrorData struct {
	Transport string `json:"transport"`
	Operation string `json:"operation,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// TransportError wraps a failure while moving bytes. Transport errors are the
// only session-fatal kind.
func TransportError(transport, operation string, cause error) MCPError {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	data := &TransportErrorData{Transport: transport, Operation: operation}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
		data.Reason = cause.Error()
	}
	return WrapError(cause, CodeTransportError, message, CategoryTransport, SeverityCritical).
		WithData(data)
}

// TransportClosed reports use of a transport after Close
func TransportClosed(transport string) MCPError {
	return NewErrorf(CodeTransportError, CategoryTransport, SeverityError, "%s transport is closed", transport).
		WithData(&TransportErrorData{Transport: transport, Reason: "closed"})
}
