package errors

import (
	"encoding/json"
	stderrors "errors"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// ToWire converts any error to a JSON-RPC error object. Errors outside the
// taxonomy become internal errors carrying their text.
func ToWire(err error) *protocol.Error {
	if err == nil {
		return nil
	}

	var pe *protocol.ParamsError
	if _, isMCP := AsMCPError(err); !isMCP && stderrors.As(err, &pe) {
		err = InvalidParams(pe.Error(), pe)
	}

	mcpErr, ok := AsMCPError(err)
	if !ok {
		return &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	wire := &protocol.Error{
		Code:    protocol.ErrorCode(mcpErr.Code()),
		Message: mcpErr.Message(),
	}
	if mcpErr.Category() == CategoryRemote {
		if raw, ok := mcpErr.Data().(json.RawMessage); ok {
			wire.Data = raw
		}
		return wire
	}
	if data := mcpErr.Data(); data != nil {
		if raw, marshalErr := json.Marshal(data); marshalErr == nil {
			wire.Data = raw
		}
	}
	return wire
}

// ToErrorResponse builds the error reply for request id
func ToErrorResponse(id protocol.RequestID, err error) (*protocol.Message, error) {
	wire := ToWire(err)
	if wire == nil {
		wire = &protocol.Error{Code: protocol.InternalError, Message: "unknown error"}
	}
	return &protocol.Message{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      &id,
		Error:   wire,
	}, nil
}

// FromWire converts an error received from the peer. The peer's code and
// message are preserved; the category is always CategoryRemote and the
// registered category is recorded as a detail.
func FromWire(wire *protocol.Error) MCPError {
	if wire == nil {
		return nil
	}
	severity := SeverityError
	detail := GetErrorCodeName(int(wire.Code))
	if info, ok := GetErrorCodeInfo(int(wire.Code)); ok {
		severity = info.Severity
		detail = info.Name + " (" + string(info.Category) + ")"
	}
	err := NewError(int(wire.Code), wire.Message, CategoryRemote, severity).WithDetail(detail)
	if len(wire.Data) > 0 {
		err = err.WithData(wire.Data)
	}
	return err
}

// FromDecode converts a protocol decode error
func FromDecode(err error) MCPError {
	var de *protocol.DecodeError
	if stderrors.As(err, &de) {
		return Decode(de.Reason, de.Cause)
	}
	return Decode("invalid message", err)
}
