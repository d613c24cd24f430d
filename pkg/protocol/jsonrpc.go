package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode represents a JSON-RPC 2.0 error code
type ErrorCode int

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// MCP-specific error codes in the implementation-defined server range
const (
	// ServerNotReady is returned for requests received before the handshake completes
	ServerNotReady ErrorCode = -32001
	// ResourceNotFound indicates a requested resource was not found
	ResourceNotFound ErrorCode = -32002
)

// RequestID is a JSON-RPC request identifier. It holds either a string or an
// integer; the zero value is the absent id.
type RequestID struct {
	str   string
	num   int64
	isStr bool
	valid bool
}

// IntID returns an integer request id.
func IntID(n int64) RequestID {
	return RequestID{num: n, valid: true}
}

// StringID returns a string request id.
func StringID(s string) RequestID {
	return RequestID{str: s, isStr: true, valid: true}
}

// IsValid reports whether the id was set.
func (id RequestID) IsValid() bool { return id.valid }

// IsString reports whether the id is a string id.
func (id RequestID) IsString() bool { return id.valid && id.isStr }

// Int64 returns the integer form of the id.
func (id RequestID) Int64() (int64, bool) {
	if !id.valid || id.isStr {
		return 0, false
	}
	return id.num, true
}

// String renders the id for logs and map keys. String and integer ids with
// the same text render differently.
func (id RequestID) String() string {
	switch {
	case !id.valid:
		return "<nil>"
	case id.isStr:
		return strconv.Quote(id.str)
	default:
		return strconv.FormatInt(id.num, 10)
	}
}

// MarshalJSON implements json.Marshaler
func (id RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.valid:
		return []byte("null"), nil
	case id.isStr:
		return json.Marshal(id.str)
	default:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = RequestID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("request id must be a string or integer, got %s", data)
	}
	*id = IntID(n)
	return nil
}

// Kind discriminates the four envelope variants
type Kind int

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is a decoded JSON-RPC 2.0 envelope. Exactly one of the variant
// shapes is populated; Kind reports which.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind reports the envelope variant
func (m *Message) Kind() Kind {
	switch {
	case m.Method != "" && m.ID != nil && m.ID.IsValid():
		return KindRequest
	case m.Method != "":
		return KindNotification
	case m.Error != nil:
		return KindError
	default:
		return KindResponse
	}
}

// RequestID returns the envelope id, or the zero id for notifications
func (m *Message) RequestID() RequestID {
	if m.ID == nil {
		return RequestID{}
	}
	return *m.ID
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id RequestID, method string, params interface{}) (*Message, error) {
	paramsJSON, err := marshalPayload(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Message, error) {
	paramsJSON, err := marshalPayload(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NewResponse creates a new JSON-RPC 2.0 success response. A nil result is
// sent as an empty object since the result member is mandatory.
func NewResponse(id RequestID, result interface{}) (*Message, error) {
	resultJSON, err := marshalPayload(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if len(resultJSON) == 0 {
		resultJSON = json.RawMessage("{}")
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id RequestID, code ErrorCode, message string, data interface{}) (*Message, error) {
	dataJSON, err := marshalPayload(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error data: %w", err)
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    dataJSON,
		},
	}, nil
}

func marshalPayload(v interface{}) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(v)
}

// Encode serializes a message to its wire form
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}
	if m.JSONRPC == "" {
		cp := *m
		cp.JSONRPC = JSONRPCVersion
		m = &cp
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Kind(), err)
	}
	return data, nil
}

// DecodeError reports an envelope that violates JSON-RPC 2.0 shape rules.
// ID is set when the offending envelope carried a readable id.
type DecodeError struct {
	Reason string
	ID     *RequestID
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Cause)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// envelope keeps every member raw so presence can be told apart from zero values
type envelope struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Decode parses and validates one envelope. Payloads are not inspected beyond
// the members JSON-RPC itself requires. All failures are *DecodeError.
func Decode(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, &DecodeError{Reason: "batch messages are not supported"}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Cause: err}
	}

	var id *RequestID
	if len(env.ID) > 0 {
		var parsed RequestID
		if err := json.Unmarshal(env.ID, &parsed); err != nil {
			return nil, &DecodeError{Reason: "invalid id", Cause: err}
		}
		if parsed.IsValid() {
			id = &parsed
		}
	}

	if env.JSONRPC == nil || *env.JSONRPC != JSONRPCVersion {
		return nil, &DecodeError{Reason: `missing or invalid "jsonrpc" member`, ID: id}
	}

	msg := &Message{JSONRPC: JSONRPCVersion, ID: id}

	if env.Method != nil {
		if len(env.Result) > 0 || len(env.Error) > 0 {
			return nil, &DecodeError{Reason: "message has both method and result/error", ID: id}
		}
		if *env.Method == "" {
			return nil, &DecodeError{Reason: "empty method", ID: id}
		}
		if len(env.ID) > 0 && id == nil {
			return nil, &DecodeError{Reason: "request id must not be null"}
		}
		msg.Method = *env.Method
		msg.Params = nullToEmpty(env.Params)
		return msg, nil
	}

	hasResult, hasError := len(env.Result) > 0, len(env.Error) > 0
	switch {
	case hasResult && hasError:
		return nil, &DecodeError{Reason: "response has both result and error", ID: id}
	case !hasResult && !hasError:
		if id != nil {
			return nil, &DecodeError{Reason: "response has neither result nor error", ID: id}
		}
		return nil, &DecodeError{Reason: "message is neither request, notification nor response"}
	case hasResult:
		if id == nil {
			return nil, &DecodeError{Reason: "response is missing id"}
		}
		msg.Result = env.Result
	default:
		var wireErr Error
		if err := json.Unmarshal(env.Error, &wireErr); err != nil {
			return nil, &DecodeError{Reason: "malformed error object", ID: id, Cause: err}
		}
		if wireErr.Message == "" && wireErr.Code == 0 {
			return nil, &DecodeError{Reason: "error object is missing code and message", ID: id}
		}
		msg.Error = &wireErr
	}
	return msg, nil
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
